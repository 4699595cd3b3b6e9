package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/bastion/internal/api/middleware"
	"github.com/Wikid82/bastion/internal/models"
	"github.com/Wikid82/bastion/internal/securitylog"
	"github.com/Wikid82/bastion/internal/services"
)

// NotificationProviderHandler manages the external alert destinations.
// Changes are recorded as admin actions.
type NotificationProviderHandler struct {
	service *services.NotificationService
	events  *securitylog.Logger
}

func NewNotificationProviderHandler(service *services.NotificationService, events *securitylog.Logger) *NotificationProviderHandler {
	return &NotificationProviderHandler{service: service, events: events}
}

func (h *NotificationProviderHandler) List(c *gin.Context) {
	providers, err := h.service.ListProviders()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list providers"})
		return
	}
	c.JSON(http.StatusOK, providers)
}

func (h *NotificationProviderHandler) Create(c *gin.Context) {
	var provider models.NotificationProvider
	if err := c.ShouldBindJSON(&provider); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.CreateProvider(&provider); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ec := middleware.EventContext(c)
	h.events.LogAdminAction(ec.ActorID, "create_notification_provider",
		map[string]any{"provider_id": provider.ID, "provider_type": provider.Type}, ec)
	c.JSON(http.StatusCreated, provider)
}

func (h *NotificationProviderHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.DeleteProvider(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete provider"})
		return
	}
	ec := middleware.EventContext(c)
	h.events.LogAdminAction(ec.ActorID, "delete_notification_provider", map[string]any{"provider_id": id}, ec)
	c.JSON(http.StatusOK, gin.H{"message": "Provider deleted"})
}

func (h *NotificationProviderHandler) Test(c *gin.Context) {
	var provider models.NotificationProvider
	if err := c.ShouldBindJSON(&provider); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.TestProvider(provider); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test notification sent"})
}
