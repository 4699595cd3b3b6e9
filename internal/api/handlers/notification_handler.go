package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/bastion/internal/api/middleware"
	"github.com/Wikid82/bastion/internal/securitylog"
	"github.com/Wikid82/bastion/internal/services"
)

// NotificationHandler serves the inbox of escalated security alerts.
type NotificationHandler struct {
	service *services.NotificationService
	events  *securitylog.Logger
}

func NewNotificationHandler(service *services.NotificationService, events *securitylog.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, events: events}
}

// List accepts unread, event_id, severity and limit query parameters.
func (h *NotificationHandler) List(c *gin.Context) {
	filter := services.NotificationFilter{
		UnreadOnly: c.Query("unread") == "true",
		EventID:    c.Query("event_id"),
	}
	if raw := c.Query("severity"); raw != "" {
		sev, err := securitylog.ParseSeverity(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Severity = sev.String()
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}
	filter.Limit = limit

	notifications, err := h.service.List(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, notifications)
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	if err := h.service.MarkAsRead(c.Param("id")); err != nil {
		if errors.Is(err, services.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark notification as read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// MarkAllAsRead acknowledges the whole inbox and records who did it.
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	n, err := h.service.MarkAllAsRead()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark all notifications as read"})
		return
	}
	ec := middleware.EventContext(c)
	h.events.LogAdminAction(ec.ActorID, "acknowledge_notifications", map[string]any{"count": n}, ec)
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read", "updated": n})
}
