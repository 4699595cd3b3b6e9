package routes

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/Wikid82/bastion/internal/api/handlers"
	"github.com/Wikid82/bastion/internal/api/middleware"
	"github.com/Wikid82/bastion/internal/cerberus"
	"github.com/Wikid82/bastion/internal/config"
	"github.com/Wikid82/bastion/internal/models"
	"github.com/Wikid82/bastion/internal/ratelimit"
	"github.com/Wikid82/bastion/internal/securitylog"
	"github.com/Wikid82/bastion/internal/services"
)

// Deps are the long-lived components built by the composition root.
type Deps struct {
	DB            *gorm.DB
	Config        config.Config
	Limiters      *ratelimit.Set
	Events        *securitylog.Logger
	Notifications *services.NotificationService
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

// Register wires up API routes.
func Register(router *gin.Engine, d Deps) error {
	if d.DB == nil {
		return errors.New("routes: database is required")
	}
	if d.Limiters == nil {
		return errors.New("routes: limiters are required")
	}
	if d.Notifications == nil {
		d.Notifications = services.NewNotificationService(d.DB, d.Config.Security.AlertURLs)
	}

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/api/v1/health", handlers.NewHealthHandler(d.DB))

	api := router.Group("/api/v1")
	api.Use(cerberus.New(d.Config.WAFMode, d.Events).Middleware())
	api.Use(middleware.RateLimit(d.Limiters.API, d.Events, ratelimit.ActionAPI))

	authService := services.NewAuthService(d.DB, d.Config, d.Limiters, d.Events)
	authHandler := handlers.NewAuthHandler(authService, d.Config, services.NewMailService(d.Config.Mail))
	authMiddleware := middleware.AuthMiddleware(authService)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/password-reset", authHandler.RequestPasswordReset)
	api.POST("/auth/password-reset/complete", authHandler.CompletePasswordReset)

	protected := api.Group("/")
	protected.Use(authMiddleware)
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", authHandler.Me)
		protected.POST("/auth/change-password", authHandler.ChangePassword)
	}

	admin := api.Group("/")
	admin.Use(authMiddleware, middleware.RequireRole(models.RoleAdmin))
	{
		securityHandler := handlers.NewSecurityHandler(d.Events, services.NewSecurityService(d.DB), d.Limiters)
		admin.GET("/security/events", securityHandler.GetEvents)
		admin.GET("/security/events/history", securityHandler.GetEventHistory)
		admin.GET("/security/events/summary", securityHandler.GetEventSummary)
		admin.POST("/security/events/flush", securityHandler.FlushEvents)
		admin.GET("/security/limiters", securityHandler.ListLimiters)
		admin.GET("/security/limiters/:name/:identifier", securityHandler.GetLimiterEntry)
		admin.DELETE("/security/limiters/:name/:identifier", securityHandler.ResetLimiterEntry)

		notificationHandler := handlers.NewNotificationHandler(d.Notifications, d.Events)
		admin.GET("/notifications", notificationHandler.List)
		admin.POST("/notifications/:id/read", notificationHandler.MarkAsRead)
		admin.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)

		providerHandler := handlers.NewNotificationProviderHandler(d.Notifications, d.Events)
		admin.GET("/notifications/providers", providerHandler.List)
		admin.POST("/notifications/providers", providerHandler.Create)
		admin.DELETE("/notifications/providers/:id", providerHandler.Delete)
		admin.POST("/notifications/providers/test", providerHandler.Test)
	}

	return nil
}
