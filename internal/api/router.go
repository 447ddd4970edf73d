package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mtuog/CDW-sub002/internal/api/admin"
	"github.com/mtuog/CDW-sub002/internal/api/middleware"
	"github.com/mtuog/CDW-sub002/internal/api/visitor"
	"github.com/mtuog/CDW-sub002/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	AdminToken   string
	AllowOrigins []string
}

// SetupRouter sets up the Gin router
func SetupRouter(
	support *service.SupportService,
	hub *Hub,
	log *zap.Logger,
	cfg RouterConfig,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Realtime channel (authenticated via query token on upgrade)
	r.GET("/ws", middleware.Auth(cfg.AdminToken), ServeWS(hub, log))

	// Visitor API
	visitorHandler := visitor.NewHandler(support)
	visitorGroup := r.Group("/api/v1")
	visitorGroup.Use(middleware.Auth(cfg.AdminToken))
	visitorHandler.RegisterRoutes(visitorGroup)

	// Admin console API (requires the admin token)
	adminHandler := admin.NewHandler(support)
	adminGroup := r.Group("/api/v1/admin")
	adminGroup.Use(middleware.Auth(cfg.AdminToken), middleware.RequireAdmin())
	adminHandler.RegisterRoutes(adminGroup)

	return r
}
