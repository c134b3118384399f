package router

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"presence-service/internal/config"
	"presence-service/internal/handler"
	"presence-service/internal/middleware"
)

// Setup wires middleware, handlers and routes onto a gin engine.
func Setup(
	cfg *config.Config,
	db *gorm.DB,
	redisClient *redis.Client,
	presenceHandler *handler.PresenceHandler,
	wsHandler *handler.WSHandler,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS("*"))
	r.Use(middleware.MetricsMiddleware())

	healthHandler := handler.NewHealthHandler(db, redisClient)

	// Health endpoints (no auth)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", middleware.MetricsHandler())

	// API routes with base path
	api := r.Group(cfg.Server.BasePath)
	{
		api.GET("/health", healthHandler.Health)
		api.GET("/ready", healthHandler.Ready)

		// WebSocket endpoint authenticates via query token itself
		api.GET("/ws", wsHandler.HandlePresenceWebSocket)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(cfg.Auth.SecretKey))
		{
			authenticated.GET("/online", presenceHandler.GetOnlineUsers)
			authenticated.GET("/online/count", presenceHandler.GetOnlineCount)
			authenticated.GET("/status/:userId", presenceHandler.GetUserStatus)
			authenticated.GET("/sockets/:userId", presenceHandler.GetUserSockets)

			// Maintenance: refused outside dev/test environments
			authenticated.DELETE("/sessions", presenceHandler.ClearSessions)
		}
	}

	return r
}
