package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"presence-service/internal/config"
	"presence-service/internal/database"
	"presence-service/internal/handler"
	"presence-service/internal/job"
	"presence-service/internal/presence"
	"presence-service/internal/repository"
	"presence-service/internal/router"
	"presence-service/internal/service"
	"presence-service/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("🔧 Starting Presence Service",
		zap.Int("port", cfg.Server.Port),
		zap.String("base_path", cfg.Server.BasePath),
		zap.String("env", cfg.Server.Env),
		zap.Duration("session_ttl", cfg.Presence.SessionTTL))

	// Redis carries the presence state; refuse to start without it.
	redisClient, err := database.InitRedis(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// PostgreSQL backs last-seen history only; the service starts without
	// it and retries in the background.
	var lastSeen service.LastSeenStore
	db, err := database.NewDB(cfg)
	if err != nil {
		logger.Warn("⚠️  Failed to connect to PostgreSQL on startup, will retry in background",
			zap.Error(err))
		database.NewAsync(cfg, 5*time.Second)
	} else {
		database.SetDB(db)
		lastSeen = repository.NewLastSeenRepository(db)
		logger.Info("✅ PostgreSQL connected")
	}

	// Core presence tracker over the shared store
	tracker := presence.NewTracker(store.NewRedis(redisClient), cfg.Presence.SessionTTL, logger)
	presenceService := service.NewPresenceService(
		tracker,
		lastSeen,
		redisClient,
		cfg.Presence.EventChannel,
		logger,
	)

	// Handlers
	presenceHandler := handler.NewPresenceHandler(presenceService, cfg.Server.Env, logger)
	wsHandler := handler.NewWSHandler(logger, presenceService, cfg.Auth.SecretKey, redisClient, cfg.Presence.EventChannel)

	// Reconcile sweep for online-set drift after TTL expiry
	c := cron.New()
	if cfg.Presence.ReconcileSchedule != "" {
		reconcileJob := job.NewReconcileJob(presenceService, logger)
		if _, err := c.AddJob(cfg.Presence.ReconcileSchedule, reconcileJob); err != nil {
			logger.Error("Failed to schedule reconcile job", zap.Error(err),
				zap.String("schedule", cfg.Presence.ReconcileSchedule))
		} else {
			c.Start()
			logger.Info("Reconcile job scheduled",
				zap.String("schedule", cfg.Presence.ReconcileSchedule))
		}
	}

	// Router
	r := router.Setup(cfg, db, redisClient, presenceHandler, wsHandler, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		logger.Info("🚀 Presence Service started successfully",
			zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}

// initLogger initializes the zap logger with the specified level
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      zapLevel == zapcore.DebugLevel,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}
