// internal/database/redis.go
package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"presence-service/internal/config"
)

// InitRedis connects to Redis. REDIS_URL style configuration is handled by
// config; this only dials and pings.
func InitRedis(cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger.Info("✅ Redis connected successfully",
		zap.String("addr", addr),
		zap.Int("db", cfg.Redis.DB))
	return client, nil
}
