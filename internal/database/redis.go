package database

import (
	"context"
	"fmt"

	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/logger"

	"github.com/go-redis/redis/v8"
)

// ConnectRedis opens the client that backs fulfillment locks, CRM
// idempotency keys and the staff token cache.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr, err)
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client, nil
}
