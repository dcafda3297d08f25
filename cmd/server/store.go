package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/genwatch/internal/config"
	"github.com/phrazzld/genwatch/internal/platform/redisstore"
	"github.com/redis/go-redis/v9"
)

// setupAppStore connects to Redis when persistence is configured.
// It returns a nil client when cfg.Redis.URL is empty.
func setupAppStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		logger.Info("Task persistence disabled, tracked tasks will not survive a restart")
		return nil, nil
	}

	client, err := redisstore.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connection established", "key_prefix", cfg.Redis.KeyPrefix)
	return client, nil
}
