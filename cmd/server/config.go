package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/genwatch/internal/config"
)

// loadAppConfig loads the application configuration from environment variables or config file.
// Returns the loaded config and any loading error.
func loadAppConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	slog.Debug("Generation worker configuration",
		"base_url_present", cfg.Generation.BaseURL != "",
		"submit_retries", cfg.Generation.SubmitRetries)
	if cfg.Redis.URL != "" {
		slog.Debug("Persistence configuration", "redis_url_present", true)
	}

	return cfg, nil
}
