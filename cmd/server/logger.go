package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/phrazzld/genwatch/internal/config"
	"github.com/phrazzld/genwatch/internal/platform/logger"
)

// setupAppLogger configures and initializes the application logger based on config settings.
// Returns the configured logger or an error if setup fails.
func setupAppLogger(cfg *config.Config, out io.Writer) (*slog.Logger, error) {
	l, err := logger.SetupWithWriter(cfg.Server, out)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return l, nil
}
