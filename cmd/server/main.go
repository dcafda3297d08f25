// Package main implements the entry point for the genwatch server, which
// proxies image generation requests, tracks background generation jobs and
// streams their outcomes to connected clients.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// main is the entry point for the genwatch server.
// It loads configuration, sets up logging, connects optional persistence,
// wires the application and serves HTTP until interrupted.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("genwatch server failed: %v", err)
	}
}

// run performs startup in dependency order and blocks until ctx is canceled.
func run(ctx context.Context) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}

	logger, err := setupAppLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}

	redisClient, err := setupAppStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	app, err := newApplication(ctx, cfg, logger, redisClient)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}
