package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/genwatch/internal/config"
	"github.com/phrazzld/genwatch/internal/events"
	"github.com/phrazzld/genwatch/internal/platform/genapi"
	"github.com/phrazzld/genwatch/internal/platform/metrics"
	"github.com/phrazzld/genwatch/internal/platform/redisstore"
	"github.com/phrazzld/genwatch/internal/stream"
	"github.com/phrazzld/genwatch/internal/task"
	"github.com/redis/go-redis/v9"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// redis is nil when persistence is disabled
	redis *redis.Client

	metrics  *metrics.Metrics
	bus      *events.Bus
	client   *genapi.Client
	registry *task.Registry
	sniffer  *stream.Sniffer
}

// newApplication creates a new application instance with all dependencies initialized.
// Tasks persisted by a previous run are resumed before it returns.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	redisClient *redis.Client,
) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		redis:   redisClient,
		metrics: metrics.New(),
	}

	var err error
	app.bus, err = events.NewBus(events.BusConfig{
		PendingTTL:  cfg.Notifications.PendingTTL,
		SettleDelay: cfg.Notifications.SettleDelay,
		DedupeSize:  cfg.Notifications.DedupeSize,
	}, logger, events.WithMetrics(app.metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to create notification bus: %w", err)
	}

	app.client, err = genapi.NewClient(cfg.Generation, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	opts := []task.Option{task.WithMetrics(app.metrics)}
	if redisClient != nil {
		opts = append(opts, task.WithStore(redisstore.NewTaskStore(redisClient, cfg.Redis.KeyPrefix, logger)))
	}

	app.registry, err = task.NewRegistry(task.Config{
		PollInterval:    cfg.Tracker.PollInterval,
		MaxAttempts:     cfg.Tracker.MaxAttempts,
		SyntheticWindow: cfg.Tracker.SyntheticWindow,
		StatusTimeout:   cfg.Tracker.StatusTimeout,

		// Outcomes stay replayable for as long as the bus remembers them
		FinishedCapacity: cfg.Notifications.DedupeSize,
	}, app.client, app.bus, logger, opts...)
	if err != nil {
		app.bus.Close()
		return nil, fmt.Errorf("failed to create task registry: %w", err)
	}

	app.metrics.TrackGauges(app.registry.Count, app.bus.PendingCount, app.bus.ListenerCount)

	if err := app.registry.Recover(ctx); err != nil {
		// Startup continues; new tasks are still tracked and persisted
		logger.Error("Failed to recover persisted tasks", "error", err)
	}

	app.sniffer = stream.NewSniffer(app.registry, logger)

	logger.Info("Application initialized successfully",
		"persistence", redisClient != nil,
		"recovered_tasks", app.registry.Count())
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
// Tracked tasks stay in the store so the next run resumes them.
func (app *application) cleanup() {
	if app.registry != nil {
		app.registry.Stop()
	}
	if app.bus != nil {
		app.bus.Close()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing redis connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
