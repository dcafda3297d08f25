package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/genwatch/internal/api"
	apiMiddleware "github.com/phrazzld/genwatch/internal/api/middleware"
	"github.com/phrazzld/genwatch/internal/api/shared"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace(app.logger))

	taskHandler := api.NewTaskHandler(app.registry, app.logger)
	notificationHandler := api.NewNotificationHandler(
		app.bus,
		app.config.Notifications.Heartbeat,
		app.config.Notifications.StreamBuffer,
		app.logger,
	)
	generationHandler := api.NewGenerationHandler(
		app.client,
		app.registry,
		app.sniffer,
		app.config.Generation.StreamLifetime,
		app.logger,
	)

	r.Route("/api", func(r chi.Router) {
		// The bearer token, when present, is forwarded to the worker
		r.Use(apiMiddleware.BearerToken)

		r.Post("/generations", generationHandler.Generate)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.RegisterTask)
			r.Get("/", taskHandler.ListTasks)
			r.Get("/{id}", taskHandler.GetTask)
			r.Delete("/{id}", taskHandler.UnregisterTask)
		})

		r.Get("/notifications", notificationHandler.Stream)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{
			"status":       "ok",
			"active_tasks": app.registry.Count(),
		})
	})
	r.Handle("/metrics", app.metrics.Handler())

	return r
}
