package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/genwatch/internal/api/shared"
	"github.com/phrazzld/genwatch/internal/events"
)

// errSlowConsumer is returned to the bus when a stream's queue is full
var errSlowConsumer = errors.New("notification stream is not keeping up")

// NotificationHandler streams terminal notifications to connected clients.
// Every open stream is one bus subscriber.
type NotificationHandler struct {
	bus       events.Subscriber
	heartbeat time.Duration
	buffer    int
	logger    *slog.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(
	bus events.Subscriber,
	heartbeat time.Duration,
	buffer int,
	logger *slog.Logger,
) *NotificationHandler {
	if buffer <= 0 {
		buffer = 1
	}
	return &NotificationHandler{
		bus:       bus,
		heartbeat: heartbeat,
		buffer:    buffer,
		logger:    logger.With("component", "notification_handler"),
	}
}

// Stream handles GET /notifications as a server-sent event stream. The
// subscription lives as long as the request.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := shared.GetTraceID(ctx)

	queue := make(chan events.Notification, h.buffer)
	unsubscribe := h.bus.Subscribe(events.ListenerFunc(func(_ context.Context, n events.Notification) error {
		select {
		case queue <- n:
			return nil
		default:
			return errSlowConsumer
		}
	}))
	defer unsubscribe()

	sse := startSSE(w)
	h.logger.Debug("notification stream opened", "trace_id", traceID)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("notification stream closed", "trace_id", traceID)
			return

		case <-heartbeat.C:
			if err := sse.Comment("keep-alive"); err != nil {
				h.logger.Debug("notification stream write failed", "trace_id", traceID, "error", err)
				return
			}

		case n := <-queue:
			data, err := json.Marshal(n)
			if err != nil {
				h.logger.Error("failed to encode notification",
					"error", err,
					"task_id", n.TaskID)
				continue
			}
			if err := sse.Event(n.ID.String(), string(n.Kind), data); err != nil {
				h.logger.Warn("notification stream write failed, dropping client",
					"trace_id", traceID,
					"task_id", n.TaskID,
					"error", err)
				return
			}
		}
	}
}
