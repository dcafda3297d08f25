package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/genwatch/internal/api/shared"
	"github.com/phrazzld/genwatch/internal/generation"
	"github.com/phrazzld/genwatch/internal/platform/genapi"
	"github.com/phrazzld/genwatch/internal/platform/logger"
	"github.com/phrazzld/genwatch/internal/stream"
	"github.com/phrazzld/genwatch/internal/task"
)

const relayChunkSize = 32 * 1024

// Submitter sends a generation request to the worker
type Submitter interface {
	Submit(ctx context.Context, body []byte, authToken string) (*genapi.SubmitResult, error)
}

// StreamWatcher registers tasks whose ids arrive inside a streamed response
type StreamWatcher interface {
	AttachBody(body io.ReadCloser, reg task.Registration) (io.ReadCloser, <-chan stream.Result)
}

// GenerationHandler proxies generation requests to the worker and starts
// tracking any job that continues in the background.
type GenerationHandler struct {
	submitter      Submitter
	tracker        TaskTracker
	watcher        StreamWatcher
	streamLifetime time.Duration
	logger         *slog.Logger
}

// NewGenerationHandler creates a new GenerationHandler
func NewGenerationHandler(
	submitter Submitter,
	tracker TaskTracker,
	watcher StreamWatcher,
	streamLifetime time.Duration,
	logger *slog.Logger,
) *GenerationHandler {
	return &GenerationHandler{
		submitter:      submitter,
		tracker:        tracker,
		watcher:        watcher,
		streamLifetime: streamLifetime,
		logger:         logger.With("component", "generation_handler"),
	}
}

// Generate handles POST /generations.
//
// A synchronous result is returned as 200 JSON. A plain job reference is
// registered and answered with 202. An event stream is relayed to the client
// while a second reader registers the task id it carries.
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req GenerationRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	authToken := shared.GetAuthToken(r.Context())

	// The job outlives the request; only the lifetime bound cancels it
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.streamLifetime)

	result, err := h.submitter.Submit(ctx, req.Payload, authToken)
	if err != nil {
		cancel()
		HandleAPIError(w, r, err)
		return
	}

	reg := task.Registration{
		OwnerMessageID: req.OwnerMessageID,
		Character:      req.Character,
		AuthToken:      authToken,
	}

	if result.IsStream() {
		h.relay(w, r, result, reg, cancel)
		return
	}
	defer cancel()

	if result.ResultURL != "" {
		log.Info("generation completed synchronously",
			"owner_message_id", req.OwnerMessageID)
		shared.RespondWithJSON(w, r, http.StatusOK, GenerationResponse{
			ResultURL:             result.ResultURL,
			GenerationTimeSeconds: result.GenerationTimeSeconds,
		})
		return
	}

	if result.TaskID == "" {
		HandleAPIError(w, r, fmt.Errorf("worker answered without a result or task id: %w",
			generation.ErrInvalidPayload))
		return
	}

	reg.TaskID = result.TaskID
	added, err := h.tracker.Register(r.Context(), reg)
	if err != nil {
		HandleAPIError(w, r, fmt.Errorf("failed to track generation task: %w", err))
		return
	}
	log.Info("generation continues in background",
		"task_id", result.TaskID,
		"owner_message_id", req.OwnerMessageID,
		"added", added)
	shared.RespondWithJSON(w, r, http.StatusAccepted, GenerationResponse{
		TaskID:  result.TaskID,
		Tracked: true,
	})
}

// relay copies the worker's event stream to the client. The upstream request
// stays open until both the client copy and the task id sniffer are done.
func (h *GenerationHandler) relay(
	w http.ResponseWriter,
	r *http.Request,
	result *genapi.SubmitResult,
	reg task.Registration,
	cancel context.CancelFunc,
) {
	primary, results := h.watcher.AttachBody(result.Stream, reg)
	defer func() {
		_ = primary.Close()
		go func() {
			if res, ok := <-results; ok && res.Err != nil && !errors.Is(res.Err, stream.ErrNoTaskID) {
				h.logger.Warn("streamed generation was not tracked",
					"owner_message_id", reg.OwnerMessageID,
					"error", res.Err)
			}
			cancel()
		}()
	}()

	// A blocked read is released when the client goes away
	stop := context.AfterFunc(r.Context(), func() { _ = primary.Close() })
	defer stop()

	contentType := result.ContentType
	if contentType == "" {
		contentType = "text/event-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	buf := make([]byte, relayChunkSize)
	for {
		n, err := primary.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				h.logger.Debug("client went away during relay", "error", werr)
				return
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				h.logger.Debug("failed to flush relay", "error", ferr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				h.logger.Warn("upstream stream ended with error",
					"owner_message_id", reg.OwnerMessageID,
					"error", err)
			}
			return
		}
	}
}
