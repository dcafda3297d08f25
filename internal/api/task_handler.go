package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/genwatch/internal/api/shared"
	"github.com/phrazzld/genwatch/internal/platform/logger"
	"github.com/phrazzld/genwatch/internal/task"
)

// TaskTracker is the part of the task registry the HTTP layer uses
type TaskTracker interface {
	Register(ctx context.Context, reg task.Registration) (bool, error)
	Unregister(taskID string) bool
	Get(taskID string) (task.Task, bool)
	List() []task.Task
	Progress(taskID string) (int, bool)
}

// TaskHandler handles task tracking endpoints
type TaskHandler struct {
	tracker TaskTracker
	logger  *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(tracker TaskTracker, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tracker: tracker,
		logger:  logger.With("component", "task_handler"),
	}
}

// RegisterTask handles POST /tasks.
// It answers 202 when tracking starts, 200 when the task was already tracked,
// and 409 when the task already finished and its outcome was sent again.
func (h *TaskHandler) RegisterTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req RegisterTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	started, err := h.tracker.Register(r.Context(), task.Registration{
		TaskID:         req.TaskID,
		OwnerMessageID: req.OwnerMessageID,
		Character:      req.Character,
		AuthToken:      shared.GetAuthToken(r.Context()),
	})
	if err != nil {
		HandleAPIError(w, r, fmt.Errorf("failed to register task: %w", err))
		return
	}

	t, ok := h.tracker.Get(req.TaskID)
	if !ok {
		// Finished between Register and Get
		t = task.Task{TaskID: req.TaskID, OwnerMessageID: req.OwnerMessageID, Character: req.Character}
	}
	progress, _ := h.tracker.Progress(req.TaskID)

	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	log.Debug("task registration handled",
		"task_id", req.TaskID,
		"started", started)
	shared.RespondWithJSON(w, r, status, toTaskResponse(t, progress))
}

// ListTasks handles GET /tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.tracker.List()
	resp := TaskListResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, t := range tasks {
		progress, _ := h.tracker.Progress(t.TaskID)
		resp.Tasks = append(resp.Tasks, toTaskResponse(t, progress))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetTask handles GET /tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	t, ok := h.tracker.Get(taskID)
	if !ok {
		HandleAPIError(w, r, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID))
		return
	}
	progress, _ := h.tracker.Progress(taskID)
	shared.RespondWithJSON(w, r, http.StatusOK, toTaskResponse(t, progress))
}

// UnregisterTask handles DELETE /tasks/{id}. No notification is published
// for a task removed this way.
func (h *TaskHandler) UnregisterTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if !h.tracker.Unregister(taskID) {
		HandleAPIError(w, r, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID))
		return
	}
	h.logger.Info("task unregistered by request",
		"task_id", taskID,
		"trace_id", shared.GetTraceID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
