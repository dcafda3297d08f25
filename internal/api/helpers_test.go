package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/genwatch/internal/api/middleware"
	"github.com/phrazzld/genwatch/internal/task"
)

// mockTracker is an in-memory TaskTracker
type mockTracker struct {
	mu       sync.Mutex
	tasks    map[string]task.Task
	progress map[string]int
	regs     []task.Registration

	RegisterErr error
}

func newMockTracker() *mockTracker {
	return &mockTracker{
		tasks:    make(map[string]task.Task),
		progress: make(map[string]int),
	}
}

func (m *mockTracker) Register(ctx context.Context, reg task.Registration) (bool, error) {
	if err := reg.Validate(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RegisterErr != nil {
		return false, m.RegisterErr
	}
	m.regs = append(m.regs, reg)
	if _, ok := m.tasks[reg.TaskID]; ok {
		return false, nil
	}
	m.tasks[reg.TaskID] = task.Task{
		TaskID:         reg.TaskID,
		OwnerMessageID: reg.OwnerMessageID,
		Character:      reg.Character,
		AuthToken:      reg.AuthToken,
	}
	return true, nil
}

func (m *mockTracker) Unregister(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[taskID]
	delete(m.tasks, taskID)
	return ok
}

func (m *mockTracker) Get(taskID string) (task.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	return t, ok
}

func (m *mockTracker) List() []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

func (m *mockTracker) Progress(taskID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; !ok {
		return 0, false
	}
	return m.progress[taskID], true
}

func (m *mockTracker) SetProgress(taskID string, v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[taskID] = v
}

func (m *mockTracker) Registrations() []task.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]task.Registration, len(m.regs))
	copy(out, m.regs)
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTaskRouter mounts the task routes the way the server does
func newTaskRouter(h *TaskHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.BearerToken)
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", h.RegisterTask)
		r.Get("/", h.ListTasks)
		r.Get("/{id}", h.GetTask)
		r.Delete("/{id}", h.UnregisterTask)
	})
	return r
}
