package task

import (
	"context"
	"sync"
)

// MockTaskStore implements the TaskStore interface for testing
type MockTaskStore struct {
	mutex    sync.RWMutex
	tasks    map[string]Task
	SaveFn   func(ctx context.Context, task Task) error
	DeleteFn func(ctx context.Context, taskID string) error
	ListFn   func(ctx context.Context) ([]Task, error)
}

// NewMockTaskStore creates a new MockTaskStore backed by a map
func NewMockTaskStore() *MockTaskStore {
	store := &MockTaskStore{
		tasks: make(map[string]Task),
	}

	store.SaveFn = func(ctx context.Context, task Task) error {
		store.mutex.Lock()
		defer store.mutex.Unlock()
		store.tasks[task.TaskID] = task
		return nil
	}

	store.DeleteFn = func(ctx context.Context, taskID string) error {
		store.mutex.Lock()
		defer store.mutex.Unlock()
		delete(store.tasks, taskID)
		return nil
	}

	store.ListFn = func(ctx context.Context) ([]Task, error) {
		store.mutex.RLock()
		defer store.mutex.RUnlock()
		tasks := make([]Task, 0, len(store.tasks))
		for _, t := range store.tasks {
			tasks = append(tasks, t)
		}
		return tasks, nil
	}

	return store
}

// SaveTask persists a task to the mock store
func (s *MockTaskStore) SaveTask(ctx context.Context, task Task) error {
	return s.SaveFn(ctx, task)
}

// DeleteTask removes a task from the mock store
func (s *MockTaskStore) DeleteTask(ctx context.Context, taskID string) error {
	return s.DeleteFn(ctx, taskID)
}

// ListTasks returns every task in the mock store
func (s *MockTaskStore) ListTasks(ctx context.Context) ([]Task, error) {
	return s.ListFn(ctx)
}

// Has reports whether the default map backing contains taskID
func (s *MockTaskStore) Has(taskID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.tasks[taskID]
	return ok
}

var _ TaskStore = (*MockTaskStore)(nil)
