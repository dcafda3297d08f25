package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/genwatch/internal/config"
	"github.com/phrazzld/genwatch/internal/task"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Connect opens a client for cfg.URL and verifies the server responds.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return client, nil
}

// TaskStore implements task.TaskStore on a Redis hash.
type TaskStore struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewTaskStore creates a store keeping tasks under "<keyPrefix>:tasks"
func NewTaskStore(client *redis.Client, keyPrefix string, logger *slog.Logger) *TaskStore {
	return &TaskStore{
		client: client,
		key:    keyPrefix + ":tasks",
		logger: logger.With("component", "redis_task_store"),
	}
}

// SaveTask implements task.TaskStore
func (s *TaskStore) SaveTask(ctx context.Context, t task.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, t.TaskID, data).Err(); err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.TaskID, err)
	}
	return nil
}

// DeleteTask implements task.TaskStore
func (s *TaskStore) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.client.HDel(ctx, s.key, taskID).Err(); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}

// ListTasks implements task.TaskStore. Entries that cannot be decoded are
// logged and skipped.
func (s *TaskStore) ListTasks(ctx context.Context) ([]task.Task, error) {
	entries, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]task.Task, 0, len(entries))
	for id, raw := range entries {
		var t task.Task
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			s.logger.Warn("skipping undecodable task entry", "task_id", id, "error", err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

var _ task.TaskStore = (*TaskStore)(nil)
