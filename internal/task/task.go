package task

import (
	"context"
	"strings"
	"time"

	"github.com/phrazzld/genwatch/internal/generation"
)

// Task is one remote generation job being tracked.
type Task struct {
	TaskID         string                   `json:"task_id"`
	OwnerMessageID string                   `json:"owner_message_id"`
	Character      *generation.CharacterRef `json:"character,omitempty"`
	StartedAt      time.Time                `json:"started_at"`

	// AuthToken is forwarded as a bearer token on status polls
	AuthToken string `json:"auth_token,omitempty"`

	// AttemptCount is the number of status polls made so far.
	// Only the task's poller changes it.
	AttemptCount int `json:"attempt_count"`
}

// Registration is the input for tracking a new task.
type Registration struct {
	TaskID         string
	OwnerMessageID string
	Character      *generation.CharacterRef
	AuthToken      string

	// StartedAt defaults to the registration time when zero
	StartedAt time.Time
}

// Validate checks that the registration identifies both the job and its message
func (r Registration) Validate() error {
	if strings.TrimSpace(r.TaskID) == "" {
		return ErrEmptyTaskID
	}
	if strings.TrimSpace(r.OwnerMessageID) == "" {
		return ErrEmptyOwnerMessageID
	}
	return nil
}

// StatusClient fetches the current status of a remote job.
// Implementations wrap network and HTTP failures in generation.ErrTransientPoll.
type StatusClient interface {
	FetchStatus(ctx context.Context, taskID, authToken string) (generation.StatusSnapshot, error)
}

// TaskStore persists tracked tasks so they can be recovered after a restart.
type TaskStore interface {
	// SaveTask stores or replaces a task
	SaveTask(ctx context.Context, task Task) error

	// DeleteTask removes a task. Deleting an unknown task is not an error.
	DeleteTask(ctx context.Context, taskID string) error

	// ListTasks returns every stored task
	ListTasks(ctx context.Context) ([]Task, error)
}

// Metrics receives registry activity. Implementations must be safe for concurrent use.
type Metrics interface {
	TaskRegistered()
	TaskFinished(outcome string)
	PollFailed()
}

// Task outcomes reported to Metrics
const (
	OutcomeSucceeded    = "succeeded"
	OutcomeFailed       = "failed"
	OutcomeTimedOut     = "timed_out"
	OutcomeUnregistered = "unregistered"
)

type noopMetrics struct{}

func (noopMetrics) TaskRegistered()     {}
func (noopMetrics) TaskFinished(string) {}
func (noopMetrics) PollFailed()         {}
