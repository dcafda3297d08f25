package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genwatch/internal/generation"
)

// Kind identifies the terminal outcome a notification reports
type Kind string

// Possible notification kinds
const (
	KindSucceeded Kind = "succeeded"
	KindFailed    Kind = "failed"
)

// FailureReason distinguishes why a generation failed
type FailureReason string

// Possible failure reasons
const (
	ReasonRemoteFailure FailureReason = "remote_failure"
	ReasonTimeout       FailureReason = "timeout"
)

// Notification is the terminal outcome of one tracked generation task.
type Notification struct {
	// ID is a unique identifier for this notification
	ID uuid.UUID `json:"id"`

	// TaskID is the remote job the outcome belongs to
	TaskID string `json:"task_id"`

	// OwnerMessageID is the chat message that started the job
	OwnerMessageID string `json:"owner_message_id"`

	Kind Kind `json:"kind"`

	// ResultURL is set for successful outcomes
	ResultURL string `json:"result_url,omitempty"`

	Character *generation.CharacterRef `json:"character,omitempty"`

	GenerationTimeSeconds *float64 `json:"generation_time_seconds,omitempty"`

	// Reason and ErrorText are set for failed outcomes
	Reason    FailureReason `json:"reason,omitempty"`
	ErrorText string        `json:"error,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewSuccess creates a notification for a generation that produced a result.
func NewSuccess(
	taskID, ownerMessageID, resultURL string,
	character *generation.CharacterRef,
	generationTimeSeconds *float64,
) Notification {
	return Notification{
		ID:                    uuid.New(),
		TaskID:                taskID,
		OwnerMessageID:        ownerMessageID,
		Kind:                  KindSucceeded,
		ResultURL:             resultURL,
		Character:             character,
		GenerationTimeSeconds: generationTimeSeconds,
		OccurredAt:            time.Now(),
	}
}

// NewFailure creates a notification for a generation that failed or timed out.
func NewFailure(
	taskID, ownerMessageID string,
	character *generation.CharacterRef,
	reason FailureReason,
	errorText string,
) Notification {
	return Notification{
		ID:             uuid.New(),
		TaskID:         taskID,
		OwnerMessageID: ownerMessageID,
		Kind:           KindFailed,
		Character:      character,
		Reason:         reason,
		ErrorText:      errorText,
		OccurredAt:     time.Now(),
	}
}

// PendingNotification is a successful outcome buffered because nobody was
// subscribed when it was published.
type PendingNotification struct {
	Notification
	EnqueuedAt time.Time
}

// Listener receives terminal notifications.
type Listener interface {
	// HandleNotification processes a notification. A returned error is logged
	// and never prevents delivery to other listeners.
	HandleNotification(ctx context.Context, n Notification) error
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(ctx context.Context, n Notification) error

// HandleNotification calls f(ctx, n)
func (f ListenerFunc) HandleNotification(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Publisher publishes terminal outcomes. The task registry is its only caller.
type Publisher interface {
	// Publish sends an outcome at most once per task id.
	Publish(ctx context.Context, n Notification)

	// Replay sends an outcome again after a consumer re-registered its task.
	Replay(ctx context.Context, n Notification)
}

// Subscriber lets consumers register for terminal outcomes.
type Subscriber interface {
	// Subscribe registers a listener and returns a function that removes it.
	Subscribe(listener Listener) (unsubscribe func())
}
