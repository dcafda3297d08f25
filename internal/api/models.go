package api

import (
	"encoding/json"
	"time"

	"github.com/phrazzld/genwatch/internal/generation"
	"github.com/phrazzld/genwatch/internal/task"
)

// RegisterTaskRequest defines the payload for tracking a submitted generation.
type RegisterTaskRequest struct {
	TaskID         string                   `json:"task_id"          validate:"required,max=256"`
	OwnerMessageID string                   `json:"owner_message_id" validate:"required,max=256"`
	Character      *generation.CharacterRef `json:"character,omitempty"`
}

// TaskResponse describes one tracked task. The auth token is never returned.
type TaskResponse struct {
	TaskID         string                   `json:"task_id"`
	OwnerMessageID string                   `json:"owner_message_id"`
	Character      *generation.CharacterRef `json:"character,omitempty"`
	StartedAt      time.Time                `json:"started_at"`
	AttemptCount   int                      `json:"attempt_count"`
	Progress       int                      `json:"progress"`
}

// TaskListResponse wraps the tracked task list
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// GenerationRequest defines the payload for the submission proxy.
// Payload is forwarded verbatim to the worker.
type GenerationRequest struct {
	OwnerMessageID string                   `json:"owner_message_id" validate:"required,max=256"`
	Character      *generation.CharacterRef `json:"character,omitempty"`
	Payload        json.RawMessage          `json:"payload"          validate:"required"`
}

// GenerationResponse is returned when the worker answers without a stream.
type GenerationResponse struct {
	// ResultURL is set when the image was produced synchronously
	ResultURL             string   `json:"image_url,omitempty"`
	GenerationTimeSeconds *float64 `json:"generation_time,omitempty"`

	// TaskID is set when the job continues in the background
	TaskID  string `json:"task_id,omitempty"`
	Tracked bool   `json:"tracked"`
}

func toTaskResponse(t task.Task, progress int) TaskResponse {
	return TaskResponse{
		TaskID:         t.TaskID,
		OwnerMessageID: t.OwnerMessageID,
		Character:      t.Character,
		StartedAt:      t.StartedAt,
		AttemptCount:   t.AttemptCount,
		Progress:       progress,
	}
}
