package task

import "errors"

// Common errors returned by the task package
var (
	// ErrEmptyTaskID is returned when registering a task without a task id
	ErrEmptyTaskID = errors.New("task id cannot be empty")

	// ErrEmptyOwnerMessageID is returned when registering a task without an owner message
	ErrEmptyOwnerMessageID = errors.New("owner message id cannot be empty")

	// ErrPollTimeout marks a task that never reached a terminal state within the attempt ceiling
	ErrPollTimeout = errors.New("generation timed out waiting for a terminal status")

	// ErrTaskFinished is returned when registering a task whose outcome was already published
	ErrTaskFinished = errors.New("task already finished")

	// ErrRegistryStopped is returned when registering after Stop
	ErrRegistryStopped = errors.New("task registry is stopped")

	// ErrInvalidConfig is returned when the registry configuration is invalid
	ErrInvalidConfig = errors.New("invalid task registry configuration")
)
