package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrTransientPoll is returned when a single status poll fails at the network or HTTP level.
	// The job is still considered in flight and the next tick retries.
	ErrTransientPoll = errors.New("transient error polling generation status")

	// ErrMalformedSnapshot marks a payload that reports success but carries no usable result URL
	ErrMalformedSnapshot = errors.New("generation reported success without a usable result url")

	// ErrInvalidPayload is returned when a status or submit payload is not valid JSON
	ErrInvalidPayload = errors.New("invalid generation payload")

	// ErrSubmitFailed is returned when a generation request could not be submitted
	ErrSubmitFailed = errors.New("failed to submit generation request")
)
