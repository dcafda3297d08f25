package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/genwatch/internal/api/shared"
	"github.com/phrazzld/genwatch/internal/generation"
	"github.com/phrazzld/genwatch/internal/task"
)

// ErrTaskNotFound is returned when a task id is not tracked
var ErrTaskNotFound = errors.New("task not found")

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, ErrTaskNotFound):
		return http.StatusNotFound

	case errors.As(err, &validationErrs),
		errors.Is(err, task.ErrEmptyTaskID),
		errors.Is(err, task.ErrEmptyOwnerMessageID),
		errors.Is(err, shared.ErrEmptyBody),
		errors.Is(err, shared.ErrInvalidBody):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrTaskFinished):
		return http.StatusConflict

	case errors.Is(err, generation.ErrSubmitFailed),
		errors.Is(err, generation.ErrInvalidPayload):
		return http.StatusBadGateway

	case errors.Is(err, task.ErrRegistryStopped):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrTaskNotFound):
		return "Task not found"
	case errors.As(err, &validationErrs):
		return SanitizeValidationError(validationErrs)
	case errors.Is(err, task.ErrEmptyTaskID):
		return "Invalid task_id: required field"
	case errors.Is(err, task.ErrEmptyOwnerMessageID):
		return "Invalid owner_message_id: required field"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.Is(err, shared.ErrInvalidBody):
		return "Invalid request format"
	case errors.Is(err, task.ErrTaskFinished):
		return "Task already finished"
	case errors.Is(err, generation.ErrSubmitFailed),
		errors.Is(err, generation.ErrInvalidPayload):
		return "Generation service request failed"
	case errors.Is(err, task.ErrRegistryStopped):
		return "Service is shutting down"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a client-safe message
// naming the first failing field by its JSON name.
func SanitizeValidationError(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "Validation error"
	}
	fe := errs[0]
	return fmt.Sprintf("Invalid %s: %s", toSnakeCase(fe.Field()), getValidationTagMessage(fe.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "max":
		return "too long"
	default:
		return "validation failed"
	}
}

func toSnakeCase(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HandleAPIError maps err to a status code and safe message and writes the response.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
