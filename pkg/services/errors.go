package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a session does not exist or has expired
	ErrNotFound = errors.New("session not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionBusy is returned when another connection holds the session's
	// turn lock
	ErrSessionBusy = errors.New("session busy")

	// ErrPaidTierRequired is returned when the requested model tier needs a
	// paid entitlement the user lacks
	ErrPaidTierRequired = errors.New("paid plan required for this model")

	// ErrNotAwaitingResult is returned when a tool result arrives for a
	// session with no pending tool call
	ErrNotAwaitingResult = errors.New("session is not awaiting a tool result")

	// ErrToolMismatch is returned when a submitted tool id does not match the
	// session's pending tool call
	ErrToolMismatch = errors.New("tool id does not match the pending tool call")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
