package services

import (
	"errors"
	"fmt"
)

// ErrReportNotReady is returned by the report operations until the
// session's procedure has completed and a final report exists.
var ErrReportNotReady = errors.New("report not ready")

// ValidationError wraps field-specific request validation errors.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
