package config

import (
	"errors"
	"fmt"
)

// ErrProviderNotFound is returned when a provider name is not configured.
var ErrProviderNotFound = errors.New("provider not found")

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
