package domain

import (
	"errors"
	"fmt"
)

// Engine errors. Callers match them with errors.Is.
var (
	// ErrInvalidInput is returned by pure calculators for bad numeric input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidation is returned when strategy parameters fail validation.
	ErrValidation = errors.New("parameter validation failed")

	// ErrContract is returned when a strategy implements neither or both
	// evaluation shapes.
	ErrContract = errors.New("strategy contract violation")

	// ErrNoData is returned when a run has no valid price rows and no trades.
	ErrNoData = errors.New("no price data")
)

// ValidationError names the parameter that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
