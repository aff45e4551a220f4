package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrMissingID        = errors.New("missing movie id")
	ErrNegativeID       = errors.New("negative movie id")
	ErrMissingColumn    = errors.New("missing required column")
	ErrEmptyQuery       = errors.New("empty query")
	ErrInvalidPolicy    = errors.New("invalid id policy")
	ErrInvalidLimit     = errors.New("invalid result limit")
	ErrInvalidBatchSize = errors.New("invalid batch size")
	ErrInvalidWeighting = errors.New("invalid document weighting")
	ErrMissingSetting   = errors.New("missing required setting")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
