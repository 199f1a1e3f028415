package model

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrSpawn          = errors.New("worker could not be started")
	ErrTimeout        = errors.New("worker timed out")
	ErrWorkerFailure  = errors.New("worker failed")
	ErrCanceled       = errors.New("worker canceled")
	ErrNotFound       = errors.New("not found")
	ErrTerminal       = errors.New("record is terminal")
	ErrAlreadyStarted = errors.New("job already started")
	ErrTooLarge       = errors.New("payload too large")
)

// ValidationError rejects a submission before any job state exists.
// errors.Is(err, ErrValidation) holds for every ValidationError.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return "validation failed: " + e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
