package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing required input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown entity id.
	ErrNotFound = errors.New("not found")
)

// Validation returns an error wrapping ErrValidation.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an error wrapping ErrNotFound that names the offending id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}
