// Package common provides shared utilities and types used across khaata.
package common

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the core. Callers classify with errors.Is.
var (
	// ErrValidation marks malformed input rejected before any write.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks an attempt to claim a transaction already held by
	// another active match group, or to create a duplicate active rule.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks an operation referencing a nonexistent rule or
	// match group. Dissolving an already-dissolved group is not an error.
	ErrNotFound = errors.New("not found")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflictf wraps ErrConflict with a formatted detail message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
