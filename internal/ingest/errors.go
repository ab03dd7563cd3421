package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("ingest: validation failed")

	// ErrStorage is matched by every *StorageError.
	ErrStorage = errors.New("ingest: storage unavailable")

	// ErrDuplicateIdentity marks an event already seen in the dedup window.
	// It never leaves the package; duplicates return the prior event.
	ErrDuplicateIdentity = errors.New("ingest: duplicate event identity")
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ingest: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StorageError reports a durable store failure. Callers may retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ingest: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrStorage and the underlying cause.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}
