package event

import "errors"

var (
	// ErrEventNotFound is returned when an event ID does not exist.
	ErrEventNotFound = errors.New("event: not found")

	// ErrEventExists is returned when saving an event whose ID is already stored.
	ErrEventExists = errors.New("event: already exists")

	// ErrResponseNotFound is returned when a response ID does not exist.
	ErrResponseNotFound = errors.New("event: response not found")

	// ErrInvalidStatus is returned for an unknown event status value.
	ErrInvalidStatus = errors.New("event: invalid status")

	// ErrInvalidTransition is returned when a status change would move backwards.
	ErrInvalidTransition = errors.New("event: invalid status transition")

	// ErrStatusConflict is returned when an event's stored status no longer
	// matches the status a change was computed from.
	ErrStatusConflict = errors.New("event: status changed concurrently")

	// ErrResponseFinal is returned when completing a response that is already executed or failed.
	ErrResponseFinal = errors.New("event: response already final")
)
