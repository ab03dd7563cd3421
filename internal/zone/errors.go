package zone

import "errors"

var (
	// ErrZoneNotFound is returned when a zone ID does not exist.
	ErrZoneNotFound = errors.New("zone: not found")

	// ErrZoneExists is returned when creating a zone with an ID that already exists.
	ErrZoneExists = errors.New("zone: already exists")

	// ErrInvalidZone is returned when zone validation fails.
	ErrInvalidZone = errors.New("zone: invalid")
)
