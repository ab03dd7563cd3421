package mqtt

import "errors"

var (
	// ErrNotConnected is returned while the broker link is down.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnect is returned when the broker cannot be reached at startup.
	ErrConnect = errors.New("mqtt: connect failed")

	// ErrPublish wraps broker-side publish failures.
	ErrPublish = errors.New("mqtt: publish failed")

	// ErrSubscribe wraps broker-side subscribe failures.
	ErrSubscribe = errors.New("mqtt: subscribe failed")

	// ErrInvalidTopic is returned for an empty topic or a command target
	// that would not form a single topic level.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrPayloadTooLarge is returned for commands over maxPayloadSize.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")
)
