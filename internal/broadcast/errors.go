package broadcast

import "errors"

var (
	// ErrSinkClosed is returned when delivering to a sink that has been closed.
	ErrSinkClosed = errors.New("broadcast: sink closed")

	// ErrSinkOverflow is returned when a sink's queue is full.
	ErrSinkOverflow = errors.New("broadcast: sink queue full")
)
