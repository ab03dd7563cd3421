package influxdb

import "errors"

var (
	// ErrNotConnected is returned when the client has been closed or never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps a failed ping at Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed wraps asynchronous batch failures passed to SetOnError.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled is returned by Connect when telemetry is disabled.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
