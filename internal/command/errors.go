package command

import (
	"errors"
	"fmt"

	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/event"
)

var (
	// ErrDeviceCommand marks a command that was attempted and failed.
	ErrDeviceCommand = errors.New("command: device command failed")

	// ErrUnsupportedAction is matched by every *UnsupportedActionError.
	ErrUnsupportedAction = errors.New("command: unsupported action")

	// ErrInvalidParameter is returned by adapters for out-of-range parameters.
	ErrInvalidParameter = errors.New("command: invalid parameter")
)

// UnsupportedActionError reports an action the target device cannot perform,
// or a device kind with no adapter.
type UnsupportedActionError struct {
	DeviceID string
	Kind     device.Kind
	Action   event.Action
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("command: %s (%s) does not support action %q", e.DeviceID, e.Kind, e.Action)
}

func (e *UnsupportedActionError) Unwrap() error {
	return ErrUnsupportedAction
}
