package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/event"
)

// DefaultTimeout bounds Execute when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// ReasonTimeout is the failure reason for commands that exceed the timeout.
const ReasonTimeout = "timeout"

// DeviceLookup resolves device IDs. device.Registry satisfies it.
type DeviceLookup interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
}

// Transport delivers an encoded command to a device. mqtt.Client satisfies
// it; the transport owns topic layout and QoS.
type Transport interface {
	PublishCommand(ctx context.Context, kind, deviceID string, payload []byte) error
}

// Logger defines the logging interface used by the Facade.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Outcome is the result of one command.
type Outcome struct {
	Success bool `json:"success"`
	// Parameters are the values the device applied after normalisation.
	Parameters map[string]any `json:"parameters,omitempty"`
	Reason     string         `json:"reason,omitempty"`

	// Err wraps ErrDeviceCommand when Success is false.
	Err error `json:"-"`
}

// Message is the JSON body published to a device command topic.
type Message struct {
	ID         string         `json:"id"`
	DeviceID   string         `json:"device_id"`
	Action     event.Action   `json:"action"`
	Parameters map[string]any `json:"parameters"`
	Timestamp  string         `json:"timestamp"`
}

// Facade routes actions to device adapters.
//
// All public methods are thread-safe once configured.
type Facade struct {
	devices   DeviceLookup
	adapters  map[device.Kind]Adapter
	transport Transport
	timeout   time.Duration
	logger    Logger
	now       func() time.Time
}

// NewFacade creates a Facade with the default adapters and no transport.
// A non-positive timeout selects DefaultTimeout.
func NewFacade(devices DeviceLookup, timeout time.Duration) *Facade {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Facade{
		devices:  devices,
		adapters: DefaultAdapters(),
		timeout:  timeout,
		logger:   noopLogger{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the facade.
func (f *Facade) SetLogger(logger Logger) {
	f.logger = logger
}

// SetTransport wires the transport commands are published on.
// Call before the facade is shared between goroutines.
func (f *Facade) SetTransport(t Transport) {
	f.transport = t
}

// SetAdapter replaces the adapter for kind.
func (f *Facade) SetAdapter(kind device.Kind, a Adapter) {
	f.adapters[kind] = a
}

// Execute performs action on deviceID.
//
// The error is non-nil only for *UnsupportedActionError; every other failure
// (unknown device, bad parameters, transport error, timeout) is reported in
// the returned Outcome.
func (f *Facade) Execute(ctx context.Context, deviceID string, action event.Action, params map[string]any) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	dev, err := f.devices.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return f.failed(deviceID, action, ReasonTimeout, err), nil
		}
		return f.failed(deviceID, action, err.Error(), err), nil
	}

	adapter, ok := f.adapters[dev.Kind]
	if !ok || !adapter.Supports(action) {
		uerr := &UnsupportedActionError{DeviceID: deviceID, Kind: dev.Kind, Action: action}
		return Outcome{Reason: uerr.Error(), Err: uerr}, uerr
	}

	applied, err := adapter.Normalize(action, params)
	if err != nil {
		return f.failed(deviceID, action, err.Error(), err), nil
	}

	done := make(chan error, 1)
	go func() {
		done <- f.send(ctx, dev, action, applied)
	}()

	select {
	case err := <-done:
		if err != nil {
			return f.failed(deviceID, action, err.Error(), err), nil
		}
	case <-ctx.Done():
		return f.failed(deviceID, action, ReasonTimeout, ctx.Err()), nil
	}

	f.logger.Info("device command executed", "device_id", deviceID, "action", action)
	return Outcome{Success: true, Parameters: applied}, nil
}

// send publishes the command, or simulates it when no transport is wired.
func (f *Facade) send(ctx context.Context, dev *device.Device, action event.Action, params map[string]any) error {
	if f.transport == nil {
		f.logger.Debug("device command simulated", "device_id", dev.ID, "action", action, "parameters", params)
		return nil
	}

	payload, err := json.Marshal(Message{
		ID:         uuid.NewString(),
		DeviceID:   dev.ID,
		Action:     action,
		Parameters: params,
		Timestamp:  f.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	return f.transport.PublishCommand(ctx, string(dev.Kind), dev.ID, payload)
}

func (f *Facade) failed(deviceID string, action event.Action, reason string, cause error) Outcome {
	f.logger.Warn("device command failed", "device_id", deviceID, "action", action, "reason", reason)
	return Outcome{
		Reason: reason,
		Err:    fmt.Errorf("%w: %s %s: %w", ErrDeviceCommand, deviceID, action, cause),
	}
}
