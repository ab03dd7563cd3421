package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/event"
	"github.com/nerrad567/perimeter-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/perimeter-core/internal/ingest"
)

// handleTimeout bounds one sensor message through the gateway.
const handleTimeout = 10 * time.Second

var (
	// ErrMalformed is returned for payloads that cannot be decoded.
	ErrMalformed = errors.New("sensor: malformed payload")

	// ErrTopic is returned for topics outside the sensor hierarchy.
	ErrTopic = errors.New("sensor: unexpected topic")
)

// Subscriber is the MQTT surface the bridge needs.
type Subscriber interface {
	Subscribe(filter string, handler mqtt.MessageHandler) error
	Unsubscribe(filter string) error
}

// Gateway receives decoded sensor reports.
type Gateway interface {
	Ingest(ctx context.Context, raw ingest.RawEvent) (*event.Event, error)
	UpdateDeviceStatus(ctx context.Context, id, status string) (*device.Device, error)
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Bridge subscribes to sensor topics and forwards reports to the gateway.
type Bridge struct {
	mqtt    Subscriber
	gateway Gateway
	logger  Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New creates a sensor bridge.
func New(sub Subscriber, gw Gateway) *Bridge {
	return &Bridge{mqtt: sub, gateway: gw, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (b *Bridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Start subscribes to sensor events and status reports. In-flight handlers
// are bound to ctx.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	b.ctx, b.cancel = context.WithCancel(ctx)

	if err := b.mqtt.Subscribe(mqtt.SensorEvents, b.handleEvent); err != nil {
		b.cancel()
		return fmt.Errorf("subscribe to sensor events: %w", err)
	}
	if err := b.mqtt.Subscribe(mqtt.SensorStatus, b.handleStatus); err != nil {
		b.mqtt.Unsubscribe(mqtt.SensorEvents) //nolint:errcheck // Best effort rollback
		b.cancel()
		return fmt.Errorf("subscribe to sensor status: %w", err)
	}

	b.started = true
	b.logger.Info("sensor bridge started", "events", mqtt.SensorEvents, "status", mqtt.SensorStatus)
	return nil
}

// Stop unsubscribes and cancels in-flight handlers.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.started = false
	b.mqtt.Unsubscribe(mqtt.SensorEvents) //nolint:errcheck // Connection may already be gone
	b.mqtt.Unsubscribe(mqtt.SensorStatus) //nolint:errcheck // Connection may already be gone
	b.cancel()
	b.logger.Info("sensor bridge stopped")
}

func (b *Bridge) handlerContext() (context.Context, context.CancelFunc) {
	b.mu.Lock()
	parent := b.ctx
	b.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, handleTimeout)
}

func (b *Bridge) handleEvent(topic string, payload []byte) error {
	deviceID, report, ok := mqtt.ParseSensorTopic(topic)
	if !ok || report != mqtt.ReportEvent {
		return fmt.Errorf("%w: %s", ErrTopic, topic)
	}

	var raw ingest.RawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return fmt.Errorf("%w from %s: %w", ErrMalformed, deviceID, err)
	}
	if raw.DeviceID == "" {
		raw.DeviceID = deviceID
	}
	if raw.Source == "" {
		raw.Source = event.SourceSensor
	}

	ctx, cancel := b.handlerContext()
	defer cancel()
	ev, err := b.gateway.Ingest(ctx, raw)
	if err != nil {
		return fmt.Errorf("ingesting report from %s: %w", deviceID, err)
	}
	b.logger.Debug("sensor event ingested", "device_id", deviceID, "event_id", ev.ID)
	return nil
}

type statusReport struct {
	Status string `json:"status"`
}

func (b *Bridge) handleStatus(topic string, payload []byte) error {
	deviceID, kind, ok := mqtt.ParseSensorTopic(topic)
	if !ok || kind != mqtt.ReportStatus {
		return fmt.Errorf("%w: %s", ErrTopic, topic)
	}

	var report statusReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("%w from %s: %w", ErrMalformed, deviceID, err)
	}
	status := strings.ToLower(strings.TrimSpace(report.Status))
	if status == "" {
		return fmt.Errorf("%w from %s: status is required", ErrMalformed, deviceID)
	}

	ctx, cancel := b.handlerContext()
	defer cancel()
	if _, err := b.gateway.UpdateDeviceStatus(ctx, deviceID, status); err != nil {
		return fmt.Errorf("updating status of %s: %w", deviceID, err)
	}
	return nil
}
