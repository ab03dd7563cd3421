package ingest

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/perimeter-core/internal/broadcast"
	"github.com/nerrad567/perimeter-core/internal/command"
	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/event"
	"github.com/nerrad567/perimeter-core/internal/geo"
	"github.com/nerrad567/perimeter-core/internal/metrics"
	"github.com/nerrad567/perimeter-core/internal/rules"
	"github.com/nerrad567/perimeter-core/internal/zone"
)

// Timeouts applied when Config leaves them zero.
const (
	DefaultStoreTimeout   = 3 * time.Second
	DefaultCommandTimeout = command.DefaultTimeout
)

// EventStore persists events and responses. event.SQLiteRepository satisfies it.
type EventStore interface {
	SaveEvent(ctx context.Context, ev *event.Event) error
	UpdateEventStatus(ctx context.Context, id string, from, to event.Status, at time.Time) error
	GetEvent(ctx context.Context, id string) (*event.Event, error)
	QueryEvents(ctx context.Context, f event.Filter) ([]event.Event, error)
	SaveResponse(ctx context.Context, resp *event.Response) error
	UpdateResponse(ctx context.Context, resp *event.Response) error
	ListResponses(ctx context.Context, eventID string) ([]event.Response, error)
}

// DeviceStore is the device catalogue. device.Registry satisfies it.
type DeviceStore interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	ListDevices(ctx context.Context) ([]device.Device, error)
	CreateDevice(ctx context.Context, d *device.Device) error
	SetStatus(ctx context.Context, id string, status device.Status) (*device.Device, error)
}

// ZoneStore is the zone catalogue. zone.Registry satisfies it.
type ZoneStore interface {
	GetZone(ctx context.Context, id string) (*zone.Zone, error)
	ListZones(activeOnly bool) []zone.Zone
	Locate(p geo.Point) (*zone.Zone, bool)
	CreateZone(ctx context.Context, z *zone.Zone) error
}

// Executor runs device commands. command.Facade satisfies it.
type Executor interface {
	Execute(ctx context.Context, deviceID string, action event.Action, params map[string]any) (command.Outcome, error)
}

// Publisher fans messages out to observers. broadcast.Router satisfies it.
type Publisher interface {
	Notify(topic, msgType string, data any)
}

// Telemetry records time-series points. influxdb.Client satisfies it.
type Telemetry interface {
	WriteEvent(ev *event.Event)
	WriteResponse(resp *event.Response)
}

// Logger defines the logging interface used by the Gateway.
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

// Config holds gateway tuning.
type Config struct {
	DedupSize      int
	DedupTTL       time.Duration
	StoreTimeout   time.Duration
	CommandTimeout time.Duration

	// DefaultDeterrent and DefaultCamera are the targets for operator
	// responses that name an action but no device.
	DefaultDeterrent string
	DefaultCamera    string
}

// Deps are the collaborators a Gateway drives.
type Deps struct {
	Events   EventStore
	Devices  DeviceStore
	Zones    ZoneStore
	Rules    *rules.Engine
	Commands Executor
	Router   Publisher
}

// RawEvent is an event as reported by a producer, before validation.
type RawEvent struct {
	ID         string         `json:"id,omitempty"`
	Type       string         `json:"type"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Confidence *float64       `json:"confidence"`
	Location   *geo.Point     `json:"location,omitempty"`
	DeviceID   string         `json:"device_id,omitempty"`
	ZoneID     string         `json:"zone_id,omitempty"`
	Source     string         `json:"source,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Advisory is an intent surfaced to operators without being executed.
type Advisory struct {
	EventID        string         `json:"event_id"`
	Rule           string         `json:"rule"`
	Action         event.Action   `json:"action"`
	TargetDeviceID string         `json:"device_id,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

// Gateway is the single entry point for detections and operator actions.
//
// All public methods are thread-safe.
type Gateway struct {
	cfg       Config
	events    EventStore
	devices   DeviceStore
	zones     ZoneStore
	rules     *rules.Engine
	commands  Executor
	router    Publisher
	dedup     *window
	metrics   *metrics.Metrics
	telemetry Telemetry
	logger    Logger
	now       func() time.Time
}

// New creates a Gateway.
func New(cfg Config, deps Deps) *Gateway {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	return &Gateway{
		cfg:      cfg,
		events:   deps.Events,
		devices:  deps.Devices,
		zones:    deps.Zones,
		rules:    deps.Rules,
		commands: deps.Commands,
		router:   deps.Router,
		dedup:    newWindow(cfg.DedupSize, cfg.DedupTTL),
		logger:   noopLogger{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
}

// SetMetrics wires Prometheus instruments. A nil Metrics disables them.
func (g *Gateway) SetMetrics(m *metrics.Metrics) {
	g.metrics = m
}

// SetTelemetry wires the time-series writer. Nil disables telemetry.
func (g *Gateway) SetTelemetry(t Telemetry) {
	g.telemetry = t
}

// Ingest validates, persists and reacts to one detection.
//
// A duplicate identity returns the event first stored under it without
// evaluating rules or broadcasting again. Errors are *ValidationError or
// *StorageError.
func (g *Gateway) Ingest(ctx context.Context, raw RawEvent) (*event.Event, error) {
	start := time.Now()

	ev, err := g.prepare(raw)
	if err != nil {
		g.metrics.Rejected("validation")
		return nil, err
	}

	ev, err = g.dedup.claim(ev.ID, func() (*event.Event, error) {
		return g.persist(ctx, ev)
	})
	switch {
	case errors.Is(err, ErrDuplicateIdentity):
		g.metrics.Duplicate()
		g.logger.Debug("duplicate event suppressed", "event_id", ev.ID)
		return ev, nil
	case err != nil:
		return nil, err
	}

	// A stored event always gets its responses, whatever happens to the
	// caller. Each step below carries its own store or command timeout.
	g.react(context.WithoutCancel(ctx), ev)
	g.metrics.ObserveIngest(time.Since(start).Seconds())
	return ev, nil
}

// prepare validates raw and builds the event with its identity, timestamp
// and status assigned.
func (g *Gateway) prepare(raw RawEvent) (*event.Event, error) {
	typ := strings.TrimSpace(raw.Type)
	if typ == "" {
		return nil, invalid("type", "is required")
	}
	if raw.Confidence == nil {
		return nil, invalid("confidence", "is required")
	}
	conf := *raw.Confidence
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return nil, invalid("confidence", "%v is outside [0, 1]", conf)
	}
	if raw.Location != nil {
		if err := raw.Location.Validate(); err != nil {
			return nil, invalid("location", "%v", err)
		}
	}

	now := g.now()
	ev := &event.Event{
		ID:         strings.TrimSpace(raw.ID),
		Type:       typ,
		Timestamp:  now,
		Confidence: conf,
		DeviceID:   raw.DeviceID,
		ZoneID:     raw.ZoneID,
		Source:     raw.Source,
		Metadata:   raw.Metadata,
		Status:     event.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if raw.Timestamp != nil && !raw.Timestamp.IsZero() {
		ev.Timestamp = raw.Timestamp.UTC()
	}
	// Stored timestamps carry millisecond precision; truncate now so the
	// returned event matches what a later read yields.
	ev.Timestamp = ev.Timestamp.Truncate(time.Millisecond)
	if ev.Source == "" {
		ev.Source = event.SourceSensor
	}
	if raw.Location != nil {
		loc := *raw.Location
		ev.Location = &loc
	}
	return ev, nil
}

// persist stores ev. A unique conflict on the ID resolves to the stored event
// and ErrDuplicateIdentity.
func (g *Gateway) persist(ctx context.Context, ev *event.Event) (*event.Event, error) {
	g.locate(ctx, ev)

	sctx, cancel := context.WithTimeout(ctx, g.cfg.StoreTimeout)
	defer cancel()

	err := g.events.SaveEvent(sctx, ev)
	if errors.Is(err, event.ErrEventExists) {
		prior, getErr := g.events.GetEvent(sctx, ev.ID)
		if getErr != nil {
			g.metrics.Rejected("storage")
			return nil, &StorageError{Op: "load_event", Err: getErr}
		}
		return prior, ErrDuplicateIdentity
	}
	if err != nil {
		g.metrics.Rejected("storage")
		g.logger.Error("event not persisted", "event_id", ev.ID, "error", err)
		return nil, &StorageError{Op: "save_event", Err: err}
	}

	g.metrics.Ingested(ev.Type, ev.Source)
	if g.telemetry != nil {
		g.telemetry.WriteEvent(ev)
	}
	g.logger.Info("event ingested", "event_id", ev.ID, "type", ev.Type, "confidence", ev.Confidence, "zone_id", ev.ZoneID)
	return ev, nil
}

// locate fills the event's location and zone. An explicit zone_id wins, then
// the first active zone containing the location, then the reporting
// device's placement.
func (g *Gateway) locate(ctx context.Context, ev *event.Event) {
	var dev *device.Device
	if ev.DeviceID != "" && (ev.Location == nil || ev.ZoneID == "") {
		dev = g.lookupDevice(ctx, ev.DeviceID)
	}
	if ev.Location == nil && dev != nil && dev.Location != nil {
		loc := *dev.Location
		ev.Location = &loc
	}
	if ev.ZoneID == "" && ev.Location != nil && g.zones != nil {
		if zn, ok := g.zones.Locate(*ev.Location); ok {
			ev.ZoneID = zn.ID
		}
	}
	if ev.ZoneID == "" && dev != nil {
		ev.ZoneID = dev.ZoneID
	}
}

// react evaluates rules, executes the resulting responses and broadcasts the
// event followed by its responses.
func (g *Gateway) react(ctx context.Context, ev *event.Event) {
	var (
		dev *device.Device
		zn  *zone.Zone
	)
	if ev.DeviceID != "" {
		dev = g.lookupDevice(ctx, ev.DeviceID)
	}
	if ev.ZoneID != "" {
		zn = g.lookupZone(ctx, ev.ZoneID)
	}

	var (
		responses  []*event.Response
		advisories []Advisory
	)
	if g.rules != nil {
		for _, intent := range g.rules.Evaluate(ev, dev, zn) {
			if intent.Advisory {
				g.logger.Info("advisory response",
					"event_id", ev.ID, "rule", intent.Rule, "action", intent.Action, "reason", intent.Reason)
				advisories = append(advisories, Advisory{
					EventID:        ev.ID,
					Rule:           intent.Rule,
					Action:         intent.Action,
					TargetDeviceID: intent.TargetDeviceID,
					Parameters:     intent.Parameters,
					Reason:         intent.Reason,
				})
				continue
			}
			resp, _ := g.execute(ctx, g.newResponse(ev.ID, intent.Action, intent.TargetDeviceID, intent.Parameters, ""))
			responses = append(responses, resp)
		}
	}

	g.notify(broadcast.TopicEvents, broadcast.TypeEvent, ev)
	for _, resp := range responses {
		g.notify(broadcast.TopicResponses, broadcast.TypeResponse, resp)
	}
	for _, adv := range advisories {
		g.notify(broadcast.TopicResponses, broadcast.TypeAdvisory, adv)
	}
}

func (g *Gateway) newResponse(eventID string, action event.Action, target string, params map[string]any, operator string) *event.Response {
	return &event.Response{
		ID:             uuid.NewString(),
		EventID:        eventID,
		Action:         action,
		TargetDeviceID: target,
		Parameters:     params,
		Status:         event.ResponsePending,
		OperatorID:     operator,
		CreatedAt:      g.now(),
	}
}

// execute persists resp as pending, runs the command and records the outcome.
// Store failures are logged; the command still runs. The returned error is
// the facade's *command.UnsupportedActionError, if any.
func (g *Gateway) execute(ctx context.Context, resp *event.Response) (*event.Response, error) {
	if err := g.withStore(ctx, func(sctx context.Context) error { return g.events.SaveResponse(sctx, resp) }); err != nil {
		g.logger.Error("pending response not persisted", "response_id", resp.ID, "event_id", resp.EventID, "error", err)
	}

	var (
		outcome command.Outcome
		cmdErr  error
	)
	if g.commands == nil {
		outcome = command.Outcome{Reason: "no command facade"}
	} else {
		cctx, cancel := context.WithTimeout(ctx, g.cfg.CommandTimeout)
		outcome, cmdErr = g.commands.Execute(cctx, resp.TargetDeviceID, resp.Action, resp.Parameters)
		cancel()
	}

	if err := resp.Complete(outcome.Success, outcome.Parameters, outcome.Reason, g.now()); err != nil {
		g.logger.Warn("response already completed", "response_id", resp.ID, "error", err)
	}
	if err := g.withStore(ctx, func(sctx context.Context) error { return g.events.UpdateResponse(sctx, resp) }); err != nil {
		g.logger.Error("response outcome not persisted", "response_id", resp.ID, "error", err)
	}

	g.metrics.Response(string(resp.Action), string(resp.Status))
	if g.telemetry != nil {
		g.telemetry.WriteResponse(resp)
	}
	g.logger.Info("response completed",
		"response_id", resp.ID, "event_id", resp.EventID, "action", resp.Action,
		"device_id", resp.TargetDeviceID, "status", resp.Status, "reason", resp.Reason)
	return resp, cmdErr
}

// lookupDevice is best-effort; a missing device is not an error.
func (g *Gateway) lookupDevice(ctx context.Context, id string) *device.Device {
	if g.devices == nil {
		return nil
	}
	dev, err := g.devices.GetDevice(ctx, id)
	if err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			g.logger.Warn("device lookup failed", "device_id", id, "error", err)
		}
		return nil
	}
	return dev
}

// lookupZone is best-effort; a missing zone is not an error.
func (g *Gateway) lookupZone(ctx context.Context, id string) *zone.Zone {
	if g.zones == nil {
		return nil
	}
	zn, err := g.zones.GetZone(ctx, id)
	if err != nil {
		if !errors.Is(err, zone.ErrZoneNotFound) {
			g.logger.Warn("zone lookup failed", "zone_id", id, "error", err)
		}
		return nil
	}
	return zn
}

func (g *Gateway) withStore(ctx context.Context, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, g.cfg.StoreTimeout)
	defer cancel()
	return fn(sctx)
}

func (g *Gateway) notify(topic, msgType string, data any) {
	if g.router != nil {
		g.router.Notify(topic, msgType, data)
	}
}
