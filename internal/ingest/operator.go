package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/perimeter-core/internal/broadcast"
	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/event"
	"github.com/nerrad567/perimeter-core/internal/zone"
)

// Query window bounds, in hours.
const (
	DefaultQueryHours = 24
	MaxQueryHours     = 168
)

// Query selects events for QueryEvents. Zero values select the defaults.
type Query struct {
	Type   string
	Status string
	Hours  int
	Limit  int
	Offset int
}

// RespondRequest is a manual operator response.
type RespondRequest struct {
	Action     string         `json:"action"`
	DeviceID   string         `json:"device_id,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	OperatorID string         `json:"-"`
}

// EventDetail is an event with its responses.
type EventDetail struct {
	*event.Event
	Responses []event.Response `json:"responses"`
}

// CreateEvent ingests an operator-reported event.
func (g *Gateway) CreateEvent(ctx context.Context, raw RawEvent) (*event.Event, error) {
	if raw.Source == "" {
		raw.Source = event.SourceOperator
	}
	return g.Ingest(ctx, raw)
}

// GetEvent returns an event and its responses.
func (g *Gateway) GetEvent(ctx context.Context, id string) (*EventDetail, error) {
	ev, err := g.loadEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	var responses []event.Response
	err = g.withStore(ctx, func(sctx context.Context) error {
		var lerr error
		responses, lerr = g.events.ListResponses(sctx, id)
		return lerr
	})
	if err != nil {
		return nil, &StorageError{Op: "list_responses", Err: err}
	}
	if responses == nil {
		responses = []event.Response{}
	}
	return &EventDetail{Event: ev, Responses: responses}, nil
}

// QueryEvents returns events from the last q.Hours, newest first.
func (g *Gateway) QueryEvents(ctx context.Context, q Query) ([]event.Event, error) {
	hours := q.Hours
	if hours == 0 {
		hours = DefaultQueryHours
	}
	if hours < 1 || hours > MaxQueryHours {
		return nil, invalid("hours", "must be between 1 and %d", MaxQueryHours)
	}
	limit := q.Limit
	if limit == 0 {
		limit = event.DefaultLimit
	}
	if limit < 1 || limit > event.MaxLimit {
		return nil, invalid("limit", "must be between 1 and %d", event.MaxLimit)
	}
	if q.Offset < 0 {
		return nil, invalid("offset", "must not be negative")
	}

	f := event.Filter{
		Type:   q.Type,
		Since:  g.now().Add(-time.Duration(hours) * time.Hour),
		Limit:  limit,
		Offset: q.Offset,
	}
	if q.Status != "" {
		status, err := event.ParseStatus(q.Status)
		if err != nil {
			return nil, invalid("status", "%q is not active, acknowledged or resolved", q.Status)
		}
		f.Status = status
	}

	var events []event.Event
	err := g.withStore(ctx, func(sctx context.Context) error {
		var qerr error
		events, qerr = g.events.QueryEvents(sctx, f)
		return qerr
	})
	if err != nil {
		return nil, &StorageError{Op: "query_events", Err: err}
	}
	if events == nil {
		events = []event.Event{}
	}
	return events, nil
}

// RespondToEvent executes a manual response and acknowledges the event if it
// was still active.
//
// The response is returned even when the command failed. An action the
// target cannot perform yields the failed response together with the
// facade's *command.UnsupportedActionError.
func (g *Gateway) RespondToEvent(ctx context.Context, eventID string, req RespondRequest) (*event.Response, error) {
	action, ok := event.ParseAction(req.Action)
	if !ok {
		return nil, invalid("action", "%q is not a known action", req.Action)
	}

	ev, err := g.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	target := req.DeviceID
	if target == "" {
		switch action {
		case event.ActionDeterrent:
			target = g.cfg.DefaultDeterrent
		case event.ActionCameraPan:
			target = g.cfg.DefaultCamera
		}
	}
	if target == "" {
		return nil, invalid("device_id", "is required for action %s", action)
	}

	params := req.Parameters
	if action == event.ActionCameraPan && len(params) == 0 && ev.Location != nil {
		params = map[string]any{"lat": ev.Location.Lat, "lng": ev.Location.Lng}
	}

	// Once the command is chosen it runs to completion under the store and
	// command timeouts, even if the caller goes away.
	rctx := context.WithoutCancel(ctx)
	resp, cmdErr := g.execute(rctx, g.newResponse(ev.ID, action, target, params, req.OperatorID))

	if ev.Status == event.StatusActive {
		if _, err := g.transition(rctx, ev, event.StatusAcknowledged); err != nil {
			g.logger.Error("event not acknowledged", "event_id", ev.ID, "error", err)
		}
	}

	g.notify(broadcast.TopicResponses, broadcast.TypeResponse, resp)
	return resp, cmdErr
}

// UpdateEventStatus moves an event forward through active → acknowledged →
// resolved. Setting the current status is a no-op.
func (g *Gateway) UpdateEventStatus(ctx context.Context, id, status string) (*event.Event, error) {
	to, err := event.ParseStatus(status)
	if err != nil {
		return nil, invalid("status", "%q is not active, acknowledged or resolved", status)
	}

	ev, err := g.loadEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := g.transition(ctx, ev, to); err != nil {
		return nil, err
	}
	return ev, nil
}

// maxTransitionAttempts bounds reloads after a concurrent status change.
const maxTransitionAttempts = 3

// transition applies, persists and broadcasts a status change. The write is
// conditional on the status ev was loaded with; on a conflict the event is
// reloaded and the move re-checked against the stored status.
func (g *Gateway) transition(ctx context.Context, ev *event.Event, to event.Status) (bool, error) {
	for attempt := 1; ; attempt++ {
		from, fromUpdated := ev.Status, ev.UpdatedAt
		changed, err := ev.Transition(to, g.now())
		if err != nil {
			return false, invalid("status", "cannot move from %s to %s", from, to)
		}
		if !changed {
			return false, nil
		}

		err = g.withStore(ctx, func(sctx context.Context) error {
			return g.events.UpdateEventStatus(sctx, ev.ID, from, ev.Status, ev.UpdatedAt)
		})
		if err == nil {
			g.logger.Info("event status changed", "event_id", ev.ID, "from", from, "to", to)
			g.notify(broadcast.TopicEvents, broadcast.TypeEventStatus, ev)
			return true, nil
		}
		ev.Status, ev.UpdatedAt = from, fromUpdated

		switch {
		case errors.Is(err, event.ErrEventNotFound):
			return false, err
		case !errors.Is(err, event.ErrStatusConflict) || attempt == maxTransitionAttempts:
			return false, &StorageError{Op: "update_event", Err: err}
		}

		g.logger.Debug("event status changed concurrently, reloading", "event_id", ev.ID, "attempt", attempt)
		fresh, err := g.loadEvent(ctx, ev.ID)
		if err != nil {
			return false, err
		}
		*ev = *fresh
	}
}

func (g *Gateway) loadEvent(ctx context.Context, id string) (*event.Event, error) {
	var ev *event.Event
	err := g.withStore(ctx, func(sctx context.Context) error {
		var gerr error
		ev, gerr = g.events.GetEvent(sctx, id)
		return gerr
	})
	switch {
	case errors.Is(err, event.ErrEventNotFound):
		return nil, err
	case err != nil:
		return nil, &StorageError{Op: "get_event", Err: err}
	}
	return ev, nil
}

// CreateDevice registers a device. Unknown status defaults to offline.
func (g *Gateway) CreateDevice(ctx context.Context, d *device.Device) error {
	err := g.withStore(ctx, func(sctx context.Context) error {
		return g.devices.CreateDevice(sctx, d)
	})
	if err != nil {
		return deviceError(err, "create_device")
	}
	g.notify(broadcast.TopicDevices, broadcast.TypeDeviceCreated, d)
	return nil
}

// UpdateDeviceStatus records a device health report and refreshes last_seen.
func (g *Gateway) UpdateDeviceStatus(ctx context.Context, id, status string) (*device.Device, error) {
	var d *device.Device
	err := g.withStore(ctx, func(sctx context.Context) error {
		var serr error
		d, serr = g.devices.SetStatus(sctx, id, device.Status(status))
		return serr
	})
	if err != nil {
		return nil, deviceError(err, "update_device")
	}
	g.notify(broadcast.TopicDevices, broadcast.TypeDeviceStatus, d)
	return d, nil
}

// ListDevices returns every device sorted by name.
func (g *Gateway) ListDevices(ctx context.Context) ([]device.Device, error) {
	var devices []device.Device
	err := g.withStore(ctx, func(sctx context.Context) error {
		var lerr error
		devices, lerr = g.devices.ListDevices(sctx)
		return lerr
	})
	if err != nil {
		return nil, &StorageError{Op: "list_devices", Err: err}
	}
	if devices == nil {
		devices = []device.Device{}
	}
	return devices, nil
}

// ListZones returns zones sorted by name.
func (g *Gateway) ListZones(activeOnly bool) []zone.Zone {
	zones := g.zones.ListZones(activeOnly)
	if zones == nil {
		zones = []zone.Zone{}
	}
	return zones
}

// CreateZone validates and stores a zone. New zones take part in location
// resolution immediately.
func (g *Gateway) CreateZone(ctx context.Context, z *zone.Zone) error {
	err := g.withStore(ctx, func(sctx context.Context) error {
		return g.zones.CreateZone(sctx, z)
	})
	switch {
	case errors.Is(err, zone.ErrInvalidZone):
		return invalid("zone", "%v", err)
	case errors.Is(err, zone.ErrZoneExists):
		return err
	case err != nil:
		return &StorageError{Op: "create_zone", Err: err}
	}
	g.logger.Info("zone created", "zone_id", z.ID, "name", z.Name, "kind", z.Kind)
	return nil
}

// deviceError maps device package failures onto the ingest taxonomy.
// Not-found and conflict errors pass through unchanged.
func deviceError(err error, op string) error {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound), errors.Is(err, device.ErrDeviceExists):
		return err
	case errors.Is(err, device.ErrInvalidDevice):
		return invalid("device", "%v", err)
	case errors.Is(err, device.ErrInvalidKind):
		return invalid("kind", "%v", err)
	case errors.Is(err, device.ErrInvalidStatus):
		return invalid("status", "%v", err)
	case errors.Is(err, device.ErrInvalidName):
		return invalid("name", "%v", err)
	default:
		return &StorageError{Op: op, Err: err}
	}
}
