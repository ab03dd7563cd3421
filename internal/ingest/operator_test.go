package ingest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nerrad567/perimeter-core/internal/command"
	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/event"
	"github.com/nerrad567/perimeter-core/internal/geo"
	"github.com/nerrad567/perimeter-core/internal/zone"
)

func ingestQuiet(t *testing.T, f *fixture, raw RawEvent) *event.Event {
	t.Helper()
	ev, err := f.gateway.Ingest(context.Background(), raw)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	f.router.mu.Lock()
	f.router.sent = nil
	f.router.mu.Unlock()
	return ev
}

func TestCreateEvent_DefaultsOperatorSource(t *testing.T) {
	f := setupGateway(t)

	ev, err := f.gateway.CreateEvent(context.Background(), RawEvent{Type: event.TypeIntrusion, Confidence: conf(0.4)})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if ev.Source != event.SourceOperator {
		t.Errorf("Source = %q, want operator", ev.Source)
	}
}

func TestRespondToEvent(t *testing.T) {
	f := setupGateway(t)
	ev := ingestQuiet(t, f, RawEvent{ID: "evt-1", Type: event.TypeMotion, Confidence: conf(0.4)})

	resp, err := f.gateway.RespondToEvent(context.Background(), ev.ID, RespondRequest{
		Action:     "deterrent",
		Parameters: map[string]any{"duration": 5},
		OperatorID: "op-7",
	})
	if err != nil {
		t.Fatalf("RespondToEvent() error = %v", err)
	}
	if resp.TargetDeviceID != "lrad_01" || resp.Status != event.ResponseExecuted || resp.OperatorID != "op-7" {
		t.Errorf("response = %+v", resp)
	}

	stored, err := f.events.GetEvent(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if stored.Status != event.StatusAcknowledged {
		t.Errorf("event status = %q, want acknowledged", stored.Status)
	}

	want := []string{"events/event_status", "responses/response"}
	if got := f.router.types(); !reflect.DeepEqual(got, want) {
		t.Errorf("broadcasts = %v, want %v", got, want)
	}

	detail, err := f.gateway.GetEvent(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if len(detail.Responses) != 1 || detail.Responses[0].ID != resp.ID {
		t.Errorf("detail responses = %+v", detail.Responses)
	}
}

func TestRespondToEvent_CameraUsesEventLocation(t *testing.T) {
	f := setupGateway(t)
	ev := ingestQuiet(t, f, RawEvent{Type: event.TypeMotion, Confidence: conf(0.4), Location: &geo.Point{Lat: 5, Lng: 6}})

	resp, err := f.gateway.RespondToEvent(context.Background(), ev.ID, RespondRequest{Action: "camera_pan"})
	if err != nil {
		t.Fatalf("RespondToEvent() error = %v", err)
	}
	if resp.TargetDeviceID != "ptz_01" || resp.Parameters["lat"] != 5.0 || resp.Parameters["lng"] != 6.0 {
		t.Errorf("response = %+v", resp)
	}
}

func TestRespondToEvent_AcknowledgedStaysAcknowledged(t *testing.T) {
	f := setupGateway(t)
	ev := ingestQuiet(t, f, RawEvent{Type: event.TypeMotion, Confidence: conf(0.4)})
	if _, err := f.gateway.UpdateEventStatus(context.Background(), ev.ID, "resolved"); err != nil {
		t.Fatalf("UpdateEventStatus() error = %v", err)
	}

	if _, err := f.gateway.RespondToEvent(context.Background(), ev.ID, RespondRequest{Action: "deterrent"}); err != nil {
		t.Fatalf("RespondToEvent() error = %v", err)
	}
	stored, _ := f.events.GetEvent(context.Background(), ev.ID)
	if stored.Status != event.StatusResolved {
		t.Errorf("status = %q, resolved events must not move back", stored.Status)
	}
}

func TestRespondToEvent_Errors(t *testing.T) {
	f := setupGateway(t)
	ev := ingestQuiet(t, f, RawEvent{Type: event.TypeMotion, Confidence: conf(0.4)})
	ctx := context.Background()

	var verr *ValidationError
	if _, err := f.gateway.RespondToEvent(ctx, ev.ID, RespondRequest{Action: "launch"}); !errors.As(err, &verr) || verr.Field != "action" {
		t.Errorf("unknown action error = %v", err)
	}
	if _, err := f.gateway.RespondToEvent(ctx, ev.ID, RespondRequest{Action: "relay"}); !errors.As(err, &verr) || verr.Field != "device_id" {
		t.Errorf("relay without device error = %v", err)
	}
	if _, err := f.gateway.RespondToEvent(ctx, "missing", RespondRequest{Action: "deterrent"}); !errors.Is(err, event.ErrEventNotFound) {
		t.Errorf("unknown event error = %v, want ErrEventNotFound", err)
	}

	resp, err := f.gateway.RespondToEvent(ctx, ev.ID, RespondRequest{Action: "camera_pan", DeviceID: "lrad_01"})
	var uerr *command.UnsupportedActionError
	if !errors.As(err, &uerr) {
		t.Fatalf("unsupported action error = %v", err)
	}
	if resp == nil || resp.Status != event.ResponseFailed {
		t.Errorf("response = %+v, want recorded failure", resp)
	}
}

func TestUpdateEventStatus(t *testing.T) {
	f := setupGateway(t)
	ev := ingestQuiet(t, f, RawEvent{Type: event.TypeMotion, Confidence: conf(0.4)})
	ctx := context.Background()

	got, err := f.gateway.UpdateEventStatus(ctx, ev.ID, "acknowledged")
	if err != nil || got.Status != event.StatusAcknowledged {
		t.Fatalf("UpdateEventStatus(acknowledged) = %+v, %v", got, err)
	}

	// Same status: no-op, no broadcast.
	if _, err := f.gateway.UpdateEventStatus(ctx, ev.ID, "acknowledged"); err != nil {
		t.Fatalf("UpdateEventStatus(same) error = %v", err)
	}
	if n := len(f.router.all()); n != 1 {
		t.Errorf("%d broadcasts, want 1", n)
	}

	var verr *ValidationError
	if _, err := f.gateway.UpdateEventStatus(ctx, ev.ID, "active"); !errors.As(err, &verr) {
		t.Errorf("backwards transition error = %v, want *ValidationError", err)
	}
	if _, err := f.gateway.UpdateEventStatus(ctx, ev.ID, "closed"); !errors.As(err, &verr) {
		t.Errorf("unknown status error = %v, want *ValidationError", err)
	}
	if _, err := f.gateway.UpdateEventStatus(ctx, "missing", "resolved"); !errors.Is(err, event.ErrEventNotFound) {
		t.Errorf("missing event error = %v", err)
	}

	stored, _ := f.events.GetEvent(ctx, ev.ID)
	if stored.Status != event.StatusAcknowledged {
		t.Errorf("stored status = %q", stored.Status)
	}
}

func TestUpdateEventStatus_StaleWriterCannotRegress(t *testing.T) {
	f := setupGateway(t)
	ev := ingestQuiet(t, f, RawEvent{Type: event.TypeMotion, Confidence: conf(0.4)})
	ctx := context.Background()

	store := newPausingStore(f.events)
	f.gateway.events = store

	done := make(chan error, 1)
	go func() {
		_, err := f.gateway.UpdateEventStatus(ctx, ev.ID, "acknowledged")
		done <- err
	}()

	// The acknowledge has loaded the event as active and is paused.
	<-store.loaded
	if _, err := f.gateway.UpdateEventStatus(ctx, ev.ID, "resolved"); err != nil {
		t.Fatalf("UpdateEventStatus(resolved) error = %v", err)
	}
	close(store.release)

	var verr *ValidationError
	if err := <-done; !errors.As(err, &verr) {
		t.Errorf("stale acknowledge error = %v, want *ValidationError", err)
	}
	stored, err := f.events.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if stored.Status != event.StatusResolved {
		t.Errorf("stored status = %q, want resolved", stored.Status)
	}
	if got := f.router.types(); !reflect.DeepEqual(got, []string{"events/event_status"}) {
		t.Errorf("broadcasts = %v, want only the resolve", got)
	}
}

func TestUpdateEventStatus_StaleWriterStillAdvances(t *testing.T) {
	f := setupGateway(t)
	ev := ingestQuiet(t, f, RawEvent{Type: event.TypeMotion, Confidence: conf(0.4)})
	ctx := context.Background()

	store := newPausingStore(f.events)
	f.gateway.events = store

	done := make(chan error, 1)
	go func() {
		_, err := f.gateway.UpdateEventStatus(ctx, ev.ID, "resolved")
		done <- err
	}()

	<-store.loaded
	if _, err := f.gateway.UpdateEventStatus(ctx, ev.ID, "acknowledged"); err != nil {
		t.Fatalf("UpdateEventStatus(acknowledged) error = %v", err)
	}
	close(store.release)

	if err := <-done; err != nil {
		t.Fatalf("resolve after reload error = %v", err)
	}
	stored, _ := f.events.GetEvent(ctx, ev.ID)
	if stored.Status != event.StatusResolved {
		t.Errorf("stored status = %q, want resolved", stored.Status)
	}
}

func TestRespondToEvent_CallerGoneStillExecutes(t *testing.T) {
	f := setupGateway(t)
	ev := ingestQuiet(t, f, RawEvent{Type: event.TypeMotion, Confidence: conf(0.4)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gateway.events = &hangupStore{SQLiteRepository: f.events, cancel: cancel, afterGet: true}

	resp, err := f.gateway.RespondToEvent(ctx, ev.ID, RespondRequest{Action: "deterrent"})
	if err != nil {
		t.Fatalf("RespondToEvent() error = %v", err)
	}
	if resp.Status != event.ResponseExecuted {
		t.Errorf("response = %+v, want executed", resp)
	}

	responses := responsesFor(t, f, ev.ID)
	if len(responses) != 1 || responses[0].Status != event.ResponseExecuted {
		t.Errorf("stored responses = %+v", responses)
	}
	stored, _ := f.events.GetEvent(context.Background(), ev.ID)
	if stored.Status != event.StatusAcknowledged {
		t.Errorf("event status = %q, want acknowledged", stored.Status)
	}
}

func TestQueryEvents(t *testing.T) {
	f := setupGateway(t)
	ctx := context.Background()
	old := fixedNow.Add(-48 * time.Hour)

	ingestQuiet(t, f, RawEvent{ID: "a", Type: event.TypeMotion, Confidence: conf(0.1)})
	ingestQuiet(t, f, RawEvent{ID: "b", Type: event.TypeThermal, Confidence: conf(0.1)})
	ingestQuiet(t, f, RawEvent{ID: "c", Type: event.TypeMotion, Confidence: conf(0.1), Timestamp: &old})

	tests := []struct {
		name    string
		q       Query
		wantIDs int
		field   string
	}{
		{"default window", Query{}, 2, ""},
		{"week window", Query{Hours: 168}, 3, ""},
		{"type filter", Query{Type: event.TypeMotion, Hours: 72}, 2, ""},
		{"status filter", Query{Status: "resolved"}, 0, ""},
		{"limit", Query{Hours: 72, Limit: 1}, 1, ""},
		{"offset", Query{Hours: 72, Offset: 2}, 1, ""},
		{"hours too large", Query{Hours: 169}, 0, "hours"},
		{"hours negative", Query{Hours: -1}, 0, "hours"},
		{"limit too large", Query{Limit: 1001}, 0, "limit"},
		{"negative offset", Query{Offset: -1}, 0, "offset"},
		{"bad status", Query{Status: "open"}, 0, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := f.gateway.QueryEvents(ctx, tt.q)
			if tt.field != "" {
				var verr *ValidationError
				if !errors.As(err, &verr) || verr.Field != tt.field {
					t.Fatalf("QueryEvents() error = %v, want validation on %s", err, tt.field)
				}
				return
			}
			if err != nil {
				t.Fatalf("QueryEvents() error = %v", err)
			}
			if len(events) != tt.wantIDs {
				t.Errorf("got %d events, want %d", len(events), tt.wantIDs)
			}
		})
	}
}

func TestCreateDevice(t *testing.T) {
	f := setupGateway(t)
	ctx := context.Background()

	d := &device.Device{Name: "East relays", Kind: "adam"}
	if err := f.gateway.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if d.ID == "" || d.Kind != device.KindRelayBank || d.Status != device.StatusOffline {
		t.Errorf("device = %+v", d)
	}
	if got := f.router.types(); !reflect.DeepEqual(got, []string{"devices/device_created"}) {
		t.Errorf("broadcasts = %v", got)
	}

	var verr *ValidationError
	if err := f.gateway.CreateDevice(ctx, &device.Device{Name: "X", Kind: "radar"}); !errors.As(err, &verr) || verr.Field != "kind" {
		t.Errorf("bad kind error = %v", err)
	}
	if err := f.gateway.CreateDevice(ctx, &device.Device{Name: "", Kind: "ptz"}); !errors.As(err, &verr) || verr.Field != "name" {
		t.Errorf("empty name error = %v", err)
	}
	if err := f.gateway.CreateDevice(ctx, &device.Device{ID: "lrad_01", Name: "Again", Kind: "lrad"}); !errors.Is(err, device.ErrDeviceExists) {
		t.Errorf("duplicate error = %v, want ErrDeviceExists", err)
	}
}

func TestUpdateDeviceStatus(t *testing.T) {
	f := setupGateway(t)
	ctx := context.Background()

	d, err := f.gateway.UpdateDeviceStatus(ctx, "ptz_01", "online")
	if err != nil {
		t.Fatalf("UpdateDeviceStatus() error = %v", err)
	}
	if d.Status != device.StatusOnline || d.LastSeen == nil {
		t.Errorf("device = %+v", d)
	}
	if got := f.router.types(); !reflect.DeepEqual(got, []string{"devices/device_status"}) {
		t.Errorf("broadcasts = %v", got)
	}

	var verr *ValidationError
	if _, err := f.gateway.UpdateDeviceStatus(ctx, "ptz_01", "exploded"); !errors.As(err, &verr) {
		t.Errorf("bad status error = %v", err)
	}
	if _, err := f.gateway.UpdateDeviceStatus(ctx, "ghost", "online"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("unknown device error = %v", err)
	}
}

func TestListDevicesAndZones(t *testing.T) {
	f := setupGateway(t)

	devices, err := f.gateway.ListDevices(context.Background())
	if err != nil || len(devices) != 3 {
		t.Fatalf("ListDevices() = %d devices, %v", len(devices), err)
	}

	if zones := f.gateway.ListZones(false); len(zones) != 2 || zones[0].Name != "Alpha" {
		t.Errorf("ListZones(false) = %+v", zones)
	}
}

func TestCreateZone(t *testing.T) {
	f := setupGateway(t)
	ctx := context.Background()

	z := &zone.Zone{Name: "Charlie", Kind: zone.KindYellow, Active: true, AutoResponse: true,
		Polygon: []geo.Point{{Lat: 20, Lng: 20}, {Lat: 20, Lng: 21}, {Lat: 21, Lng: 21}}}
	if err := f.gateway.CreateZone(ctx, z); err != nil {
		t.Fatalf("CreateZone() error = %v", err)
	}

	// The new zone resolves locations straight away.
	ev, err := f.gateway.Ingest(ctx, RawEvent{Type: event.TypeMotion, Confidence: conf(0.2), Location: &geo.Point{Lat: 20.6, Lng: 20.3}})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if ev.ZoneID != z.ID {
		t.Errorf("ZoneID = %q, want %q", ev.ZoneID, z.ID)
	}

	var verr *ValidationError
	if err := f.gateway.CreateZone(ctx, &zone.Zone{Name: "Tiny", Kind: zone.KindRed, Polygon: redZone[:2]}); !errors.As(err, &verr) {
		t.Errorf("invalid zone error = %v", err)
	}
	if err := f.gateway.CreateZone(ctx, &zone.Zone{ID: "zone-red", Name: "Dup", Kind: zone.KindRed, Polygon: redZone}); !errors.Is(err, zone.ErrZoneExists) {
		t.Errorf("duplicate zone error = %v", err)
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	f := setupGateway(t)
	if _, err := f.gateway.GetEvent(context.Background(), "nope"); !errors.Is(err, event.ErrEventNotFound) {
		t.Errorf("GetEvent() error = %v, want ErrEventNotFound", err)
	}
}

func TestOperator_StorageErrors(t *testing.T) {
	f := setupGateway(t)
	f.gateway.events = &failingStore{err: errors.New("locked")}
	ctx := context.Background()

	if _, err := f.gateway.GetEvent(ctx, "x"); !errors.Is(err, ErrStorage) {
		t.Errorf("GetEvent() error = %v, want ErrStorage", err)
	}
	if _, err := f.gateway.QueryEvents(ctx, Query{}); !errors.Is(err, ErrStorage) {
		t.Errorf("QueryEvents() error = %v, want ErrStorage", err)
	}
	if _, err := f.gateway.UpdateEventStatus(ctx, "x", "resolved"); !errors.Is(err, ErrStorage) {
		t.Errorf("UpdateEventStatus() error = %v, want ErrStorage", err)
	}
}
