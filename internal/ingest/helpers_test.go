package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/perimeter-core/internal/command"
	"github.com/nerrad567/perimeter-core/internal/device"
	"github.com/nerrad567/perimeter-core/internal/event"
	"github.com/nerrad567/perimeter-core/internal/geo"
	"github.com/nerrad567/perimeter-core/internal/infrastructure/database"
	"github.com/nerrad567/perimeter-core/internal/rules"
	"github.com/nerrad567/perimeter-core/internal/zone"
	_ "github.com/nerrad567/perimeter-core/migrations"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type notification struct {
	topic   string
	msgType string
	data    any
}

// recorder captures broadcasts in order.
type recorder struct {
	mu   sync.Mutex
	sent []notification
}

func (r *recorder) Notify(topic, msgType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, notification{topic: topic, msgType: msgType, data: data})
}

func (r *recorder) all() []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification(nil), r.sent...)
}

func (r *recorder) types() []string {
	var out []string
	for _, n := range r.all() {
		out = append(out, n.topic+"/"+n.msgType)
	}
	return out
}

// telemetry counts time-series writes.
type telemetry struct {
	mu        sync.Mutex
	events    int
	responses []event.ResponseStatus
}

func (m *telemetry) WriteEvent(*event.Event) {
	m.mu.Lock()
	m.events++
	m.mu.Unlock()
}

func (m *telemetry) WriteResponse(resp *event.Response) {
	m.mu.Lock()
	m.responses = append(m.responses, resp.Status)
	m.mu.Unlock()
}

type fixture struct {
	gateway *Gateway
	events  *event.SQLiteRepository
	devices *device.Registry
	zones   *zone.Registry
	router  *recorder
}

// redZone covers the unit square around (0.5, 0.5) and fires automatically.
var redZone = []geo.Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0}}

// manualZone covers (10..11, 10..11) and only advises.
var manualZone = []geo.Point{{Lat: 10, Lng: 10}, {Lat: 10, Lng: 11}, {Lat: 11, Lng: 11}, {Lat: 11, Lng: 10}}

func setupGateway(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: ":memory:", BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	events := event.NewSQLiteRepository(db.DB)
	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	zones := zone.NewRegistry(zone.NewSQLiteRepository(db.DB))

	for _, d := range []*device.Device{
		{ID: "lrad_01", Name: "North LRAD", Kind: device.KindDeterrentEmitter},
		{ID: "ptz_01", Name: "Gate PTZ", Kind: device.KindPTZCamera},
		{ID: "boomerang_01", Name: "Boomerang", Kind: device.KindAcousticDetector, ZoneID: "zone-red",
			Location: &geo.Point{Lat: 0.5, Lng: 0.5}},
	} {
		if err := devices.CreateDevice(ctx, d); err != nil {
			t.Fatalf("CreateDevice(%s) error = %v", d.ID, err)
		}
	}
	for _, z := range []*zone.Zone{
		{ID: "zone-red", Name: "Alpha", Kind: zone.KindRed, Polygon: redZone, AutoResponse: true, Active: true},
		{ID: "zone-manual", Name: "Bravo", Kind: zone.KindRestricted, Polygon: manualZone, AutoResponse: false, Active: true},
	} {
		if err := zones.CreateZone(ctx, z); err != nil {
			t.Fatalf("CreateZone(%s) error = %v", z.ID, err)
		}
	}

	router := &recorder{}
	g := New(Config{
		StoreTimeout:     time.Second,
		CommandTimeout:   time.Second,
		DefaultDeterrent: "lrad_01",
		DefaultCamera:    "ptz_01",
	}, Deps{
		Events:  events,
		Devices: devices,
		Zones:   zones,
		Rules: rules.NewEngine(rules.Config{
			DefaultDeterrent: "lrad_01",
			DefaultCamera:    "ptz_01",
			Night:            zone.DefaultNightWindow(),
		}),
		Commands: command.NewFacade(devices, time.Second),
		Router:   router,
	})
	g.now = func() time.Time { return fixedNow }

	return &fixture{gateway: g, events: events, devices: devices, zones: zones, router: router}
}

func conf(v float64) *float64 {
	return &v
}

func responsesFor(t *testing.T, f *fixture, eventID string) []event.Response {
	t.Helper()
	responses, err := f.events.ListResponses(context.Background(), eventID)
	if err != nil {
		t.Fatalf("ListResponses() error = %v", err)
	}
	return responses
}

// failingStore fails every write.
type failingStore struct {
	mu    sync.Mutex
	saves int
	err   error
}

func (s *failingStore) SaveEvent(context.Context, *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return s.err
}

func (s *failingStore) UpdateEventStatus(context.Context, string, event.Status, event.Status, time.Time) error {
	return s.err
}

func (s *failingStore) GetEvent(context.Context, string) (*event.Event, error) {
	return nil, s.err
}

func (s *failingStore) QueryEvents(context.Context, event.Filter) ([]event.Event, error) {
	return nil, s.err
}

func (s *failingStore) SaveResponse(context.Context, *event.Response) error { return s.err }

func (s *failingStore) UpdateResponse(context.Context, *event.Response) error { return s.err }

func (s *failingStore) ListResponses(context.Context, string) ([]event.Response, error) {
	return nil, s.err
}

// pausingStore holds the first GetEvent after loading until release is closed.
type pausingStore struct {
	*event.SQLiteRepository
	armed   atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func newPausingStore(repo *event.SQLiteRepository) *pausingStore {
	s := &pausingStore{SQLiteRepository: repo, loaded: make(chan struct{}), release: make(chan struct{})}
	s.armed.Store(true)
	return s
}

func (s *pausingStore) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	ev, err := s.SQLiteRepository.GetEvent(ctx, id)
	if s.armed.CompareAndSwap(true, false) {
		close(s.loaded)
		<-s.release
	}
	return ev, err
}

// hangupStore cancels the caller's context right after a successful read or
// write, the way a producer disconnecting mid-request would.
type hangupStore struct {
	*event.SQLiteRepository
	cancel    context.CancelFunc
	afterSave bool
	afterGet  bool
}

func (s *hangupStore) SaveEvent(ctx context.Context, ev *event.Event) error {
	err := s.SQLiteRepository.SaveEvent(ctx, ev)
	if err == nil && s.afterSave {
		s.cancel()
	}
	return err
}

func (s *hangupStore) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	ev, err := s.SQLiteRepository.GetEvent(ctx, id)
	if err == nil && s.afterGet {
		s.cancel()
	}
	return ev, err
}
