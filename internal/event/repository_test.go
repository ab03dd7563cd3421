package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/perimeter-core/internal/geo"
	"github.com/nerrad567/perimeter-core/internal/infrastructure/database"
	_ "github.com/nerrad567/perimeter-core/migrations"
)

func setupRepo(t *testing.T) *SQLiteRepository {
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
	return NewSQLiteRepository(db.DB)
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEvent(id, typ string, offset time.Duration) *Event {
	return &Event{
		ID:         id,
		Type:       typ,
		Timestamp:  baseTime.Add(offset),
		Confidence: 0.9,
		Status:     StatusActive,
		Source:     SourceSensor,
	}
}

func TestSQLiteRepository_SaveAndGetEvent(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	ev := newEvent("evt-1", TypeGunshot, 0)
	ev.Location = &geo.Point{Lat: 51.5, Lng: -0.12}
	ev.DeviceID = "boomerang_01"
	ev.ZoneID = "zone-north"
	ev.Metadata = map[string]any{"shots": float64(3)}

	if err := repo.SaveEvent(ctx, ev); err != nil {
		t.Fatalf("SaveEvent() error = %v", err)
	}
	if err := repo.SaveEvent(ctx, ev); !errors.Is(err, ErrEventExists) {
		t.Errorf("SaveEvent() duplicate error = %v, want ErrEventExists", err)
	}

	got, err := repo.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if got.Type != TypeGunshot || got.Confidence != 0.9 || got.Status != StatusActive {
		t.Errorf("GetEvent() = %+v", got)
	}
	if !got.Timestamp.Equal(ev.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ev.Timestamp)
	}
	if got.Location == nil || *got.Location != *ev.Location {
		t.Errorf("Location = %v", got.Location)
	}
	if got.DeviceID != "boomerang_01" || got.ZoneID != "zone-north" || got.Source != SourceSensor {
		t.Errorf("references = %q %q %q", got.DeviceID, got.ZoneID, got.Source)
	}
	if got.Metadata["shots"] != float64(3) {
		t.Errorf("Metadata = %v", got.Metadata)
	}

	if _, err := repo.GetEvent(ctx, "missing"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("GetEvent(missing) error = %v", err)
	}
}

func TestSQLiteRepository_UpdateEventStatus(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if err := repo.SaveEvent(ctx, newEvent("evt-1", TypeIntrusion, 0)); err != nil {
		t.Fatalf("SaveEvent() error = %v", err)
	}
	if err := repo.UpdateEventStatus(ctx, "evt-1", StatusActive, StatusAcknowledged, baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("UpdateEventStatus() error = %v", err)
	}
	got, err := repo.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if got.Status != StatusAcknowledged {
		t.Errorf("Status = %q, want acknowledged", got.Status)
	}

	if err := repo.UpdateEventStatus(ctx, "missing", StatusActive, StatusResolved, baseTime); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("UpdateEventStatus(missing) error = %v", err)
	}
}

func TestSQLiteRepository_UpdateEventStatusStale(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if err := repo.SaveEvent(ctx, newEvent("evt-1", TypeIntrusion, 0)); err != nil {
		t.Fatalf("SaveEvent() error = %v", err)
	}
	if err := repo.UpdateEventStatus(ctx, "evt-1", StatusActive, StatusResolved, baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("UpdateEventStatus(resolved) error = %v", err)
	}

	// A change computed from the old active status must not land.
	err := repo.UpdateEventStatus(ctx, "evt-1", StatusActive, StatusAcknowledged, baseTime.Add(2*time.Minute))
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("stale UpdateEventStatus() error = %v, want ErrStatusConflict", err)
	}
	got, err := repo.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if got.Status != StatusResolved {
		t.Errorf("Status = %q, want resolved", got.Status)
	}
}

func TestSQLiteRepository_QueryEvents(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	events := []*Event{
		newEvent("e1", TypeGunshot, -3*time.Hour),
		newEvent("e2", TypeThermal, -2*time.Hour),
		newEvent("e3", TypeGunshot, -1*time.Hour),
		newEvent("e4", TypeGunshot, -30*time.Hour),
	}
	events[1].Status = StatusResolved
	for _, ev := range events {
		if err := repo.SaveEvent(ctx, ev); err != nil {
			t.Fatalf("SaveEvent(%s) error = %v", ev.ID, err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{"e3", "e2", "e1", "e4"}},
		{"by type", Filter{Type: TypeGunshot}, []string{"e3", "e1", "e4"}},
		{"by status", Filter{Status: StatusResolved}, []string{"e2"}},
		{"since window", Filter{Since: baseTime.Add(-24 * time.Hour)}, []string{"e3", "e2", "e1"}},
		{"limit and offset", Filter{Limit: 2, Offset: 1}, []string{"e2", "e1"}},
		{"no matches", Filter{Type: TypeFenceCut}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.QueryEvents(ctx, tt.filter)
			if err != nil {
				t.Fatalf("QueryEvents() error = %v", err)
			}
			ids := make([]string, 0, len(got))
			for _, ev := range got {
				ids = append(ids, ev.ID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("QueryEvents() = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Fatalf("QueryEvents() = %v, want %v", ids, tt.want)
				}
			}
		})
	}
}

func TestSQLiteRepository_Responses(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if err := repo.SaveEvent(ctx, newEvent("evt-1", TypeGunshot, 0)); err != nil {
		t.Fatalf("SaveEvent() error = %v", err)
	}

	resp := &Response{
		ID:             "resp-1",
		EventID:        "evt-1",
		Action:         ActionDeterrent,
		TargetDeviceID: "lrad_01",
		Parameters:     map[string]any{"duration": float64(10), "pattern": "alert"},
		Status:         ResponsePending,
		CreatedAt:      baseTime,
	}
	if err := repo.SaveResponse(ctx, resp); err != nil {
		t.Fatalf("SaveResponse() error = %v", err)
	}

	if err := resp.Complete(false, nil, "timeout", baseTime.Add(5*time.Second)); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := repo.UpdateResponse(ctx, resp); err != nil {
		t.Fatalf("UpdateResponse() error = %v", err)
	}

	got, err := repo.ListResponses(ctx, "evt-1")
	if err != nil {
		t.Fatalf("ListResponses() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListResponses() = %d responses, want 1", len(got))
	}
	r := got[0]
	if r.Status != ResponseFailed || r.Reason != "timeout" || r.TargetDeviceID != "lrad_01" {
		t.Errorf("response = %+v", r)
	}
	if r.CompletedAt == nil || !r.CompletedAt.Equal(baseTime.Add(5*time.Second)) {
		t.Errorf("CompletedAt = %v", r.CompletedAt)
	}
	if r.Parameters["pattern"] != "alert" {
		t.Errorf("Parameters = %v", r.Parameters)
	}

	missing := &Response{ID: "nope", Status: ResponseExecuted}
	if err := repo.UpdateResponse(ctx, missing); !errors.Is(err, ErrResponseNotFound) {
		t.Errorf("UpdateResponse(missing) error = %v", err)
	}
}

func TestSQLiteRepository_ResponseRequiresEvent(t *testing.T) {
	repo := setupRepo(t)
	err := repo.SaveResponse(context.Background(), &Response{
		ID: "orphan", EventID: "ghost", Action: ActionAlarm, TargetDeviceID: "x", Status: ResponsePending,
	})
	if err == nil {
		t.Error("SaveResponse() for an unknown event should fail the foreign key")
	}
}
