package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/perimeter-core/internal/geo"
	"github.com/nerrad567/perimeter-core/internal/infrastructure/database"
)

// Query bounds.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

const selectEvent = `
	SELECT id, type, confidence, lat, lng, zone_id, device_id, source, status, metadata,
		timestamp, created_at, updated_at
	FROM events`

const selectResponse = `
	SELECT id, event_id, action, device_id, parameters, status, reason, operator_id,
		created_at, completed_at
	FROM responses`

// SQLiteRepository persists events and responses.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed event repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveEvent inserts ev. Returns ErrEventExists when the ID is already stored.
func (r *SQLiteRepository) SaveEvent(ctx context.Context, ev *Event) error {
	metadata, err := marshalMap(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	now := time.Now().UTC()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	ev.UpdatedAt = now

	var lat, lng any
	if ev.Location != nil {
		lat, lng = ev.Location.Lat, ev.Location.Lng
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO events (id, type, confidence, lat, lng, zone_id, device_id, source, status, metadata,
			timestamp, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Type, ev.Confidence, lat, lng,
		database.NullableString(ev.ZoneID), database.NullableString(ev.DeviceID), database.NullableString(ev.Source),
		string(ev.Status), metadata,
		formatTime(ev.Timestamp), formatTime(ev.CreatedAt), formatTime(ev.UpdatedAt),
	)
	if err != nil {
		if database.IsUniqueConstraintError(err) {
			return ErrEventExists
		}
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// UpdateEventStatus moves an event from status from to status to. The write
// only applies while the stored status is still from; otherwise it returns
// ErrStatusConflict, or ErrEventNotFound if the event is gone.
func (r *SQLiteRepository) UpdateEventStatus(ctx context.Context, id string, from, to Status, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE events SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), formatTime(at), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("updating event status: %w", err)
	}
	if err := expectOneRow(result, ErrStatusConflict); !errors.Is(err, ErrStatusConflict) {
		return err
	}

	var exists int
	err = r.db.QueryRowContext(ctx, "SELECT 1 FROM events WHERE id = ?", id).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrEventNotFound
	case err != nil:
		return fmt.Errorf("checking event: %w", err)
	}
	return ErrStatusConflict
}

// GetEvent retrieves an event by ID.
func (r *SQLiteRepository) GetEvent(ctx context.Context, id string) (*Event, error) {
	ev, err := scanEvent(r.db.QueryRowContext(ctx, selectEvent+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return ev, nil
}

// QueryEvents returns events matching f, newest first.
func (r *SQLiteRepository) QueryEvents(ctx context.Context, f Filter) ([]Event, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var conditions []string
	var args []any
	if f.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(f.Since))
	}

	query := selectEvent
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC, id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// SaveResponse inserts a response.
func (r *SQLiteRepository) SaveResponse(ctx context.Context, resp *Response) error {
	params, err := marshalMap(resp.Parameters)
	if err != nil {
		return fmt.Errorf("marshalling parameters: %w", err)
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO responses (id, event_id, action, device_id, parameters, status, reason, operator_id,
			created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		resp.ID, resp.EventID, string(resp.Action), resp.TargetDeviceID, params, string(resp.Status),
		database.NullableString(resp.Reason), database.NullableString(resp.OperatorID),
		formatTime(resp.CreatedAt), nullableTime(resp.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting response: %w", err)
	}
	return nil
}

// UpdateResponse persists the outcome fields of a response.
func (r *SQLiteRepository) UpdateResponse(ctx context.Context, resp *Response) error {
	params, err := marshalMap(resp.Parameters)
	if err != nil {
		return fmt.Errorf("marshalling parameters: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		"UPDATE responses SET status = ?, reason = ?, parameters = ?, completed_at = ? WHERE id = ?",
		string(resp.Status), database.NullableString(resp.Reason), params,
		nullableTime(resp.CompletedAt), resp.ID,
	)
	if err != nil {
		return fmt.Errorf("updating response: %w", err)
	}
	return expectOneRow(result, ErrResponseNotFound)
}

// ListResponses returns the responses recorded for an event, oldest first.
func (r *SQLiteRepository) ListResponses(ctx context.Context, eventID string) ([]Response, error) {
	rows, err := r.db.QueryContext(ctx, selectResponse+" WHERE event_id = ? ORDER BY created_at, id", eventID)
	if err != nil {
		return nil, fmt.Errorf("querying responses: %w", err)
	}
	defer rows.Close()

	responses := []Response{}
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning response: %w", err)
		}
		responses = append(responses, *resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating responses: %w", err)
	}
	return responses, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(scanner rowScanner) (*Event, error) {
	var ev Event
	var lat, lng sql.NullFloat64
	var zoneID, deviceID, source sql.NullString
	var status, metadata, timestamp, createdAt, updatedAt string

	if err := scanner.Scan(&ev.ID, &ev.Type, &ev.Confidence, &lat, &lng, &zoneID, &deviceID, &source,
		&status, &metadata, &timestamp, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if lat.Valid && lng.Valid {
		ev.Location = &geo.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	ev.ZoneID = zoneID.String
	ev.DeviceID = deviceID.String
	ev.Source = source.String
	ev.Status = Status(status)
	if err := unmarshalMap(metadata, &ev.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshalling metadata: %w", err)
	}
	ev.Timestamp = database.ParseTime(timestamp)
	ev.CreatedAt = database.ParseTime(createdAt)
	ev.UpdatedAt = database.ParseTime(updatedAt)
	return &ev, nil
}

func scanResponse(scanner rowScanner) (*Response, error) {
	var resp Response
	var action, params, status, createdAt string
	var reason, operatorID, completedAt sql.NullString

	if err := scanner.Scan(&resp.ID, &resp.EventID, &action, &resp.TargetDeviceID, &params, &status,
		&reason, &operatorID, &createdAt, &completedAt); err != nil {
		return nil, err
	}

	resp.Action = Action(action)
	resp.Status = ResponseStatus(status)
	resp.Reason = reason.String
	resp.OperatorID = operatorID.String
	if err := unmarshalMap(params, &resp.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshalling parameters: %w", err)
	}
	resp.CreatedAt = database.ParseTime(createdAt)
	if completedAt.Valid {
		t := database.ParseTime(completedAt.String)
		resp.CompletedAt = &t
	}
	return &resp, nil
}

func expectOneRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func marshalMap(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// unmarshalMap leaves dst nil for an empty object.
func unmarshalMap(s string, dst *map[string]any) error {
	if s == "" || s == "{}" {
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
