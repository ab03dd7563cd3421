package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/perimeter-core/internal/geo"
	"github.com/nerrad567/perimeter-core/internal/infrastructure/database"
)

// Repository defines the interface for device persistence operations.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// UpdateStatus sets the status and last seen timestamp.
	// Returns ErrDeviceNotFound if the device does not exist.
	UpdateStatus(ctx context.Context, id string, status Status, lastSeen time.Time) error
}

const selectDevice = `
	SELECT id, name, kind, zone_id, lat, lng, status, config, last_seen, created_at, updated_at
	FROM devices`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, selectDevice+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDevice+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device. Timestamps are set here.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	configJSON, err := json.Marshal(d.Config)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if d.Config == nil {
		configJSON = []byte("{}")
	}

	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now

	var lat, lng any
	if d.Location != nil {
		lat, lng = d.Location.Lat, d.Location.Lng
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, kind, zone_id, lat, lng, status, config, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, string(d.Kind), database.NullableString(d.ZoneID), lat, lng,
		string(d.Status), string(configJSON), database.NullableTime(d.LastSeen),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if database.IsUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// UpdateStatus sets the status and last seen timestamp.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status, lastSeen time.Time) error {
	seen := lastSeen.UTC().Format(time.RFC3339Nano)
	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET status = ?, last_seen = ?, updated_at = ? WHERE id = ?",
		string(status), seen, seen, id,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var kind, status, configJSON, createdAt, updatedAt string
	var zoneID, lastSeen sql.NullString
	var lat, lng sql.NullFloat64

	if err := scanner.Scan(&d.ID, &d.Name, &kind, &zoneID, &lat, &lng,
		&status, &configJSON, &lastSeen, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	d.Kind = Kind(kind)
	d.Status = Status(status)
	d.ZoneID = zoneID.String
	if lat.Valid && lng.Valid {
		d.Location = &geo.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &d.Config); err != nil {
			return nil, fmt.Errorf("unmarshalling config: %w", err)
		}
	}
	if lastSeen.Valid {
		t := database.ParseTime(lastSeen.String)
		d.LastSeen = &t
	}
	d.CreatedAt = database.ParseTime(createdAt)
	d.UpdatedAt = database.ParseTime(updatedAt)
	return &d, nil
}
