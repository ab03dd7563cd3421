package zone

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/perimeter-core/internal/infrastructure/database"
)

// Repository defines zone persistence.
type Repository interface {
	Create(ctx context.Context, z *Zone) error
	Get(ctx context.Context, id string) (*Zone, error)
	List(ctx context.Context, activeOnly bool) ([]Zone, error)
}

const selectZone = `
	SELECT id, name, kind, polygon, day_spl, night_spl, auto_response, active, created_at, updated_at
	FROM zones`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed zone repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a zone. Returns ErrZoneExists on an ID conflict.
func (r *SQLiteRepository) Create(ctx context.Context, z *Zone) error {
	polygon, err := json.Marshal(z.Polygon)
	if err != nil {
		return fmt.Errorf("marshalling polygon: %w", err)
	}

	now := time.Now().UTC()
	z.CreatedAt, z.UpdatedAt = now, now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO zones (id, name, kind, polygon, day_spl, night_spl, auto_response, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		z.ID, z.Name, string(z.Kind), string(polygon), z.DaySPLLimit, z.NightSPLLimit,
		boolToInt(z.AutoResponse), boolToInt(z.Active),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if database.IsUniqueConstraintError(err) {
			return ErrZoneExists
		}
		return fmt.Errorf("inserting zone: %w", err)
	}
	return nil
}

// Get retrieves a zone by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Zone, error) {
	z, err := scanZone(r.db.QueryRowContext(ctx, selectZone+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrZoneNotFound
		}
		return nil, fmt.Errorf("querying zone: %w", err)
	}
	return z, nil
}

// List returns zones ordered by name, optionally only active ones.
func (r *SQLiteRepository) List(ctx context.Context, activeOnly bool) ([]Zone, error) {
	query := selectZone
	if activeOnly {
		query += " WHERE active = 1"
	}
	rows, err := r.db.QueryContext(ctx, query+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying zones: %w", err)
	}
	defer rows.Close()

	var zones []Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning zone: %w", err)
		}
		zones = append(zones, *z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zones: %w", err)
	}
	return zones, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanZone(scanner rowScanner) (*Zone, error) {
	var z Zone
	var kind, polygon, createdAt, updatedAt string
	var autoResponse, active int

	if err := scanner.Scan(&z.ID, &z.Name, &kind, &polygon, &z.DaySPLLimit, &z.NightSPLLimit,
		&autoResponse, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(polygon), &z.Polygon); err != nil {
		return nil, fmt.Errorf("unmarshalling polygon: %w", err)
	}
	z.Kind = Kind(kind)
	z.AutoResponse = autoResponse != 0
	z.Active = active != 0
	z.CreatedAt = database.ParseTime(createdAt)
	z.UpdatedAt = database.ParseTime(updatedAt)
	return &z, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
