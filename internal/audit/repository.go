package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/perimeter-core/internal/infrastructure/database"
)

// timeLayout sorts lexically in creation order.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Repository persists audit entries.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository implements Repository on the audit_logs table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts entry, generating ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Millisecond)

	var details any
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.EntityType,
		database.NullableString(entry.EntityID), database.NullableString(entry.UserID),
		entry.Source, details, entry.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"action", filter.Action},
		{"entity_type", filter.EntityType},
		{"entity_id", filter.EntityID},
		{"user_id", filter.UserID},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_logs " + where //nolint:gosec // WHERE built from fixed columns with ? placeholders
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := "SELECT id, action, entity_type, entity_id, user_id, source, details, created_at FROM audit_logs " + //nolint:gosec // as above
		where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var (
		e                         Entry
		entityID, userID, details sql.NullString
		createdAt                 string
	)
	if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &entityID, &userID, &e.Source, &details, &createdAt); err != nil {
		return nil, fmt.Errorf("scanning audit log: %w", err)
	}

	e.EntityID = entityID.String
	e.UserID = userID.String
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
			return nil, fmt.Errorf("decoding audit details for %s: %w", e.ID, err)
		}
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return &e, nil
}
