package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	msPerSecond       = 1000
	connectionTimeout = 5 * time.Second
	connMaxIdleTime   = 30 * time.Minute

	// memoryPath opens a private in-memory database (tests, dry runs).
	memoryPath = ":memory:"
)

// DB wraps a sql.DB connection to the Perimeter store.
type DB struct {
	*sql.DB
	path string
}

// Config contains database configuration options.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging so observers' reads do not block ingest writes.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int
}

// Open creates a new database connection with the specified configuration.
//
// It creates the parent directory, applies the busy timeout, foreign key and
// WAL pragmas, and verifies the connection with a ping bounded by ctx.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}

	connStr := memoryPath
	if cfg.Path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		connStr = "file:" + cfg.Path
	}

	connStr += fmt.Sprintf("?_busy_timeout=%d&_foreign_keys=on", cfg.BusyTimeout*msPerSecond)
	if cfg.WALMode && cfg.Path != memoryPath {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite supports a single writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := &DB{DB: sqlDB, path: cfg.Path}

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if cfg.Path != memoryPath {
		_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // File may not exist until first write
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck verifies the database is accessible.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// IsUniqueConstraintError reports whether err is a SQLite UNIQUE or PRIMARY KEY violation.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// NullableString returns nil for empty strings so they are stored as NULL.
func NullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// NullableTime formats t as RFC 3339 or returns nil.
func NullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses a stored RFC 3339 timestamp. Malformed values yield the zero time.
func ParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
