package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// openTestDB opens an in-memory database closed at test cleanup.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Path: ":memory:", BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates database file and directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "perimeter.db")

		db, err := Open(context.Background(), Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if err := db.HealthCheck(context.Background()); err != nil {
			t.Fatalf("HealthCheck() error = %v", err)
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("empty path rejected", func(t *testing.T) {
		if _, err := Open(context.Background(), Config{}); err == nil {
			t.Fatal("expected error for empty path")
		}
	})
}

func TestHealthCheck_Closed(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	db.Close() //nolint:errcheck // Test cleanup
	if err := db.HealthCheck(ctx); err == nil {
		t.Error("expected error after close")
	}
}

func TestIsUniqueConstraintError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE t (id TEXT PRIMARY KEY)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO t (id) VALUES ('a')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err := db.ExecContext(ctx, "INSERT INTO t (id) VALUES ('a')")
	if !IsUniqueConstraintError(err) {
		t.Errorf("IsUniqueConstraintError(%v) = false, want true", err)
	}
	if IsUniqueConstraintError(nil) {
		t.Error("nil error reported as constraint violation")
	}
	if IsUniqueConstraintError(errors.New("disk I/O error")) {
		t.Error("unrelated error reported as constraint violation")
	}
}

func TestNullableHelpers(t *testing.T) {
	if NullableString("") != nil {
		t.Error("NullableString(\"\") should be nil")
	}
	if NullableString("x") != "x" {
		t.Error("NullableString(\"x\") should be x")
	}
	if NullableTime(nil) != nil {
		t.Error("NullableTime(nil) should be nil")
	}

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stored, ok := NullableTime(&ts).(string)
	if !ok {
		t.Fatal("NullableTime should return a string")
	}
	if got := ParseTime(stored); !got.Equal(ts) {
		t.Errorf("ParseTime round trip = %v, want %v", got, ts)
	}
	if !ParseTime("garbage").IsZero() {
		t.Error("ParseTime(garbage) should be zero")
	}
}
