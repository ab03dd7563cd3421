package database

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// versionParts is the number of "_"-separated fields in a migration version.
// Filenames follow YYYYMMDD_HHMMSS_description.up.sql.
const versionParts = 2

// MigrationsFS holds the migration files applied by Migrate.
// The migrations package assigns its embedded filesystem here at init.
var MigrationsFS fs.FS

// MigrationsDir is the directory within MigrationsFS containing migration files.
var MigrationsDir = "."

// Migration represents a single schema migration.
type Migration struct {
	Version string
	Name    string
	UpSQL   string
}

// Migrate applies all pending migrations from MigrationsFS in version order.
//
// Each migration runs in its own transaction. A failure rolls back that
// migration only; re-running Migrate continues from it.
func (db *DB) Migrate(ctx context.Context) error {
	return db.MigrateFS(ctx, MigrationsFS, MigrationsDir)
}

// MigrateFS applies pending migrations found in dir of fsys.
func (db *DB) MigrateFS(ctx context.Context, fsys fs.FS, dir string) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	migrations, err := loadMigrations(fsys, dir)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// AppliedVersions returns the set of migration versions already applied.
func (db *DB) AppliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return applied, nil
}

func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads every *.up.sql file in dir, sorted oldest first.
// A nil filesystem yields no migrations.
func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{Version: version, Name: name, UpSQL: string(body)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFilename splits "20260301_120000_events.up.sql" into
// version "20260301_120000" and name "events". Down files are ignored.
func parseMigrationFilename(filename string) (version, name string, ok bool) {
	base, found := strings.CutSuffix(filename, ".up.sql")
	if !found {
		return "", "", false
	}
	parts := strings.SplitN(base, "_", versionParts+1)
	if len(parts) < versionParts {
		return "", "", false
	}
	version = parts[0] + "_" + parts[1]
	name = base
	if len(parts) > versionParts {
		name = parts[versionParts]
	}
	return version, name, true
}
