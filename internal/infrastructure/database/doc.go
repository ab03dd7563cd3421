// Package database provides SQLite connectivity for Perimeter Core.
//
// This package manages:
//   - Database connection with WAL mode so API reads do not block ingest
//   - Forward-only schema migrations embedded in the binary
//   - Shared helpers for repositories (NULL handling, timestamps, constraint errors)
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
