// Package history persists suite run reports in a local SQLite database so
// flaky probes and regressions can be spotted across runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the current schema version, stored in PRAGMA user_version.
const SchemaVersion = 1

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// DB wraps the history database.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the history database at path and
// initializes the schema. ":memory:" opens a private in-memory database.
func Open(path string) (*DB, error) {
	memory := path == ":memory:"
	if !memory {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// PRAGMAs are per connection, and every :memory: connection is a
	// separate database.
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.initSchema(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return db, nil
}

// Path returns the database location.
func (db *DB) Path() string { return db.path }

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	suite           TEXT NOT NULL,
	target          TEXT NOT NULL DEFAULT '',
	engine          TEXT NOT NULL DEFAULT '',
	passed          INTEGER NOT NULL,
	total           INTEGER NOT NULL,
	failed          INTEGER NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	started_at      TEXT NOT NULL,
	finished_at     TEXT NOT NULL,
	report          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_suite ON runs(suite);

CREATE TABLE IF NOT EXISTS checks (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	passed          INTEGER NOT NULL,
	skipped         INTEGER NOT NULL DEFAULT 0,
	kind            TEXT NOT NULL DEFAULT '',
	message         TEXT NOT NULL DEFAULT '',
	duration_ms     REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_checks_name ON checks(name);
`

func (db *DB) initSchema(ctx context.Context) error {
	version, err := db.GetSchemaVersion()
	if err != nil {
		return err
	}
	if version > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, SchemaVersion)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return err
	}
	if version < SchemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return fmt.Errorf("setting schema version: %w", err)
		}
	}
	return nil
}

// GetSchemaVersion returns PRAGMA user_version.
func (db *DB) GetSchemaVersion() (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}
