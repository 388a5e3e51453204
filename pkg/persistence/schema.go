package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion is the schema version this build expects. Bump it
// whenever createSchema or runMigrations changes.
const CurrentSchemaVersion = 1

// initializeSchema brings the database up to CurrentSchemaVersion. A fresh
// database gets the full schema in one shot; an existing one is migrated
// version by version.
func initializeSchema(ctx context.Context, db *sql.DB) error {
	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to determine schema version: %w", err)
	}

	if version == 0 {
		return createSchema(ctx, db)
	}
	if version < CurrentSchemaVersion {
		return runMigrations(ctx, db, version)
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, CurrentSchemaVersion)
	}
	return nil
}

// getSchemaVersion reads the highest applied schema version, creating the
// tracking table on first use. A fresh database reports version 0.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(ctx context.Context, db *sql.DB, version int) error {
	_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
	if err != nil {
		return fmt.Errorf("failed to set schema version %d: %w", version, err)
	}
	return nil
}

// createSchema builds the full schema on a fresh database.
func createSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
			last_active_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,

		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			text TEXT NOT NULL,
			rounds INTEGER NOT NULL DEFAULT 0,
			incomplete INTEGER NOT NULL DEFAULT 0,
			abort_reason TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			UNIQUE (session_id, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS citations (
			turn_id TEXT NOT NULL REFERENCES turns(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			round INTEGER NOT NULL,
			capability TEXT NOT NULL,
			arguments TEXT NOT NULL DEFAULT 'null',
			round_index INTEGER NOT NULL DEFAULT 0,
			result_kind TEXT NOT NULL,
			failure_kind TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			payload TEXT,
			elapsed_ns INTEGER NOT NULL DEFAULT 0,
			original_round INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (turn_id, seq)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return setSchemaVersion(ctx, db, CurrentSchemaVersion)
}

// runMigrations applies incremental migrations from the given version up to
// CurrentSchemaVersion.
func runMigrations(ctx context.Context, db *sql.DB, fromVersion int) error {
	for v := fromVersion + 1; v <= CurrentSchemaVersion; v++ {
		switch v {
		default:
			return fmt.Errorf("no migration path to schema version %d", v)
		}
	}
	return nil
}
