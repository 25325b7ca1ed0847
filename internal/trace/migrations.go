package trace

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all trace tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS atoms (
		id            TEXT PRIMARY KEY,
		connection_id TEXT NOT NULL,
		affinity      INTEGER NOT NULL DEFAULT 0,
		protected     INTEGER NOT NULL DEFAULT 0,
		soft          INTEGER NOT NULL DEFAULT 0,
		state         TEXT NOT NULL,
		result        TEXT NOT NULL DEFAULT '',
		tail          INTEGER NOT NULL DEFAULT 0,
		slot          INTEGER,
		submitted_at  TEXT NOT NULL,
		started_at    TEXT,
		completed_at  TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS atom_events (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		atom_id TEXT NOT NULL,
		state   TEXT NOT NULL,
		detail  TEXT NOT NULL DEFAULT '',
		at      TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_atoms_connection_id ON atoms(connection_id)`,
	`CREATE INDEX IF NOT EXISTS idx_atoms_state ON atoms(state)`,
	`CREATE INDEX IF NOT EXISTS idx_atom_events_atom_id ON atom_events(atom_id)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
