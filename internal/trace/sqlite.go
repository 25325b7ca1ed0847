package trace

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a
// Store. Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "trace"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func (s *SQLiteStore) RecordSubmitted(ctx context.Context, rec *AtomRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "atoms", "id", rec.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO atoms (id, connection_id, affinity, protected, soft, state, result, tail, slot, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ConnectionID, rec.Affinity, boolToInt(rec.Protected), boolToInt(rec.Soft),
		rec.State, rec.Result, rec.Tail, rec.Slot, rec.SubmittedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert atom %s: %w", rec.ID, err)
	}
	return s.appendEvent(ctx, rec.ID, rec.State, "", rec.SubmittedAt)
}

func (s *SQLiteStore) RecordDispatched(ctx context.Context, atomID string, slot *uint32, at time.Time) error {
	s.logger.Debug("sql", "op", "update", "table", "atoms", "id", atomID)

	state := "WAITING_SEMAPHORE"
	detail := "semaphore wait started"
	if slot != nil {
		state = "EXECUTING"
		detail = fmt.Sprintf("dispatched to slot %d", *slot)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE atoms SET state = ?, slot = ?, started_at = ? WHERE id = ?`,
		state, slot, at.Format(time.RFC3339Nano), atomID,
	)
	if err != nil {
		return fmt.Errorf("update atom %s: %w", atomID, err)
	}
	return s.appendEvent(ctx, atomID, state, detail, at)
}

func (s *SQLiteStore) RecordFinalized(ctx context.Context, atomID, state, result string, tail uint64, at time.Time) error {
	s.logger.Debug("sql", "op", "update", "table", "atoms", "id", atomID, "state", state)

	_, err := s.db.ExecContext(ctx,
		`UPDATE atoms SET state = ?, result = ?, tail = ?, completed_at = ? WHERE id = ?`,
		state, result, tail, at.Format(time.RFC3339Nano), atomID,
	)
	if err != nil {
		return fmt.Errorf("finalize atom %s: %w", atomID, err)
	}
	return s.appendEvent(ctx, atomID, state, result, at)
}

func (s *SQLiteStore) appendEvent(ctx context.Context, atomID, state, detail string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO atom_events (atom_id, state, detail, at) VALUES (?, ?, ?, ?)`,
		atomID, state, detail, at.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert event for atom %s: %w", atomID, err)
	}
	return nil
}

func (s *SQLiteStore) GetAtom(ctx context.Context, id string) (*AtomRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "atoms", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, connection_id, affinity, protected, soft, state, result, tail, slot, submitted_at, started_at, completed_at
		 FROM atoms WHERE id = ?`, id)
	rec, err := scanAtom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) ListAtoms(ctx context.Context, opts ListOptions) ([]*AtomRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "atoms")

	var conds []string
	var args []any
	if opts.ConnectionID != "" {
		conds = append(conds, "connection_id = ?")
		args = append(args, opts.ConnectionID)
	}
	if opts.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, opts.State)
	}

	query := `SELECT id, connection_id, affinity, protected, soft, state, result, tail, slot, submitted_at, started_at, completed_at
		 FROM atoms`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY submitted_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AtomRecord
	for rows.Next() {
		rec, err := scanAtom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListEvents(ctx context.Context, atomID string) ([]*Event, error) {
	s.logger.Debug("sql", "op", "select", "table", "atom_events", "atom_id", atomID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, atom_id, state, detail, at FROM atom_events WHERE atom_id = ? ORDER BY id`, atomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var ev Event
		var at string
		if err := rows.Scan(&ev.ID, &ev.AtomID, &ev.State, &ev.Detail, &at); err != nil {
			return nil, err
		}
		ev.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse event time: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAtom(row scanner) (*AtomRecord, error) {
	var rec AtomRecord
	var protected, soft int
	var slot sql.NullInt64
	var submittedAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(&rec.ID, &rec.ConnectionID, &rec.Affinity, &protected, &soft,
		&rec.State, &rec.Result, &rec.Tail, &slot, &submittedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	rec.Protected = protected != 0
	rec.Soft = soft != 0
	if slot.Valid {
		v := uint32(slot.Int64)
		rec.Slot = &v
	}
	if rec.SubmittedAt, err = time.Parse(time.RFC3339Nano, submittedAt); err != nil {
		return nil, fmt.Errorf("parse submitted_at: %w", err)
	}
	if startedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, startedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		rec.StartedAt = &t
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
