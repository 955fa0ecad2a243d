package trace

import (
	"context"
	"database/sql"
	"fmt"
)

// Kind enumerates the TraceRecord.kind values.
type Kind string

const (
	KindTick       Kind = "tick"
	KindEscalation Kind = "escalation"
	KindRPCError   Kind = "rpc_error"
)

// Record is one row of the trace store: one agent tick or one
// escalation attempt.
type Record struct {
	ID         int64  `json:"id"`
	TS         int64  `json:"ts"`
	Kind       Kind   `json:"kind"`
	TickID     *int64 `json:"tick_id,omitempty"`
	Summary    string `json:"summary"`
	DetailJSON string `json:"detail_json"`
}

// Store is the trace store. A nil *Store is valid and turns Append
// into a no-op and Query into an empty result, matching the spec's
// "disabled when TRACE_ENABLED=false" behavior without callers needing
// to branch on whether tracing is on.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) and migrates the trace database at
// path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	sqlDB, err := openSQLDB(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &Store{db: sqlDB}, nil
}

// Append inserts a new trace record. No-op on a nil Store.
func (s *Store) Append(ctx context.Context, kind Kind, tickID *int64, summary, detailJSON string, ts int64) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces (ts, kind, tick_id, summary, detail_json) VALUES (?, ?, ?, ?, ?)`,
		ts, string(kind), tickID, summary, detailJSON)
	if err != nil {
		return fmt.Errorf("trace: append: %w", err)
	}
	return nil
}

// Query returns up to limit records with id > after, oldest first.
// Returns an empty slice on a nil Store.
func (s *Store) Query(ctx context.Context, after int64, limit int) ([]Record, error) {
	if s == nil {
		return []Record{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, kind, tick_id, summary, detail_json FROM traces WHERE id > ? ORDER BY id ASC LIMIT ?`,
		after, limit)
	if err != nil {
		return nil, fmt.Errorf("trace: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var kind string
		var tickID sql.NullInt64
		if err := rows.Scan(&r.ID, &r.TS, &kind, &tickID, &r.Summary, &r.DetailJSON); err != nil {
			return nil, fmt.Errorf("trace: scan: %w", err)
		}
		r.Kind = Kind(kind)
		if tickID.Valid {
			r.TickID = &tickID.Int64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database. No-op on a nil Store.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
