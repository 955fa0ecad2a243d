// Package trace implements C11: a SQLite-backed append/query log whose
// rows describe agent ticks and escalation attempts, surfaced read-only
// via /traces. Rows are written only through Store.Append, which no other
// package of sinain-core calls.
package trace

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// openSQLDB opens a SQLite database at path, configured for a single
// writer and concurrent readers. Use ":memory:" for tests.
func openSQLDB(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("trace: open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("trace: set WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1)

	return db, nil
}
