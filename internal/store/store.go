// Package store provides a SQLite-backed search history store. Every query
// served by the CLI or the demo server is recorded with its mode and timing
// so the history endpoint can show what was asked against each index.
// Entries are persisted across restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Entry is a single recorded search.
type Entry struct {
	// Index is the index the search ran against.
	Index string `json:"index"`
	// Query is the user's query text.
	Query string `json:"query"`
	// Mode is the search mode (lexical, suggest, neural, hybrid, rerank, geo).
	Mode string `json:"mode"`
	// TookMillis is the reported search latency in milliseconds.
	TookMillis int64 `json:"took_ms"`
	// Hits is the total hit count of the response.
	Hits int64 `json:"hits"`
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// HistoryStore persists and retrieves search history keyed by index.
// Implementations must be safe for concurrent use.
type HistoryStore interface {
	// Append persists a single search entry.
	Append(ctx context.Context, e Entry) error
	// Recent returns the most recent n entries for the index, newest-first.
	// If fewer than n entries exist, all are returned.
	Recent(ctx context.Context, index string, n int) ([]Entry, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a HistoryStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the search history database.
// It resolves to ~/.oslab/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".oslab")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS searches (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    idx          TEXT    NOT NULL,
    query        TEXT    NOT NULL,
    mode         TEXT    NOT NULL,
    took_ms      INTEGER NOT NULL DEFAULT 0,
    hits         INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_searches_idx_created
    ON searches (idx, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single search entry. A zero CreatedAt is filled with the
// current time.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	ts := e.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	const q = `INSERT INTO searches (idx, query, mode, took_ms, hits, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, e.Index, e.Query, e.Mode, e.TookMillis, e.Hits, ts.Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries for the index, newest-first.
func (s *SQLiteStore) Recent(ctx context.Context, index string, n int) ([]Entry, error) {
	const q = `
SELECT idx, query, mode, took_ms, hits, created_at
FROM   searches
WHERE  idx = ?
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, index, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.Index, &e.Query, &e.Mode, &e.TookMillis, &e.Hits, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
