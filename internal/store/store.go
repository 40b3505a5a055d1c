// Package store provides a SQLite-backed query history store for the
// retrieval engine. Every answered query is recorded with its winning
// variant, confidence, and sources, and survives server restarts — the
// in-memory corpora themselves do not.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Entry is one answered query.
type Entry struct {
	// CorpusID is the corpus the query ran against.
	CorpusID string
	// Query is the original query text.
	Query string
	// Variant is the query phrasing that produced the winning result set.
	Variant string
	// Confidence is the 0–100 confidence score returned to the caller.
	Confidence int
	// Sources lists the filenames cited in the answer context.
	Sources []string
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time
}

// HistoryStore persists and retrieves query history keyed by corpus.
// Implementations must be safe for concurrent use.
type HistoryStore interface {
	// Record persists a single query entry.
	Record(ctx context.Context, e Entry) error
	// Recent returns the most recent n entries for the corpus, ordered
	// newest-first. If fewer than n entries exist, all are returned.
	Recent(ctx context.Context, corpusID string, n int) ([]Entry, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a HistoryStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the query history database.
// It resolves to ~/.ragengine/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ragengine")
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
CREATE TABLE IF NOT EXISTS query_history (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    corpus_id    TEXT    NOT NULL,
    query        TEXT    NOT NULL,
    variant      TEXT    NOT NULL,
    confidence   INTEGER NOT NULL,
    sources      TEXT    NOT NULL,  -- JSON array of filenames
    created_at   INTEGER NOT NULL   -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_query_history_corpus_created
    ON query_history (corpus_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record persists a single query entry. A zero CreatedAt is replaced with the
// current time.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	sources, err := json.Marshal(e.Sources)
	if err != nil {
		return fmt.Errorf("store: record sources: %w", err)
	}
	ts := e.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	const q = `INSERT INTO query_history (corpus_id, query, variant, confidence, sources, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, e.CorpusID, e.Query, e.Variant, e.Confidence, string(sources), ts.Unix()); err != nil {
		return fmt.Errorf("store: record: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries for the corpus, newest-first.
func (s *SQLiteStore) Recent(ctx context.Context, corpusID string, n int) ([]Entry, error) {
	const q = `
SELECT query, variant, confidence, sources, created_at
FROM   query_history
WHERE  corpus_id = ?
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, corpusID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e := Entry{CorpusID: corpusID}
		var ts int64
		var sources string
		if err := rows.Scan(&e.Query, &e.Variant, &e.Confidence, &sources, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &e.Sources); err != nil {
			return nil, fmt.Errorf("store: recent sources: %w", err)
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
