package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the cache_entries table if it doesn't exist.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			id TEXT PRIMARY KEY,
			function TEXT NOT NULL,
			args TEXT NOT NULL,
			kwargs TEXT NOT NULL,
			result BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_entries table: %w", err)
	}

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_cache_entries_function ON cache_entries(function)"); err != nil {
		slog.Warn("failed to create index", "error", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the entry for key.
func (s *SQLiteStore) Get(ctx context.Context, key CallKey) (*Entry, error) {
	var (
		entry     Entry
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, function, args, kwargs, result, updated_at
		FROM cache_entries WHERE id = ?
	`, key.ID()).Scan(&entry.ID, &entry.Function, &entry.Args, &entry.Kwargs, &entry.Result, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cache entry timestamp: %w", err)
	}
	return &entry, nil
}

// Put upserts the entry for key.
func (s *SQLiteStore) Put(ctx context.Context, key CallKey, result []byte) error {
	e := newEntry(key, result, time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (id, function, args, kwargs, result, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			result = excluded.result,
			updated_at = excluded.updated_at
	`, e.ID, e.Function, e.Args, e.Kwargs, e.Result, e.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// Close is a no-op; the connection is owned by the storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
