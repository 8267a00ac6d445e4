package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore implements Store for PostgreSQL databases.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the cache_entries table if it doesn't exist.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cache_entries (
			id TEXT PRIMARY KEY,
			function TEXT NOT NULL,
			args JSONB NOT NULL,
			kwargs JSONB NOT NULL,
			result BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_entries table: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_cache_entries_function ON cache_entries(function)"); err != nil {
		slog.Warn("failed to create index", "error", err)
	}

	return &PostgreSQLStore{pool: pool}, nil
}

// Get returns the entry for key.
func (s *PostgreSQLStore) Get(ctx context.Context, key CallKey) (*Entry, error) {
	var entry Entry
	err := s.pool.QueryRow(ctx, `
		SELECT id, function, args::text, kwargs::text, result, updated_at
		FROM cache_entries WHERE id = $1
	`, key.ID()).Scan(&entry.ID, &entry.Function, &entry.Args, &entry.Kwargs, &entry.Result, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return &entry, nil
}

// Put upserts the entry for key.
func (s *PostgreSQLStore) Put(ctx context.Context, key CallKey, result []byte) error {
	e := newEntry(key, result, time.Now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cache_entries (id, function, args, kwargs, result, updated_at)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			result = EXCLUDED.result,
			updated_at = EXCLUDED.updated_at
	`, e.ID, e.Function, e.Args, e.Kwargs, e.Result, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the storage layer.
func (s *PostgreSQLStore) Close() error {
	return nil
}
