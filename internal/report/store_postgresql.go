package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore stores reports in PostgreSQL.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the savings_reports table and index if needed.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS savings_reports (
			id TEXT PRIMARY KEY,
			created_at BIGINT NOT NULL,
			total_saving DOUBLE PRECISION NOT NULL,
			data JSONB NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create savings_reports table: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_savings_reports_created_at ON savings_reports(created_at DESC)"); err != nil {
		return nil, fmt.Errorf("failed to create savings_reports created_at index: %w", err)
	}

	return &PostgreSQLStore{pool: pool}, nil
}

// Create inserts a new report.
func (s *PostgreSQLStore) Create(ctx context.Context, report *Report) error {
	payload, err := serializeReport(report)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO savings_reports (id, created_at, total_saving, data)
		VALUES ($1, $2, $3, $4::jsonb)
	`, report.ID, report.CreatedAt, report.TotalSaving, payload)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Get returns a report by id.
func (s *PostgreSQLStore) Get(ctx context.Context, id string) (*Report, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, "SELECT data FROM savings_reports WHERE id = $1", id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query report: %w", err)
	}
	return deserializeReport(payload)
}

// List returns reports ordered by created_at desc, id desc.
func (s *PostgreSQLStore) List(ctx context.Context, limit int, after string) ([]*Report, error) {
	limit = normalizeLimit(limit)

	var rows pgx.Rows
	var err error
	if after == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT data FROM savings_reports
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		`, limit)
	} else {
		var cursor int64
		err = s.pool.QueryRow(ctx, "SELECT created_at FROM savings_reports WHERE id = $1", after).Scan(&cursor)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("query after cursor: %w", err)
		}
		rows, err = s.pool.Query(ctx, `
			SELECT data FROM savings_reports
			WHERE (created_at < $1) OR (created_at = $1 AND id < $2)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		`, cursor, after, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := make([]*Report, 0, limit)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		r, err := deserializeReport(payload)
		if err != nil {
			return nil, fmt.Errorf("decode report row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report rows: %w", err)
	}
	return items, nil
}

// Close is a no-op; pool lifecycle is managed by storage layer.
func (s *PostgreSQLStore) Close() error {
	return nil
}
