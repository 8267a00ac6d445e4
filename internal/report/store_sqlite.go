package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteStore stores reports in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the savings_reports table and index if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS savings_reports (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			total_saving REAL NOT NULL,
			data TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create savings_reports table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_savings_reports_created_at ON savings_reports(created_at DESC)"); err != nil {
		return nil, fmt.Errorf("failed to create savings_reports created_at index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Create inserts a new report.
func (s *SQLiteStore) Create(ctx context.Context, report *Report) error {
	payload, err := serializeReport(report)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO savings_reports (id, created_at, total_saving, data)
		VALUES (?, ?, ?, ?)
	`, report.ID, report.CreatedAt, report.TotalSaving, string(payload))
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Get returns a report by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM savings_reports WHERE id = ?", id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query report: %w", err)
	}
	return deserializeReport([]byte(payload))
}

// List returns reports ordered by created_at desc, id desc.
func (s *SQLiteStore) List(ctx context.Context, limit int, after string) ([]*Report, error) {
	limit = normalizeLimit(limit)

	var rows *sql.Rows
	var err error
	if after == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT data FROM savings_reports
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, limit)
	} else {
		var cursor int64
		err = s.db.QueryRowContext(ctx, "SELECT created_at FROM savings_reports WHERE id = ?", after).Scan(&cursor)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("query after cursor: %w", err)
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT data FROM savings_reports
			WHERE (created_at < ?) OR (created_at = ? AND id < ?)
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, cursor, cursor, after, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := make([]*Report, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		r, err := deserializeReport([]byte(payload))
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

// Close is a no-op; DB lifecycle is managed by storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
