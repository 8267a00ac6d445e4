package pricetable

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SQLite has a default limit of 999 bindable parameters per query.
const (
	maxSQLiteParams    = 999
	columnsPerPriceRow = 11
	maxRowsPerBatch    = maxSQLiteParams / columnsPerPriceRow

	// Fixed-width so updated_at compares correctly as text.
	sqliteTimeLayout = "2006-01-02 15:04:05.000000000"
)

// SQLiteTable implements Table for SQLite databases.
type SQLiteTable struct {
	db *sql.DB
}

// NewSQLiteTable creates the price_rows table if it doesn't exist.
func NewSQLiteTable(db *sql.DB) (*SQLiteTable, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS price_rows (
			provider TEXT NOT NULL,
			sku TEXT NOT NULL,
			region TEXT NOT NULL DEFAULT '',
			flavor TEXT NOT NULL DEFAULT '',
			attributes TEXT NOT NULL DEFAULT '{}',
			cpu INTEGER NOT NULL DEFAULT 0,
			ram INTEGER NOT NULL DEFAULT 0,
			price REAL NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT '',
			unit TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			PRIMARY KEY (provider, sku)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create price_rows table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_price_rows_region ON price_rows(provider, region, updated_at)",
		"CREATE INDEX IF NOT EXISTS idx_price_rows_flavor ON price_rows(provider, flavor)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	return &SQLiteTable{db: db}, nil
}

// Find returns rows matching f. Attribute filters are applied after the query.
func (t *SQLiteTable) Find(ctx context.Context, f Filter) ([]Row, error) {
	conds := []string{"provider = ?"}
	args := []interface{}{f.Provider}
	if f.Region != "" {
		conds = append(conds, "region = ?")
		args = append(args, f.Region)
	}
	if f.FlavorID != "" {
		conds = append(conds, "flavor = ?")
		args = append(args, f.FlavorID)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "updated_at >= ?")
		args = append(args, f.Since.UTC().Format(sqliteTimeLayout))
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT provider, sku, region, flavor, attributes, cpu, ram, price, currency, unit, updated_at
		FROM price_rows WHERE `+strings.Join(conds, " AND ")+` ORDER BY sku`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r         Row
			attrs     string
			updatedAt string
		)
		if err := rows.Scan(&r.Provider, &r.SKU, &r.Region, &r.FlavorID, &attrs, &r.CPU, &r.RAM,
			&r.Price, &r.Currency, &r.Unit, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &r.Attributes); err != nil {
			return nil, fmt.Errorf("failed to parse attributes of %s: %w", r.SKU, err)
		}
		if r.UpdatedAt, err = time.Parse(sqliteTimeLayout, updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at of %s: %w", r.SKU, err)
		}
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rows: %w", err)
	}
	return out, nil
}

// Upsert writes rows in chunks that stay within SQLite's parameter limit.
func (t *SQLiteTable) Upsert(ctx context.Context, rows []Row) error {
	for i := 0; i < len(rows); i += maxRowsPerBatch {
		end := i + maxRowsPerBatch
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[i:end]

		placeholders := make([]string, len(chunk))
		values := make([]interface{}, 0, len(chunk)*columnsPerPriceRow)
		for j, r := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
			attrs, err := json.Marshal(r.Attributes)
			if err != nil {
				return fmt.Errorf("failed to marshal attributes of %s: %w", r.SKU, err)
			}
			if r.Attributes == nil {
				attrs = []byte("{}")
			}
			values = append(values, r.Provider, r.SKU, r.Region, r.FlavorID, string(attrs), r.CPU, r.RAM,
				r.Price, r.Currency, r.Unit, r.UpdatedAt.UTC().Format(sqliteTimeLayout))
		}

		query := `INSERT INTO price_rows (provider, sku, region, flavor, attributes, cpu, ram, price, currency, unit, updated_at)
			VALUES ` + strings.Join(placeholders, ", ") + `
			ON CONFLICT(provider, sku) DO UPDATE SET
				region = excluded.region,
				flavor = excluded.flavor,
				attributes = excluded.attributes,
				cpu = excluded.cpu,
				ram = excluded.ram,
				price = excluded.price,
				currency = excluded.currency,
				unit = excluded.unit,
				updated_at = excluded.updated_at`
		if _, err := t.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to upsert price rows: %w", err)
		}
	}
	return nil
}

// Close is a no-op; the connection is owned by the storage layer.
func (t *SQLiteTable) Close() error {
	return nil
}
