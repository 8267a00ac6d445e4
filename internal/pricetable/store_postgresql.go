package pricetable

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLTable implements Table for PostgreSQL databases.
type PostgreSQLTable struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLTable creates the price_rows table if it doesn't exist.
func NewPostgreSQLTable(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLTable, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS price_rows (
			provider TEXT NOT NULL,
			sku TEXT NOT NULL,
			region TEXT NOT NULL DEFAULT '',
			flavor TEXT NOT NULL DEFAULT '',
			attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
			cpu INTEGER NOT NULL DEFAULT 0,
			ram BIGINT NOT NULL DEFAULT 0,
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT '',
			unit TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (provider, sku)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create price_rows table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_price_rows_region ON price_rows(provider, region, updated_at)",
		"CREATE INDEX IF NOT EXISTS idx_price_rows_flavor ON price_rows(provider, flavor)",
		"CREATE INDEX IF NOT EXISTS idx_price_rows_attributes_gin ON price_rows USING GIN (attributes)",
	}
	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	return &PostgreSQLTable{pool: pool}, nil
}

// Find returns rows matching f. Attribute filters use JSONB containment.
func (t *PostgreSQLTable) Find(ctx context.Context, f Filter) ([]Row, error) {
	conds := []string{"provider = $1"}
	args := []interface{}{f.Provider}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.Region != "" {
		add("region = ?", f.Region)
	}
	if f.FlavorID != "" {
		add("flavor = ?", f.FlavorID)
	}
	if !f.Since.IsZero() {
		add("updated_at >= ?", f.Since.UTC())
	}
	if len(f.Attributes) > 0 {
		attrs, err := json.Marshal(f.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attribute filter: %w", err)
		}
		add("attributes @> ?::jsonb", string(attrs))
	}

	rows, err := t.pool.Query(ctx, `
		SELECT provider, sku, region, flavor, attributes, cpu, ram, price, currency, unit, updated_at
		FROM price_rows WHERE `+strings.Join(conds, " AND ")+` ORDER BY sku`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r     Row
			attrs []byte
		)
		if err := rows.Scan(&r.Provider, &r.SKU, &r.Region, &r.FlavorID, &attrs, &r.CPU, &r.RAM,
			&r.Price, &r.Currency, &r.Unit, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		if err := json.Unmarshal(attrs, &r.Attributes); err != nil {
			return nil, fmt.Errorf("failed to parse attributes of %s: %w", r.SKU, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rows: %w", err)
	}
	return out, nil
}

// Upsert writes all rows in one batch.
func (t *PostgreSQLTable) Upsert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			return fmt.Errorf("failed to marshal attributes of %s: %w", r.SKU, err)
		}
		if r.Attributes == nil {
			attrs = []byte("{}")
		}
		batch.Queue(`
			INSERT INTO price_rows (provider, sku, region, flavor, attributes, cpu, ram, price, currency, unit, updated_at)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (provider, sku) DO UPDATE SET
				region = EXCLUDED.region,
				flavor = EXCLUDED.flavor,
				attributes = EXCLUDED.attributes,
				cpu = EXCLUDED.cpu,
				ram = EXCLUDED.ram,
				price = EXCLUDED.price,
				currency = EXCLUDED.currency,
				unit = EXCLUDED.unit,
				updated_at = EXCLUDED.updated_at
		`, r.Provider, r.SKU, r.Region, r.FlavorID, string(attrs), r.CPU, r.RAM, r.Price, r.Currency, r.Unit, r.UpdatedAt.UTC())
	}

	if err := t.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert %d price rows: %w", len(rows), err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the storage layer.
func (t *PostgreSQLTable) Close() error {
	return nil
}
