// Package pricetable persists provider catalog rows (SKUs, flavor sizes and
// unit prices) so adapters can answer from a local copy until it ages out.
package pricetable

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultFreshness is how long fetched catalog rows are trusted.
const DefaultFreshness = 60 * 24 * time.Hour

// Row is one provider catalog item, unique per (Provider, SKU).
type Row struct {
	Provider   string            `json:"provider" bson:"provider"`
	SKU        string            `json:"sku" bson:"sku"`
	Region     string            `json:"region" bson:"region"`
	FlavorID   string            `json:"flavor" bson:"flavor"`
	Attributes map[string]string `json:"attributes,omitempty" bson:"attributes,omitempty"`
	CPU        int               `json:"cpu" bson:"cpu"`
	// RAM is MiB.
	RAM       int64     `json:"ram" bson:"ram"`
	Price     float64   `json:"price" bson:"price"`
	Currency  string    `json:"currency" bson:"currency"`
	Unit      string    `json:"unit,omitempty" bson:"unit,omitempty"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Filter selects rows. Empty fields match everything; Provider is required.
type Filter struct {
	Provider   string
	Region     string
	FlavorID   string
	Attributes map[string]string
	// Since excludes rows updated before this instant.
	Since time.Time
}

// Matches reports whether r satisfies every set field of f.
func (f Filter) Matches(r Row) bool {
	if f.Provider != "" && r.Provider != f.Provider {
		return false
	}
	if f.Region != "" && r.Region != f.Region {
		return false
	}
	if f.FlavorID != "" && r.FlavorID != f.FlavorID {
		return false
	}
	if !f.Since.IsZero() && r.UpdatedAt.Before(f.Since) {
		return false
	}
	for k, v := range f.Attributes {
		if r.Attributes[k] != v {
			return false
		}
	}
	return true
}

// Table stores catalog rows. Upsert replaces rows with the same (Provider, SKU).
// Implementations must be safe for concurrent use.
type Table interface {
	Find(ctx context.Context, f Filter) ([]Row, error)
	Upsert(ctx context.Context, rows []Row) error
	Close() error
}

// FetchFunc downloads catalog rows from the provider. It may return more rows
// than the filter asks for; all of them are stored.
type FetchFunc func(ctx context.Context) ([]Row, error)

// ReadThrough answers f from rows younger than freshness. When none exist it
// calls fetch, stores the result and filters it.
func ReadThrough(ctx context.Context, table Table, f Filter, freshness time.Duration, fetch FetchFunc) ([]Row, error) {
	if f.Provider == "" {
		return nil, fmt.Errorf("price table filter requires a provider")
	}
	if freshness <= 0 {
		freshness = DefaultFreshness
	}

	now := time.Now().UTC()
	fresh := f
	fresh.Since = now.Add(-freshness)

	rows, err := table.Find(ctx, fresh)
	if err != nil {
		// The table is a cache of the provider; fall through to the source.
		slog.Warn("price table read failed", "provider", f.Provider, "region", f.Region, "error", err)
	} else if len(rows) > 0 {
		return rows, nil
	}

	fetched, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	for i := range fetched {
		fetched[i].UpdatedAt = now
		if fetched[i].Provider == "" {
			fetched[i].Provider = f.Provider
		}
	}
	if len(fetched) > 0 {
		if err := table.Upsert(ctx, fetched); err != nil {
			slog.Warn("price table write failed", "provider", f.Provider, "rows", len(fetched), "error", err)
		}
	}

	matched := make([]Row, 0, len(fetched))
	for _, r := range fetched {
		if fresh.Matches(r) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// catalogSuffix keeps completeness markers out of Find results for the provider.
const catalogSuffix = "#catalog"

// ReadThroughCatalog is ReadThrough for fetches that return a complete scope,
// such as every flavor of a region. A marker row records when the scope was
// last fetched, so rows left by narrower lookups never pass for the full
// catalog and an empty scope is not refetched until the marker ages out.
func ReadThroughCatalog(ctx context.Context, table Table, f Filter, scope string, freshness time.Duration, fetch FetchFunc) ([]Row, error) {
	if f.Provider == "" {
		return nil, fmt.Errorf("price table filter requires a provider")
	}
	if scope == "" {
		return ReadThrough(ctx, table, f, freshness, fetch)
	}
	if freshness <= 0 {
		freshness = DefaultFreshness
	}

	now := time.Now().UTC()
	since := now.Add(-freshness)
	marker := Filter{Provider: f.Provider + catalogSuffix, FlavorID: scope, Since: since}

	if markers, err := table.Find(ctx, marker); err != nil {
		slog.Warn("price table read failed", "provider", f.Provider, "scope", scope, "error", err)
	} else if len(markers) > 0 {
		fresh := f
		fresh.Since = since
		rows, err := table.Find(ctx, fresh)
		if err == nil {
			return rows, nil
		}
		slog.Warn("price table read failed", "provider", f.Provider, "scope", scope, "error", err)
	}

	fetched, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	for i := range fetched {
		fetched[i].UpdatedAt = now
		if fetched[i].Provider == "" {
			fetched[i].Provider = f.Provider
		}
	}
	write := append(fetched, Row{Provider: marker.Provider, SKU: scope, FlavorID: scope, UpdatedAt: now})
	if err := table.Upsert(ctx, write); err != nil {
		slog.Warn("price table write failed", "provider", f.Provider, "rows", len(fetched), "error", err)
	}

	matched := make([]Row, 0, len(fetched))
	for _, r := range fetched {
		if f.Matches(r) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}
