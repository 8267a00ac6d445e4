package pricetable

import (
	"context"
	"sort"
	"sync"
)

// MemoryTable keeps rows in process memory.
type MemoryTable struct {
	mu   sync.RWMutex
	rows map[string]Row
}

// NewMemoryTable creates an empty in-memory table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{rows: make(map[string]Row)}
}

func rowKey(provider, sku string) string {
	return provider + "\x00" + sku
}

// Find returns matching rows ordered by SKU.
func (t *MemoryTable) Find(_ context.Context, f Filter) ([]Row, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Row
	for _, r := range t.rows {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

// Upsert replaces rows by (Provider, SKU).
func (t *MemoryTable) Upsert(_ context.Context, rows []Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range rows {
		t.rows[rowKey(r.Provider, r.SKU)] = r
	}
	return nil
}

// Close is a no-op.
func (t *MemoryTable) Close() error {
	return nil
}
