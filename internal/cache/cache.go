// Package cache provides the persistent memoization store for provider calls.
// Results are keyed by the call's function name and arguments and are reused
// while they are younger than the configured TTL.
package cache

import (
	"context"
	"log/slog"
	"time"

	"flavorwise/internal/observability"
)

// DefaultTTL is how long a memoized result is considered fresh.
const DefaultTTL = 12 * time.Hour

// Entry is one persisted call result.
type Entry struct {
	ID        string    `json:"id" bson:"_id"`
	Function  string    `json:"function" bson:"function"`
	Args      string    `json:"args" bson:"args"`
	Kwargs    string    `json:"kwargs" bson:"kwargs"`
	Result    []byte    `json:"result" bson:"result"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func newEntry(key CallKey, result []byte, now time.Time) *Entry {
	return &Entry{
		ID:        key.ID(),
		Function:  key.Function,
		Args:      key.ArgsJSON(),
		Kwargs:    key.KwargsJSON(),
		Result:    result,
		UpdatedAt: now.UTC(),
	}
}

// Store persists cache entries. Put is an upsert: the last write wins.
// Entries are never evicted. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the entry for key. Returns nil, nil if no entry exists.
	Get(ctx context.Context, key CallKey) (*Entry, error)

	// Put creates or replaces the entry for key, stamping it with the current time.
	Put(ctx context.Context, key CallKey, result []byte) error

	// Close releases any resources held by the store.
	Close() error
}

// Cache applies the freshness rule on top of a Store.
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewCache wraps store with the given TTL. A non-positive TTL uses DefaultTTL.
func NewCache(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, now: time.Now}
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Lookup returns the stored value for key, whether an entry was found, and
// whether it is younger than the TTL. Stale values are returned too so the
// caller can decide what to do with them.
func (c *Cache) Lookup(ctx context.Context, key CallKey) (value []byte, found, fresh bool, err error) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		observability.CacheLookups.WithLabelValues(key.Function, observability.CacheError).Inc()
		return nil, false, false, err
	}
	if entry == nil {
		observability.CacheLookups.WithLabelValues(key.Function, observability.CacheMiss).Inc()
		return nil, false, false, nil
	}

	fresh = c.now().Sub(entry.UpdatedAt) < c.ttl
	if fresh {
		observability.CacheLookups.WithLabelValues(key.Function, observability.CacheFresh).Inc()
	} else {
		observability.CacheLookups.WithLabelValues(key.Function, observability.CacheStale).Inc()
	}
	return entry.Result, true, fresh, nil
}

// Put upserts value for key.
func (c *Cache) Put(ctx context.Context, key CallKey, value []byte) error {
	if err := c.store.Put(ctx, key, value); err != nil {
		observability.CacheWriteFailures.WithLabelValues(key.Function).Inc()
		slog.Warn("cache write failed", "function", key.Function, "key", key.ID(), "error", err)
		return err
	}
	return nil
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}
