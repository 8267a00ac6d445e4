package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. Suitable for tests and one-shot CLI runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), now: time.Now}
}

// Get returns a copy of the entry for key.
func (s *MemoryStore) Get(_ context.Context, key CallKey) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key.ID()]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Put upserts the entry for key.
func (s *MemoryStore) Put(_ context.Context, key CallKey, result []byte) error {
	stored := make([]byte, len(result))
	copy(stored, result)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key.ID()] = *newEntry(key, stored, s.now())
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
