package report

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps reports in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Report
}

// NewMemoryStore creates an empty in-memory report store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Report)}
}

// Create stores a new report.
func (s *MemoryStore) Create(_ context.Context, report *Report) error {
	c, err := cloneReport(report)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[c.ID]; exists {
		return fmt.Errorf("report already exists: %s", c.ID)
	}
	s.items[c.ID] = c
	return nil
}

// Get retrieves one report by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Report, error) {
	s.mu.RLock()
	r, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return cloneReport(r)
}

// List returns reports ordered by created_at desc, id desc.
func (s *MemoryStore) List(_ context.Context, limit int, after string) ([]*Report, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	all := make([]*Report, 0, len(s.items))
	for _, r := range s.items {
		all = append(all, r)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt == all[j].CreatedAt {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt > all[j].CreatedAt
	})

	start := 0
	if after != "" {
		idx := -1
		for i := range all {
			if all[i].ID == after {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, ErrNotFound
		}
		start = idx + 1
	}

	end := min(start+limit, len(all))
	items := make([]*Report, 0, max(end-start, 0))
	for _, r := range all[min(start, end):end] {
		c, err := cloneReport(r)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
