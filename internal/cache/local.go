package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LocalStore implements Store using a single JSON file.
// This is suitable for single-instance deployments and local CLI use.
type LocalStore struct {
	mu       sync.Mutex
	filePath string
	entries  map[string]Entry
}

// NewLocalStore creates a file-backed store, loading any existing entries.
func NewLocalStore(filePath string) (*LocalStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("cache file path is required")
	}
	s := &LocalStore{filePath: filePath, entries: make(map[string]Entry)}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil // No cache file yet, not an error
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	return s, nil
}

// Get returns the entry for key.
func (s *LocalStore) Get(_ context.Context, key CallKey) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key.ID()]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Put upserts the entry for key and rewrites the file.
func (s *LocalStore) Put(_ context.Context, key CallKey, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key.ID()] = *newEntry(key, result, time.Now())
	return s.flush()
}

func (s *LocalStore) flush() error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	// Write atomically using temp file + rename
	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// Close is a no-op for the local store.
func (s *LocalStore) Close() error {
	return nil
}
