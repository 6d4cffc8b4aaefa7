package cache

import (
	"context"
	"sync"
)

// MemoryStore is the in-process cache tier: a plain map behind a mutex. It is
// the fastest tier and is lost on process restart. Expiry is enforced by the
// tiered cache on read, so the store itself never inspects values.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

// Get returns the stored value for key.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok, nil
}

// Set stores the value, replacing any previous one.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

// Remove deletes the key. Removing an absent key is not an error.
func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of stored entries (for tests and monitoring).
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ Store = (*MemoryStore)(nil)
