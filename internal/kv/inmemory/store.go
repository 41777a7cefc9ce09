package inmemory

import (
	"context"
	"sync"

	"github.com/dvloznov/expense-sync/internal/kv"
)

// Store is an in-memory implementation of kv.Store.
// It is safe for concurrent use. Data is lost on process exit - for
// durability, use the sqlite store.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		values: make(map[string][]byte),
	}
}

// Get implements the kv.Store interface.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[key]
	if !exists {
		return nil, kv.ErrNotFound
	}

	// Return a copy to avoid external modifications
	return append([]byte(nil), value...), nil
}

// Set implements the kv.Store interface.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Remove implements the kv.Store interface.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Ensure Store implements kv.Store interface.
var _ kv.Store = (*Store)(nil)
