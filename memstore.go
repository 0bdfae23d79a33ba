package sendonce

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a MarkerStore backed by a process-local set.
//
// It satisfies the atomic insert-if-absent contract under a mutex, which
// makes it suitable for tests and single-process deployments. It does not
// survive restarts; deployments that need crash-safety use one of the
// persistent stores instead.
type MemoryStore struct {
	mu      sync.Mutex
	markers map[string]struct{}
}

// NewMemoryStore returns an empty in-memory marker store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markers: make(map[string]struct{}),
	}
}

var _ MarkerStore = (*MemoryStore)(nil)

// Store inserts a marker for id, failing with ErrInFlight if one exists.
func (s *MemoryStore) Store(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.markers[id]; exists {
		return fmt.Errorf("marker %q: %w", id, ErrInFlight)
	}
	s.markers[id] = struct{}{}
	return nil
}

// Unstore removes the marker for id. Removing an absent marker is a no-op.
func (s *MemoryStore) Unstore(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.markers, id)
	return nil
}

// Contains reports whether a marker for id is currently held.
func (s *MemoryStore) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.markers[id]
	return exists
}
