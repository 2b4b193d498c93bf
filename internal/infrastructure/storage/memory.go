package storage

import (
	"context"
	"sync"

	"MDMWatch/internal/domain"
	"MDMWatch/internal/ports"
)

// MemoryStore keeps state for the life of the process. Used for dry runs and tests.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]domain.NotificationState
}

var (
	_ ports.StateStore  = (*MemoryStore)(nil)
	_ ports.StateEraser = (*MemoryStore)(nil)
)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: map[string]domain.NotificationState{}}
}

// Read returns a copy of the stored state.
func (s *MemoryStore) Read(_ context.Context, key string) (domain.NotificationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[key]
	if !ok {
		return domain.NotificationState{}, domain.ErrStateNotFound
	}
	state.NotifiedIDs = append([]string(nil), state.NotifiedIDs...)
	return state, nil
}

// Write replaces the state for key.
func (s *MemoryStore) Write(_ context.Context, key string, state domain.NotificationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.NotifiedIDs = append([]string(nil), state.NotifiedIDs...)
	s.states[key] = state
	return nil
}

// Delete forgets key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, key)
	return nil
}
