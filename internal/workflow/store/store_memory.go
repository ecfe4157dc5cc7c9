package store

import (
	"context"
	"sync"

	"kycflow/pkg/domain"
)

// InMemoryStore keeps the serialized snapshot in process memory. Snapshots go
// through the same encoding as the other backends so aliasing is impossible.
type InMemoryStore struct {
	mu      sync.RWMutex
	payload []byte
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Save(_ context.Context, state domain.WorkflowState) error {
	payload, err := encode(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = payload
	return nil
}

func (s *InMemoryStore) Load(_ context.Context) (domain.WorkflowState, error) {
	s.mu.RLock()
	payload := s.payload
	s.mu.RUnlock()
	if payload == nil {
		return domain.WorkflowState{}, ErrNotFound
	}
	return decode(payload)
}

func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = nil
	return nil
}

var _ SnapshotStore = (*InMemoryStore)(nil)
