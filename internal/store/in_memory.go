package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// InMemorySnapshotStore keeps snapshot documents in memory. It round-trips
// documents through JSON so serialization behaves the same as the Postgres
// store. Used for tests and for running without a database.
type InMemorySnapshotStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{docs: make(map[string][]byte)}
}

func (s *InMemorySnapshotStore) Save(ctx context.Context, name string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[name] = data
	return nil
}

func (s *InMemorySnapshotStore) Load(ctx context.Context, name string, out any) error {
	s.mu.RLock()
	data, ok := s.docs[name]
	s.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot %s: %w", name, err)
	}
	return nil
}

// SaveCount returns the number of stored documents.
func (s *InMemorySnapshotStore) SaveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
