package settings

import (
	"context"
	"sync"
)

// MemoryStore keeps settings in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values Snapshot
}

// NewMemoryStore creates a store seeded with initial values.
func NewMemoryStore(initial Snapshot) *MemoryStore {
	if initial == nil {
		initial = Snapshot{}
	}
	return &MemoryStore{values: initial.Clone()}
}

func (m *MemoryStore) Load(_ context.Context) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}
