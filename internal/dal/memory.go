package dal

import (
	"context"
	"sync"

	"github.com/Billy-Davies-2/draftkit/internal/store"
)

// MemoryDAL keeps snapshots in process memory. Values are stored encoded so
// callers never share maps or slices with it.
type MemoryDAL struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryDAL creates a new in-memory data access layer
func NewMemoryDAL() *MemoryDAL {
	return &MemoryDAL{items: make(map[string][]byte)}
}

func (m *MemoryDAL) Save(ctx context.Context, key string, snap store.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = data
	return nil
}

func (m *MemoryDAL) Load(ctx context.Context, key string) (store.Snapshot, error) {
	m.mu.RLock()
	data, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return store.Snapshot{}, ErrNotFound
	}
	return decode(data)
}

func (m *MemoryDAL) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryDAL) Close() error {
	return nil
}
