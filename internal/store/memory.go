package store

import (
	"context"
	"sync"
)

// MemoryStore keeps the snapshot in process memory behind an RWMutex. It backs
// tests and single-session development runs where durability does not matter.
type MemoryStore struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snap: &Snapshot{}}
}

// Load returns a copy of the current snapshot.
func (m *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		// The zero value is usable.
		return &Snapshot{}, nil
	}
	return m.snap.Clone(), nil
}

// Save replaces the stored snapshot with a copy of the given one.
func (m *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.Clone()
	return nil
}
