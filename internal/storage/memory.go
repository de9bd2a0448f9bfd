// Package storage holds the artifact cache contract shared by every backend
// and the in-memory implementation used for development and tests.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dharsanguruparan/ReelDrop/internal/model"
)

var (
	// ErrNotFound is returned by every cache backend on a miss.
	ErrNotFound = errors.New("media record not found")
)

// MemoryStore keeps media records in a map guarded by an RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.MediaRecord
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]model.MediaRecord),
	}
}

// Put inserts or fully replaces the record for rec.ExternalID.
func (m *MemoryStore) Put(_ context.Context, rec *model.MediaRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	m.records[rec.ExternalID] = stored
	return nil
}

// Get returns a copy of the record so callers cannot mutate cached state.
func (m *MemoryStore) Get(_ context.Context, externalID string) (*model.MediaRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Delete drops the record for externalID, if any.
func (m *MemoryStore) Delete(_ context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, externalID)
	return nil
}
