package repository

import (
	"context"
	"sync"
)

// MemoryRepository is an in-memory Repository implementation for tests and
// single-node development runs.
type MemoryRepository struct {
	mu  sync.RWMutex
	key *Key
}

// NewMemoryRepository returns a new in-memory signing key repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Get returns the stored key, or nil if none has been stored.
func (r *MemoryRepository) Get(ctx context.Context) (*Key, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.key == nil {
		return nil, nil
	}
	k := *r.key
	return &k, nil
}

// Upsert replaces the stored key with k.
func (r *MemoryRepository) Upsert(ctx context.Context, k *Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *k
	r.key = &copied
	return nil
}
