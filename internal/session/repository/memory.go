package repository

import (
	"context"
	"encoding/json"
	"sync"

	"session-core/internal/session/domain"
)

// MemoryRepository is an in-memory Repository implementation for tests and
// single-node development runs. All operations are guarded by one mutex, so
// each acts atomically, matching the CAS semantics of the Postgres store.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]*domain.Session
}

// NewMemoryRepository returns a new in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Session)}
}

// Create persists the session row.
func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[s.Handle]; ok {
		return ErrDuplicateHandle
	}
	copied := *s
	r.m[s.Handle] = &copied
	return nil
}

// GetByHandle returns the session for handle, or nil if not found.
func (r *MemoryRepository) GetByHandle(ctx context.Context, handle string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[handle]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

// UpdateRefreshTokenHash performs the compare-and-set rotation.
func (r *MemoryRepository) UpdateRefreshTokenHash(ctx context.Context, handle, newHash, expectedOldHash string, newExpiresAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[handle]
	if !ok {
		return ErrNotFound
	}
	if s.RefreshTokenHash != expectedOldHash {
		return ErrConflict
	}
	s.RefreshTokenHash = newHash
	s.ExpiresAt = newExpiresAt
	return nil
}

// DeleteByUser deletes every session for userID and returns the deleted handles.
func (r *MemoryRepository) DeleteByUser(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var handles []string
	for h, s := range r.m {
		if s.UserID == userID {
			handles = append(handles, h)
			delete(r.m, h)
		}
	}
	return handles, nil
}

// DeleteByHandles deletes the given handles and returns those that existed.
func (r *MemoryRepository) DeleteByHandles(ctx context.Context, handles []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted []string
	for _, h := range handles {
		if _, ok := r.m[h]; ok {
			deleted = append(deleted, h)
			delete(r.m, h)
		}
	}
	return deleted, nil
}

// ListHandlesByUser returns all session handles belonging to userID.
func (r *MemoryRepository) ListHandlesByUser(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var handles []string
	for h, s := range r.m {
		if s.UserID == userID {
			handles = append(handles, h)
		}
	}
	return handles, nil
}

// UpdateSessionData replaces the server-side session data for handle.
func (r *MemoryRepository) UpdateSessionData(ctx context.Context, handle string, data json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[handle]
	if !ok {
		return ErrNotFound
	}
	s.UserDataInDatabase = append(json.RawMessage(nil), data...)
	return nil
}

// SweepExpired deletes sessions whose expiry precedes now.
func (r *MemoryRepository) SweepExpired(ctx context.Context, now int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, s := range r.m {
		if s.ExpiresAt <= now {
			delete(r.m, h)
			n++
		}
	}
	return n, nil
}
