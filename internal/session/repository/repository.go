package repository

import (
	"context"
	"encoding/json"
	"errors"

	"session-core/internal/session/domain"
)

var (
	// ErrDuplicateHandle is returned by Create when a row with the same
	// handle already exists.
	ErrDuplicateHandle = errors.New("session handle already exists")
	// ErrNotFound is returned by compare-and-set and data updates when the
	// row is absent.
	ErrNotFound = errors.New("session not found")
	// ErrConflict is returned by UpdateRefreshTokenHash when the stored hash
	// does not match the expected old hash. The CAS is the linearization
	// point for concurrent refreshes.
	ErrConflict = errors.New("refresh token hash conflict")
	// ErrRetryable wraps transient storage failures (deadlocks,
	// serialization aborts) that the engine may retry.
	ErrRetryable = errors.New("transient storage failure")
)

// Repository defines transactional persistence for sessions.
type Repository interface {
	// Create persists the session row. Returns ErrDuplicateHandle when the
	// handle is taken.
	Create(ctx context.Context, s *domain.Session) error
	// GetByHandle returns the session for handle, or nil if not found.
	// It returns an error only for storage failures, not for missing rows.
	GetByHandle(ctx context.Context, handle string) (*domain.Session, error)
	// UpdateRefreshTokenHash is a compare-and-set on the refresh token hash:
	// it succeeds only when the stored hash equals expectedOldHash, also
	// bumping the session expiry. Returns ErrConflict on a hash mismatch and
	// ErrNotFound when the row is gone.
	UpdateRefreshTokenHash(ctx context.Context, handle, newHash, expectedOldHash string, newExpiresAt int64) error
	// DeleteByUser deletes every session belonging to userID and returns the
	// deleted handles (empty if none).
	DeleteByUser(ctx context.Context, userID string) ([]string, error)
	// DeleteByHandles deletes the given handles and returns the subset that
	// actually existed. Missing handles are silently skipped.
	DeleteByHandles(ctx context.Context, handles []string) ([]string, error)
	// ListHandlesByUser returns all session handles belonging to userID.
	ListHandlesByUser(ctx context.Context, userID string) ([]string, error)
	// UpdateSessionData replaces the server-side session data. Returns
	// ErrNotFound when the row is absent.
	UpdateSessionData(ctx context.Context, handle string, data json.RawMessage) error
	// SweepExpired deletes sessions whose expiry precedes now (epoch ms) and
	// returns how many were removed.
	SweepExpired(ctx context.Context, now int64) (int64, error)
}
