// Package service implements the session lifecycle engine: create, refresh,
// verify, and revoke, plus session data access. The engine is re-entrant and
// thread-safe; no request-level state is shared across goroutines.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"session-core/internal/audit"
	"session-core/internal/security"
	"session-core/internal/session/domain"
	"session-core/internal/session/repository"
	"session-core/internal/signingkey"
)

// Sentinel errors for the session engine; the HTTP facade maps them to
// status codes.
var (
	// ErrSessionNotFound is returned when no session row exists for the
	// presented handle or token.
	ErrSessionNotFound = errors.New("session does not exist")
	// ErrUnauthorized is returned when the session exists but the presented
	// refresh token does not match the stored hash.
	ErrUnauthorized = errors.New("refresh token does not match session")
	// ErrTokenReuse is returned when a concurrent refresh won the rotation
	// race; the presented token was valid an instant ago but is now stale.
	ErrTokenReuse = errors.New("refresh token reuse detected")
	// ErrTokenExpired is returned when an access token's expiry precedes now.
	ErrTokenExpired = errors.New("access token expired")
)

const (
	// createAttempts bounds retries on a session handle collision.
	createAttempts = 3
	// storageAttempts bounds retries of transient storage failures.
	storageAttempts = 3
)

// CookieConfig is the deployment cookie metadata declared to callers.
// The core never sets cookies itself.
type CookieConfig struct {
	Domain          string
	Secure          bool
	SameSite        string // "lax", "strict", or "none"
	AccessTokenPath string
	RefreshPath     string
}

// TokenInfo is one issued token with the cookie metadata a downstream
// application should apply to it.
type TokenInfo struct {
	Token        string
	Expiry       int64 // epoch ms
	CreatedTime  int64 // epoch ms
	CookiePath   string
	CookieSecure bool
	Domain       string
	SameSite     string
}

// SessionInfo identifies a session to clients.
type SessionInfo struct {
	Handle        string
	UserID        string
	UserDataInJWT json.RawMessage
}

// Bundle holds everything a successful create or refresh returns.
type Bundle struct {
	Session                       SessionInfo
	AccessToken                   TokenInfo
	RefreshToken                  TokenInfo
	IDRefreshToken                TokenInfo
	AntiCsrfToken                 string // empty when anti-CSRF is disabled
	JWTSigningPublicKey           string
	JWTSigningPublicKeyExpiryTime int64
}

// Engine orchestrates session lifecycle operations over the session store,
// the signing key manager, and the refresh token codec.
type Engine struct {
	sessions        repository.Repository
	keys            *signingkey.Manager
	refreshCodec    *security.RefreshTokenCodec
	auditLogger     audit.AuditLogger
	accessValidity  time.Duration
	refreshValidity time.Duration
	enableAntiCsrf  bool
	cookie          CookieConfig

	nowFn func() time.Time
}

// NewEngine returns an Engine with the given dependencies. auditLogger may
// be nil; then lifecycle events are not recorded.
func NewEngine(
	sessions repository.Repository,
	keys *signingkey.Manager,
	refreshCodec *security.RefreshTokenCodec,
	auditLogger audit.AuditLogger,
	accessValidity, refreshValidity time.Duration,
	enableAntiCsrf bool,
	cookie CookieConfig,
) *Engine {
	return &Engine{
		sessions:        sessions,
		keys:            keys,
		refreshCodec:    refreshCodec,
		auditLogger:     auditLogger,
		accessValidity:  accessValidity,
		refreshValidity: refreshValidity,
		enableAntiCsrf:  enableAntiCsrf,
		cookie:          cookie,
		nowFn:           time.Now,
	}
}

// CreateNewSession mints a new session for userID: a fresh handle, a sealed
// refresh token, a signed access token carrying userDataInJWT, and an
// idRefreshToken marker. The row is persisted with the refresh validity
// window; a handle collision is retried with a fresh handle.
func (e *Engine) CreateNewSession(ctx context.Context, userID string, userDataInJWT, userDataInDatabase json.RawMessage) (*Bundle, error) {
	now := e.nowFn().UnixMilli()

	var antiCsrfToken string
	if e.enableAntiCsrf {
		t, err := security.GenerateRandomToken()
		if err != nil {
			return nil, err
		}
		antiCsrfToken = t
	}

	key, err := e.keys.GetKey(ctx)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for range createAttempts {
		handle, err := security.GenerateRandomToken()
		if err != nil {
			return nil, err
		}
		nonce, err := security.GenerateRandomToken()
		if err != nil {
			return nil, err
		}
		refreshToken, err := e.refreshCodec.Encode(handle, "", nonce)
		if err != nil {
			return nil, err
		}
		refreshHash := security.HashToken(refreshToken)

		accessToken, err := security.EncodeAccessToken(security.AccessTokenPayload{
			SessionHandle:           handle,
			UserID:                  userID,
			RefreshTokenHash1:       refreshHash,
			ParentRefreshTokenHash1: "",
			UserData:                userDataInJWT,
			AntiCsrfToken:           antiCsrfToken,
			ExpiryTime:              now + e.accessValidity.Milliseconds(),
		}, key.PrivateKey)
		if err != nil {
			return nil, err
		}

		idRefreshToken, err := security.GenerateRandomToken()
		if err != nil {
			return nil, err
		}

		row := &domain.Session{
			Handle:             handle,
			UserID:             userID,
			RefreshTokenHash:   refreshHash,
			UserDataInDatabase: userDataInDatabase,
			UserDataInJWT:      userDataInJWT,
			ExpiresAt:          now + e.refreshValidity.Milliseconds(),
			CreatedAt:          now,
		}
		err = e.withRetry(ctx, func() error { return e.sessions.Create(ctx, row) })
		if errors.Is(err, repository.ErrDuplicateHandle) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		if e.auditLogger != nil {
			e.auditLogger.LogEvent(ctx, userID, "create", "session", handle)
		}
		return e.bundle(row, accessToken, refreshToken, idRefreshToken, antiCsrfToken, key, now), nil
	}
	return nil, fmt.Errorf("allocating session handle: %w", lastErr)
}

// RefreshSession rotates the presented refresh token and mints a fresh
// access/refresh pair. The compare-and-set on the stored hash linearizes
// concurrent refreshes: the loser observes ErrTokenReuse. A session revoked
// mid-flight surfaces as ErrSessionNotFound.
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (*Bundle, error) {
	payload, err := e.refreshCodec.Decode(refreshToken)
	if err != nil {
		return nil, err
	}
	row, err := e.sessions.GetByHandle(ctx, payload.SessionHandle)
	if err != nil {
		return nil, err
	}
	now := e.nowFn().UnixMilli()
	if row == nil || row.ExpiresAt <= now {
		return nil, ErrSessionNotFound
	}
	presentedHash := security.HashToken(refreshToken)
	if !security.TokenHashEqual(refreshToken, row.RefreshTokenHash) {
		return nil, ErrUnauthorized
	}

	var antiCsrfToken string
	if e.enableAntiCsrf {
		t, err := security.GenerateRandomToken()
		if err != nil {
			return nil, err
		}
		antiCsrfToken = t
	}

	nonce, err := security.GenerateRandomToken()
	if err != nil {
		return nil, err
	}
	newRefresh, err := e.refreshCodec.Encode(row.Handle, presentedHash, nonce)
	if err != nil {
		return nil, err
	}
	newHash := security.HashToken(newRefresh)
	newExpiry := now + e.refreshValidity.Milliseconds()

	err = e.withRetry(ctx, func() error {
		return e.sessions.UpdateRefreshTokenHash(ctx, row.Handle, newHash, presentedHash, newExpiry)
	})
	switch {
	case errors.Is(err, repository.ErrConflict):
		return nil, ErrTokenReuse
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrSessionNotFound
	case err != nil:
		return nil, err
	}
	row.RefreshTokenHash = newHash
	row.ExpiresAt = newExpiry

	key, err := e.keys.GetKey(ctx)
	if err != nil {
		return nil, err
	}
	accessToken, err := security.EncodeAccessToken(security.AccessTokenPayload{
		SessionHandle:           row.Handle,
		UserID:                  row.UserID,
		RefreshTokenHash1:       newHash,
		ParentRefreshTokenHash1: presentedHash,
		UserData:                row.UserDataInJWT,
		AntiCsrfToken:           antiCsrfToken,
		ExpiryTime:              now + e.accessValidity.Milliseconds(),
	}, key.PrivateKey)
	if err != nil {
		return nil, err
	}
	idRefreshToken, err := security.GenerateRandomToken()
	if err != nil {
		return nil, err
	}

	if e.auditLogger != nil {
		e.auditLogger.LogEvent(ctx, row.UserID, "refresh", "session", row.Handle)
	}
	return e.bundle(row, accessToken, newRefresh, idRefreshToken, antiCsrfToken, key, now), nil
}

// VerifySession checks the access token's signature under the current
// signing key, its expiry, and that the session row still exists. Revoked
// sessions fail here only after the token itself expires; that staleness
// window is bounded by the access token validity.
func (e *Engine) VerifySession(ctx context.Context, accessToken string) (*SessionInfo, error) {
	key, err := e.keys.GetKey(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := security.DecodeAccessToken(accessToken, key.PublicKey)
	if err != nil {
		return nil, err
	}
	if payload.ExpiryTime <= e.nowFn().UnixMilli() {
		return nil, ErrTokenExpired
	}
	row, err := e.sessions.GetByHandle(ctx, payload.SessionHandle)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrSessionNotFound
	}
	return &SessionInfo{
		Handle:        payload.SessionHandle,
		UserID:        payload.UserID,
		UserDataInJWT: payload.UserData,
	}, nil
}

// RevokeAllSessionsForUser deletes every session belonging to userID and
// returns the revoked handles. Idempotent: revoking an already-clean user
// returns an empty list.
func (e *Engine) RevokeAllSessionsForUser(ctx context.Context, userID string) ([]string, error) {
	var handles []string
	err := e.withRetry(ctx, func() error {
		var err error
		handles, err = e.sessions.DeleteByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if e.auditLogger != nil && len(handles) > 0 {
		e.auditLogger.LogEvent(ctx, userID, "revoke", "session", fmt.Sprintf("all:%d", len(handles)))
	}
	return handles, nil
}

// RevokeSessionsByHandles deletes the given handles and returns the subset
// that actually existed; missing handles are silently skipped.
func (e *Engine) RevokeSessionsByHandles(ctx context.Context, handles []string) ([]string, error) {
	var revoked []string
	err := e.withRetry(ctx, func() error {
		var err error
		revoked, err = e.sessions.DeleteByHandles(ctx, handles)
		return err
	})
	if err != nil {
		return nil, err
	}
	if e.auditLogger != nil && len(revoked) > 0 {
		e.auditLogger.LogEvent(ctx, "", "revoke", "session", fmt.Sprintf("handles:%d", len(revoked)))
	}
	return revoked, nil
}

// GetAllSessionHandlesForUser returns all live session handles for userID.
func (e *Engine) GetAllSessionHandlesForUser(ctx context.Context, userID string) ([]string, error) {
	return e.sessions.ListHandlesByUser(ctx, userID)
}

// GetSessionData returns the server-side session data for handle.
func (e *Engine) GetSessionData(ctx context.Context, handle string) (json.RawMessage, error) {
	row, err := e.sessions.GetByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrSessionNotFound
	}
	return row.UserDataInDatabase, nil
}

// UpdateSessionData replaces the server-side session data for handle.
func (e *Engine) UpdateSessionData(ctx context.Context, handle string, data json.RawMessage) error {
	err := e.sessions.UpdateSessionData(ctx, handle, data)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// RemoveExpiredSessions deletes sessions past their expiry and returns the
// count. Intended for a periodic background sweep.
func (e *Engine) RemoveExpiredSessions(ctx context.Context) (int64, error) {
	return e.sessions.SweepExpired(ctx, e.nowFn().UnixMilli())
}

func (e *Engine) bundle(row *domain.Session, accessToken, refreshToken, idRefreshToken, antiCsrfToken string, key *signingkey.KeyInfo, now int64) *Bundle {
	accessExpiry := now + e.accessValidity.Milliseconds()
	return &Bundle{
		Session: SessionInfo{
			Handle:        row.Handle,
			UserID:        row.UserID,
			UserDataInJWT: row.UserDataInJWT,
		},
		AccessToken: TokenInfo{
			Token:        accessToken,
			Expiry:       accessExpiry,
			CreatedTime:  now,
			CookiePath:   e.cookie.AccessTokenPath,
			CookieSecure: e.cookie.Secure,
			Domain:       e.cookie.Domain,
			SameSite:     e.cookie.SameSite,
		},
		RefreshToken: TokenInfo{
			Token:        refreshToken,
			Expiry:       row.ExpiresAt,
			CreatedTime:  now,
			CookiePath:   e.cookie.RefreshPath,
			CookieSecure: e.cookie.Secure,
			Domain:       e.cookie.Domain,
			SameSite:     e.cookie.SameSite,
		},
		IDRefreshToken: TokenInfo{
			Token:        idRefreshToken,
			Expiry:       row.ExpiresAt,
			CreatedTime:  now,
			CookiePath:   e.cookie.AccessTokenPath,
			CookieSecure: e.cookie.Secure,
			Domain:       e.cookie.Domain,
			SameSite:     e.cookie.SameSite,
		},
		AntiCsrfToken:                 antiCsrfToken,
		JWTSigningPublicKey:           key.PublicKeyPEM,
		JWTSigningPublicKeyExpiryTime: key.KeyExpiryTime,
	}
}

// withRetry runs fn, retrying transient storage failures with bounded
// jittered backoff. Non-retryable errors return immediately.
func (e *Engine) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < storageAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 20 * time.Millisecond
			jitter := time.Duration(rand.Int64N(int64(10 * time.Millisecond)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}
		err = fn()
		if err == nil || !errors.Is(err, repository.ErrRetryable) {
			return err
		}
	}
	return err
}
