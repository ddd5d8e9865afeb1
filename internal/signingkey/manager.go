// Package signingkey manages the access-token signing keypair: lazy
// generation on first use, rotation at the configured interval, and a
// process-wide cache guarded by a single mutex.
package signingkey

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"session-core/internal/security"
	"session-core/internal/signingkey/repository"
)

// ErrKeyGeneration is returned when the cryptographic primitive cannot
// produce a keypair. Fatal to the in-flight request, not to the process.
var ErrKeyGeneration = errors.New("signing key generation failed")

const keyBits = 2048

// staticKeyLifetime is the reported expiry horizon when rotation is disabled.
const staticKeyLifetime = 100 * 365 * 24 * time.Hour

// KeyInfo is the current signing key as served to the engine: parsed keys
// for signing/verification plus the PEM and expiry handed to clients.
type KeyInfo struct {
	PrivateKey    *rsa.PrivateKey
	PublicKey     *rsa.PublicKey
	PublicKeyPEM  string
	KeyExpiryTime int64 // epoch ms
}

// Manager supplies a valid signing keypair on demand. Concurrent callers
// observing an absent or expired key collapse to a single generation; the
// others wait on the mutex and read the generated value.
type Manager struct {
	repo           repository.Repository
	dynamic        bool
	updateInterval time.Duration

	mu     sync.Mutex
	cached *KeyInfo

	nowFn func() time.Time
}

// NewManager returns a Manager backed by repo. When dynamic is false the key
// is static after first generation; otherwise it rotates every
// updateInterval.
func NewManager(repo repository.Repository, dynamic bool, updateInterval time.Duration) *Manager {
	return &Manager{
		repo:           repo,
		dynamic:        dynamic,
		updateInterval: updateInterval,
		nowFn:          time.Now,
	}
}

// GetKey returns the current signing key, generating and persisting a fresh
// keypair if none exists or (in dynamic mode) the current one has expired.
func (m *Manager) GetKey(ctx context.Context) (*KeyInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn().UnixMilli()
	if m.cached != nil && m.usable(m.cached.KeyExpiryTime, now) {
		return m.cached, nil
	}

	row, err := m.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if row != nil && m.usable(row.KeyExpiryTime, now) {
		info, err := parseKeyRow(row)
		if err != nil {
			return nil, err
		}
		m.cached = info
		return info, nil
	}

	info, row, err := m.generate(now)
	if err != nil {
		return nil, err
	}
	if err := m.repo.Upsert(ctx, row); err != nil {
		return nil, err
	}
	m.cached = info
	return info, nil
}

// GetKeyExpiryTime returns the current key's expiry, triggering generation
// if no key exists yet.
func (m *Manager) GetKeyExpiryTime(ctx context.Context) (int64, error) {
	info, err := m.GetKey(ctx)
	if err != nil {
		return 0, err
	}
	return info.KeyExpiryTime, nil
}

// usable reports whether a key with the given expiry may still sign at now.
// In static mode the first generated key never rotates.
func (m *Manager) usable(expiry, now int64) bool {
	if !m.dynamic {
		return true
	}
	return now < expiry
}

func (m *Manager) generate(now int64) (*KeyInfo, *repository.Key, error) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	privPEM, err := security.EncodePrivateKeyPEM(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	pubPEM, err := security.EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	lifetime := m.updateInterval
	if !m.dynamic {
		lifetime = staticKeyLifetime
	}
	expiry := now + lifetime.Milliseconds()

	info := &KeyInfo{
		PrivateKey:    key,
		PublicKey:     &key.PublicKey,
		PublicKeyPEM:  pubPEM,
		KeyExpiryTime: expiry,
	}
	row := &repository.Key{
		PublicKey:     pubPEM,
		PrivateKey:    privPEM,
		KeyExpiryTime: expiry,
		CreatedAt:     now,
	}
	return info, row, nil
}

func parseKeyRow(row *repository.Key) (*KeyInfo, error) {
	priv, err := security.ParseRSAPrivateKey(row.PrivateKey)
	if err != nil {
		return nil, err
	}
	pub, err := security.ParseRSAPublicKey(row.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyInfo{
		PrivateKey:    priv,
		PublicKey:     pub,
		PublicKeyPEM:  row.PublicKey,
		KeyExpiryTime: row.KeyExpiryTime,
	}, nil
}
