package repository

import "context"

// Key is the persisted access-token signing keypair with its rotation
// deadline. Exactly one row exists at a time; rotation replaces it.
type Key struct {
	PublicKey     string // PKIX PEM
	PrivateKey    string // PKCS#8 PEM
	KeyExpiryTime int64  // epoch ms; the key must be rotated before next issuance after this
	CreatedAt     int64  // epoch ms
}

// Repository defines persistence for the signing key singleton row.
type Repository interface {
	// Get returns the current key, or nil if none has been generated yet.
	// It returns an error only for storage failures, not for a missing row.
	Get(ctx context.Context) (*Key, error)
	// Upsert replaces the singleton row with k atomically.
	Upsert(ctx context.Context, k *Key) error
}
