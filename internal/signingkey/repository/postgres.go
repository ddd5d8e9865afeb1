package repository

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepository stores the signing key singleton row in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a signing key repository that uses the given
// db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the current signing key row, or nil if none exists.
func (r *PostgresRepository) Get(ctx context.Context) (*Key, error) {
	const q = `SELECT public_key, private_key, key_expiry_time, created_at
		FROM session_access_token_signing_keys WHERE id = TRUE`
	var k Key
	err := r.db.QueryRowContext(ctx, q).Scan(&k.PublicKey, &k.PrivateKey, &k.KeyExpiryTime, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &k, nil
}

// Upsert replaces the singleton row with k.
func (r *PostgresRepository) Upsert(ctx context.Context, k *Key) error {
	const q = `INSERT INTO session_access_token_signing_keys (id, public_key, private_key, key_expiry_time, created_at)
		VALUES (TRUE, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			public_key = EXCLUDED.public_key,
			private_key = EXCLUDED.private_key,
			key_expiry_time = EXCLUDED.key_expiry_time,
			created_at = EXCLUDED.created_at`
	_, err := r.db.ExecContext(ctx, q, k.PublicKey, k.PrivateKey, k.KeyExpiryTime, k.CreatedAt)
	return err
}
