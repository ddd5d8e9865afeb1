package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"session-core/internal/session/domain"
)

// PostgresRepository is the Postgres-backed session store. Inline SQL over
// database/sql; the CAS update relies on a single-row UPDATE being atomic.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db
// for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the session row. The session must have Handle set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	const q = `INSERT INTO session_info
		(session_handle, user_id, refresh_token_hash, session_data, jwt_user_payload, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, q,
		s.Handle, s.UserID, s.RefreshTokenHash,
		string(s.UserDataInDatabase), string(s.UserDataInJWT),
		s.ExpiresAt, s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateHandle
		}
		return classify(err)
	}
	return nil
}

// GetByHandle returns the session for handle, or nil if not found.
func (r *PostgresRepository) GetByHandle(ctx context.Context, handle string) (*domain.Session, error) {
	const q = `SELECT session_handle, user_id, refresh_token_hash, session_data, jwt_user_payload, expires_at, created_at
		FROM session_info WHERE session_handle = $1`
	var s domain.Session
	var sessionData, jwtPayload string
	err := r.db.QueryRowContext(ctx, q, handle).Scan(
		&s.Handle, &s.UserID, &s.RefreshTokenHash, &sessionData, &jwtPayload, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err)
	}
	s.UserDataInDatabase = json.RawMessage(sessionData)
	s.UserDataInJWT = json.RawMessage(jwtPayload)
	return &s, nil
}

// UpdateRefreshTokenHash performs the compare-and-set rotation. A concurrent
// refresh that already rotated the hash surfaces as ErrConflict; a
// concurrent revocation surfaces as ErrNotFound.
func (r *PostgresRepository) UpdateRefreshTokenHash(ctx context.Context, handle, newHash, expectedOldHash string, newExpiresAt int64) error {
	const q = `UPDATE session_info
		SET refresh_token_hash = $1, expires_at = $2
		WHERE session_handle = $3 AND refresh_token_hash = $4`
	res, err := r.db.ExecContext(ctx, q, newHash, newExpiresAt, handle, expectedOldHash)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	// Distinguish a lost race from a deleted row.
	const exists = `SELECT 1 FROM session_info WHERE session_handle = $1`
	var one int
	switch err := r.db.QueryRowContext(ctx, exists, handle).Scan(&one); {
	case err == nil:
		return ErrConflict
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	default:
		return classify(err)
	}
}

// DeleteByUser deletes every session for userID and returns the deleted handles.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) ([]string, error) {
	const q = `DELETE FROM session_info WHERE user_id = $1 RETURNING session_handle`
	return r.collectHandles(ctx, q, userID)
}

// DeleteByHandles deletes the given handles and returns those that existed.
func (r *PostgresRepository) DeleteByHandles(ctx context.Context, handles []string) ([]string, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(handles))
	args := make([]any, len(handles))
	for i, h := range handles {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = h
	}
	q := `DELETE FROM session_info WHERE session_handle IN (` +
		strings.Join(placeholders, ", ") + `) RETURNING session_handle`
	return r.collectHandles(ctx, q, args...)
}

// ListHandlesByUser returns all session handles belonging to userID.
func (r *PostgresRepository) ListHandlesByUser(ctx context.Context, userID string) ([]string, error) {
	const q = `SELECT session_handle FROM session_info WHERE user_id = $1`
	return r.collectHandles(ctx, q, userID)
}

// UpdateSessionData replaces the server-side session data for handle.
func (r *PostgresRepository) UpdateSessionData(ctx context.Context, handle string, data json.RawMessage) error {
	const q = `UPDATE session_info SET session_data = $1 WHERE session_handle = $2`
	res, err := r.db.ExecContext(ctx, q, string(data), handle)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SweepExpired deletes sessions whose expiry precedes now.
func (r *PostgresRepository) SweepExpired(ctx context.Context, now int64) (int64, error) {
	const q = `DELETE FROM session_info WHERE expires_at <= $1`
	res, err := r.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) collectHandles(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var handles []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return handles, nil
}

// classify wraps deadlocks and serialization aborts as ErrRetryable so the
// engine can retry them with bounded backoff.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", ErrRetryable, err)
		}
	}
	return err
}
