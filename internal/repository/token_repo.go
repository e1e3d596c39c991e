package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openlot/auction/internal/domain"
)

// RefreshTokenRepository persists the server-side half of refresh tokens.
// Rows are looked up by hash only; the plaintext secret never reaches the
// database.
type RefreshTokenRepository struct {
	db *sqlx.DB
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(db *sqlx.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create inserts a new refresh token record.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES (:id, :user_id, :token_hash, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, t); err != nil {
		return fmt.Errorf("token_repo.Create: %w", err)
	}
	return nil
}

// GetByHash fetches a token record by the SHA-256 hash of its secret.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.GetContext(ctx, &t, `SELECT * FROM refresh_tokens WHERE token_hash = $1`, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("token_repo.GetByHash: %w", err)
	}
	return &t, nil
}

// Rotate revokes a token and records its successor, but only while the token
// is still live. Zero rows means the token was already rotated or revoked,
// which the auth service treats as a reuse attempt; the conditional update
// makes double-redemption races lose cleanly.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, id, replacedBy uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now(), replaced_by = $2
		WHERE id = $1 AND revoked_at IS NULL`,
		id, replacedBy)
	if err != nil {
		return fmt.Errorf("token_repo.Rotate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTokenReused
	}
	return nil
}

// Revoke invalidates a single token (logout).
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("token_repo.Revoke: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTokenInvalid
	}
	return nil
}

// RevokeAllForUser invalidates every live token a user holds. Used when a
// revoked token is presented again and on account suspension.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`,
		userID)
	if err != nil {
		return fmt.Errorf("token_repo.RevokeAllForUser: %w", err)
	}
	return nil
}

// DeleteExpired removes token rows whose TTL passed before the cutoff.
// Returns the number of rows removed.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("token_repo.DeleteExpired: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
