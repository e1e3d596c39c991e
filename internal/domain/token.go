package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the server-side record of an opaque refresh token. Only the
// SHA-256 hash of the secret is stored; the plaintext exists once, in the
// response that issued it. Tokens are single-use: redeeming one revokes it and
// records its successor in ReplacedBy.
type RefreshToken struct {
	ID         uuid.UUID  `json:"id"          db:"id"`
	UserID     uuid.UUID  `json:"user_id"     db:"user_id"`
	TokenHash  string     `json:"-"           db:"token_hash"`
	ExpiresAt  time.Time  `json:"expires_at"  db:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"  db:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at"  db:"revoked_at"`
	ReplacedBy *uuid.UUID `json:"replaced_by" db:"replaced_by"`
}

// IsExpired reports whether the token's TTL has passed at the given instant.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsRevoked reports whether the token has been rotated or explicitly revoked.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}
