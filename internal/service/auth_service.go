package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openlot/auction/internal/config"
	"github.com/openlot/auction/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces — persistence surfaces AuthService needs
// ──────────────────────────────────────────────────────────────────────────────

// UserStore is the minimal user persistence surface for registration and
// login. Implemented by repository.UserRepository.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// RefreshTokenStore is the refresh-token persistence surface. Implemented by
// repository.RefreshTokenRepository.
type RefreshTokenStore interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	Rotate(ctx context.Context, id, replacedBy uuid.UUID) error
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// Request / Response types
// ──────────────────────────────────────────────────────────────────────────────

// RegisterRequest contains the fields required to create a new user account.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// RegisterResponse is returned on successful registration.
type RegisterResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// TokenPair holds a signed access token and an opaque refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ──────────────────────────────────────────────────────────────────────────────
// JWT claims
// ──────────────────────────────────────────────────────────────────────────────

// AppClaims extends jwt.RegisteredClaims with application-specific fields.
type AppClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	TokenType string `json:"type"` // always "access"; refresh tokens are opaque
}

// ──────────────────────────────────────────────────────────────────────────────
// AuthService
// ──────────────────────────────────────────────────────────────────────────────

// AuthService handles registration, login, and the token lifecycle. Access
// tokens are short-lived JWTs; refresh tokens are opaque single-use secrets
// whose hashes live server-side and rotate on every redemption.
type AuthService struct {
	users  UserStore
	tokens RefreshTokenStore
	cfg    *config.Config
}

// NewAuthService creates an AuthService.
func NewAuthService(users UserStore, tokens RefreshTokenStore, cfg *config.Config) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		cfg:    cfg,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Register / Login
// ──────────────────────────────────────────────────────────────────────────────

// Register creates a new user account and returns a fresh token pair.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		return nil, fmt.Errorf("auth_service.Register: hash: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if domain.IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("auth_service.Register: create user: %w", err)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("auth_service.Register: tokens: %w", err)
	}

	return &RegisterResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Login validates credentials and returns a fresh token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		// Map not-found to a generic credential error to prevent user enumeration.
		return nil, domain.ErrInvalidCredentials
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, domain.ErrUserSuspended
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("auth_service.Login: tokens: %w", err)
	}

	return &LoginResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Refresh / Logout
// ──────────────────────────────────────────────────────────────────────────────

// Refresh redeems a refresh token for a new token pair. Each token is
// single-use: the presented token is revoked in the same step that records
// its successor, so two racing redemptions cannot both win. Presenting a
// token that was already rotated is treated as theft evidence and revokes
// every live token the owner holds.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	rec, err := s.tokens.GetByHash(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("auth_service.Refresh: lookup: %w", err)
	}

	if rec.IsRevoked() {
		if err := s.tokens.RevokeAllForUser(ctx, rec.UserID); err != nil {
			return nil, fmt.Errorf("auth_service.Refresh: revoke family: %w", err)
		}
		return nil, domain.ErrTokenReused
	}
	if rec.IsExpired(time.Now().UTC()) {
		return nil, domain.ErrTokenExpired
	}

	user, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	if !user.IsActive {
		return nil, domain.ErrUserSuspended
	}

	successor, secret, err := s.newRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service.Refresh: mint: %w", err)
	}

	// Rotate first: if a concurrent redemption of the same token got here
	// before us, Rotate affects zero rows and we treat it as reuse.
	if err := s.tokens.Rotate(ctx, rec.ID, successor.ID); err != nil {
		if errors.Is(err, domain.ErrTokenReused) {
			if revokeErr := s.tokens.RevokeAllForUser(ctx, rec.UserID); revokeErr != nil {
				return nil, fmt.Errorf("auth_service.Refresh: revoke family: %w", revokeErr)
			}
			return nil, domain.ErrTokenReused
		}
		return nil, fmt.Errorf("auth_service.Refresh: rotate: %w", err)
	}
	if err := s.tokens.Create(ctx, successor); err != nil {
		return nil, fmt.Errorf("auth_service.Refresh: store successor: %w", err)
	}

	access, err := s.issueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("auth_service.Refresh: sign access: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: secret}, nil
}

// Logout revokes the presented refresh token. The token must belong to the
// calling user; anything else is reported as invalid.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	rec, err := s.tokens.GetByHash(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			return domain.ErrTokenInvalid
		}
		return fmt.Errorf("auth_service.Logout: lookup: %w", err)
	}
	if rec.UserID != userID {
		return domain.ErrTokenInvalid
	}
	if err := s.tokens.Revoke(ctx, rec.ID); err != nil {
		if domain.IsAuthError(err) {
			return domain.ErrTokenInvalid
		}
		return fmt.Errorf("auth_service.Logout: revoke: %w", err)
	}
	return nil
}

// Profile returns the account behind an authenticated request.
func (s *AuthService) Profile(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("auth_service.Profile: %w", err)
	}
	return user, nil
}

// CleanupExpiredTokens removes refresh-token rows whose TTL has long passed.
// Called periodically by the scheduler.
func (s *AuthService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, time.Now().UTC())
}

// ──────────────────────────────────────────────────────────────────────────────
// Token helpers
// ──────────────────────────────────────────────────────────────────────────────

// issueTokenPair signs an access token and mints + stores a refresh token.
func (s *AuthService) issueTokenPair(ctx context.Context, user *domain.User) (*TokenPair, error) {
	access, err := s.issueAccessToken(user)
	if err != nil {
		return nil, err
	}
	rec, secret, err := s.newRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: secret}, nil
}

// issueAccessToken signs a short-lived HS256 JWT carrying the user's role.
func (s *AuthService) issueAccessToken(user *domain.User) (string, error) {
	now := time.Now().UTC()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.cfg.JWT.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.JWT.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWT.AccessTTL)),
		},
		Role:      string(user.Role),
		TokenType: "access",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

// newRefreshToken mints an opaque secret and its server-side record. The
// secret is returned once; only its hash is persisted.
func (s *AuthService) newRefreshToken(userID uuid.UUID) (*domain.RefreshToken, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("mint refresh token: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now().UTC()
	rec := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: hashToken(secret),
		ExpiresAt: now.Add(s.cfg.JWT.RefreshTTL),
		CreatedAt: now,
	}
	return rec, secret, nil
}

// hashToken derives the storage key for a refresh token secret.
func hashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// ParseAccessToken validates signature, algorithm, issuer, audience, and
// expiry, and rejects anything that is not an access token. Exported for use
// by the JWT middleware.
func (s *AuthService) ParseAccessToken(tokenString string) (*AppClaims, error) {
	claims := &AppClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWT.Secret), nil
	},
		jwt.WithIssuer(s.cfg.JWT.Issuer),
		jwt.WithAudience(s.cfg.JWT.Audience),
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	if !tok.Valid || claims.TokenType != "access" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}
