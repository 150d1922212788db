package tokenmanager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/codesprint/codesprint/internal/apperrors"
	"github.com/codesprint/codesprint/internal/models"
	"github.com/codesprint/codesprint/internal/repository"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultSigningMethod   = "HS256"

	// 256 bits of entropy, hex encoded
	refreshTokenBytes = 32
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Token manager config with sensible defaults
type Config struct {
	// Secret key to sign access tokens. Required
	SecretKey string

	// JWT MAC algorithm. Defaults to HS256
	Alg string

	// Access and refresh token lifetimes
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenManager owns the session token lifecycle: it signs short-lived
// JWT access tokens and persists opaque refresh tokens, rotating them
// on every refresh
type TokenManager struct {
	key string
	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration

	storage repository.Storage

	// Injectable clock
	now func() time.Time
}

func New(cfg Config, storage repository.Storage) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &TokenManager{
		key:        cfg.SecretKey,
		alg:        jwt.GetSigningMethod(cfg.Alg),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		storage:    storage,
		now:        time.Now,
	}, nil
}

// WithStorage returns a manager bound to the given storage. Used to run
// token operations inside a caller-owned transaction
func (m *TokenManager) WithStorage(s repository.Storage) *TokenManager {
	bound := *m
	bound.storage = s
	return &bound
}

// GeneratePair issues a signed access token and an opaque refresh token
// and persists the refresh token
func (m *TokenManager) GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error) {
	var pair models.TokenPair
	now := m.now().Truncate(time.Second)
	accessExpiresAt := now.Add(m.accessTTL)
	refreshExpiresAt := now.Add(m.refreshTTL)

	accessToken := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   user.ID.String(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(accessExpiresAt),
			},
			Username: user.Username,
			Email:    user.Email,
		},
	)
	access, err := accessToken.SignedString([]byte(m.key))
	if err != nil {
		return pair, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	b := make([]byte, refreshTokenBytes)
	_, err = rand.Read(b)
	if err != nil {
		return pair, fmt.Errorf("error while generating refresh token. Err: %w", err)
	}
	refresh := hex.EncodeToString(b)

	err = m.storage.Refresh().Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     refresh,
		CreatedAt: now,
		ExpiresAt: refreshExpiresAt,
		Revoked:   false,
	})
	if err != nil {
		return pair, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: accessExpiresAt},
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: refreshExpiresAt},
	}, nil
}

// RefreshPair rotates the presented refresh token: it is revoked and a
// brand-new pair is issued, all in one transaction. Of two concurrent
// calls with the same token exactly one wins; the loser gets
// apperrors.ErrInvalidToken
func (m *TokenManager) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	err := m.storage.InTx(ctx, func(s repository.Storage) error {
		token, err := m.useRefresh(ctx, s, refresh)
		if err != nil {
			return err
		}

		user, err := s.User().GetUserByID(ctx, token.UserID)
		if err != nil {
			return fmt.Errorf("error while resolving token owner. Err: %w", err)
		}

		pair, err = m.WithStorage(s).GeneratePair(ctx, user)
		return err
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	return pair, nil
}

// ValidateRefresh checks the presented token without consuming it and
// returns the owning user id. Every failure collapses to ErrInvalidToken
func (m *TokenManager) ValidateRefresh(ctx context.Context, refresh string) (uuid.UUID, error) {
	token, err := m.storage.Refresh().Get(ctx, refresh)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w", apperrors.ErrInvalidToken)
	}
	if !token.Usable(m.now()) {
		return uuid.Nil, fmt.Errorf("%w", apperrors.ErrInvalidToken)
	}
	return token.UserID, nil
}

// Revoke marks the presented token revoked. Revoking an unknown or
// already revoked token is not an error
func (m *TokenManager) Revoke(ctx context.Context, refresh string) error {
	_, err := m.storage.Refresh().Revoke(ctx, refresh)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrTokenNotFound), errors.Is(err, apperrors.ErrTokenRevoked):
		return nil
	default:
		return fmt.Errorf("error while revoking token. Err: %w", err)
	}
}

// RevokeAllForUser revokes every active session of the user
func (m *TokenManager) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	return m.storage.Refresh().RevokeAllForUser(ctx, userID)
}

// ParseAccess parses and validates an access token and returns the
// subject user id
func (m *TokenManager) ParseAccess(ctx context.Context, access string) (uuid.UUID, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(m.key), nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad subject claim. Err: %w", err)
	}

	return userID, nil
}

// useRefresh consumes the token: revokes it and verifies it was usable.
// Missing, revoked and expired all collapse to ErrInvalidToken so the
// caller can't tell which check failed
func (m *TokenManager) useRefresh(ctx context.Context, s repository.Storage, refresh string) (models.RefreshToken, error) {
	token, err := s.Refresh().Revoke(ctx, refresh)
	if err != nil {
		return token, fmt.Errorf("%w", apperrors.ErrInvalidToken)
	}

	if m.now().After(token.ExpiresAt) {
		return token, fmt.Errorf("%w", apperrors.ErrInvalidToken)
	}

	return token, nil
}
