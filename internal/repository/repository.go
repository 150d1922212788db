package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codesprint/codesprint/internal/models"
)

type CreateUserParams struct {
	Username      string
	Email         string
	PasswordHash  string
	EmailVerified bool
	AvatarURL     *string
}

// User repository interface
type UserRepo interface {
	// Create user
	// Must return apperrors.ErrEmailAlreadyExists or
	// apperrors.ErrUsernameAlreadyExists on the matching unique violation
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Lookups. Must return apperrors.ErrUserNotFound if user not found
	GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (models.User, error)
	GetUserByResetToken(ctx context.Context, token string) (models.User, error)

	// Overwrites any previously issued verification token
	SetVerificationToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error

	// Sets the verified flag and clears the verification token pair
	MarkEmailVerified(ctx context.Context, userID uuid.UUID) error

	// Overwrites any previously issued reset token
	SetResetToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error

	// Replaces the password hash and clears the reset token pair
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error

	UpdateAvatar(ctx context.Context, userID uuid.UUID, avatarURL string) error
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.RefreshToken) error

	// Return the token even if it is expired or revoked already
	// Must return apperrors.ErrTokenNotFound if no such token
	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Revoke the token if it is still active and return it.
	// Exactly one caller may win this for a given token:
	// if the token is revoked already, must return apperrors.ErrTokenRevoked
	// if the token does not exist, must return apperrors.ErrTokenNotFound
	Revoke(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Revoke every active token of the user. Idempotent
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}

type CreateConnectionParams struct {
	UserID     uuid.UUID
	Provider   string
	ProviderID string
}

// SocialConnection repository interface
type SocialRepo interface {
	// Lookups. Must return apperrors.ErrConnectionNotFound if no such connection
	GetConnection(ctx context.Context, provider string, providerID string) (models.SocialConnection, error)
	GetUserConnection(ctx context.Context, userID uuid.UUID, provider string) (models.SocialConnection, error)

	// Must return apperrors.ErrSocialConnectionExists on unique violation
	CreateConnection(ctx context.Context, arg CreateConnectionParams) (models.SocialConnection, error)
}

// Storage aggregates the repositories over one database handle and is
// the only way components touch persistent state
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Social() SocialRepo

	// Run fn within a database transaction. The storage passed to fn is
	// bound to that transaction: either every mutation commits or none
	InTx(ctx context.Context, fn func(Storage) error) error
}
