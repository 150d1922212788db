package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codesprint/codesprint/internal/apperrors"
	"github.com/codesprint/codesprint/internal/models"
	"github.com/codesprint/codesprint/internal/repository"
)

const (
	defaultVerificationTokenTTL = 24 * time.Hour
	defaultResetTokenTTL        = time.Hour

	// 128 bits of entropy, hex encoded
	mailTokenBytes = 16
)

// PasswordCredentials manages password hashes and the single-use
// verification and reset tokens mailed to users
type PasswordCredentials struct {
	hasher  PasswordHasher
	storage repository.Storage

	verificationTTL time.Duration
	resetTTL        time.Duration

	// Injectable clock
	now func() time.Time
}

func NewPasswordCredentials(hasher PasswordHasher, storage repository.Storage, verificationTTL time.Duration, resetTTL time.Duration) *PasswordCredentials {
	if verificationTTL == 0 {
		verificationTTL = defaultVerificationTokenTTL
	}
	if resetTTL == 0 {
		resetTTL = defaultResetTokenTTL
	}

	return &PasswordCredentials{
		hasher:          hasher,
		storage:         storage,
		verificationTTL: verificationTTL,
		resetTTL:        resetTTL,
		now:             time.Now,
	}
}

// WithStorage returns credentials bound to the given storage. Used to
// run operations inside a caller-owned transaction
func (c *PasswordCredentials) WithStorage(s repository.Storage) *PasswordCredentials {
	bound := *c
	bound.storage = s
	return &bound
}

// GenerateVerificationToken issues a fresh email verification token for
// the user, overwriting and thereby invalidating any previous one
func (c *PasswordCredentials) GenerateVerificationToken(ctx context.Context, userID uuid.UUID) (string, error) {
	token, err := randomHex(mailTokenBytes)
	if err != nil {
		return "", fmt.Errorf("error while generating verification token. Err: %w", err)
	}

	expiresAt := c.now().Add(c.verificationTTL)
	if err := c.storage.User().SetVerificationToken(ctx, userID, token, expiresAt); err != nil {
		return "", fmt.Errorf("error while storing verification token. Err: %w", err)
	}

	return token, nil
}

// VerifyEmail consumes a verification token: marks the address verified
// and clears the token, so a replay fails with ErrTokenNotFound
func (c *PasswordCredentials) VerifyEmail(ctx context.Context, token string) error {
	user, err := c.storage.User().GetUserByVerificationToken(ctx, token)
	if err != nil {
		return fmt.Errorf("verification failed: %w", apperrors.ErrTokenNotFound)
	}

	if !user.VerificationTokenValid(c.now()) {
		return fmt.Errorf("verification failed: %w", apperrors.ErrTokenExpired)
	}

	if err := c.storage.User().MarkEmailVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("error while marking email verified. Err: %w", err)
	}

	return nil
}

// GeneratePasswordResetToken issues a reset token for the account with
// the given email. Returns the owning user so the caller can address
// the mail. ErrUserNotFound if no such account; whether that is leaked
// is the caller's call
func (c *PasswordCredentials) GeneratePasswordResetToken(ctx context.Context, email string) (models.User, string, error) {
	user, err := c.storage.User().GetUserByEmail(ctx, email)
	if err != nil {
		return user, "", fmt.Errorf("reset token not issued: %w", err)
	}

	token, err := randomHex(mailTokenBytes)
	if err != nil {
		return user, "", fmt.Errorf("error while generating reset token. Err: %w", err)
	}

	expiresAt := c.now().Add(c.resetTTL)
	if err := c.storage.User().SetResetToken(ctx, user.ID, token, expiresAt); err != nil {
		return user, "", fmt.Errorf("error while storing reset token. Err: %w", err)
	}

	return user, token, nil
}

// ResetPassword consumes a reset token: replaces the password hash,
// clears the token and revokes every refresh token of the user, all in
// one transaction. Changing the credential kills every live session
func (c *PasswordCredentials) ResetPassword(ctx context.Context, token string, newPassword string) error {
	hash, err := c.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password. Err: %w", err)
	}

	return c.storage.InTx(ctx, func(s repository.Storage) error {
		user, err := s.User().GetUserByResetToken(ctx, token)
		if err != nil {
			return fmt.Errorf("reset failed: %w", apperrors.ErrTokenNotFound)
		}

		if !user.ResetTokenValid(c.now()) {
			return fmt.Errorf("reset failed: %w", apperrors.ErrTokenExpired)
		}

		if err := s.User().UpdatePassword(ctx, user.ID, hash); err != nil {
			return fmt.Errorf("error while updating password. Err: %w", err)
		}

		if err := s.Refresh().RevokeAllForUser(ctx, user.ID); err != nil {
			return fmt.Errorf("error while revoking sessions. Err: %w", err)
		}

		return nil
	})
}

// randomHex returns a hex encoded string of n cryptographically secure
// random bytes
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
