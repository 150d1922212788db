package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string

	EmailVerified bool

	// Single-use tokens mailed to the user. A new issuance overwrites
	// the previous one, so at most one of each kind is live per user
	VerificationToken     *string
	VerificationExpiresAt *time.Time
	ResetToken            *string
	ResetExpiresAt        *time.Time

	AvatarURL *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// VerificationTokenValid reports whether the stored verification token
// is present and not expired at the given moment
func (u *User) VerificationTokenValid(now time.Time) bool {
	return u.VerificationToken != nil && u.VerificationExpiresAt != nil && now.Before(*u.VerificationExpiresAt)
}

// ResetTokenValid reports whether the stored reset token is present and
// not expired at the given moment
func (u *User) ResetTokenValid(now time.Time) bool {
	return u.ResetToken != nil && u.ResetExpiresAt != nil && now.Before(*u.ResetExpiresAt)
}
