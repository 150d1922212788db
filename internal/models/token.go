package models

import (
	"time"

	"github.com/google/uuid"
)

type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Usable reports whether the token may still authenticate a refresh:
// not revoked and not past expiry. Expiry is derived, never stored
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued on register, login, refresh and social login
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
