package models

import (
	"time"

	"github.com/google/uuid"
)

// SocialConnection links a local account to an external OAuth identity.
// (Provider, ProviderID) is unique, as is (UserID, Provider)
type SocialConnection struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Provider   string
	ProviderID string
	CreatedAt  time.Time
}

// SocialProfile is the verified profile an OAuth provider returns after
// the handshake. The handshake itself happens upstream
type SocialProfile struct {
	Provider   string
	ProviderID string
	Email      string
	FirstName  string
	LastName   string
	AvatarURL  string
}
