package apperrors

import (
	"errors"
)

var (
	// Registration conflicts. Handlers report which field collided
	ErrEmailAlreadyExists    = errors.New("email already registered")
	ErrUsernameAlreadyExists = errors.New("username already registered")

	// Login failure. The same error for unknown email and wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Refresh token failure. Absent, revoked, expired and malformed
	// tokens all collapse to this one
	ErrInvalidToken = errors.New("invalid token")

	ErrUserNotFound  = errors.New("user not found")
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenRevoked  = errors.New("token revoked")

	ErrAlreadyVerified = errors.New("email already verified")

	// Wraps any failure during OAuth profile resolution
	ErrSocialAuth = errors.New("social authentication failed")

	ErrSocialConnectionExists = errors.New("social connection already exists")
	ErrConnectionNotFound     = errors.New("social connection not found")
)
