package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codesprint/codesprint/internal/apperrors"
	"github.com/codesprint/codesprint/internal/models"
	"github.com/codesprint/codesprint/internal/repository"
)

// Random password length for accounts created via OAuth. The password
// is never used to log in but keeps the user record complete
const socialPasswordBytes = 24

const usernameSuffixBytes = 2

// SocialResolver maps a verified OAuth profile to a local user,
// creating or linking accounts as needed
type SocialResolver struct {
	hasher  PasswordHasher
	storage repository.Storage
}

func NewSocialResolver(hasher PasswordHasher, storage repository.Storage) *SocialResolver {
	return &SocialResolver{
		hasher:  hasher,
		storage: storage,
	}
}

// WithStorage returns a resolver bound to the given storage. Used to
// run the resolution inside a caller-owned transaction
func (r *SocialResolver) WithStorage(s repository.Storage) *SocialResolver {
	bound := *r
	bound.storage = s
	return &bound
}

// Resolve finds or creates the user for the profile. The whole
// resolution runs in one transaction: no partial user or connection is
// ever committed. Any failure is wrapped in ErrSocialAuth
func (r *SocialResolver) Resolve(ctx context.Context, profile models.SocialProfile) (models.User, error) {
	var user models.User

	if profile.Email == "" {
		return user, fmt.Errorf("%w: profile has no email", apperrors.ErrSocialAuth)
	}
	if profile.Provider == "" || profile.ProviderID == "" {
		return user, fmt.Errorf("%w: profile has no provider identity", apperrors.ErrSocialAuth)
	}

	err := r.storage.InTx(ctx, func(s repository.Storage) error {
		var err error
		user, err = r.resolveInTx(ctx, s, profile)
		return err
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrSocialAuth) {
			return user, err
		}
		return user, fmt.Errorf("%w: %w", apperrors.ErrSocialAuth, err)
	}

	return user, nil
}

func (r *SocialResolver) resolveInTx(ctx context.Context, s repository.Storage, profile models.SocialProfile) (models.User, error) {
	// Known connection: resolve the owner
	conn, err := s.Social().GetConnection(ctx, profile.Provider, profile.ProviderID)
	switch {
	case err == nil:
		return s.User().GetUserByID(ctx, conn.UserID)
	case !errors.Is(err, apperrors.ErrConnectionNotFound):
		return models.User{}, err
	}

	// No connection yet: try to link to an existing account by email
	user, err := s.User().GetUserByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		return r.link(ctx, s, user, profile)
	case errors.Is(err, apperrors.ErrUserNotFound):
		return r.create(ctx, s, profile)
	default:
		return models.User{}, err
	}
}

// link attaches the provider identity to an existing account and
// backfills the avatar if the account has none
func (r *SocialResolver) link(ctx context.Context, s repository.Storage, user models.User, profile models.SocialProfile) (models.User, error) {
	_, err := s.Social().GetUserConnection(ctx, user.ID, profile.Provider)
	switch {
	case errors.Is(err, apperrors.ErrConnectionNotFound):
		_, err = s.Social().CreateConnection(ctx, repository.CreateConnectionParams{
			UserID:     user.ID,
			Provider:   profile.Provider,
			ProviderID: profile.ProviderID,
		})
		if err != nil {
			return user, fmt.Errorf("error while linking connection. Err: %w", err)
		}
	case err != nil:
		return user, err
	}

	if user.AvatarURL == nil && profile.AvatarURL != "" {
		if err := s.User().UpdateAvatar(ctx, user.ID, profile.AvatarURL); err != nil {
			return user, fmt.Errorf("error while backfilling avatar. Err: %w", err)
		}
		user.AvatarURL = &profile.AvatarURL
	}

	return user, nil
}

// create makes a brand-new account from the profile. The OAuth provider
// already verified the mailbox, so the account starts verified
func (r *SocialResolver) create(ctx context.Context, s repository.Storage, profile models.SocialProfile) (models.User, error) {
	username, err := r.availableUsername(ctx, s, synthesizeUsername(profile))
	if err != nil {
		return models.User{}, err
	}

	password, err := randomHex(socialPasswordBytes)
	if err != nil {
		return models.User{}, fmt.Errorf("error while generating password. Err: %w", err)
	}
	hash, err := r.hasher.Hash(password)
	if err != nil {
		return models.User{}, fmt.Errorf("error while hashing password. Err: %w", err)
	}

	var avatarURL *string
	if profile.AvatarURL != "" {
		avatarURL = &profile.AvatarURL
	}

	user, err := s.User().CreateUser(ctx, repository.CreateUserParams{
		Username:      username,
		Email:         profile.Email,
		PasswordHash:  hash,
		EmailVerified: true,
		AvatarURL:     avatarURL,
	})
	if err != nil {
		return user, fmt.Errorf("error while creating user. Err: %w", err)
	}

	_, err = s.Social().CreateConnection(ctx, repository.CreateConnectionParams{
		UserID:     user.ID,
		Provider:   profile.Provider,
		ProviderID: profile.ProviderID,
	})
	if err != nil {
		return user, fmt.Errorf("error while creating connection. Err: %w", err)
	}

	return user, nil
}

// availableUsername resolves collisions by appending a short random
// suffix. The check runs in the same transaction as the insert; a race
// with another transaction still trips the unique constraint and fails
// the whole resolution
func (r *SocialResolver) availableUsername(ctx context.Context, s repository.Storage, base string) (string, error) {
	username := base
	for range 5 {
		_, err := s.User().GetUserByUsername(ctx, username)
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			return username, nil
		case err != nil:
			return "", err
		}

		suffix, err := randomHex(usernameSuffixBytes)
		if err != nil {
			return "", fmt.Errorf("error while generating suffix. Err: %w", err)
		}
		username = base + suffix
	}

	return "", fmt.Errorf("no free username for %q", base)
}

// synthesizeUsername builds a username from profile name parts, falling
// back to the email local part: lowercased, alphanumerics only
func synthesizeUsername(profile models.SocialProfile) string {
	base := profile.FirstName + profile.LastName
	if base == "" {
		base, _, _ = strings.Cut(profile.Email, "@")
	}

	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return "runner"
	}
	return b.String()
}
