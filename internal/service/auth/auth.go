package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/codesprint/codesprint/internal/apperrors"
	"github.com/codesprint/codesprint/internal/logger"
	"github.com/codesprint/codesprint/internal/mailer"
	"github.com/codesprint/codesprint/internal/models"
	"github.com/codesprint/codesprint/internal/repository"
	"github.com/codesprint/codesprint/internal/service/auth/tokenmanager"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshToken"
)

// Compared against when login hits an unknown email, so both failure
// paths burn one bcrypt verify and stay indistinguishable in timing
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type Config struct {
	// Base URL of the frontend, used to build links for mailed tokens
	FrontendBaseURL string

	// Hasher used during registration and login.
	// Defaults to BcryptHasher
	Hasher PasswordHasher

	// Transport details for issued tokens. Defaults are used if empty
	AccessHeaderName  string
	AccessAuthScheme  string
	RefreshCookieName string
}

// AuthService is the credential lifecycle orchestrator. It coordinates
// password credentials, the token manager and the social resolver over
// one storage; it holds no state of its own
type AuthService struct {
	hasher  PasswordHasher
	creds   *PasswordCredentials
	token   *tokenmanager.TokenManager
	social  *SocialResolver
	storage repository.Storage
	mailer  mailer.Mailer
	logger  logger.Logger

	frontendBaseURL string

	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
}

func NewService(
	cfg Config,
	token *tokenmanager.TokenManager,
	creds *PasswordCredentials,
	social *SocialResolver,
	storage repository.Storage,
	m mailer.Mailer,
	l logger.Logger,
) (*AuthService, error) {
	if token == nil || creds == nil || social == nil || storage == nil || m == nil {
		return nil, errors.New("token manager, credentials, social resolver, storage and mailer must not be nil")
	}
	if l == nil {
		l = logger.NewNoOp()
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	setDefaultString := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefaultString(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefaultString(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefaultString(&cfg.RefreshCookieName, defaultRefreshCookieName)

	return &AuthService{
		hasher:            hasher,
		creds:             creds,
		token:             token,
		social:            social,
		storage:           storage,
		mailer:            m,
		logger:            l,
		frontendBaseURL:   strings.TrimSuffix(cfg.FrontendBaseURL, "/"),
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
	}, nil
}

// Register creates the account, issues a verification token and logs
// the user straight in. User row, verification token and refresh token
// are committed atomically; the mail goes out after the commit and its
// failure only gets logged
func (s *AuthService) Register(ctx context.Context, username string, email string, password string) (models.TokenPair, error) {
	var pair models.TokenPair

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return pair, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	var user models.User
	var verification string

	err = s.storage.InTx(ctx, func(txs repository.Storage) error {
		var err error

		user, err = txs.User().CreateUser(ctx, repository.CreateUserParams{
			Username:     username,
			Email:        email,
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}

		verification, err = s.creds.WithStorage(txs).GenerateVerificationToken(ctx, user.ID)
		if err != nil {
			return err
		}

		pair, err = s.token.WithStorage(txs).GeneratePair(ctx, user)
		return err
	})
	if err != nil {
		return pair, err
	}

	err = s.mailer.SendVerificationEmail(ctx, user.Email, user.Username, s.verificationLink(verification))
	if err != nil {
		s.logger.Error("can't send verification email", "username", user.Username, "error", err.Error())
	}

	return pair, nil
}

// Login authenticates by email. Unknown account and wrong password are
// deliberately the same error
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	var pair models.TokenPair

	user, err := s.storage.User().GetUserByEmail(ctx, email)
	if err != nil {
		_ = s.hasher.Compare(dummyPasswordHash, password)
		return pair, apperrors.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return pair, apperrors.ErrInvalidCredentials
	}

	pair, err = s.token.GeneratePair(ctx, user)
	if err != nil {
		return pair, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return pair, nil
}

// Logout revokes exactly the presented refresh token. Other sessions of
// the same user stay alive. Revoking an unknown token is not an error
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	return s.token.Revoke(ctx, refresh)
}

// RefreshPair exchanges a valid refresh token for a new pair, revoking
// the presented one
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	return s.token.RefreshPair(ctx, refresh)
}

// VerifyEmail consumes a mailed verification token
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	return s.creds.VerifyEmail(ctx, token)
}

// ResendVerification issues a fresh verification token and mails it
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.storage.User().GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	if user.EmailVerified {
		return apperrors.ErrAlreadyVerified
	}

	token, err := s.creds.GenerateVerificationToken(ctx, user.ID)
	if err != nil {
		return err
	}

	return s.mailer.SendVerificationEmail(ctx, user.Email, user.Username, s.verificationLink(token))
}

// RequestPasswordReset issues and mails a reset token. Succeeds with no
// observable difference when the email is unknown, so account existence
// can't be probed here
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, token, err := s.creds.GeneratePasswordResetToken(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.logger.Debug("password reset requested for unknown email")
		return nil
	case err != nil:
		s.logger.Error("can't issue reset token", "error", err.Error())
		return nil
	}

	err = s.mailer.SendPasswordResetEmail(ctx, user.Email, user.Username, s.resetLink(token))
	if err != nil {
		s.logger.Error("can't send password reset email", "username", user.Username, "error", err.Error())
	}

	return nil
}

// ResetPassword consumes a mailed reset token, replaces the password
// and revokes every session of the user
func (s *AuthService) ResetPassword(ctx context.Context, token string, newPassword string) error {
	return s.creds.ResetPassword(ctx, token, newPassword)
}

// SocialLogin resolves the OAuth profile to a user and issues a token
// pair. Resolution and token issuance commit atomically
func (s *AuthService) SocialLogin(ctx context.Context, profile models.SocialProfile) (models.TokenPair, error) {
	var pair models.TokenPair

	err := s.storage.InTx(ctx, func(txs repository.Storage) error {
		user, err := s.social.WithStorage(txs).Resolve(ctx, profile)
		if err != nil {
			return err
		}

		pair, err = s.token.WithStorage(txs).GeneratePair(ctx, user)
		if err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrSocialAuth, err)
		}
		return nil
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	return pair, nil
}

// GetProfile returns the user record by id
func (s *AuthService) GetProfile(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

// SetTokenPairToResponse writes the pair the way clients expect it:
// access token in the auth header, refresh token in an http-only cookie
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    pair.Refresh.Value,
		Path:     "/",
		Expires:  pair.Refresh.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetTokenPairToRequest mirrors SetTokenPairToResponse for outgoing
// requests. Used by tests and internal clients
func (s *AuthService) SetTokenPairToRequest(r *http.Request, pair models.TokenPair) {
	r.Header.Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	r.AddCookie(&http.Cookie{
		Name:  s.refreshCookieName,
		Value: pair.Refresh.Value,
	})
}

// GetRefreshString extracts the refresh token from the request cookie
func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return "", fmt.Errorf("refresh cookie not found. Err: %w", err)
	}
	return cookie.Value, nil
}

// GetUserFromRequest authenticates the request by its access token and
// returns the user
func (s *AuthService) GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error) {
	var user models.User

	header := r.Header.Get(s.accessHeaderName)
	access, found := strings.CutPrefix(header, s.accessAuthScheme+" ")
	if !found || access == "" {
		return user, fmt.Errorf("no access token: %w", apperrors.ErrInvalidToken)
	}

	userID, err := s.token.ParseAccess(ctx, access)
	if err != nil {
		return user, fmt.Errorf("%w", apperrors.ErrInvalidToken)
	}

	return s.storage.User().GetUserByID(ctx, userID)
}

func (s *AuthService) verificationLink(token string) string {
	return s.frontendBaseURL + "/verify-email?token=" + token
}

func (s *AuthService) resetLink(token string) string {
	return s.frontendBaseURL + "/reset-password?token=" + token
}
