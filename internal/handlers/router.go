package handlers

import (
	"context"
	"net/http"

	"github.com/codesprint/codesprint/internal/handlers/middleware"
	"github.com/codesprint/codesprint/internal/logger"
	"github.com/codesprint/codesprint/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(as authService, l logger.Logger) http.Handler {
	authMiddleware := middleware.AuthMiddleware(as)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	apiauth := http.NewServeMux()
	apiauth.Handle("POST /register", handleRegister(as, l))
	apiauth.Handle("POST /login", handleLogin(as, l))
	apiauth.Handle("POST /logout", handleLogout(as, l))
	apiauth.Handle("POST /refresh", handleTokenRefresh(as, l))
	apiauth.Handle("POST /verify-email", handleVerifyEmail(as, l))
	apiauth.Handle("POST /resend-verification", handleResendVerification(as, l))
	apiauth.Handle("POST /password-reset/request", handleResetRequest(as, l))
	apiauth.Handle("POST /password-reset/confirm", handleResetConfirm(as, l))
	apiauth.Handle("POST /social", handleSocialLogin(as, l))

	apiuser := http.NewServeMux()
	apiuser.Handle("GET /me", withAuth(handleUserMe()))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("/api/user/", http.StripPrefix("/api/user", apiuser))

	return chain(root,
		middleware.LoggerMiddleware(l),
	)
}

// The router declares the service surface it consumes; the auth package
// provides a superset of it
type authService interface {
	Register(ctx context.Context, username string, email string, password string) (models.TokenPair, error)
	Login(ctx context.Context, email string, password string) (models.TokenPair, error)
	Logout(ctx context.Context, refresh string) error
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token string, newPassword string) error

	SocialLogin(ctx context.Context, profile models.SocialProfile) (models.TokenPair, error)

	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)
	GetRefreshString(r *http.Request) (string, error)
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}
