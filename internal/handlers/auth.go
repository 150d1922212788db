package handlers

import (
	"errors"
	"net/http"

	"github.com/codesprint/codesprint/internal/apperrors"
	"github.com/codesprint/codesprint/internal/handlers/render"
	"github.com/codesprint/codesprint/internal/logger"
	"github.com/codesprint/codesprint/internal/models"
)

type TokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func pairResponse(pair models.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
	}
}

func handleRegister(as authService, l logger.Logger) http.Handler {
	type RegisterRequest struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[RegisterRequest](w, r)
		if err != nil {
			return
		}

		pair, err := as.Register(r.Context(), data.Username, data.Email, data.Password)
		if err != nil {
			renderAuthError(w, l, err)
			return
		}

		as.SetTokenPairToResponse(w, pair)
		render.JSONWithStatus(w, pairResponse(pair), http.StatusCreated)
	})
}

func handleLogin(as authService, l logger.Logger) http.Handler {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[LoginRequest](w, r)
		if err != nil {
			return
		}

		pair, err := as.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			renderAuthError(w, l, err)
			return
		}

		as.SetTokenPairToResponse(w, pair)
		render.JSON(w, pairResponse(pair))
	})
}

func handleLogout(as authService, l logger.Logger) http.Handler {
	type LogoutSuccessResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := as.GetRefreshString(r)
		if err != nil {
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			return
		}

		if err := as.Logout(r.Context(), refresh); err != nil {
			renderAuthError(w, l, err)
			return
		}

		render.JSON(w, LogoutSuccessResponse{Message: "Logged out"})
	})
}

func handleTokenRefresh(as authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := as.GetRefreshString(r)
		if err != nil {
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			return
		}

		pair, err := as.RefreshPair(r.Context(), refresh)
		if err != nil {
			renderAuthError(w, l, err)
			return
		}

		as.SetTokenPairToResponse(w, pair)
		render.JSON(w, pairResponse(pair))
	})
}

func handleVerifyEmail(as authService, l logger.Logger) http.Handler {
	type VerifyRequest struct {
		Token string `json:"token" validate:"required"`
	}
	type VerifySuccessResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[VerifyRequest](w, r)
		if err != nil {
			return
		}

		if err := as.VerifyEmail(r.Context(), data.Token); err != nil {
			renderAuthError(w, l, err)
			return
		}

		render.JSON(w, VerifySuccessResponse{Message: "Email verified"})
	})
}

func handleResendVerification(as authService, l logger.Logger) http.Handler {
	type ResendRequest struct {
		Email string `json:"email" validate:"required,email"`
	}
	type ResendSuccessResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[ResendRequest](w, r)
		if err != nil {
			return
		}

		if err := as.ResendVerification(r.Context(), data.Email); err != nil {
			renderAuthError(w, l, err)
			return
		}

		render.JSON(w, ResendSuccessResponse{Message: "Verification email sent"})
	})
}

func handleResetRequest(as authService, l logger.Logger) http.Handler {
	type ResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}
	type ResetRequestedResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[ResetRequest](w, r)
		if err != nil {
			return
		}

		if err := as.RequestPasswordReset(r.Context(), data.Email); err != nil {
			renderAuthError(w, l, err)
			return
		}

		// The same response whether the account exists or not
		render.JSON(w, ResetRequestedResponse{Message: "If the account exists, a reset email was sent"})
	})
}

func handleResetConfirm(as authService, l logger.Logger) http.Handler {
	type ResetConfirmRequest struct {
		Token    string `json:"token" validate:"required"`
		Password string `json:"password" validate:"required,min=8"`
	}
	type ResetSuccessResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[ResetConfirmRequest](w, r)
		if err != nil {
			return
		}

		if err := as.ResetPassword(r.Context(), data.Token, data.Password); err != nil {
			renderAuthError(w, l, err)
			return
		}

		render.JSON(w, ResetSuccessResponse{Message: "Password reset"})
	})
}

func handleSocialLogin(as authService, l logger.Logger) http.Handler {
	// Post-handshake profile: the OAuth exchange happens at the gateway,
	// only the verified profile reaches this service
	type SocialLoginRequest struct {
		Provider   string `json:"provider" validate:"required"`
		ProviderID string `json:"providerId" validate:"required"`
		Email      string `json:"email" validate:"required,email"`
		FirstName  string `json:"firstName"`
		LastName   string `json:"lastName"`
		AvatarURL  string `json:"avatarUrl"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[SocialLoginRequest](w, r)
		if err != nil {
			return
		}

		pair, err := as.SocialLogin(r.Context(), models.SocialProfile{
			Provider:   data.Provider,
			ProviderID: data.ProviderID,
			Email:      data.Email,
			FirstName:  data.FirstName,
			LastName:   data.LastName,
			AvatarURL:  data.AvatarURL,
		})
		if err != nil {
			renderAuthError(w, l, err)
			return
		}

		as.SetTokenPairToResponse(w, pair)
		render.JSON(w, pairResponse(pair))
	})
}

// renderAuthError maps service errors to status codes. Only the error
// kind leaks to the client, never the wrapped cause
func renderAuthError(w http.ResponseWriter, l logger.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrEmailAlreadyExists):
		render.FieldError(w, "Registration conflict", "email", "Email already registered", http.StatusConflict)
	case errors.Is(err, apperrors.ErrUsernameAlreadyExists):
		render.FieldError(w, "Registration conflict", "username", "Username already registered", http.StatusConflict)
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrInvalidToken):
		render.ServiceError(w, "Invalid token", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrTokenExpired):
		render.ServiceError(w, "Token expired", http.StatusGone)
	case errors.Is(err, apperrors.ErrTokenNotFound):
		render.ServiceError(w, "Token not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrUserNotFound):
		render.ServiceError(w, "User not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrAlreadyVerified):
		render.ServiceError(w, "Email already verified", http.StatusConflict)
	case errors.Is(err, apperrors.ErrSocialAuth):
		render.ServiceError(w, "Social authentication failed", http.StatusUnauthorized)
	default:
		l.Error("unhandled service error", "error", err.Error())
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
