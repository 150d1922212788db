package middleware

import (
	"context"
	"net/http"

	"github.com/codesprint/codesprint/internal/handlers/render"
	"github.com/codesprint/codesprint/internal/handlers/userctx"
	"github.com/codesprint/codesprint/internal/models"
)

type authService interface {
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}

// AuthMiddleware authenticates the request by its access token and puts
// the user into the request context
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := as.GetUserFromRequest(r.Context(), r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
