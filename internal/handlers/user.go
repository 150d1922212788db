package handlers

import (
	"net/http"

	"github.com/codesprint/codesprint/internal/handlers/render"
	"github.com/codesprint/codesprint/internal/handlers/userctx"
)

func handleUserMe() http.Handler {
	type MeResponse struct {
		ID            string  `json:"id"`
		Username      string  `json:"username"`
		Email         string  `json:"email"`
		EmailVerified bool    `json:"emailVerified"`
		AvatarURL     *string `json:"avatarUrl,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		render.JSON(w, MeResponse{
			ID:            user.ID.String(),
			Username:      user.Username,
			Email:         user.Email,
			EmailVerified: user.EmailVerified,
			AvatarURL:     user.AvatarURL,
		})
	})
}
