package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codesprint/codesprint/internal/apperrors"
	"github.com/codesprint/codesprint/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const saveToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (id, user_id, token, created_at, expires_at, revoked)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) error {
	rows, _ := r.DB.Query(ctx, saveToken, token.ID, token.UserID, token.Token, token.CreatedAt, token.ExpiresAt, token.Revoked)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getToken = `-- name: GetRefreshToken
SELECT id, user_id, created_at, expires_at, revoked
FROM refresh_tokens
WHERE token = $1
`

// Get token by the token string itself
// Returns the row even if it is expired or revoked already
func (r *RefreshTokenRepo) Get(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, tokenString)
	token, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		var t = models.RefreshToken{Token: tokenString}
		err := row.Scan(&t.ID, &t.UserID, &t.CreatedAt, &t.ExpiresAt, &t.Revoked)
		return t, err
	})

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const revokeToken = `-- name: RevokeRefreshToken
UPDATE refresh_tokens
SET revoked = true
WHERE token = $1 AND revoked = false
RETURNING id, user_id, created_at, expires_at
`

// Revoke the token if it is still active
// The conditional update lets exactly one of several concurrent callers
// observe the active row: everyone else gets ErrTokenRevoked
func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, revokeToken, tokenString)
	token, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		var t = models.RefreshToken{Token: tokenString, Revoked: true}
		err := row.Scan(&t.ID, &t.UserID, &t.CreatedAt, &t.ExpiresAt)
		return t, err
	})

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Distinguish a missing row from an already revoked one.
		// Callers that must not leak the difference collapse both
		_, getErr := r.Get(ctx, tokenString)
		if getErr == nil {
			return token, fmt.Errorf("repo error: %w", apperrors.ErrTokenRevoked)
		}
		return token, fmt.Errorf("repo error: %w", apperrors.ErrTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const revokeAllForUser = `-- name: RevokeAllRefreshTokensForUser
UPDATE refresh_tokens
SET revoked = true
WHERE user_id = $1 AND revoked = false
`

// Revoke every active token of the user. Revoking none is not an error
func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, revokeAllForUser, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
