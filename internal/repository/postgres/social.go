package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/codesprint/codesprint/internal/apperrors"
	"github.com/codesprint/codesprint/internal/models"
	"github.com/codesprint/codesprint/internal/repository"
)

type SocialRepo struct {
	DB DBTX
}

const createConnection = `-- name: CreateSocialConnection
INSERT INTO social_connections (id, user_id, provider, provider_id)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, provider, provider_id, created_at
`

func (r *SocialRepo) CreateConnection(ctx context.Context, arg repository.CreateConnectionParams) (models.SocialConnection, error) {
	rows, _ := r.DB.Query(ctx, createConnection, uuid.New(), arg.UserID, arg.Provider, arg.ProviderID)
	conn, err := pgx.CollectOneRow(rows, rowToConnection)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			return conn, apperrors.ErrSocialConnectionExists
		}
		return conn, fmt.Errorf("db error: %w", err)
	}

	return conn, nil
}

const getConnection = `-- name: GetSocialConnection
SELECT id, user_id, provider, provider_id, created_at
FROM social_connections
WHERE provider = $1 AND provider_id = $2
`

func (r *SocialRepo) GetConnection(ctx context.Context, provider string, providerID string) (models.SocialConnection, error) {
	rows, _ := r.DB.Query(ctx, getConnection, provider, providerID)
	return collectConnection(rows)
}

const getUserConnection = `-- name: GetUserSocialConnection
SELECT id, user_id, provider, provider_id, created_at
FROM social_connections
WHERE user_id = $1 AND provider = $2
`

func (r *SocialRepo) GetUserConnection(ctx context.Context, userID uuid.UUID, provider string) (models.SocialConnection, error) {
	rows, _ := r.DB.Query(ctx, getUserConnection, userID, provider)
	return collectConnection(rows)
}

func collectConnection(rows pgx.Rows) (models.SocialConnection, error) {
	conn, err := pgx.CollectOneRow(rows, rowToConnection)

	switch {
	case err == nil:
		return conn, nil
	case errors.Is(err, pgx.ErrNoRows):
		return conn, apperrors.ErrConnectionNotFound
	default:
		return conn, fmt.Errorf("db error: %w", err)
	}
}

func rowToConnection(row pgx.CollectableRow) (models.SocialConnection, error) {
	var c models.SocialConnection
	err := row.Scan(&c.ID, &c.UserID, &c.Provider, &c.ProviderID, &c.CreatedAt)
	return c, err
}
