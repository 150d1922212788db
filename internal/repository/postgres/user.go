package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/codesprint/codesprint/internal/apperrors"
	"github.com/codesprint/codesprint/internal/models"
	"github.com/codesprint/codesprint/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, username, email, password_hash, email_verified,
verification_token, verification_expires_at, reset_token, reset_expires_at,
avatar_url, created_at, updated_at`

const createUser = `-- name: CreateUser
INSERT INTO users (username, email, password_hash, email_verified, avatar_url)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, arg repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, arg.Username, arg.Email, arg.PasswordHash, arg.EmailVerified, arg.AvatarURL)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			switch pgErr.ConstraintName {
			case "users_email_key":
				return user, apperrors.ErrEmailAlreadyExists
			case "users_username_key":
				return user, apperrors.ErrUsernameAlreadyExists
			}
		}
		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	return collectUser(rows)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT ` + userColumns + `
FROM users
WHERE email = $1
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmail, email)
	return collectUser(rows)
}

const getUserByUsername = `-- name: GetUserByUsername
SELECT ` + userColumns + `
FROM users
WHERE username = $1
`

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByUsername, username)
	return collectUser(rows)
}

const getUserByVerificationToken = `-- name: GetUserByVerificationToken
SELECT ` + userColumns + `
FROM users
WHERE verification_token = $1
`

func (r *UserRepo) GetUserByVerificationToken(ctx context.Context, token string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByVerificationToken, token)
	return collectUser(rows)
}

const getUserByResetToken = `-- name: GetUserByResetToken
SELECT ` + userColumns + `
FROM users
WHERE reset_token = $1
`

func (r *UserRepo) GetUserByResetToken(ctx context.Context, token string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByResetToken, token)
	return collectUser(rows)
}

const setVerificationToken = `-- name: SetVerificationToken
UPDATE users
SET verification_token = $2, verification_expires_at = $3, updated_at = now()
WHERE id = $1
`

func (r *UserRepo) SetVerificationToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	return r.execOnUser(ctx, setVerificationToken, userID, token, expiresAt)
}

const markEmailVerified = `-- name: MarkEmailVerified
UPDATE users
SET email_verified = true, verification_token = NULL, verification_expires_at = NULL, updated_at = now()
WHERE id = $1
`

func (r *UserRepo) MarkEmailVerified(ctx context.Context, userID uuid.UUID) error {
	return r.execOnUser(ctx, markEmailVerified, userID)
}

const setResetToken = `-- name: SetResetToken
UPDATE users
SET reset_token = $2, reset_expires_at = $3, updated_at = now()
WHERE id = $1
`

func (r *UserRepo) SetResetToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	return r.execOnUser(ctx, setResetToken, userID, token, expiresAt)
}

const updatePassword = `-- name: UpdatePassword
UPDATE users
SET password_hash = $2, reset_token = NULL, reset_expires_at = NULL, updated_at = now()
WHERE id = $1
`

func (r *UserRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	return r.execOnUser(ctx, updatePassword, userID, passwordHash)
}

const updateAvatar = `-- name: UpdateAvatar
UPDATE users
SET avatar_url = $2, updated_at = now()
WHERE id = $1
`

func (r *UserRepo) UpdateAvatar(ctx context.Context, userID uuid.UUID, avatarURL string) error {
	return r.execOnUser(ctx, updateAvatar, userID, avatarURL)
}

// execOnUser runs an update addressed by user id and maps the zero
// rows-affected case to ErrUserNotFound
func (r *UserRepo) execOnUser(ctx context.Context, sql string, args ...any) error {
	tag, err := r.DB.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.EmailVerified,
		&u.VerificationToken, &u.VerificationExpiresAt, &u.ResetToken, &u.ResetExpiresAt,
		&u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}
