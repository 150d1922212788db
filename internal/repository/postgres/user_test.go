package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesprint/codesprint/internal/apperrors"
	"github.com/codesprint/codesprint/internal/repository"
	"github.com/codesprint/codesprint/internal/testutil"
)

func Test_UserRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Helper to run tests with its own UserRepo in a transaction
	// Rollback when the test ends
	withTx := func(dbpool *pgxpool.Pool, t *testing.T, testFunc func(*UserRepo)) {
		testutil.InTx(dbpool, t, func(tx pgx.Tx) {
			testFunc(&UserRepo{DB: tx})
		})
	}

	newUserParams := func(username string, email string) repository.CreateUserParams {
		return repository.CreateUserParams{
			Username:     username,
			Email:        email,
			PasswordHash: "hashedpassword123",
		}
	}

	t.Run("create user ok", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *UserRepo) {
			user, err := r.CreateUser(t.Context(), newUserParams("testuser", "testuser@x.com"))

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, user.ID, "ID should be generated")
			assert.Equal(t, "testuser", user.Username)
			assert.Equal(t, "testuser@x.com", user.Email)
			assert.Equal(t, "hashedpassword123", user.PasswordHash)
			assert.False(t, user.EmailVerified, "fresh accounts start unverified")
			assert.Nil(t, user.VerificationToken)
			assert.Nil(t, user.ResetToken)
			assert.WithinDuration(t, time.Now(), user.CreatedAt, time.Second, "CreatedAt should be recent")
		})
	})

	t.Run("create user duplicate email fails", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *UserRepo) {
			_, err := r.CreateUser(t.Context(), newUserParams("first", "same@x.com"))
			require.NoError(t, err)

			_, err = r.CreateUser(t.Context(), newUserParams("second", "same@x.com"))

			assert.Error(t, err, "Should fail on duplicate email")
			assert.ErrorIs(t, err, apperrors.ErrEmailAlreadyExists, "must name the colliding field")
		})
	})

	t.Run("create user duplicate username fails", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *UserRepo) {
			_, err := r.CreateUser(t.Context(), newUserParams("duplicate", "one@x.com"))
			require.NoError(t, err)

			_, err = r.CreateUser(t.Context(), newUserParams("duplicate", "two@x.com"))

			assert.Error(t, err, "Should fail on duplicate username")
			assert.ErrorIs(t, err, apperrors.ErrUsernameAlreadyExists, "must name the colliding field")
		})
	})

	t.Run("get user by id, email, username", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *UserRepo) {
			created, err := r.CreateUser(t.Context(), newUserParams("findme", "findme@x.com"))
			require.NoError(t, err)

			byID, err := r.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			assert.Equal(t, created.ID, byID.ID)

			byEmail, err := r.GetUserByEmail(t.Context(), "findme@x.com")
			require.NoError(t, err)
			assert.Equal(t, created.ID, byEmail.ID)

			byUsername, err := r.GetUserByUsername(t.Context(), "findme")
			require.NoError(t, err)
			assert.Equal(t, created.ID, byUsername.ID)
		})
	})

	t.Run("get user not found", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *UserRepo) {
			_, err := r.GetUserByID(t.Context(), uuid.New())
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

			_, err = r.GetUserByEmail(t.Context(), "ghost@nowhere.com")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("verification token roundtrip", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *UserRepo) {
			created, err := r.CreateUser(t.Context(), newUserParams("verifyme", "verifyme@x.com"))
			require.NoError(t, err)

			expiresAt := time.Now().Add(24 * time.Hour)
			err = r.SetVerificationToken(t.Context(), created.ID, "sometoken", expiresAt)
			require.NoError(t, err)

			got, err := r.GetUserByVerificationToken(t.Context(), "sometoken")
			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
			require.NotNil(t, got.VerificationExpiresAt)
			assert.WithinDuration(t, expiresAt, *got.VerificationExpiresAt, time.Second)

			err = r.MarkEmailVerified(t.Context(), created.ID)
			require.NoError(t, err)

			verified, err := r.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			assert.True(t, verified.EmailVerified)
			assert.Nil(t, verified.VerificationToken, "token should be cleared")
			assert.Nil(t, verified.VerificationExpiresAt, "expiry should be cleared")

			_, err = r.GetUserByVerificationToken(t.Context(), "sometoken")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "consumed token should not resolve")
		})
	})

	t.Run("new verification token overwrites the old one", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *UserRepo) {
			created, err := r.CreateUser(t.Context(), newUserParams("reissue", "reissue@x.com"))
			require.NoError(t, err)

			require.NoError(t, r.SetVerificationToken(t.Context(), created.ID, "old", time.Now().Add(time.Hour)))
			require.NoError(t, r.SetVerificationToken(t.Context(), created.ID, "new", time.Now().Add(time.Hour)))

			_, err = r.GetUserByVerificationToken(t.Context(), "old")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "overwritten token should not resolve")

			got, err := r.GetUserByVerificationToken(t.Context(), "new")
			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
		})
	})

	t.Run("update password clears reset token", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *UserRepo) {
			created, err := r.CreateUser(t.Context(), newUserParams("resetme", "resetme@x.com"))
			require.NoError(t, err)

			err = r.SetResetToken(t.Context(), created.ID, "resettoken", time.Now().Add(time.Hour))
			require.NoError(t, err)

			err = r.UpdatePassword(t.Context(), created.ID, "newhash")
			require.NoError(t, err)

			got, err := r.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			assert.Equal(t, "newhash", got.PasswordHash)
			assert.Nil(t, got.ResetToken, "reset token should be cleared")
			assert.Nil(t, got.ResetExpiresAt, "reset expiry should be cleared")
		})
	})

	t.Run("update on missing user fails", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *UserRepo) {
			err := r.UpdatePassword(t.Context(), uuid.New(), "hash")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("update avatar", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *UserRepo) {
			created, err := r.CreateUser(t.Context(), newUserParams("avatar", "avatar@x.com"))
			require.NoError(t, err)

			err = r.UpdateAvatar(t.Context(), created.ID, "https://cdn.x.com/a.png")
			require.NoError(t, err)

			got, err := r.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.NotNil(t, got.AvatarURL)
			assert.Equal(t, "https://cdn.x.com/a.png", *got.AvatarURL)
		})
	})
}
