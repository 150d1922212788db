package postgres

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesprint/codesprint/internal/apperrors"
	"github.com/codesprint/codesprint/internal/models"
	"github.com/codesprint/codesprint/internal/repository"
	"github.com/codesprint/codesprint/internal/testutil"
)

func Test_RefreshTokenRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withTx := func(dbpool *pgxpool.Pool, t *testing.T, testFunc func(*RefreshTokenRepo, *UserRepo)) {
		testutil.InTx(dbpool, t, func(tx pgx.Tx) {
			testFunc(&RefreshTokenRepo{DB: tx}, &UserRepo{DB: tx})
		})
	}

	createUser := func(t *testing.T, r *UserRepo, username string) models.User {
		t.Helper()
		user, err := r.CreateUser(t.Context(), repository.CreateUserParams{
			Username:     username,
			Email:        username + "@x.com",
			PasswordHash: "hash",
		})
		require.NoError(t, err)
		return user
	}

	newToken := func(userID uuid.UUID, token string) models.RefreshToken {
		now := time.Now().Truncate(time.Second)
		return models.RefreshToken{
			ID:        uuid.New(),
			UserID:    userID,
			Token:     token,
			CreatedAt: now,
			ExpiresAt: now.Add(24 * time.Hour),
		}
	}

	t.Run("save and get", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *RefreshTokenRepo, users *UserRepo) {
			user := createUser(t, users, "saver")

			err := r.Save(t.Context(), newToken(user.ID, "token-1"))
			require.NoError(t, err)

			got, err := r.Get(t.Context(), "token-1")
			require.NoError(t, err)
			assert.Equal(t, user.ID, got.UserID)
			assert.False(t, got.Revoked)
		})
	})

	t.Run("get missing token", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *RefreshTokenRepo, users *UserRepo) {
			_, err := r.Get(t.Context(), "no-such-token")
			assert.ErrorIs(t, err, apperrors.ErrTokenNotFound)
		})
	})

	t.Run("revoke active token once", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *RefreshTokenRepo, users *UserRepo) {
			user := createUser(t, users, "revoker")
			require.NoError(t, r.Save(t.Context(), newToken(user.ID, "token-r")))

			got, err := r.Revoke(t.Context(), "token-r")
			require.NoError(t, err)
			assert.Equal(t, user.ID, got.UserID)
			assert.True(t, got.Revoked)

			// Second revoke must report the token as revoked already
			_, err = r.Revoke(t.Context(), "token-r")
			assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)
		})
	})

	t.Run("revoke missing token", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *RefreshTokenRepo, users *UserRepo) {
			_, err := r.Revoke(t.Context(), "no-such-token")
			assert.ErrorIs(t, err, apperrors.ErrTokenNotFound)
		})
	})

	t.Run("revoke all for user", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *RefreshTokenRepo, users *UserRepo) {
			user := createUser(t, users, "multisession")
			other := createUser(t, users, "bystander")

			require.NoError(t, r.Save(t.Context(), newToken(user.ID, "token-a")))
			require.NoError(t, r.Save(t.Context(), newToken(user.ID, "token-b")))
			require.NoError(t, r.Save(t.Context(), newToken(other.ID, "token-c")))

			err := r.RevokeAllForUser(t.Context(), user.ID)
			require.NoError(t, err)

			for _, token := range []string{"token-a", "token-b"} {
				got, err := r.Get(t.Context(), token)
				require.NoError(t, err)
				assert.True(t, got.Revoked, "token %s should be revoked", token)
			}

			got, err := r.Get(t.Context(), "token-c")
			require.NoError(t, err)
			assert.False(t, got.Revoked, "other user's token must stay active")

			// Revoking again is not an error
			require.NoError(t, r.RevokeAllForUser(t.Context(), user.ID))
		})
	})

	// The race the rotation protocol depends on: of N concurrent
	// revokes of the same token exactly one wins. Runs on the pool, not
	// in a rolled back transaction, to use real connection concurrency
	t.Run("concurrent revoke single winner", func(t *testing.T) {
		users := &UserRepo{DB: pg.Pool}
		tokens := &RefreshTokenRepo{DB: pg.Pool}

		user, err := users.CreateUser(t.Context(), repository.CreateUserParams{
			Username:     "racer",
			Email:        "racer@x.com",
			PasswordHash: "hash",
		})
		require.NoError(t, err)
		require.NoError(t, tokens.Save(t.Context(), newToken(user.ID, "contested")))

		const workers = 8
		var wg sync.WaitGroup
		wins := make(chan struct{}, workers)

		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := tokens.Revoke(t.Context(), "contested"); err == nil {
					wins <- struct{}{}
				}
			}()
		}
		wg.Wait()
		close(wins)

		assert.Equal(t, 1, len(wins), "exactly one concurrent revoke should win")
	})
}
