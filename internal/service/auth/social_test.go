package auth

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesprint/codesprint/internal/apperrors"
	"github.com/codesprint/codesprint/internal/models"
	"github.com/codesprint/codesprint/internal/repository"
	"github.com/codesprint/codesprint/internal/repository/postgres"
	"github.com/codesprint/codesprint/internal/testutil"
)

func Test_SocialResolver(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withTx := func(dbpool *pgxpool.Pool, t *testing.T, fn func(r *SocialResolver, s repository.Storage)) {
		testutil.InTx(dbpool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			fn(NewSocialResolver(BcryptHasher{}, storage), storage)
		})
	}

	profile := func(provider string, providerID string, email string) models.SocialProfile {
		return models.SocialProfile{
			Provider:   provider,
			ProviderID: providerID,
			Email:      email,
			FirstName:  "Ada",
			LastName:   "Lovelace",
		}
	}

	t.Run("creates an account for an unknown profile", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *SocialResolver, s repository.Storage) {
			user, err := r.Resolve(t.Context(), profile("google", "sub-1", "ada@x.com"))
			require.NoError(t, err)

			assert.Equal(t, "adalovelace", user.Username)
			assert.Equal(t, "ada@x.com", user.Email)
			assert.True(t, user.EmailVerified, "provider verified the mailbox")
			assert.NotEmpty(t, user.PasswordHash, "account still carries a password hash")

			conn, err := s.Social().GetConnection(t.Context(), "google", "sub-1")
			require.NoError(t, err)
			assert.Equal(t, user.ID, conn.UserID)
		})
	})

	t.Run("resolving the same profile twice is idempotent", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *SocialResolver, s repository.Storage) {
			first, err := r.Resolve(t.Context(), profile("google", "sub-2", "repeat@x.com"))
			require.NoError(t, err)

			second, err := r.Resolve(t.Context(), profile("google", "sub-2", "repeat@x.com"))
			require.NoError(t, err)

			assert.Equal(t, first.ID, second.ID, "same provider identity must map to the same user")
		})
	})

	t.Run("links to an existing account by email", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *SocialResolver, s repository.Storage) {
			existing, err := s.User().CreateUser(t.Context(), repository.CreateUserParams{
				Username:     "veteran",
				Email:        "veteran@x.com",
				PasswordHash: "hash",
			})
			require.NoError(t, err)

			resolved, err := r.Resolve(t.Context(), profile("github", "sub-3", "veteran@x.com"))
			require.NoError(t, err)
			assert.Equal(t, existing.ID, resolved.ID, "must link, not create a duplicate")

			conn, err := s.Social().GetConnection(t.Context(), "github", "sub-3")
			require.NoError(t, err)
			assert.Equal(t, existing.ID, conn.UserID)
		})
	})

	t.Run("backfills the avatar when linking", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *SocialResolver, s repository.Storage) {
			_, err := s.User().CreateUser(t.Context(), repository.CreateUserParams{
				Username:     "faceless",
				Email:        "faceless@x.com",
				PasswordHash: "hash",
			})
			require.NoError(t, err)

			p := profile("google", "sub-4", "faceless@x.com")
			p.AvatarURL = "https://cdn.x.com/face.png"

			resolved, err := r.Resolve(t.Context(), p)
			require.NoError(t, err)
			require.NotNil(t, resolved.AvatarURL)
			assert.Equal(t, "https://cdn.x.com/face.png", *resolved.AvatarURL)
		})
	})

	t.Run("keeps an existing avatar", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *SocialResolver, s repository.Storage) {
			avatar := "https://cdn.x.com/original.png"
			user, err := s.User().CreateUser(t.Context(), repository.CreateUserParams{
				Username:     "pictured",
				Email:        "pictured@x.com",
				PasswordHash: "hash",
				AvatarURL:    &avatar,
			})
			require.NoError(t, err)

			p := profile("google", "sub-5", "pictured@x.com")
			p.AvatarURL = "https://cdn.x.com/other.png"

			_, err = r.Resolve(t.Context(), p)
			require.NoError(t, err)

			got, err := s.User().GetUserByID(t.Context(), user.ID)
			require.NoError(t, err)
			require.NotNil(t, got.AvatarURL)
			assert.Equal(t, avatar, *got.AvatarURL, "existing avatar must not be overwritten")
		})
	})

	t.Run("profile email drift does not detach the connection", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *SocialResolver, s repository.Storage) {
			first, err := r.Resolve(t.Context(), profile("google", "sub-6", "before@x.com"))
			require.NoError(t, err)

			// Same provider identity, email changed at the provider
			second, err := r.Resolve(t.Context(), profile("google", "sub-6", "after@x.com"))
			require.NoError(t, err)

			assert.Equal(t, first.ID, second.ID, "connection wins over email")
			assert.Equal(t, "before@x.com", second.Email, "local email stays as registered")
		})
	})

	t.Run("username collision gets a suffix", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *SocialResolver, s repository.Storage) {
			_, err := s.User().CreateUser(t.Context(), repository.CreateUserParams{
				Username:     "adalovelace",
				Email:        "squatter@x.com",
				PasswordHash: "hash",
			})
			require.NoError(t, err)

			user, err := r.Resolve(t.Context(), profile("github", "sub-7", "newada@x.com"))
			require.NoError(t, err)

			assert.NotEqual(t, "adalovelace", user.Username)
			assert.Contains(t, user.Username, "adalovelace", "suffix is appended to the base")
		})
	})

	t.Run("rejects incomplete profiles", func(t *testing.T) {
		withTx(pg.Pool, t, func(r *SocialResolver, s repository.Storage) {
			_, err := r.Resolve(t.Context(), models.SocialProfile{Provider: "google", ProviderID: "sub-8"})
			assert.ErrorIs(t, err, apperrors.ErrSocialAuth, "no email")

			_, err = r.Resolve(t.Context(), models.SocialProfile{Email: "only@x.com"})
			assert.ErrorIs(t, err, apperrors.ErrSocialAuth, "no provider identity")
		})
	})

	t.Run("synthesize username", func(t *testing.T) {
		tests := []struct {
			name    string
			profile models.SocialProfile
			want    string
		}{
			{"from name parts", models.SocialProfile{FirstName: "Grace", LastName: "Hopper", Email: "g@x.com"}, "gracehopper"},
			{"from email local part", models.SocialProfile{Email: "plain.user+tag@x.com"}, "plainusertag"},
			{"strips non alphanumerics", models.SocialProfile{FirstName: "Jean-Luc", LastName: "O'Neil", Email: "j@x.com"}, "jeanluconeil"},
			{"falls back when nothing is usable", models.SocialProfile{Email: "---@x.com"}, "runner"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.want, synthesizeUsername(tt.profile))
			})
		}
	})
}
