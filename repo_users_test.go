package auth_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/prepwise/auth"
)

func setupUsersRepo(t *testing.T, clock func() time.Time) auth.Users {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqldb.Close() })

	db := bun.NewDB(sqldb, sqlitedialect.New())

	opts := []auth.UsersOption{}
	if clock != nil {
		opts = append(opts, auth.WithUsersClock(clock))
	}

	repo := auth.NewUsersRepository(db, opts...)
	require.NoError(t, repo.Init(context.Background()))

	return repo
}

func TestEnsureRecordFirstSignIn(t *testing.T) {
	repo := setupUsersRepo(t, nil)
	ctx := context.Background()

	user, err := repo.EnsureRecord(ctx, auth.RecordSeed{
		ID:         "g123",
		Name:       "Ada Lovelace",
		Email:      "ada@example.com",
		ProfileURL: "https://example.com/ada.png",
		Provider:   auth.ProviderGoogle,
	})
	require.NoError(t, err)
	assert.Equal(t, "g123", user.ID)
	assert.Equal(t, auth.ProviderGoogle, user.Provider)
	assert.False(t, user.CreatedAt.IsZero())
	assert.Equal(t, user.CreatedAt, user.LastLoginAt)
}

func TestEnsureRecordIsIdempotent(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	repo := setupUsersRepo(t, func() time.Time { return current })
	ctx := context.Background()

	first, err := repo.EnsureRecord(ctx, auth.RecordSeed{
		ID:       "g123",
		Name:     "Ada",
		Email:    "ada@example.com",
		Provider: auth.ProviderGoogle,
	})
	require.NoError(t, err)

	current = current.Add(48 * time.Hour)

	second, err := repo.EnsureRecord(ctx, auth.RecordSeed{
		ID:       "g123",
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Provider: auth.ProviderGoogle,
	})
	require.NoError(t, err)

	// Still one record: same ID, refreshed name and last login,
	// original creation time.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ada Lovelace", second.Name)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.LastLoginAt.After(first.LastLoginAt))
}

func TestEnsureRecordKeepsProfileURLWhenIncomingEmpty(t *testing.T) {
	repo := setupUsersRepo(t, nil)
	ctx := context.Background()

	_, err := repo.EnsureRecord(ctx, auth.RecordSeed{
		ID:         "g123",
		Name:       "Ada",
		Email:      "ada@example.com",
		ProfileURL: "https://example.com/ada.png",
		Provider:   auth.ProviderGoogle,
	})
	require.NoError(t, err)

	updated, err := repo.EnsureRecord(ctx, auth.RecordSeed{
		ID:       "g123",
		Name:     "Ada",
		Email:    "ada@example.com",
		Provider: auth.ProviderGoogle,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/ada.png", updated.ProfileURL)
}

func TestEnsureRecordKeepsProviderOnceSet(t *testing.T) {
	repo := setupUsersRepo(t, nil)
	ctx := context.Background()

	_, err := repo.CreateRecord(ctx, "u1", "Ada", "ada@example.com")
	require.NoError(t, err)

	updated, err := repo.EnsureRecord(ctx, auth.RecordSeed{
		ID:       "u1",
		Name:     "Ada",
		Email:    "ada@example.com",
		Provider: auth.ProviderGoogle,
	})
	require.NoError(t, err)
	assert.Equal(t, auth.ProviderEmail, updated.Provider)
}

func TestCreateRecordConflict(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	repo := setupUsersRepo(t, func() time.Time { return current })
	ctx := context.Background()

	first, err := repo.CreateRecord(ctx, "u1", "Ada", "ada@example.com")
	require.NoError(t, err)

	current = current.Add(time.Hour)

	_, err = repo.CreateRecord(ctx, "u1", "Someone Else", "other@example.com")
	require.Error(t, err)
	assert.Equal(t, auth.TextCodeRecordExists, auth.TextCodeOf(err))

	// The losing write must leave the original record untouched.
	stored, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", stored.Name)
	assert.Equal(t, "ada@example.com", stored.Email)
	assert.Equal(t, first.CreatedAt, stored.CreatedAt)
}

func TestCreateRecordAllowsDuplicateEmail(t *testing.T) {
	repo := setupUsersRepo(t, nil)
	ctx := context.Background()

	// Email uniqueness belongs to the identity platform; the record
	// store only keys on id, so two accounts may carry the same email.
	_, err := repo.CreateRecord(ctx, "u1", "Ada", "ada@example.com")
	require.NoError(t, err)

	second, err := repo.CreateRecord(ctx, "u2", "Ada Again", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u2", second.ID)

	stored, err := repo.GetByID(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", stored.Email)
}

func TestTouchLastLogin(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	repo := setupUsersRepo(t, func() time.Time { return current })
	ctx := context.Background()

	created, err := repo.CreateRecord(ctx, "u1", "Ada", "ada@example.com")
	require.NoError(t, err)

	current = current.Add(time.Hour)
	require.NoError(t, repo.TouchLastLogin(ctx, "u1"))

	stored, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, stored.LastLoginAt.After(created.LastLoginAt))
	assert.Equal(t, created.CreatedAt, stored.CreatedAt)
}

func TestTouchLastLoginMissingRecord(t *testing.T) {
	repo := setupUsersRepo(t, nil)

	err := repo.TouchLastLogin(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, auth.TextCodeRecordNotFound, auth.TextCodeOf(err))
}

func TestGetByIDMissingRecord(t *testing.T) {
	repo := setupUsersRepo(t, nil)

	_, err := repo.GetByID(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, auth.TextCodeRecordNotFound, auth.TextCodeOf(err))
}
