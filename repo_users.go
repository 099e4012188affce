package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Users is the user record store. Both write operations are single
// conditional statements so concurrent sign-ins for the same identity
// cannot interleave into a half-written record.
type Users interface {
	// EnsureRecord creates the record on first sign-in or refreshes it
	// on subsequent ones: name and last_login_at are always updated,
	// profile_url and provider fall back to the stored value when the
	// incoming one is empty, created_at is never touched.
	EnsureRecord(ctx context.Context, seed RecordSeed) (*User, error)

	// CreateRecord is the password sign-up path. It fails with
	// ErrRecordExists when a record for id is already present, leaving
	// the existing record untouched.
	CreateRecord(ctx context.Context, id, name, email string) (*User, error)

	// TouchLastLogin stamps last_login_at for an existing record.
	TouchLastLogin(ctx context.Context, id string) error

	GetByID(ctx context.Context, id string) (*User, error)

	// Init creates the backing table if needed.
	Init(ctx context.Context) error
}

type users struct {
	db     *bun.DB
	now    func() time.Time
	logger Logger
}

var _ Users = (*users)(nil)

// UsersOption customizes the repository.
type UsersOption func(*users)

// WithUsersClock injects a clock, useful in tests.
func WithUsersClock(clock func() time.Time) UsersOption {
	return func(u *users) {
		if clock != nil {
			u.now = clock
		}
	}
}

// WithUsersLogger sets the repository logger.
func WithUsersLogger(l Logger) UsersOption {
	return func(u *users) {
		if l != nil {
			u.logger = l
		}
	}
}

// NewUsersRepository returns a bun-backed Users store.
func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := &users{
		db:     db,
		now:    time.Now,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (a *users) Init(ctx context.Context) error {
	if _, err := a.db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create users table")
	}
	return nil
}

func (a *users) EnsureRecord(ctx context.Context, seed RecordSeed) (*User, error) {
	now := a.now().UTC().Truncate(time.Second)

	record := &User{
		ID:          seed.ID,
		Name:        seed.Name,
		Email:       seed.Email,
		ProfileURL:  seed.ProfileURL,
		Provider:    seed.Provider,
		CreatedAt:   now,
		LastLoginAt: now,
	}

	// Single conditional write: insert-if-absent, else merge-update.
	// Unqualified columns refer to the stored row, EXCLUDED to the
	// incoming one, on both SQLite and Postgres.
	_, err := a.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("profile_url = CASE WHEN EXCLUDED.profile_url <> '' THEN EXCLUDED.profile_url ELSE profile_url END").
		Set("provider = CASE WHEN provider <> '' THEN provider ELSE EXCLUDED.provider END").
		Set("last_login_at = EXCLUDED.last_login_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to ensure user record").
			WithMetadata(map[string]any{"id": seed.ID})
	}

	return record, nil
}

func (a *users) CreateRecord(ctx context.Context, id, name, email string) (*User, error) {
	now := a.now().UTC().Truncate(time.Second)

	record := &User{
		ID:          id,
		Name:        name,
		Email:       email,
		Provider:    ProviderEmail,
		CreatedAt:   now,
		LastLoginAt: now,
	}

	res, err := a.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create user record").
			WithMetadata(map[string]any{"id": id})
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read insert result")
	}
	if affected == 0 {
		return nil, ErrRecordExists
	}

	return record, nil
}

func (a *users) TouchLastLogin(ctx context.Context, id string) error {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("last_login_at = ?", a.now().UTC().Truncate(time.Second)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update last login").
			WithMetadata(map[string]any{"id": id})
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read update result")
	}
	if affected == 0 {
		return ErrRecordNotFound
	}

	return nil
}

func (a *users) GetByID(ctx context.Context, id string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user record").
			WithMetadata(map[string]any{"id": id})
	}

	return record, nil
}
