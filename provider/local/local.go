// Package local implements the identity broker against a local
// database. It exists for development and tests: accounts live in a bun
// table, identity and session tokens are HS256 JWTs signed with a
// configured key, and revocation is a per-account validity watermark.
package local

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/prepwise/auth"
)

const (
	tokenKindID      = "id"
	tokenKindSession = "session"

	// DefaultIDTokenTTL bounds the window between a credential exchange
	// and the session mint that consumes it.
	DefaultIDTokenTTL = 5 * time.Minute

	minPasswordLength = 6
)

// Account is a locally provisioned identity. Password accounts use
// provider "password" with the email as subject; OAuth accounts use the
// provider ID and the provider-issued subject.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID           string    `bun:"id,pk"`
	Provider     string    `bun:"provider,notnull"`
	Subject      string    `bun:"subject,notnull"`
	Email        string    `bun:"email,notnull"`
	DisplayName  string    `bun:"display_name"`
	PhotoURL     string    `bun:"photo_url"`
	PasswordHash string    `bun:"password_hash"`
	ValidSince   time.Time `bun:"valid_since,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

// Broker is the local IdentityBroker implementation.
type Broker struct {
	db         *bun.DB
	signingKey []byte
	idTTL      time.Duration
	now        func() time.Time
	logger     auth.Logger
}

// Option configures the broker.
type Option func(*Broker)

// WithLogger sets the broker logger.
func WithLogger(l auth.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDTokenTTL overrides the identity token validity window.
func WithIDTokenTTL(ttl time.Duration) Option {
	return func(b *Broker) {
		if ttl > 0 {
			b.idTTL = ttl
		}
	}
}

// New builds a local broker. The signing key is required; everything
// minted and verified by this broker is signed with it.
func New(db *bun.DB, signingKey []byte, opts ...Option) (*Broker, error) {
	if len(signingKey) == 0 {
		return nil, goerrors.New("local broker requires a signing key", goerrors.CategoryValidation)
	}

	b := &Broker{
		db:         db,
		signingKey: signingKey,
		idTTL:      DefaultIDTokenTTL,
		now:        time.Now,
		logger:     auth.DefaultLogger(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Init creates the accounts table and its provider/subject uniqueness
// index.
func (b *Broker) Init(ctx context.Context) error {
	if _, err := b.db.NewCreateTable().
		Model((*Account)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create accounts table")
	}

	if _, err := b.db.NewCreateIndex().
		Model((*Account)(nil)).
		Index("accounts_provider_subject_idx").
		Unique().
		IfNotExists().
		Column("provider", "subject").
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create accounts index")
	}

	return nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Kind  string `json:"kind"`
	Email string `json:"email,omitempty"`
}

// CreateAccount provisions a password account and returns a credential
// carrying a fresh identity token.
func (b *Broker) CreateAccount(ctx context.Context, email, password string) (*auth.Credential, error) {
	if len(password) < minPasswordLength {
		return nil, goerrors.New("password below minimum length", goerrors.CategoryValidation).
			WithTextCode(auth.TextCodeWeakPassword).
			WithCode(goerrors.CodeBadRequest)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	now := b.now().UTC().Truncate(time.Second)
	acc := &Account{
		ID:           uuid.New().String(),
		Provider:     auth.ProviderEmail,
		Subject:      email,
		Email:        email,
		PasswordHash: hash,
		ValidSince:   now,
		CreatedAt:    now,
	}

	res, err := b.db.NewInsert().
		Model(acc).
		On("CONFLICT (provider, subject) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to store account")
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, auth.ErrAccountExists
	}

	return b.credential(acc)
}

// VerifyPassword exchanges email+password for an identity token.
func (b *Broker) VerifyPassword(ctx context.Context, email, password string) (*auth.Credential, error) {
	acc := new(Account)
	err := b.db.NewSelect().
		Model(acc).
		Where("?TableAlias.provider = ?", auth.ProviderEmail).
		Where("?TableAlias.subject = ?", email).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerrors.New("no password account for email", goerrors.CategoryAuth).
				WithTextCode(auth.TextCodeEmailNotFound).
				WithCode(goerrors.CodeUnauthorized)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load account")
	}

	if !ComparePasswordAndHash(password, acc.PasswordHash) {
		return nil, auth.ErrInvalidCredentials
	}

	return b.credential(acc)
}

// VerifyAssertion accepts a provider-issued ID token, provisioning the
// account on first sign-in. The local broker trusts the assertion
// without signature verification; it only runs in development.
func (b *Broker) VerifyAssertion(ctx context.Context, providerID, assertion string) (*auth.Credential, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(assertion, claims); err != nil {
		return nil, auth.ErrInvalidCredentials
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return nil, auth.ErrInvalidCredentials
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)

	now := b.now().UTC().Truncate(time.Second)
	acc := &Account{
		ID:          uuid.New().String(),
		Provider:    providerID,
		Subject:     subject,
		Email:       email,
		DisplayName: name,
		PhotoURL:    picture,
		ValidSince:  now,
		CreatedAt:   now,
	}

	// First sign-in inserts; later sign-ins keep the stored ID and
	// watermark while refreshing the profile.
	_, err := b.db.NewInsert().
		Model(acc).
		On("CONFLICT (provider, subject) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("display_name = EXCLUDED.display_name").
		Set("photo_url = EXCLUDED.photo_url").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to store account")
	}

	return b.credential(acc)
}

// MintSessionToken verifies the identity token and mints a session
// token with the requested validity window.
func (b *Broker) MintSessionToken(ctx context.Context, idToken string, ttl time.Duration) (string, error) {
	claims, err := b.parse(idToken, tokenKindID)
	if err != nil {
		return "", err
	}

	return b.sign(claims.Subject, claims.Email, tokenKindSession, ttl)
}

// VerifySessionToken checks signature, shape, and expiry, and when
// checkRevoked is set, the account's revocation watermark.
func (b *Broker) VerifySessionToken(ctx context.Context, token string, checkRevoked bool) (*auth.TokenInfo, error) {
	claims, err := b.parse(token, tokenKindSession)
	if err != nil {
		return nil, err
	}

	info := &auth.TokenInfo{
		UID:       claims.Subject,
		Email:     claims.Email,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	if !checkRevoked {
		return info, nil
	}

	acc := new(Account)
	err = b.db.NewSelect().
		Model(acc).
		Where("?TableAlias.id = ?", info.UID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrSessionInvalid
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load account")
	}

	if info.IssuedAt.Before(acc.ValidSince) {
		return nil, auth.ErrSessionRevoked
	}

	return info, nil
}

// RevokeSessions moves the account's validity watermark to now, which
// invalidates every session token issued before this call.
func (b *Broker) RevokeSessions(ctx context.Context, uid string) error {
	res, err := b.db.NewUpdate().
		Model((*Account)(nil)).
		Set("valid_since = ?", b.now().UTC().Truncate(time.Second)).
		Where("?TableAlias.id = ?", uid).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to revoke sessions")
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		b.logger.Warn("revoke for unknown account", "uid", uid)
	}

	return nil
}

func (b *Broker) credential(acc *Account) (*auth.Credential, error) {
	idToken, err := b.sign(acc.ID, acc.Email, tokenKindID, b.idTTL)
	if err != nil {
		return nil, err
	}

	return &auth.Credential{
		UID:         acc.ID,
		IDToken:     idToken,
		Email:       acc.Email,
		DisplayName: acc.DisplayName,
		PhotoURL:    acc.PhotoURL,
		ProviderID:  acc.Provider,
	}, nil
}

func (b *Broker) sign(uid, email, kind string, ttl time.Duration) (string, error) {
	now := b.now().UTC().Truncate(time.Second)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind:  kind,
		Email: email,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	return token, nil
}

func (b *Broker) parse(token, kind string) (*sessionClaims, error) {
	claims := new(sessionClaims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, goerrors.New("unexpected signing method", goerrors.CategoryAuth)
		}
		return b.signingKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return b.now().UTC() }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, auth.ErrSessionExpired
		}
		return nil, auth.ErrSessionInvalid
	}

	if !parsed.Valid || claims.Kind != kind || claims.Subject == "" {
		return nil, auth.ErrSessionInvalid
	}

	return claims, nil
}
