package auth_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/prepwise/auth"
)

// MockIdentityBroker implements auth.IdentityBroker
type MockIdentityBroker struct {
	mock.Mock
}

func (m *MockIdentityBroker) CreateAccount(ctx context.Context, email, password string) (*auth.Credential, error) {
	args := m.Called(ctx, email, password)
	cred, _ := args.Get(0).(*auth.Credential)
	return cred, args.Error(1)
}

func (m *MockIdentityBroker) VerifyPassword(ctx context.Context, email, password string) (*auth.Credential, error) {
	args := m.Called(ctx, email, password)
	cred, _ := args.Get(0).(*auth.Credential)
	return cred, args.Error(1)
}

func (m *MockIdentityBroker) VerifyAssertion(ctx context.Context, providerID, assertion string) (*auth.Credential, error) {
	args := m.Called(ctx, providerID, assertion)
	cred, _ := args.Get(0).(*auth.Credential)
	return cred, args.Error(1)
}

func (m *MockIdentityBroker) MintSessionToken(ctx context.Context, idToken string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, idToken, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockIdentityBroker) VerifySessionToken(ctx context.Context, token string, checkRevoked bool) (*auth.TokenInfo, error) {
	args := m.Called(ctx, token, checkRevoked)
	info, _ := args.Get(0).(*auth.TokenInfo)
	return info, args.Error(1)
}

func (m *MockIdentityBroker) RevokeSessions(ctx context.Context, uid string) error {
	args := m.Called(ctx, uid)
	return args.Error(0)
}

// MockUsers implements auth.Users
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) EnsureRecord(ctx context.Context, seed auth.RecordSeed) (*auth.User, error) {
	args := m.Called(ctx, seed)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUsers) CreateRecord(ctx context.Context, id, name, email string) (*auth.User, error) {
	args := m.Called(ctx, id, name, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUsers) TouchLastLogin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUsers) GetByID(ctx context.Context, id string) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUsers) Init(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// testConfig implements auth.Config with fixed values.
type testConfig struct {
	cookieName      string
	ttl             time.Duration
	secure          bool
	revokeOnSignOut bool
}

func (c testConfig) GetCookieName() string {
	if c.cookieName == "" {
		return "session"
	}
	return c.cookieName
}

func (c testConfig) GetSessionTTL() time.Duration {
	if c.ttl == 0 {
		return auth.DefaultSessionTTL
	}
	return c.ttl
}

func (c testConfig) GetSecureCookies() bool     { return c.secure }
func (c testConfig) GetRevokeOnSignOut() bool   { return c.revokeOnSignOut }
func (c testConfig) GetReturnToKey() string     { return "return_to" }
func (c testConfig) GetReturnToDefault() string { return "/" }
