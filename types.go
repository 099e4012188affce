package auth

import (
	"context"
	"fmt"
	"time"
)

// Logger is the minimal structured logging surface the package needs.
// Arguments after the message are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Credential is what the identity broker hands back after a successful
// exchange: the stable account ID plus a short-lived identity token that
// can be traded for a session token. Profile fields are populated when
// the broker knows them (always for provider sign-ins).
type Credential struct {
	UID         string
	IDToken     string
	Email       string
	DisplayName string
	PhotoURL    string
	ProviderID  string
}

// TokenInfo describes a verified session token.
type TokenInfo struct {
	UID       string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IdentityBroker is the consumed surface of the external identity
// platform. All cryptographic work (password hashing, token signing,
// revocation bookkeeping) happens behind this interface; the auth
// package only sequences the calls.
type IdentityBroker interface {
	// CreateAccount provisions a password account. A duplicate email is
	// a classified conflict error, not a transport failure.
	CreateAccount(ctx context.Context, email, password string) (*Credential, error)

	// VerifyPassword exchanges email+password for an identity token.
	// Failures are classified and final; callers must not retry.
	VerifyPassword(ctx context.Context, email, password string) (*Credential, error)

	// VerifyAssertion exchanges an OAuth provider assertion (an ID token
	// obtained from the provider) for an identity token, creating the
	// account on first sign-in.
	VerifyAssertion(ctx context.Context, providerID, assertion string) (*Credential, error)

	// MintSessionToken trades a valid identity token for a longer-lived
	// session token with the given validity window.
	MintSessionToken(ctx context.Context, idToken string, ttl time.Duration) (string, error)

	// VerifySessionToken checks signature and expiry, and when
	// checkRevoked is set, revocation status as well.
	VerifySessionToken(ctx context.Context, token string, checkRevoked bool) (*TokenInfo, error)

	// RevokeSessions invalidates every outstanding session for uid.
	RevokeSessions(ctx context.Context, uid string) error
}

// Config holds the auth options the package reads at runtime.
type Config interface {
	GetCookieName() string
	GetSessionTTL() time.Duration
	GetSecureCookies() bool
	GetRevokeOnSignOut() bool
	GetReturnToKey() string
	GetReturnToDefault() string
}

// DefaultLogger returns the stdout fallback logger used when no logger
// is configured.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) { d.print("DBG", msg, args) }
func (d defLogger) Info(msg string, args ...any)  { d.print("INF", msg, args) }
func (d defLogger) Warn(msg string, args ...any)  { d.print("WRN", msg, args) }
func (d defLogger) Error(msg string, args ...any) { d.print("ERR", msg, args) }

func (defLogger) print(level, msg string, args []any) {
	line := fmt.Sprintf("[%s] AUTH %s", level, msg)
	for i := 0; i+1 < len(args); i += 2 {
		line += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	fmt.Println(line)
}
