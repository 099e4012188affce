package auth

import (
	"context"
	"strings"
)

// Result is the payload every server action returns across the RPC
// boundary. Failures carry the user-facing message; no error is allowed
// to escape an action unconverted.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Actions orchestrates the sign-up and sign-in flows. Every flow is
// strictly sequential: each step depends on the previous step's result
// and a failure aborts the remainder.
type Actions struct {
	broker          IdentityBroker
	users           Users
	issuer          *SessionIssuer
	resolver        *SessionResolver
	logger          Logger
	revokeOnSignOut bool
}

// NewActions wires the action layer.
func NewActions(broker IdentityBroker, users Users, issuer *SessionIssuer, cfg Config) *Actions {
	a := &Actions{
		broker:   broker,
		users:    users,
		issuer:   issuer,
		resolver: NewSessionResolver(broker, users),
		logger:   defLogger{},
	}
	if cfg != nil {
		a.revokeOnSignOut = cfg.GetRevokeOnSignOut()
	}
	return a
}

func (a *Actions) WithLogger(l Logger) *Actions {
	if l != nil {
		a.logger = l
		a.resolver.WithLogger(l)
	}
	return a
}

// Resolver exposes the session resolver used by this action layer.
func (a *Actions) Resolver() *SessionResolver {
	return a.resolver
}

// SignUp creates the identity account and then the user record.
//
// Known gap carried over from the original flow: if record creation
// fails after the identity account was provisioned, nothing is rolled
// back. The account exists without a record until the next sign-up
// attempt fails at account creation instead, which is how the flow
// recovers.
func (a *Actions) SignUp(ctx context.Context, name, email, password string) Result {
	cred, err := a.broker.CreateAccount(ctx, email, password)
	if err != nil {
		a.logger.Info("sign-up account creation failed", "email", email, "error", err)
		return failure(err)
	}

	if _, err := a.users.CreateRecord(ctx, cred.UID, name, email); err != nil {
		a.logger.Warn("sign-up record creation failed", "uid", cred.UID, "error", err)
		return failure(err)
	}

	return Result{Success: true, Message: "Account created successfully. Please sign in."}
}

// SignIn verifies the password, establishes a session, and stamps the
// record's last login. The session token is returned for the HTTP layer
// to store as a cookie; it is empty whenever the result is a failure.
func (a *Actions) SignIn(ctx context.Context, email, password string) (string, Result) {
	cred, err := a.broker.VerifyPassword(ctx, email, password)
	if err != nil {
		a.logger.Info("sign-in verification failed", "email", email, "error", err)
		return "", failure(err)
	}

	token, err := a.issuer.Establish(ctx, cred.IDToken)
	if err != nil {
		a.logger.Error("sign-in session establish failed", "uid", cred.UID, "error", err)
		return "", failure(err)
	}

	if err := a.users.TouchLastLogin(ctx, cred.UID); err != nil {
		a.logger.Warn("sign-in last login update failed", "uid", cred.UID, "error", err)
		return "", failure(err)
	}

	return token, Result{Success: true}
}

// SignInWithProvider completes an OAuth sign-in: verify the provider
// assertion, ensure the user record, then establish the session. The
// record is written before the session on purpose, so a freshly
// completed provider sign-in can never resolve to "record missing".
func (a *Actions) SignInWithProvider(ctx context.Context, providerID, assertion string) (string, Result) {
	cred, err := a.broker.VerifyAssertion(ctx, providerID, assertion)
	if err != nil {
		a.logger.Info("provider sign-in verification failed", "provider", providerID, "error", err)
		return "", failure(err)
	}

	if _, err := a.users.EnsureRecord(ctx, RecordSeed{
		ID:         cred.UID,
		Name:       cred.DisplayName,
		Email:      cred.Email,
		ProfileURL: cred.PhotoURL,
		Provider:   ProviderNameFromID(providerID),
	}); err != nil {
		a.logger.Error("provider sign-in record ensure failed", "uid", cred.UID, "error", err)
		return "", failure(err)
	}

	token, err := a.issuer.Establish(ctx, cred.IDToken)
	if err != nil {
		a.logger.Error("provider sign-in session establish failed", "uid", cred.UID, "error", err)
		return "", failure(err)
	}

	return token, Result{Success: true}
}

// SignOut is cookie deletion plus, when configured, a best-effort
// revocation of the account's outstanding sessions. Revocation failures
// are logged, never surfaced: the cookie is gone either way.
func (a *Actions) SignOut(ctx context.Context, cookie string) Result {
	if a.revokeOnSignOut && cookie != "" {
		info, err := a.broker.VerifySessionToken(ctx, cookie, false)
		if err == nil {
			if err := a.broker.RevokeSessions(ctx, info.UID); err != nil {
				a.logger.Warn("sign-out revocation failed", "uid", info.UID, "error", err)
			}
		}
	}
	return Result{Success: true}
}

// CurrentUser resolves the session cookie to a user record. A nil user
// with a nil error means unauthenticated; callers should clear the
// cookie when ShouldClearSession(err) reports true.
func (a *Actions) CurrentUser(ctx context.Context, cookie string) (*User, error) {
	return a.resolver.Resolve(ctx, cookie)
}

// IsAuthenticated reports whether the cookie resolves to a user. With
// no cookie present it answers false without any broker call.
func (a *Actions) IsAuthenticated(ctx context.Context, cookie string) bool {
	user, err := a.resolver.Resolve(ctx, cookie)
	return err == nil && user != nil
}

// ProviderNameFromID normalizes an OAuth provider ID such as
// "google.com" into the short name stored on user records.
func ProviderNameFromID(providerID string) string {
	name := strings.TrimSpace(strings.ToLower(providerID))
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if name == "" {
		return ProviderEmail
	}
	return name
}

func failure(err error) Result {
	return Result{Success: false, Message: DisplayMessage(err)}
}
