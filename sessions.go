package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultSessionTTL is the fixed validity window for minted sessions.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionIssuer exchanges a short-lived identity token for a session
// token with a fixed validity window. It never writes cookies; the HTTP
// layer owns that.
type SessionIssuer struct {
	broker IdentityBroker
	ttl    time.Duration
	logger Logger
}

// NewSessionIssuer returns a SessionIssuer with the configured TTL,
// falling back to DefaultSessionTTL.
func NewSessionIssuer(broker IdentityBroker, cfg Config) *SessionIssuer {
	ttl := DefaultSessionTTL
	if cfg != nil && cfg.GetSessionTTL() > 0 {
		ttl = cfg.GetSessionTTL()
	}

	return &SessionIssuer{
		broker: broker,
		ttl:    ttl,
		logger: defLogger{},
	}
}

func (s *SessionIssuer) WithLogger(l Logger) *SessionIssuer {
	if l != nil {
		s.logger = l
	}
	return s
}

// TTL returns the session validity window.
func (s *SessionIssuer) TTL() time.Duration {
	return s.ttl
}

// Establish mints a session token for a verified identity token. On any
// failure no session exists and the classified error is propagated as
// "failed to establish session".
func (s *SessionIssuer) Establish(ctx context.Context, idToken string) (string, error) {
	if idToken == "" {
		return "", goerrors.New("failed to establish session: missing identity token", goerrors.CategoryAuth).
			WithTextCode(TextCodeSessionInvalid).
			WithCode(goerrors.CodeUnauthorized)
	}

	token, err := s.broker.MintSessionToken(ctx, idToken, s.ttl)
	if err != nil {
		s.logger.Error("session mint failed", "error", err)
		return "", goerrors.Wrap(err, goerrors.CategoryAuth, "failed to establish session").
			WithTextCode(TextCodeOf(err)).
			WithCode(goerrors.CodeUnauthorized)
	}

	return token, nil
}

// SessionResolver turns an incoming session cookie value into the
// current user. It has exactly three terminal outcomes:
//
//   - empty cookie: (nil, nil), no broker call is made;
//   - verified token with a backing record: the User;
//   - failed verification or missing record: a classified error for
//     which ShouldClearSession reports true.
//
// The resolver only reads; it never creates or mutates records, and it
// leaves cookie deletion to the HTTP layer.
type SessionResolver struct {
	broker IdentityBroker
	users  Users
	logger Logger
}

func NewSessionResolver(broker IdentityBroker, users Users) *SessionResolver {
	return &SessionResolver{
		broker: broker,
		users:  users,
		logger: defLogger{},
	}
}

func (r *SessionResolver) WithLogger(l Logger) *SessionResolver {
	if l != nil {
		r.logger = l
	}
	return r
}

// Resolve verifies the cookie value, revocation status included, and
// loads the backing user record.
func (r *SessionResolver) Resolve(ctx context.Context, cookie string) (*User, error) {
	if cookie == "" {
		return nil, nil
	}

	info, err := r.broker.VerifySessionToken(ctx, cookie, true)
	if err != nil {
		r.logger.Debug("session verification failed", "error", err)
		code := TextCodeOf(err)
		if code == "" {
			code = TextCodeSessionInvalid
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "session verification failed").
			WithTextCode(code).
			WithCode(goerrors.CodeUnauthorized)
	}

	user, err := r.users.GetByID(ctx, info.UID)
	if err != nil {
		if goerrors.Is(err, ErrRecordNotFound) {
			r.logger.Warn("valid session without backing record", "uid", info.UID)
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return user, nil
}
