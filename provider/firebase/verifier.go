package firebase

import (
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"

	"github.com/prepwise/auth"
)

// DefaultSessionJWKSURL publishes the keys Google signs session cookies
// with.
const DefaultSessionJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

// SessionVerifier checks session cookies offline against the published
// signing keys. Keys refresh in the background for the lifetime of the
// verifier.
type SessionVerifier struct {
	jwks      *keyfunc.JWKS
	projectID string
	issuer    string
}

// NewSessionVerifier fetches the signing key set and starts its refresh
// loop.
func NewSessionVerifier(projectID, jwksURL string, logger auth.Logger) (*SessionVerifier, error) {
	if jwksURL == "" {
		jwksURL = DefaultSessionJWKSURL
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Error("session key refresh failed", "error", err)
		},
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to fetch session signing keys")
	}

	return &SessionVerifier{
		jwks:      jwks,
		projectID: projectID,
		issuer:    fmt.Sprintf("https://session.firebase.google.com/%s", projectID),
	}, nil
}

// Close stops the background key refresh.
func (v *SessionVerifier) Close() {
	v.jwks.EndBackground()
}

type sessionCookieClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Verify checks signature, issuer, audience, and expiry. It does not
// check revocation; that requires an account lookup.
func (v *SessionVerifier) Verify(token string) (*auth.TokenInfo, error) {
	claims := new(sessionCookieClaims)
	parsed, err := jwt.ParseWithClaims(token, claims, v.jwks.Keyfunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.projectID),
		jwt.WithValidMethods([]string{"RS256"}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, auth.ErrSessionExpired
		}
		return nil, auth.ErrSessionInvalid
	}

	if !parsed.Valid || claims.Subject == "" {
		return nil, auth.ErrSessionInvalid
	}

	info := &auth.TokenInfo{
		UID:   claims.Subject,
		Email: claims.Email,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}

	return info, nil
}
