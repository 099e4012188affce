package auth

import "time"

// EnvConfig is the environment-driven configuration used by the server
// binary. It satisfies Config; the extra fields are wiring concerns the
// auth package itself never reads.
type EnvConfig struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	// Environment toggles the secure cookie attribute; anything other
	// than "production" leaves it off so local HTTP works.
	Environment string `env:"APP_ENV" envDefault:"development"`

	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"file:prepwise.db?cache=shared&_pragma=foreign_keys(1)"`

	CookieName      string        `env:"SESSION_COOKIE_NAME" envDefault:"session"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	RevokeOnSignOut bool          `env:"SESSION_REVOKE_ON_SIGNOUT"`
	ReturnToKey     string        `env:"RETURN_TO_COOKIE" envDefault:"return_to"`
	ReturnToDefault string        `env:"RETURN_TO_DEFAULT" envDefault:"/"`

	// Broker selects the identity platform implementation.
	Broker string `env:"AUTH_BROKER" envDefault:"local"`

	// Local broker settings.
	SigningKey string `env:"AUTH_SIGNING_KEY" envDefault:"development-signing-key"`

	// Firebase broker settings.
	FirebaseAPIKey    string `env:"FIREBASE_API_KEY"`
	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`

	// Google OAuth settings for the server-side redirect flow.
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL"`

	// OAuth state keys; 32 bytes each once decoded.
	StateEncryptionKey string `env:"OAUTH_STATE_KEY"`
	StateHMACKey       string `env:"OAUTH_STATE_HMAC_KEY"`
}

var _ Config = (*EnvConfig)(nil)

func (c *EnvConfig) GetCookieName() string {
	if c.CookieName == "" {
		return "session"
	}
	return c.CookieName
}

func (c *EnvConfig) GetSessionTTL() time.Duration {
	if c.SessionTTL <= 0 {
		return DefaultSessionTTL
	}
	return c.SessionTTL
}

func (c *EnvConfig) GetSecureCookies() bool {
	return c.Environment == "production"
}

func (c *EnvConfig) GetRevokeOnSignOut() bool {
	return c.RevokeOnSignOut
}

func (c *EnvConfig) GetReturnToKey() string {
	if c.ReturnToKey == "" {
		return "return_to"
	}
	return c.ReturnToKey
}

func (c *EnvConfig) GetReturnToDefault() string {
	if c.ReturnToDefault == "" {
		return "/"
	}
	return c.ReturnToDefault
}
