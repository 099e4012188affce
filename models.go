package auth

import (
	"time"

	"github.com/uptrace/bun"
)

// Provider names recorded on a user record. The value is set once at
// creation and only filled in later if it is somehow missing.
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// User is the product's own profile record, distinct from the identity
// broker's account and linked to it through the shared ID. The ID never
// changes after creation and records are never deleted by this code.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID          string    `bun:"id,pk" json:"id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Email       string    `bun:"email,notnull" json:"email"`
	ProfileURL  string    `bun:"profile_url" json:"profile_url,omitempty"`
	Provider    string    `bun:"provider,notnull" json:"provider"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	LastLoginAt time.Time `bun:"last_login_at,notnull" json:"last_login_at"`
}

// RecordSeed carries the profile attributes used to create or refresh a
// user record during a sign-in.
type RecordSeed struct {
	ID         string
	Name       string
	Email      string
	ProfileURL string
	Provider   string
}
