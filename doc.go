// Package auth implements the authentication slice of the interview
// practice product: credential exchange against an external identity
// broker, session cookie issuance and resolution, and the user record
// store backing the current-user lookup.
//
// The package never implements credential verification, token signing,
// or password hashing itself; those are owned by the configured
// IdentityBroker (see provider/firebase and provider/local). What lives
// here is the session lifecycle: exchanging a short-lived identity
// token for a week-long session token, writing it as an HTTP cookie,
// and turning an incoming cookie back into a User record or an
// unauthenticated outcome.
package auth
