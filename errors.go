package auth

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried by classified errors. Brokers use the same codes
// the hosted identity platform emits so the display mapping stays a
// single closed table.
const (
	TextCodeEmailExists        = "EMAIL_EXISTS"
	TextCodeEmailNotFound      = "EMAIL_NOT_FOUND"
	TextCodeInvalidPassword    = "INVALID_PASSWORD"
	TextCodeInvalidCredentials = "INVALID_LOGIN_CREDENTIALS"
	TextCodeInvalidEmail       = "INVALID_EMAIL"
	TextCodeWeakPassword       = "WEAK_PASSWORD"
	TextCodeUserDisabled       = "USER_DISABLED"
	TextCodeTooManyAttempts    = "TOO_MANY_ATTEMPTS_TRY_LATER"

	TextCodeSessionExpired = "SESSION_EXPIRED"
	TextCodeSessionInvalid = "SESSION_INVALID"
	TextCodeSessionRevoked = "SESSION_REVOKED"

	TextCodeRecordExists   = "RECORD_EXISTS"
	TextCodeRecordNotFound = "RECORD_NOT_FOUND"
)

// ErrAccountExists is returned when a password account already exists
// for the email being registered.
var ErrAccountExists = goerrors.New("account already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailExists).
	WithCode(goerrors.CodeConflict)

// ErrRecordExists is returned by the record store when a user record is
// already present for the identity ID.
var ErrRecordExists = goerrors.New("account exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeRecordExists).
	WithCode(goerrors.CodeConflict)

// ErrRecordNotFound is returned when no user record backs an identity ID.
var ErrRecordNotFound = goerrors.New("user record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRecordNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidCredentials covers wrong password / unknown account paths
// where the broker does not distinguish further.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionExpired marks a session token past its validity window.
var ErrSessionExpired = goerrors.New("session expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionInvalid marks a session token that failed verification for
// any reason other than expiry or revocation.
var ErrSessionInvalid = goerrors.New("invalid session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionRevoked marks a structurally valid session token whose
// sessions were revoked after issuance.
var ErrSessionRevoked = goerrors.New("session revoked", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionRevoked).
	WithCode(goerrors.CodeUnauthorized)

// displayMessages is the closed mapping from classified text codes to
// user-facing copy. Codes not listed here fall through to the templated
// default in DisplayMessage.
var displayMessages = map[string]string{
	TextCodeEmailExists:        "This email is already registered. Please sign in instead.",
	TextCodeEmailNotFound:      "No account exists with this email. Please sign up first.",
	TextCodeInvalidPassword:    "Incorrect password. Please try again.",
	TextCodeInvalidCredentials: "Incorrect email or password. Please try again.",
	TextCodeInvalidEmail:       "That email address looks invalid.",
	TextCodeWeakPassword:       "Password is too weak. Please use at least 6 characters.",
	TextCodeUserDisabled:       "This account has been disabled.",
	TextCodeTooManyAttempts:    "Too many attempts. Please try again later.",
	TextCodeSessionExpired:     "Your session has expired. Please sign in again.",
	TextCodeSessionInvalid:     "Your session is no longer valid. Please sign in again.",
	TextCodeSessionRevoked:     "Your session was signed out. Please sign in again.",
	TextCodeRecordExists:       "This account already exists. Please sign in instead.",
	TextCodeRecordNotFound:     "We could not find your account. Please sign up first.",
}

// DisplayMessage converts a classified error into the copy shown to the
// user. Unrecognized codes get a generic message that still names the
// raw code so support can trace it.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}

	if code := TextCodeOf(err); code != "" {
		if msg, ok := displayMessages[code]; ok {
			return msg
		}
		return fmt.Sprintf("Sign-in failed (%s). Please try again.", code)
	}

	return "Something went wrong. Please try again."
}

// TextCodeOf extracts the classified text code from an error chain, or
// returns an empty string. Wrapping layers without a code of their own
// are skipped so the original classification survives.
func TextCodeOf(err error) string {
	var rich *goerrors.Error
	for goerrors.As(err, &rich) {
		if rich.TextCode != "" {
			return rich.TextCode
		}
		err = rich.Source
		if err == nil {
			break
		}
	}
	return ""
}

// ShouldClearSession reports whether a session resolution failure means
// the cookie must be discarded. Expired, tampered, and revoked tokens
// qualify, as does a verified token whose backing record is gone.
// Infrastructure failures (store unreachable) do not: the cookie may
// still be good on the next request.
func ShouldClearSession(err error) bool {
	switch TextCodeOf(err) {
	case TextCodeSessionExpired, TextCodeSessionInvalid, TextCodeSessionRevoked, TextCodeRecordNotFound:
		return true
	}
	return false
}
