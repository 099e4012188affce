package social

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// ErrInvalidState marks a state token that failed decryption or
// signature checks.
var ErrInvalidState = goerrors.New("invalid oauth state", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrStateExpired marks a state token past its validity window.
var ErrStateExpired = goerrors.New("oauth state expired", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnknownProvider marks a request naming a provider that is not
// registered.
var ErrUnknownProvider = goerrors.New("unknown oauth provider", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrMissingIDToken marks a provider token response without an ID
// token; the sign-in flow cannot continue without one.
var ErrMissingIDToken = goerrors.New("provider returned no id token", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ProviderError captures normalized provider response details.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	scope := e.Provider
	if e.Operation != "" {
		scope = fmt.Sprintf("%s %s", e.Provider, e.Operation)
	}

	switch {
	case e.Description != "":
		return fmt.Sprintf("%s failed: %s", scope, e.Description)
	case e.Code != "":
		return fmt.Sprintf("%s failed: %s", scope, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", scope, e.Err)
	}

	return fmt.Sprintf("%s failed", scope)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
