package firebase

import (
	"encoding/json"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/prepwise/auth"
)

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classifyAPIError converts an Identity Toolkit error body into a
// classified error carrying the platform's text code. The platform
// prefixes messages with the code, sometimes followed by detail, e.g.
// "EMAIL_EXISTS" or "WEAK_PASSWORD : Password should be at least 6
// characters".
func classifyAPIError(status int, raw []byte) error {
	body := new(apiErrorBody)
	if err := json.Unmarshal(raw, body); err != nil || body.Error.Message == "" {
		return goerrors.New("identity platform request failed", goerrors.CategoryOperation).
			WithCode(goerrors.CodeInternal).
			WithMetadata(map[string]any{"status": status})
	}

	code := body.Error.Message
	if i := strings.IndexAny(code, " :"); i > 0 {
		code = code[:i]
	}

	switch code {
	case auth.TextCodeEmailExists:
		return auth.ErrAccountExists
	case auth.TextCodeEmailNotFound, auth.TextCodeInvalidPassword, auth.TextCodeInvalidCredentials:
		return goerrors.New("credential exchange rejected", goerrors.CategoryAuth).
			WithTextCode(code).
			WithCode(goerrors.CodeUnauthorized)
	case auth.TextCodeInvalidEmail, auth.TextCodeWeakPassword:
		return goerrors.New("credential payload rejected", goerrors.CategoryValidation).
			WithTextCode(code).
			WithCode(goerrors.CodeBadRequest)
	case auth.TextCodeUserDisabled:
		return goerrors.New("account disabled", goerrors.CategoryAuthz).
			WithTextCode(code).
			WithCode(goerrors.CodeForbidden)
	case auth.TextCodeTooManyAttempts:
		return goerrors.New("rate limited by identity platform", goerrors.CategoryAuth).
			WithTextCode(code).
			WithCode(goerrors.CodeUnauthorized)
	}

	return goerrors.New("identity platform rejected request", goerrors.CategoryOperation).
		WithTextCode(code).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{"status": status, "message": body.Error.Message})
}
