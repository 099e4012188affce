// Package firebase implements the identity broker against the Firebase
// Identity Toolkit REST API. Credential exchanges use the public API
// key; session minting, revocation, and account lookups use an admin
// bearer token supplied by a TokenSource.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/prepwise/auth"
)

const (
	// DefaultIdentityBaseURL is the Identity Toolkit v1 endpoint.
	DefaultIdentityBaseURL = "https://identitytoolkit.googleapis.com/v1"

	requestTimeout = 10 * time.Second
)

// TokenSource provides the admin bearer token used for privileged
// Identity Toolkit calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token. Useful for tests and for
// environments where token refresh happens out of process.
type StaticTokenSource string

func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// Config configures the Firebase broker.
type Config struct {
	// APIKey is the web API key used for unauthenticated credential
	// exchanges.
	APIKey string

	// ProjectID is the Firebase project ID. It scopes session cookies
	// and their expected issuer.
	ProjectID string

	// Tokens supplies the admin bearer for privileged calls.
	Tokens TokenSource

	// HTTPClient overrides the default client, for tests.
	HTTPClient *http.Client

	// IdentityBaseURL overrides the Identity Toolkit endpoint, for tests.
	IdentityBaseURL string

	// JWKSURL overrides the session verification key set, for tests.
	JWKSURL string

	// Logger receives broker diagnostics.
	Logger auth.Logger
}

// Broker is the Firebase-backed IdentityBroker implementation.
type Broker struct {
	apiKey    string
	projectID string
	tokens    TokenSource
	client    *http.Client
	baseURL   string
	verifier  *SessionVerifier
	logger    auth.Logger
}

// New builds a Firebase broker and starts its session key refresh loop.
func New(cfg Config) (*Broker, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, goerrors.New("firebase: API key is required", goerrors.CategoryValidation)
	}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, goerrors.New("firebase: project ID is required", goerrors.CategoryValidation)
	}
	if cfg.Tokens == nil {
		return nil, goerrors.New("firebase: token source is required", goerrors.CategoryValidation)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}

	baseURL := cfg.IdentityBaseURL
	if baseURL == "" {
		baseURL = DefaultIdentityBaseURL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = auth.DefaultLogger()
	}

	verifier, err := NewSessionVerifier(cfg.ProjectID, cfg.JWKSURL, logger)
	if err != nil {
		return nil, err
	}

	return &Broker{
		apiKey:    cfg.APIKey,
		projectID: cfg.ProjectID,
		tokens:    cfg.Tokens,
		client:    client,
		baseURL:   baseURL,
		verifier:  verifier,
		logger:    logger,
	}, nil
}

// Close stops the session key refresh loop.
func (b *Broker) Close() {
	b.verifier.Close()
}

type signUpResponse struct {
	LocalID string `json:"localId"`
	IDToken string `json:"idToken"`
	Email   string `json:"email"`
}

type signInResponse struct {
	LocalID     string `json:"localId"`
	IDToken     string `json:"idToken"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type signInWithIdpResponse struct {
	LocalID     string `json:"localId"`
	IDToken     string `json:"idToken"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
	ProviderID  string `json:"providerId"`
}

// CreateAccount provisions a password account.
func (b *Broker) CreateAccount(ctx context.Context, email, password string) (*auth.Credential, error) {
	out := new(signUpResponse)
	err := b.post(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, out)
	if err != nil {
		return nil, err
	}

	return &auth.Credential{
		UID:     out.LocalID,
		IDToken: out.IDToken,
		Email:   out.Email,
	}, nil
}

// VerifyPassword exchanges email+password for an identity token.
func (b *Broker) VerifyPassword(ctx context.Context, email, password string) (*auth.Credential, error) {
	out := new(signInResponse)
	err := b.post(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, out)
	if err != nil {
		return nil, err
	}

	return &auth.Credential{
		UID:         out.LocalID,
		IDToken:     out.IDToken,
		Email:       out.Email,
		DisplayName: out.DisplayName,
	}, nil
}

// VerifyAssertion exchanges an OAuth provider ID token for an identity
// token, creating the Firebase account on first sign-in.
func (b *Broker) VerifyAssertion(ctx context.Context, providerID, assertion string) (*auth.Credential, error) {
	out := new(signInWithIdpResponse)
	err := b.post(ctx, "accounts:signInWithIdp", map[string]any{
		"postBody":            fmt.Sprintf("id_token=%s&providerId=%s", assertion, providerID),
		"requestUri":          "http://localhost",
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	}, out)
	if err != nil {
		return nil, err
	}

	return &auth.Credential{
		UID:         out.LocalID,
		IDToken:     out.IDToken,
		Email:       out.Email,
		DisplayName: out.DisplayName,
		PhotoURL:    out.PhotoURL,
		ProviderID:  out.ProviderID,
	}, nil
}

// MintSessionToken trades a fresh identity token for a session cookie
// with the given validity window. Privileged call.
func (b *Broker) MintSessionToken(ctx context.Context, idToken string, ttl time.Duration) (string, error) {
	out := struct {
		SessionCookie string `json:"sessionCookie"`
	}{}

	path := fmt.Sprintf("projects/%s:createSessionCookie", b.projectID)
	err := b.postAdmin(ctx, path, map[string]any{
		"idToken":       idToken,
		"validDuration": fmt.Sprintf("%ds", int64(ttl/time.Second)),
	}, &out)
	if err != nil {
		return "", err
	}

	return out.SessionCookie, nil
}

// VerifySessionToken verifies the session cookie locally against the
// published signing keys, then checks revocation and disablement with a
// privileged account lookup when requested.
func (b *Broker) VerifySessionToken(ctx context.Context, token string, checkRevoked bool) (*auth.TokenInfo, error) {
	info, err := b.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	if !checkRevoked {
		return info, nil
	}

	acct, err := b.lookupAccount(ctx, info.UID)
	if err != nil {
		return nil, err
	}

	if acct.Disabled {
		return nil, goerrors.New("account disabled", goerrors.CategoryAuthz).
			WithTextCode(auth.TextCodeUserDisabled).
			WithCode(goerrors.CodeForbidden)
	}

	if acct.validSince().After(info.IssuedAt) {
		return nil, auth.ErrSessionRevoked
	}

	return info, nil
}

// RevokeSessions moves the account's validity watermark forward, which
// invalidates every session cookie issued before now.
func (b *Broker) RevokeSessions(ctx context.Context, uid string) error {
	return b.postAdmin(ctx, "accounts:update", map[string]any{
		"localId":    uid,
		"validSince": fmt.Sprintf("%d", time.Now().Unix()),
	}, &struct{}{})
}

type accountInfo struct {
	LocalID    string `json:"localId"`
	ValidSince string `json:"validSince"`
	Disabled   bool   `json:"disabled"`
}

func (a accountInfo) validSince() time.Time {
	var secs int64
	fmt.Sscanf(a.ValidSince, "%d", &secs)
	return time.Unix(secs, 0)
}

func (b *Broker) lookupAccount(ctx context.Context, uid string) (*accountInfo, error) {
	out := struct {
		Users []accountInfo `json:"users"`
	}{}

	err := b.postAdmin(ctx, "accounts:lookup", map[string]any{
		"localId": []string{uid},
	}, &out)
	if err != nil {
		return nil, err
	}

	if len(out.Users) == 0 {
		return nil, auth.ErrSessionInvalid
	}

	return &out.Users[0], nil
}

// post issues an API-key authenticated Identity Toolkit call.
func (b *Broker) post(ctx context.Context, path string, body, out any) error {
	url := fmt.Sprintf("%s/%s?key=%s", b.baseURL, path, b.apiKey)
	return b.do(ctx, url, "", body, out)
}

// postAdmin issues a bearer-authenticated Identity Toolkit call.
func (b *Broker) postAdmin(ctx context.Context, path string, body, out any) error {
	token, err := b.tokens.Token(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to obtain admin token")
	}

	url := fmt.Sprintf("%s/%s", b.baseURL, path)
	return b.do(ctx, url, token, body, out)
}

func (b *Broker) do(ctx context.Context, url, bearer string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := b.client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "identity platform unreachable")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read response")
	}

	if res.StatusCode >= 400 {
		return classifyAPIError(res.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode response")
	}

	return nil
}
