package google_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepwise/auth/social"
	"github.com/prepwise/auth/social/providers/google"
)

func TestAuthCodeURL(t *testing.T) {
	provider := google.New(google.Config{
		ClientID:    "client-id",
		CallbackURL: "https://app.example.com/auth/oauth/google/callback",
	})

	raw := provider.AuthCodeURL("state-token",
		social.WithPKCE("challenge-value", "S256"),
		social.WithPrompt("select_account"),
	)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	q := parsed.Query()

	assert.Equal(t, "accounts.google.com", parsed.Host)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "state-token", q.Get("state"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "challenge-value", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "select_account", q.Get("prompt"))
}

func TestExchange(t *testing.T) {
	var received url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		received = r.PostForm
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     "google-id-token",
			"scope":        "openid email profile",
		})
	}))
	defer server.Close()

	provider := google.New(google.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "https://app.example.com/callback",
		TokenURL:     server.URL,
	})

	token, err := provider.Exchange(context.Background(), "auth-code", social.WithCodeVerifier("verifier-123"))
	require.NoError(t, err)

	assert.Equal(t, "google-id-token", token.IDToken)
	assert.Equal(t, "access-token", token.AccessToken)
	assert.False(t, token.ExpiresAt.IsZero())
	assert.Contains(t, token.Scopes, "openid")

	assert.Equal(t, "auth-code", received.Get("code"))
	assert.Equal(t, "authorization_code", received.Get("grant_type"))
	assert.Equal(t, "verifier-123", received.Get("code_verifier"))
	assert.Equal(t, "client-secret", received.Get("client_secret"))
}

func TestExchangeMissingIDToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-token",
			"token_type":   "Bearer",
		})
	}))
	defer server.Close()

	provider := google.New(google.Config{TokenURL: server.URL})

	_, err := provider.Exchange(context.Background(), "auth-code")
	assert.ErrorIs(t, err, social.ErrMissingIDToken)
}

func TestExchangeRejectedCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "Code was already redeemed.",
		})
	}))
	defer server.Close()

	provider := google.New(google.Config{TokenURL: server.URL})

	_, err := provider.Exchange(context.Background(), "stale-code")
	require.Error(t, err)

	var perr *social.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "google", perr.Provider)
	assert.Equal(t, "invalid_grant", perr.Code)
}
