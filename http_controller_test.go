package auth_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prepwise/auth"
)

func setupApp(t *testing.T, broker *MockIdentityBroker, users *MockUsers, cfg testConfig) (*fiber.App, *auth.CookieSessions) {
	t.Helper()

	issuer := auth.NewSessionIssuer(broker, cfg)
	actions := auth.NewActions(broker, users, issuer, cfg)
	cookies := auth.NewCookieSessions(actions, cfg)

	app := fiber.New()
	auth.RegisterAuthRoutes(app,
		auth.WithControllerActions(actions),
		auth.WithControllerCookies(cookies),
	)

	return app, cookies
}

func sessionCookieHeader(res *http.Response, name string) (string, bool) {
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

func TestMeWithoutCookie(t *testing.T) {
	broker := new(MockIdentityBroker)
	users := new(MockUsers)
	app, _ := setupApp(t, broker, users, testConfig{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	res, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	broker.AssertNotCalled(t, "VerifySessionToken")
}

func TestMeWithValidSession(t *testing.T) {
	broker := new(MockIdentityBroker)
	users := new(MockUsers)
	app, _ := setupApp(t, broker, users, testConfig{})

	broker.On("VerifySessionToken", mock.Anything, "good-cookie", true).
		Return(&auth.TokenInfo{UID: "u1"}, nil)
	users.On("GetByID", mock.Anything, "u1").
		Return(&auth.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "good-cookie"})

	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	body, _ := io.ReadAll(res.Body)
	payload := struct {
		User *auth.User `json:"user"`
	}{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NotNil(t, payload.User)
	assert.Equal(t, "ada@example.com", payload.User.Email)
}

func TestMeWithExpiredSessionClearsCookie(t *testing.T) {
	broker := new(MockIdentityBroker)
	users := new(MockUsers)
	app, _ := setupApp(t, broker, users, testConfig{})

	broker.On("VerifySessionToken", mock.Anything, "stale-cookie", true).
		Return(nil, auth.ErrSessionExpired)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "stale-cookie"})

	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// The stale cookie must be deleted in the same response.
	value, found := sessionCookieHeader(res, "session")
	assert.True(t, found)
	assert.Empty(t, value)
}

func TestMeWithMissingRecordClearsCookie(t *testing.T) {
	broker := new(MockIdentityBroker)
	users := new(MockUsers)
	app, _ := setupApp(t, broker, users, testConfig{})

	// The session verifies fine but the backing record was deleted
	// out of band; the cookie is orphaned and must go too.
	broker.On("VerifySessionToken", mock.Anything, "orphan-cookie", true).
		Return(&auth.TokenInfo{UID: "u1"}, nil)
	users.On("GetByID", mock.Anything, "u1").
		Return(nil, auth.ErrRecordNotFound)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "orphan-cookie"})

	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	value, found := sessionCookieHeader(res, "session")
	assert.True(t, found)
	assert.Empty(t, value)
}

func TestStatusWithoutCookie(t *testing.T) {
	broker := new(MockIdentityBroker)
	users := new(MockUsers)
	app, _ := setupApp(t, broker, users, testConfig{})

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	body, _ := io.ReadAll(res.Body)
	assert.JSONEq(t, `{"authenticated": false}`, string(body))
	broker.AssertNotCalled(t, "VerifySessionToken")
}

func TestStatusWithValidCookie(t *testing.T) {
	broker := new(MockIdentityBroker)
	users := new(MockUsers)
	app, _ := setupApp(t, broker, users, testConfig{})

	broker.On("VerifySessionToken", mock.Anything, "good-cookie", true).
		Return(&auth.TokenInfo{UID: "u1"}, nil)
	users.On("GetByID", mock.Anything, "u1").
		Return(&auth.User{ID: "u1"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "good-cookie"})

	res, err := app.Test(req)
	require.NoError(t, err)

	body, _ := io.ReadAll(res.Body)
	assert.JSONEq(t, `{"authenticated": true}`, string(body))
}

func TestProviderPostSetsSessionCookie(t *testing.T) {
	broker := new(MockIdentityBroker)
	users := new(MockUsers)
	app, _ := setupApp(t, broker, users, testConfig{})

	broker.On("VerifyAssertion", mock.Anything, "google.com", "assertion").
		Return(&auth.Credential{UID: "g123", IDToken: "idt", Email: "ada@example.com"}, nil)
	users.On("EnsureRecord", mock.Anything, mock.Anything).
		Return(&auth.User{ID: "g123"}, nil)
	broker.On("MintSessionToken", mock.Anything, "idt", auth.DefaultSessionTTL).
		Return("session-token", nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/provider",
		strings.NewReader(`{"provider_id":"google.com","assertion":"assertion"}`))
	req.Header.Set("Content-Type", "application/json")

	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var sessionCookie *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == "session" {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	assert.Equal(t, "session-token", sessionCookie.Value)
	assert.Equal(t, "/", sessionCookie.Path)
	assert.True(t, sessionCookie.HttpOnly)
	assert.False(t, sessionCookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, sessionCookie.SameSite)
	assert.Equal(t, int(auth.DefaultSessionTTL.Seconds()), sessionCookie.MaxAge)
}

func TestProviderPostSecureCookieInProduction(t *testing.T) {
	broker := new(MockIdentityBroker)
	users := new(MockUsers)
	app, _ := setupApp(t, broker, users, testConfig{secure: true})

	broker.On("VerifyAssertion", mock.Anything, "google.com", "assertion").
		Return(&auth.Credential{UID: "g123", IDToken: "idt"}, nil)
	users.On("EnsureRecord", mock.Anything, mock.Anything).
		Return(&auth.User{ID: "g123"}, nil)
	broker.On("MintSessionToken", mock.Anything, "idt", auth.DefaultSessionTTL).
		Return("session-token", nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/provider",
		strings.NewReader(`{"provider_id":"google.com","assertion":"assertion"}`))
	req.Header.Set("Content-Type", "application/json")

	res, err := app.Test(req)
	require.NoError(t, err)

	value, found := sessionCookieHeader(res, "session")
	require.True(t, found)
	assert.Equal(t, "session-token", value)
	for _, c := range res.Cookies() {
		if c.Name == "session" {
			assert.True(t, c.Secure)
		}
	}
}

func TestProviderPostRejectedAssertion(t *testing.T) {
	broker := new(MockIdentityBroker)
	users := new(MockUsers)
	app, _ := setupApp(t, broker, users, testConfig{})

	broker.On("VerifyAssertion", mock.Anything, "google.com", "bad").
		Return(nil, auth.ErrInvalidCredentials)

	req := httptest.NewRequest(http.MethodPost, "/auth/provider",
		strings.NewReader(`{"provider_id":"google.com","assertion":"bad"}`))
	req.Header.Set("Content-Type", "application/json")

	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	_, found := sessionCookieHeader(res, "session")
	assert.False(t, found)
}

func TestSignOutClearsCookie(t *testing.T) {
	broker := new(MockIdentityBroker)
	users := new(MockUsers)
	app, _ := setupApp(t, broker, users, testConfig{})

	req := httptest.NewRequest(http.MethodGet, "/sign-out", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "whatever"})

	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/sign-in", res.Header.Get("Location"))

	value, found := sessionCookieHeader(res, "session")
	assert.True(t, found)
	assert.Empty(t, value)
	broker.AssertNotCalled(t, "RevokeSessions")
}

func TestRequireUserRedirectsAndRemembersRoute(t *testing.T) {
	broker := new(MockIdentityBroker)
	users := new(MockUsers)
	app, cookies := setupApp(t, broker, users, testConfig{})

	app.Get("/dashboard", cookies.RequireUser("/sign-in"), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	res, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/sign-in", res.Header.Get("Location"))

	returnTo, found := sessionCookieHeader(res, "return_to")
	assert.True(t, found)
	assert.Equal(t, "/dashboard", returnTo)
}

func TestRequireUserPassesUserThrough(t *testing.T) {
	broker := new(MockIdentityBroker)
	users := new(MockUsers)
	app, cookies := setupApp(t, broker, users, testConfig{})

	broker.On("VerifySessionToken", mock.Anything, "good-cookie", true).
		Return(&auth.TokenInfo{UID: "u1"}, nil)
	users.On("GetByID", mock.Anything, "u1").
		Return(&auth.User{ID: "u1", Name: "Ada"}, nil)

	app.Get("/dashboard", cookies.RequireUser("/sign-in"), func(c *fiber.Ctx) error {
		user, ok := auth.UserFromLocals(c)
		require.True(t, ok)
		return c.SendString(user.Name)
	})

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "good-cookie"})

	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, "Ada", string(body))
}
