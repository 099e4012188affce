package social

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/prepwise/auth"
)

// OAuthControllerRoutes holds the paths the controller registers. The
// provider name fills the :provider segment.
type OAuthControllerRoutes struct {
	Begin    string
	Callback string
	SignIn   string
}

// OAuthController drives the redirect flow: it sends the browser to
// the provider, receives the callback, trades the code for an ID
// token, and hands the token to the action layer.
type OAuthController struct {
	Logger    auth.Logger
	Actions   *auth.Actions
	Cookies   *auth.CookieSessions
	States    StateManager
	Routes    *OAuthControllerRoutes
	providers map[string]Provider
}

// OAuthControllerOption configures the controller.
type OAuthControllerOption func(*OAuthController) *OAuthController

// WithOAuthActions sets the action layer.
func WithOAuthActions(actions *auth.Actions) OAuthControllerOption {
	return func(c *OAuthController) *OAuthController {
		c.Actions = actions
		return c
	}
}

// WithOAuthCookies sets the cookie session layer.
func WithOAuthCookies(cookies *auth.CookieSessions) OAuthControllerOption {
	return func(c *OAuthController) *OAuthController {
		c.Cookies = cookies
		return c
	}
}

// WithOAuthStates sets the state manager.
func WithOAuthStates(states StateManager) OAuthControllerOption {
	return func(c *OAuthController) *OAuthController {
		c.States = states
		return c
	}
}

// WithOAuthProvider registers a provider under its Name.
func WithOAuthProvider(p Provider) OAuthControllerOption {
	return func(c *OAuthController) *OAuthController {
		c.providers[p.Name()] = p
		return c
	}
}

// WithOAuthLogger sets the controller logger.
func WithOAuthLogger(l auth.Logger) OAuthControllerOption {
	return func(c *OAuthController) *OAuthController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

// NewOAuthController builds a controller with default routes.
func NewOAuthController(opts ...OAuthControllerOption) *OAuthController {
	c := &OAuthController{
		Logger: auth.DefaultLogger(),
		Routes: &OAuthControllerRoutes{
			Begin:    "/auth/oauth/:provider",
			Callback: "/auth/oauth/:provider/callback",
			SignIn:   "/sign-in",
		},
		providers: map[string]Provider{},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Actions == nil {
		panic("missing Actions in oauth controller")
	}
	if c.Cookies == nil {
		panic("missing CookieSessions in oauth controller")
	}
	if c.States == nil {
		panic("missing StateManager in oauth controller")
	}

	return c
}

// RegisterOAuthRoutes mounts the controller on a fiber router.
func RegisterOAuthRoutes(app fiber.Router, opts ...OAuthControllerOption) *OAuthController {
	controller := NewOAuthController(opts...)

	app.Get(controller.Routes.Begin, controller.Begin)
	app.Get(controller.Routes.Callback, controller.Callback)

	return controller
}

// Begin starts the redirect flow: mint the PKCE verifier, seal it into
// the state with the post-sign-in destination, and send the browser to
// the provider.
func (a *OAuthController) Begin(c *fiber.Ctx) error {
	provider, ok := a.providers[c.Params("provider")]
	if !ok {
		return c.Status(fiber.StatusNotFound).SendString("unknown provider")
	}

	verifier, err := generateCodeVerifier()
	if err != nil {
		a.Logger.Error("pkce verifier generation failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).SendString("failed to start sign-in")
	}

	state, err := a.States.Encode(&OAuthState{
		Provider:     provider.Name(),
		CodeVerifier: verifier,
		ReturnTo:     c.Query("return_to"),
	})
	if err != nil {
		a.Logger.Error("state encode failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).SendString("failed to start sign-in")
	}

	url := provider.AuthCodeURL(state,
		WithPKCE(computeCodeChallenge(verifier), "S256"),
		WithPrompt("select_account"),
	)

	return c.Redirect(url, fiber.StatusSeeOther)
}

// Callback finishes the flow. A user cancelling at the consent screen
// is not an error: they land back on the sign-in page.
func (a *OAuthController) Callback(c *fiber.Ctx) error {
	provider, ok := a.providers[c.Params("provider")]
	if !ok {
		return c.Status(fiber.StatusNotFound).SendString("unknown provider")
	}

	if oauthErr := c.Query("error"); oauthErr != "" {
		if oauthErr == "access_denied" {
			return c.Redirect(a.Routes.SignIn, fiber.StatusSeeOther)
		}
		a.Logger.Warn("provider returned error", "provider", provider.Name(), "error", oauthErr)
		return c.Redirect(a.Routes.SignIn+"?error=oauth", fiber.StatusSeeOther)
	}

	state, err := a.States.Decode(c.Query("state"))
	if err != nil {
		if errors.Is(err, ErrStateExpired) {
			a.Logger.Warn("oauth state expired", "provider", provider.Name())
		} else {
			a.Logger.Warn("oauth state rejected", "provider", provider.Name(), "error", err)
		}
		return c.Redirect(a.Routes.SignIn+"?error=oauth", fiber.StatusSeeOther)
	}

	if state.Provider != provider.Name() {
		a.Logger.Warn("oauth state provider mismatch", "expected", provider.Name(), "got", state.Provider)
		return c.Redirect(a.Routes.SignIn+"?error=oauth", fiber.StatusSeeOther)
	}

	token, err := provider.Exchange(c.UserContext(), c.Query("code"), WithCodeVerifier(state.CodeVerifier))
	if err != nil {
		a.Logger.Error("code exchange failed", "provider", provider.Name(), "error", err)
		return c.Redirect(a.Routes.SignIn+"?error=oauth", fiber.StatusSeeOther)
	}

	if token.IDToken == "" {
		a.Logger.Error("provider token has no id token", "provider", provider.Name())
		return c.Redirect(a.Routes.SignIn+"?error=oauth", fiber.StatusSeeOther)
	}

	session, res := a.Actions.SignInWithProvider(c.UserContext(), provider.ProviderID(), token.IDToken)
	if !res.Success {
		a.Logger.Error("provider sign-in rejected", "provider", provider.Name(), "message", res.Message)
		return c.Redirect(a.Routes.SignIn+"?error=oauth", fiber.StatusSeeOther)
	}

	a.Cookies.Write(c, session)

	returnTo := state.ReturnTo
	if returnTo == "" || returnTo[0] != '/' {
		returnTo = a.Cookies.PopReturnTo(c)
	}

	return c.Redirect(returnTo, fiber.StatusSeeOther)
}
