package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// CookieSessions is the HTTP face of the session lifecycle: it writes
// the session cookie after the action layer minted a token, deletes it
// on sign-out or stale sessions, and resolves the current user for a
// request.
type CookieSessions struct {
	cfg     Config
	actions *Actions
	logger  Logger
}

func NewCookieSessions(actions *Actions, cfg Config) *CookieSessions {
	return &CookieSessions{
		cfg:     cfg,
		actions: actions,
		logger:  defLogger{},
	}
}

func (a *CookieSessions) WithLogger(l Logger) *CookieSessions {
	if l != nil {
		a.logger = l
	}
	return a
}

// Write stores a minted session token as the session cookie.
func (a *CookieSessions) Write(c *fiber.Ctx, token string) {
	ttl := a.cfg.GetSessionTTL()
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	c.Cookie(&fiber.Cookie{
		Name:     a.cfg.GetCookieName(),
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl / time.Second),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Clear deletes the session cookie by name.
func (a *CookieSessions) Clear(c *fiber.Ctx) {
	a.clearCookie(c, a.cfg.GetCookieName())
}

// Current resolves the request's session cookie. Stale sessions are
// cleared as a side effect and reported as unauthenticated; only
// infrastructure failures surface as errors.
func (a *CookieSessions) Current(c *fiber.Ctx) (*User, error) {
	cookie := c.Cookies(a.cfg.GetCookieName())

	user, err := a.actions.CurrentUser(c.UserContext(), cookie)
	if err != nil {
		if ShouldClearSession(err) {
			a.logger.Debug("clearing stale session cookie", "error", err)
			a.Clear(c)
			return nil, nil
		}
		return nil, err
	}

	return user, nil
}

// SignOut revokes (when configured) and clears the session.
func (a *CookieSessions) SignOut(c *fiber.Ctx) Result {
	res := a.actions.SignOut(c.UserContext(), c.Cookies(a.cfg.GetCookieName()))
	a.Clear(c)
	return res
}

// SetReturnTo remembers the rejected path so a later sign-in can land
// the user back where they started.
func (a *CookieSessions) SetReturnTo(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.cfg.GetReturnToKey(),
		Value:    c.OriginalURL(),
		Path:     "/",
		Expires:  time.Now().Add(5 * time.Minute),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// PopReturnTo consumes the remembered path, falling back to the
// configured default.
func (a *CookieSessions) PopReturnTo(c *fiber.Ctx) string {
	key := a.cfg.GetReturnToKey()
	r := c.Cookies(key)
	if r == "" {
		return a.cfg.GetReturnToDefault()
	}
	a.clearCookie(c, key)
	return r
}

func (a *CookieSessions) clearCookie(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * 24 * 365),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// RequireUser is route middleware: it resolves the session and stores
// the user in locals, or remembers the rejected route and redirects to
// the sign-in page.
func (a *CookieSessions) RequireUser(signInPath string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := a.Current(c)
		if err != nil {
			a.logger.Error("session resolution failed", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(Result{
				Success: false,
				Message: "Something went wrong. Please try again.",
			})
		}

		if user == nil {
			a.SetReturnTo(c)
			return c.Redirect(signInPath, fiber.StatusSeeOther)
		}

		c.Locals(CurrentUserKey, user)
		return c.Next()
	}
}

// CurrentUserKey is the locals key RequireUser stores the user under.
const CurrentUserKey = "current_user"

// UserFromLocals fetches the user stored by RequireUser.
func UserFromLocals(c *fiber.Ctx) (*User, bool) {
	user, ok := c.Locals(CurrentUserKey).(*User)
	return user, ok && user != nil
}
