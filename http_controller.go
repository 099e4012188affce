package auth

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
)

// AuthControllerRoutes holds the paths the controller registers.
type AuthControllerRoutes struct {
	SignIn   string
	SignUp   string
	SignOut  string
	Me       string
	Status   string
	Provider string
}

// AuthControllerViews holds the template names the controller renders.
type AuthControllerViews struct {
	SignIn string
	SignUp string
}

// AuthController serves the sign-in and sign-up screens and the JSON
// action endpoints backing them.
type AuthController struct {
	Debug   bool
	Logger  Logger
	Actions *Actions
	Cookies *CookieSessions
	Routes  *AuthControllerRoutes
	Views   *AuthControllerViews
}

// AuthControllerOption configures the controller.
type AuthControllerOption func(*AuthController) *AuthController

// WithControllerActions sets the action layer.
func WithControllerActions(actions *Actions) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Actions = actions
		return c
	}
}

// WithControllerCookies sets the cookie session layer.
func WithControllerCookies(cookies *CookieSessions) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Cookies = cookies
		return c
	}
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(l Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

// NewAuthController builds a controller with default routes and views.
func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			SignIn:   "/sign-in",
			SignUp:   "/sign-up",
			SignOut:  "/sign-out",
			Me:       "/auth/me",
			Status:   "/auth/status",
			Provider: "/auth/provider",
		},
		Views: &AuthControllerViews{
			SignIn: "sign_in",
			SignUp: "sign_up",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Actions == nil {
		panic("missing Actions in auth controller")
	}
	if c.Cookies == nil {
		panic("missing CookieSessions in auth controller")
	}

	return c
}

// RegisterAuthRoutes mounts the controller on a fiber router.
func RegisterAuthRoutes(app fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Get(controller.Routes.SignIn, controller.SignInShow)
	app.Post(controller.Routes.SignIn, controller.SignInPost)
	app.Get(controller.Routes.SignUp, controller.SignUpShow)
	app.Post(controller.Routes.SignUp, controller.SignUpPost)
	app.Get(controller.Routes.SignOut, controller.SignOutGet)
	app.Get(controller.Routes.Me, controller.MeGet)
	app.Get(controller.Routes.Status, controller.StatusGet)
	app.Post(controller.Routes.Provider, controller.ProviderPost)

	return controller
}

// SignInRequest is the sign-in form payload.
type SignInRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate runs the pre-submit rules; anything failing here never
// reaches the identity broker.
func (r SignInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// SignUpRequest is the sign-up form payload.
type SignUpRequest struct {
	Name     string `form:"name" json:"name"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate runs the pre-submit rules.
func (r SignUpRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(3, 100)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func (a *AuthController) SignInShow(c *fiber.Ctx) error {
	data := fiber.Map{
		"errors": nil,
		"record": nil,
	}
	if c.Query("registered") != "" {
		data["notice"] = "Account created successfully. Please sign in."
	}
	return c.Render(a.Views.SignIn, data)
}

func (a *AuthController) SignInPost(c *fiber.Ctx) error {
	payload := new(SignInRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("sign-in parse payload", "error", err)
		return c.Status(fiber.StatusBadRequest).Render(a.Views.SignIn, fiber.Map{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Render(a.Views.SignIn, fiber.Map{
			"record":     payload,
			"validation": ValidationErrorMap(err),
		})
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(payload))
	}

	token, res := a.Actions.SignIn(c.UserContext(), payload.Email, payload.Password)
	if !res.Success {
		return c.Render(a.Views.SignIn, fiber.Map{
			"errors": map[string]string{"authentication": res.Message},
			"record": payload,
		})
	}

	a.Cookies.Write(c, token)
	return c.Redirect(a.Cookies.PopReturnTo(c), fiber.StatusSeeOther)
}

func (a *AuthController) SignUpShow(c *fiber.Ctx) error {
	return c.Render(a.Views.SignUp, fiber.Map{
		"errors": map[string]string{},
		"record": SignUpRequest{},
	})
}

func (a *AuthController) SignUpPost(c *fiber.Ctx) error {
	payload := new(SignUpRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("sign-up parse payload", "error", err)
		return c.Status(fiber.StatusBadRequest).Render(a.Views.SignUp, fiber.Map{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Render(a.Views.SignUp, fiber.Map{
			"record":     payload,
			"validation": ValidationErrorMap(err),
		})
	}

	res := a.Actions.SignUp(c.UserContext(), payload.Name, payload.Email, payload.Password)
	if !res.Success {
		return c.Render(a.Views.SignUp, fiber.Map{
			"errors": map[string]string{"registration": res.Message},
			"record": payload,
		})
	}

	return c.Redirect(a.Routes.SignIn+"?registered=1", fiber.StatusSeeOther)
}

func (a *AuthController) SignOutGet(c *fiber.Ctx) error {
	a.Cookies.SignOut(c)
	return c.Redirect(a.Routes.SignIn, fiber.StatusSeeOther)
}

// MeGet returns the current user record, or 401 with a null user.
func (a *AuthController) MeGet(c *fiber.Ctx) error {
	user, err := a.Cookies.Current(c)
	if err != nil {
		a.Logger.Error("current user lookup failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(Result{
			Success: false,
			Message: "Something went wrong. Please try again.",
		})
	}

	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"user": nil})
	}

	return c.JSON(fiber.Map{"user": user})
}

// StatusGet reports whether the request carries a live session.
func (a *AuthController) StatusGet(c *fiber.Ctx) error {
	user, err := a.Cookies.Current(c)
	if err != nil {
		a.Logger.Error("session status lookup failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(Result{
			Success: false,
			Message: "Something went wrong. Please try again.",
		})
	}

	return c.JSON(fiber.Map{"authenticated": user != nil})
}

// ProviderSignInRequest is the JSON payload for a browser-completed
// OAuth sign-in: the client obtained the provider assertion itself and
// posts it here to establish the server session.
type ProviderSignInRequest struct {
	ProviderID string `json:"provider_id" form:"provider_id"`
	Assertion  string `json:"assertion" form:"assertion"`
}

// Validate runs the pre-submit rules.
func (r ProviderSignInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ProviderID, validation.Required),
		validation.Field(&r.Assertion, validation.Required),
	)
}

func (a *AuthController) ProviderPost(c *fiber.Ctx) error {
	payload := new(ProviderSignInRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("provider sign-in parse payload", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(Result{Success: false, Message: "Failed to parse request"})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(Result{Success: false, Message: err.Error()})
	}

	token, res := a.Actions.SignInWithProvider(c.UserContext(), payload.ProviderID, payload.Assertion)
	if !res.Success {
		return c.Status(fiber.StatusUnauthorized).JSON(res)
	}

	a.Cookies.Write(c, token)
	return c.JSON(res)
}

// ValidationErrorMap flattens ozzo validation errors into a
// field-to-message map for the templates.
func ValidationErrorMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}
