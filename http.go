package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"

	"github.com/goliatone/go-account/middleware/jwtware"
)

const (
	// DefaultCookieMaxAge is used when the config does not set one
	DefaultCookieMaxAge = 24 * time.Hour

	unauthenticatedMessage = "Please authenticate."
	loginRoute             = "/login"
)

// RouteAuthenticator binds the auth gate, the session cookie and the auth
// error handling to fiber routes.
type RouteAuthenticator struct {
	accounts         *AccountService
	cfg              Config
	cookieDuration   time.Duration
	listeners        []ValidationListener
	Logger           Logger
	AuthErrorHandler fiber.ErrorHandler
	ErrorHandler     fiber.ErrorHandler
}

func NewHTTPAuthenticator(accounts *AccountService, cfg Config) (*RouteAuthenticator, error) {
	if accounts == nil {
		return nil, goerrors.New("account service is required", goerrors.CategoryInternal)
	}

	cookieDuration := DefaultCookieMaxAge
	if cfg.GetCookieMaxAge() > 0 {
		cookieDuration = cfg.GetCookieMaxAge()
	}

	a := &RouteAuthenticator{
		accounts:       accounts,
		cfg:            cfg,
		cookieDuration: cookieDuration,
		Logger:         defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// AddValidationListener runs listener for every request that passed token
// validation. An error from listener rejects the request. Only gates built
// after the call see the listener.
func (a *RouteAuthenticator) AddValidationListener(listener ValidationListener) *RouteAuthenticator {
	if listener != nil {
		a.listeners = append(a.listeners, listener)
	}
	return a
}

// TokenValidator adapts the account service to the gate. Revoked tokens
// fail here, not only tokens with a bad signature.
func (a *RouteAuthenticator) TokenValidator() jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(ctx context.Context, token string) (any, error) {
		user, err := a.accounts.Authenticate(ctx, token)
		if err != nil {
			return nil, err
		}
		return user, nil
	})
}

// ProtectedRoute rejects requests without a valid session token.
func (a *RouteAuthenticator) ProtectedRoute() fiber.Handler {
	return jwtware.New(a.gateConfig(false))
}

// CheckUser resolves the session user when there is one and always lets
// the request through. Views read it from current_user.
func (a *RouteAuthenticator) CheckUser() fiber.Handler {
	return jwtware.New(a.gateConfig(true))
}

func (a *RouteAuthenticator) gateConfig(optional bool) jwtware.Config {
	cfg := jwtware.Config{
		TokenValidator:  a.TokenValidator(),
		ContextKey:      UserLocalsKey,
		TokenContextKey: TokenLocalsKey,
		TokenLookup:     a.tokenLookup(),
		AuthScheme:      a.cfg.GetAuthScheme(),
		TemplateUserKey: TemplateUserKey,
		Optional:        optional,
		ContextEnricher: ContextEnricherAdapter,
		UserProvider:    PublicUserProvider,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return a.AuthErrorHandler(c, err)
		},
	}
	if key := a.cfg.GetContextKey(); key != "" {
		cfg.ContextKey = key
	}
	RegisterValidationListeners(&cfg, a.listeners...)
	return cfg
}

func (a *RouteAuthenticator) tokenLookup() string {
	if lookup := a.cfg.GetTokenLookup(); lookup != "" {
		return lookup
	}
	return "cookie:" + a.cookieName() + ",header:" + fiber.HeaderAuthorization
}

// SetSessionCookie stores token in the session cookie.
func (a *RouteAuthenticator) SetSessionCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     a.cookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.cookieDuration.Seconds()),
		Expires:  time.Now().Add(a.cookieDuration),
		HTTPOnly: a.cfg.GetCookieHTTPOnly(),
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: a.sameSite(),
	})
}

// ClearSessionCookie expires the session cookie right away.
func (a *RouteAuthenticator) ClearSessionCookie(c *fiber.Ctx) {
	a.cookieDel(c, a.cookieName())
}

// GetRedirectOrDefault returns the page remembered by SetRedirect and
// forgets it. Anything other than a local path yields the default.
func (a *RouteAuthenticator) GetRedirectOrDefault(c *fiber.Ctx) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	if rejectedRoute == "" {
		return a.rejectedRouteDefault()
	}

	r := c.Cookies(rejectedRoute)
	if r != "" {
		a.cookieDel(c, rejectedRoute)
	}
	if r == "" || !strings.HasPrefix(r, "/") || strings.HasPrefix(r, "//") {
		r = a.rejectedRouteDefault()
	}
	return r
}

// SetRedirect remembers the page a browser was bounced from.
func (a *RouteAuthenticator) SetRedirect(c *fiber.Ctx) {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	if rejectedRoute == "" {
		return
	}

	a.Logger.Debug("Setting redirect cookie", "key", rejectedRoute, "path", c.OriginalURL())

	c.Cookie(&fiber.Cookie{
		Name:     rejectedRoute,
		Value:    c.OriginalURL(),
		Path:     "/",
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (a *RouteAuthenticator) rejectedRouteDefault() string {
	if r := a.cfg.GetRejectedRouteDefault(); r != "" {
		return r
	}
	return "/dashboard"
}

func (a *RouteAuthenticator) cookieName() string {
	if name := a.cfg.GetCookieName(); name != "" {
		return name
	}
	return "jwt"
}

func (a *RouteAuthenticator) sameSite() string {
	switch strings.ToLower(a.cfg.GetCookieSameSite()) {
	case "strict":
		return fiber.CookieSameSiteStrictMode
	case "none":
		return fiber.CookieSameSiteNoneMode
	default:
		return fiber.CookieSameSiteLaxMode
	}
}

func (a *RouteAuthenticator) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: a.cfg.GetCookieHTTPOnly(),
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: a.sameSite(),
	})
}

// defaultAuthErrHandler sends browsers to the login page and answers API
// clients with a 401.
func (a *RouteAuthenticator) defaultAuthErrHandler(c *fiber.Ctx, err error) error {
	a.Logger.Info(
		"Authentication error",
		"error", err,
		"expired", IsTokenExpiredError(err),
		"malformed", IsMalformedError(err),
		"path", c.OriginalURL(),
	)

	if isBrowserRequest(c) {
		a.SetRedirect(c)
		return c.Redirect(loginRoute, http.StatusFound)
	}

	return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
		"error": unauthenticatedMessage,
	})
}

// defaultErrHandler renders err as JSON. Internal failures never expose
// their detail.
func (a *RouteAuthenticator) defaultErrHandler(c *fiber.Ctx, err error) error {
	status := HTTPStatus(err)

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		a.Logger.Info(
			"Request error",
			"error", richErr.Message,
			"category", richErr.Category,
			"text_code", richErr.TextCode,
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
	} else {
		a.Logger.Error("Request error", "error", err)
	}

	switch {
	case status == http.StatusUnauthorized:
		return a.AuthErrorHandler(c, err)
	case status >= http.StatusInternalServerError:
		a.Logger.Error("Internal error", "path", c.OriginalURL(), "error", err)
		return emptyStatus(c, status)
	}

	if fields := FieldErrorsFrom(err); len(fields) > 0 {
		return c.Status(status).JSON(fiber.Map{"errors": fieldErrorBody(fields)})
	}

	if status == http.StatusNotFound {
		return emptyStatus(c, status)
	}

	return c.Status(status).JSON(fiber.Map{"error": publicMessage(err)})
}

func isBrowserRequest(c *fiber.Ctx) bool {
	if c.Method() != fiber.MethodGet {
		return false
	}
	return strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMETextHTML)
}

// fieldErrorBody always carries the email and password keys so forms can
// bind to them.
func fieldErrorBody(fields FieldErrors) FieldErrors {
	out := FieldErrors{"email": "", "password": ""}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func publicMessage(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Message
	}
	return err.Error()
}

// emptyStatus answers with status and no body. fiber's SendStatus would
// write the status text.
func emptyStatus(c *fiber.Ctx, status int) error {
	c.Status(status)
	return c.Send(nil)
}
