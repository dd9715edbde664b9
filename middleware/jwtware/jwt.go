package jwtware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var (
	defaultTokenLookup       = "cookie:jwt,header:" + fiber.HeaderAuthorization
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
)

// TokenValidator resolves a raw token to the subject it authenticates.
// Validation must fail for revoked tokens, not only for bad signatures.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (any, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(ctx context.Context, token string) (any, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(ctx context.Context, token string) (any, error) {
	if f == nil {
		return nil, ErrJWTMissingOrMalformed
	}
	return f(ctx, token)
}

// ValidationListener is invoked after a token has been validated but before
// the subject is attached to the request.
type ValidationListener func(c *fiber.Ctx, subject any) error

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   fiber.ErrorHandler
	// TokenValidator is required for token validation
	TokenValidator TokenValidator

	// ContextKey holds the resolved subject in fiber locals
	ContextKey string
	// TokenContextKey holds the raw token in fiber locals
	TokenContextKey string
	// TokenLookup is a comma separated list of sources tried in order,
	// e.g. "cookie:jwt,header:Authorization,query:token,param:token"
	TokenLookup string
	AuthScheme  string

	// Optional lets requests without a valid token through, with no
	// subject attached. Used to expose the current user to views.
	Optional bool

	// ContextEnricher is an optional function to propagate the subject to the
	// standard Go context. It is called after successful token validation.
	ContextEnricher func(c context.Context, subject any, token string) context.Context

	// ValidationListeners are invoked after token validation succeeds.
	ValidationListeners []ValidationListener

	// TemplateUserKey specifies the key for storing user data for templates.
	TemplateUserKey string
	// UserProvider converts the subject into the value exposed to templates.
	// If not provided, the subject is stored directly under TemplateUserKey.
	UserProvider func(subject any) (any, error)
}

func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		res := Authenticate(c, cfg)
		if !res.Authenticated() {
			if cfg.Optional {
				c.Locals(cfg.TemplateUserKey, nil)
				return c.Next()
			}
			return cfg.ErrorHandler(c, res.Err)
		}

		return cfg.SuccessHandler(c)
	}
}

// Authenticate walks a request through the gate states and returns where
// it ended. It never writes a response.
func Authenticate(c *fiber.Ctx, cfg Config) Result {
	res := Result{State: StateUnauthenticated}

	token, err := ExtractRawToken(c, cfg.getExtractors())
	if err != nil {
		return res.reject(err)
	}
	res.advance(StateTokenExtracted)
	res.Token = token

	subject, err := cfg.TokenValidator.Validate(c.UserContext(), token)
	if err != nil {
		return res.reject(err)
	}
	res.advance(StateValidated)
	res.Subject = subject

	if err := cfg.runValidationListeners(c, subject); err != nil {
		return res.reject(err)
	}

	c.Locals(cfg.ContextKey, subject)
	c.Locals(cfg.TokenContextKey, token)

	if cfg.TemplateUserKey != "" {
		var templateUser any = subject
		if cfg.UserProvider != nil {
			if u, err := cfg.UserProvider(subject); err == nil {
				templateUser = u
			}
		}
		c.Locals(cfg.TemplateUserKey, templateUser)
	}

	if cfg.ContextEnricher != nil {
		c.SetUserContext(cfg.ContextEnricher(c.UserContext(), subject, token))
	}

	res.advance(StateAttached)
	return res
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Please authenticate.",
			})
		}
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: JWT middleware configuration: TokenValidator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenContextKey == "" {
		cfg.TokenContextKey = "token"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.TemplateUserKey == "" {
		cfg.TemplateUserKey = "current_user"
	}

	return cfg
}

// ExtractRawToken tries each extractor in order and returns the first token
// found, or the last extraction error.
func ExtractRawToken(c *fiber.Ctx, extractors []JWTExtractor) (string, error) {
	err := ErrJWTMissingOrMalformed

	for _, extractor := range extractors {
		raw, xerr := extractor(c)
		if raw != "" && xerr == nil {
			return raw, nil
		}
		if xerr != nil {
			err = xerr
		}
	}

	return "", err
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(c *fiber.Ctx, subject any) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(c, subject); err != nil {
			return err
		}
	}
	return nil
}

func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	// cookie:jwt,header:Authorization,query:auth_token,param:token
	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, jwtFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(parts[1]))
		case "param":
			extractors = append(extractors, jwtFromParam(parts[1]))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(parts[1]))
		}
	}

	return extractors
}

type JWTExtractor func(c *fiber.Ctx) (string, error)

// jwtFromHeader returns a function that extracts token from the request header.
func jwtFromHeader(header string, authScheme string) JWTExtractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if l == 0 {
			return "", fmt.Errorf("missing auth scheme: %w", ErrJWTMissingOrMalformed)
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

// jwtFromQuery returns a function that extracts token from the query string.
func jwtFromQuery(param string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromParam returns a function that extracts token from the url param string.
func jwtFromParam(param string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Params(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts token from the named cookie.
func jwtFromCookie(name string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}
