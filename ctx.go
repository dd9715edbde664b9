package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	// UserLocalsKey is where the gate stores the resolved *User
	UserLocalsKey = "user"
	// TokenLocalsKey is where the gate stores the raw session token
	TokenLocalsKey = "token"
	// TemplateUserKey exposes the public user to views
	TemplateUserKey = "current_user"
)

var userCtxKey = &contextKey{"user"}
var tokenCtxKey = &contextKey{"token"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// WithTokenContext sets the raw session token in the given context
func WithTokenContext(r context.Context, token string) context.Context {
	return context.WithValue(r, tokenCtxKey, token)
}

// TokenFromContext returns the raw session token
func TokenFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(tokenCtxKey).(string)
	return raw, ok && raw != ""
}

// CurrentUser returns the user attached by the auth gate
func CurrentUser(c *fiber.Ctx) (*User, bool) {
	if user, ok := c.Locals(UserLocalsKey).(*User); ok && user != nil {
		return user, true
	}
	return FromContext(c.UserContext())
}

// CurrentToken returns the token the request authenticated with
func CurrentToken(c *fiber.Ctx) (string, bool) {
	if token, ok := c.Locals(TokenLocalsKey).(string); ok && token != "" {
		return token, true
	}
	return TokenFromContext(c.UserContext())
}

// operationContext bounds ctx by d. A non positive d leaves ctx as is.
func operationContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
