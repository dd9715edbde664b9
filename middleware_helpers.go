package auth

import (
	"context"

	"github.com/goliatone/go-account/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use auth helpers directly.
type ValidationListener = jwtware.ValidationListener

// ContextEnricherAdapter stores the resolved user and the raw token in the
// standard context, so services reached through c.UserContext() see them.
func ContextEnricherAdapter(c context.Context, subject any, token string) context.Context {
	user, ok := subject.(*User)
	if !ok || user == nil {
		return c
	}
	return WithTokenContext(WithContext(c, user), token)
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}
