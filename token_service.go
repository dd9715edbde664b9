package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenService issues, validates and revokes session tokens. A token is
// only valid while its exact string is stored against the user.
type TokenService interface {
	Issue(ctx context.Context, user *User) (string, error)
	IssueTx(ctx context.Context, tx bun.IDB, user *User) (string, error)
	Validate(ctx context.Context, tokenString string) (*User, error)
	Parse(tokenString string) (*SessionClaims, error)
	Revoke(ctx context.Context, user *User, tokenString string) error
	RevokeAll(ctx context.Context, user *User) error
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey      []byte
	tokenExpiration time.Duration
	issuer          string
	users           Users
	logger          Logger
	timeout         time.Duration
	now             func() time.Time
}

// TokenServiceOption configures the token service
type TokenServiceOption func(*TokenServiceImpl)

// WithTokenTimeout bounds every store call made by the service
func WithTokenTimeout(d time.Duration) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.timeout = d
	}
}

// WithTokenClock overrides the clock used for issued and expiry claims
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if now != nil {
			ts.now = now
		}
	}
}

// NewTokenService creates a new TokenService instance. A zero
// tokenExpiration issues tokens without an exp claim.
func NewTokenService(signingKey []byte, tokenExpiration time.Duration, issuer string, users Users, logger Logger, opts ...TokenServiceOption) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}

	ts := &TokenServiceImpl{
		signingKey:      signingKey,
		tokenExpiration: tokenExpiration,
		issuer:          issuer,
		users:           users,
		logger:          logger,
		now:             time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

var _ TokenService = (*TokenServiceImpl)(nil)

// Issue signs a token for user and stores it. If storing fails the token
// is discarded and never returned.
func (ts *TokenServiceImpl) Issue(ctx context.Context, user *User) (string, error) {
	return ts.issue(ctx, user, func(ctx context.Context, signed string) error {
		return ts.users.AppendToken(ctx, user.ID, signed)
	})
}

// IssueTx is Issue with the token row written inside tx, so it commits or
// rolls back together with the caller's other writes.
func (ts *TokenServiceImpl) IssueTx(ctx context.Context, tx bun.IDB, user *User) (string, error) {
	return ts.issue(ctx, user, func(ctx context.Context, signed string) error {
		return ts.users.AppendTokenTx(ctx, tx, user.ID, signed)
	})
}

func (ts *TokenServiceImpl) issue(ctx context.Context, user *User, store func(context.Context, string) error) (string, error) {
	if user == nil || user.ID == uuid.Nil {
		return "", NewError(ErrUserNotFound, nil)
	}

	now := ts.now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   ts.issuer,
			Subject:  user.ID.String(),
			IssuedAt: jwt.NewNumericDate(now),
		},
		UID: user.ID.String(),
	}

	if ts.tokenExpiration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ts.tokenExpiration))
	}

	ensureTokenID(&claims.RegisteredClaims)

	signed, err := ts.SignClaims(claims)
	if err != nil {
		return "", err
	}

	ctx, cancel := operationContext(ctx, ts.timeout)
	defer cancel()

	if err := store(ctx, signed); err != nil {
		ts.logger.Error("token service could not store issued token", "user_id", user.ID.String(), "error", err)
		return "", err
	}

	user.Tokens = append(user.Tokens, &SessionToken{UserID: user.ID, Token: signed})

	return signed, nil
}

// SignClaims signs session claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Parse checks the signature and registered claims without touching storage.
func (ts *TokenServiceImpl) Parse(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, NewError(ErrTokenMissing, nil)
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, NewError(ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, NewError(ErrInvalidSignature, err)
		default:
			return nil, NewError(ErrTokenMalformed, err)
		}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, NewError(ErrTokenMalformed, nil)
	}

	return claims, nil
}

// Validate resolves a token to its user. A valid signature is not enough:
// the exact string must still be in the user's token list.
func (ts *TokenServiceImpl) Validate(ctx context.Context, tokenString string) (*User, error) {
	claims, err := ts.Parse(tokenString)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, NewError(ErrTokenMalformed, err)
	}

	ctx, cancel := operationContext(ctx, ts.timeout)
	defer cancel()

	user, err := ts.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !user.HasToken(tokenString) {
		return nil, NewError(ErrTokenRevoked, nil).WithMetadata(map[string]any{
			"user_id": id.String(),
		})
	}

	return user, nil
}

// Revoke removes every stored copy of tokenString for user. Other tokens
// are untouched.
func (ts *TokenServiceImpl) Revoke(ctx context.Context, user *User, tokenString string) error {
	if user == nil {
		return NewError(ErrUserNotFound, nil)
	}

	ctx, cancel := operationContext(ctx, ts.timeout)
	defer cancel()

	if _, err := ts.users.RemoveToken(ctx, user.ID, tokenString); err != nil {
		return err
	}

	kept := make([]*SessionToken, 0, len(user.Tokens))
	for _, t := range user.Tokens {
		if t != nil && t.Token != tokenString {
			kept = append(kept, t)
		}
	}
	user.Tokens = kept

	return nil
}

// RevokeAll empties the user's token list.
func (ts *TokenServiceImpl) RevokeAll(ctx context.Context, user *User) error {
	if user == nil {
		return NewError(ErrUserNotFound, nil)
	}

	ctx, cancel := operationContext(ctx, ts.timeout)
	defer cancel()

	if _, err := ts.users.RemoveAllTokens(ctx, user.ID); err != nil {
		return err
	}

	user.Tokens = nil
	return nil
}
