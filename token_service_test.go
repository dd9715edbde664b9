package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-account"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestTokenService_IssueAndValidate(t *testing.T) {
	repo := newTestRepo(t)
	ts := newTestTokens(repo)
	ctx := context.Background()
	ana := createAna(t, repo.Users())

	token, err := ts.Issue(ctx, ana)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, ana.HasToken(token))

	claims, err := ts.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, ana.ID.String(), claims.UserID())
	assert.Equal(t, "go-account-test", claims.Issuer)
	assert.True(t, claims.Expires().IsZero(), "no exp claim by default")
	assert.False(t, claims.Issued().IsZero())

	user, err := ts.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, ana.ID, user.ID)
	assert.Equal(t, []string{token}, user.TokenStrings())
}

func TestTokenService_MultipleSessions(t *testing.T) {
	repo := newTestRepo(t)
	ts := newTestTokens(repo)
	ctx := context.Background()
	ana := createAna(t, repo.Users())

	first, err := ts.Issue(ctx, ana)
	require.NoError(t, err)
	second, err := ts.Issue(ctx, ana)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	user, err := ts.Validate(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, user.TokenStrings())

	require.NoError(t, ts.Revoke(ctx, user, first))
	assert.Equal(t, []string{second}, user.TokenStrings())

	_, err = ts.Validate(ctx, first)
	assert.ErrorIs(t, err, auth.ErrTokenRevoked)

	_, err = ts.Validate(ctx, second)
	assert.NoError(t, err)
}

func TestTokenService_RevokeAll(t *testing.T) {
	repo := newTestRepo(t)
	ts := newTestTokens(repo)
	ctx := context.Background()
	ana := createAna(t, repo.Users())

	var issued []string
	for i := 0; i < 3; i++ {
		token, err := ts.Issue(ctx, ana)
		require.NoError(t, err)
		issued = append(issued, token)
	}

	require.NoError(t, ts.RevokeAll(ctx, ana))
	assert.Empty(t, ana.Tokens)

	for _, token := range issued {
		_, err := ts.Validate(ctx, token)
		assert.ErrorIs(t, err, auth.ErrTokenRevoked)
	}
}

func TestTokenService_ValidateFailures(t *testing.T) {
	repo := newTestRepo(t)
	ts := newTestTokens(repo)
	ctx := context.Background()
	ana := createAna(t, repo.Users())

	token, err := ts.Issue(ctx, ana)
	require.NoError(t, err)

	other := auth.NewTokenService([]byte("other-key"), 0, "go-account-test", repo.Users(), nil)
	foreign, err := other.Issue(ctx, ana)
	require.NoError(t, err)

	wrongIssuer := auth.NewTokenService([]byte(testSigningKey), 0, "someone-else", repo.Users(), nil)
	misissued, err := wrongIssuer.Issue(ctx, ana)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", auth.ErrTokenMissing},
		{"garbage", "not.a.jwt", auth.ErrTokenMalformed},
		{"tampered", tamper(token), auth.ErrInvalidSignature},
		{"other key", foreign, auth.ErrInvalidSignature},
		{"other issuer", misissued, auth.ErrTokenMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Validate(ctx, tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 401, auth.HTTPStatus(err))
		})
	}
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	repo := newTestRepo(t)
	ts := newTestTokens(repo)
	ana := createAna(t, repo.Users())

	claims := &auth.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  "go-account-test",
			Subject: ana.ID.String(),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ts.Validate(context.Background(), unsigned)
	assert.ErrorIs(t, err, auth.ErrInvalidSignature)
}

func TestTokenService_Expiration(t *testing.T) {
	repo := newTestRepo(t)
	ana := createAna(t, repo.Users())
	ctx := context.Background()

	now := time.Now()
	ts := auth.NewTokenService([]byte(testSigningKey), time.Hour, "go-account-test", repo.Users(), nil,
		auth.WithTokenClock(func() time.Time { return now }),
	)

	token, err := ts.Issue(ctx, ana)
	require.NoError(t, err)

	claims, err := ts.Parse(token)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), claims.Expires(), time.Second)

	_, err = ts.Validate(ctx, token)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = ts.Validate(ctx, token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
	assert.True(t, auth.IsTokenExpiredError(err))
}

func TestTokenService_ValidateDeletedUser(t *testing.T) {
	repo := newTestRepo(t)
	ts := newTestTokens(repo)
	ctx := context.Background()
	ana := createAna(t, repo.Users())

	token, err := ts.Issue(ctx, ana)
	require.NoError(t, err)
	require.NoError(t, repo.Users().Delete(ctx, ana))

	_, err = ts.Validate(ctx, token)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

type failingAppendUsers struct {
	auth.Users
}

func (failingAppendUsers) AppendToken(context.Context, uuid.UUID, string) error {
	return errors.New("disk full")
}

func (failingAppendUsers) AppendTokenTx(context.Context, bun.IDB, uuid.UUID, string) error {
	return errors.New("disk full")
}

func TestTokenService_IssueDiscardsTokenWhenStoreFails(t *testing.T) {
	repo := newTestRepo(t)
	ana := createAna(t, repo.Users())
	logger := &captureLogger{}

	ts := auth.NewTokenService([]byte(testSigningKey), 0, "go-account-test", failingAppendUsers{repo.Users()}, logger)

	token, err := ts.Issue(context.Background(), ana)
	require.Error(t, err)
	assert.Empty(t, token)
	assert.Empty(t, ana.Tokens)
	assert.True(t, logger.has("error", "token service could not store issued token"))
}

func TestTokenService_ConcurrentIssueAndRevoke(t *testing.T) {
	repo := newTestRepo(t)
	ts := newTestTokens(repo)
	ctx := context.Background()
	ana := createAna(t, repo.Users())

	const sessions = 12

	tokens := make([]string, sessions)
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			device, err := repo.Users().FindByID(ctx, ana.ID)
			if !assert.NoError(t, err) {
				return
			}
			token, err := ts.Issue(ctx, device)
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	for _, token := range tokens {
		require.NotEmpty(t, token)
		_, err := ts.Validate(ctx, token)
		assert.NoError(t, err)
	}

	stored, err := repo.Users().FindByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Tokens, sessions)

	for i := 0; i < sessions/2; i++ {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			device, err := repo.Users().FindByID(ctx, ana.ID)
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, ts.Revoke(ctx, device, token))
		}(tokens[i])
	}
	wg.Wait()

	for i, token := range tokens {
		_, err := ts.Validate(ctx, token)
		if i < sessions/2 {
			assert.ErrorIs(t, err, auth.ErrTokenRevoked, "token %d", i)
		} else {
			assert.NoError(t, err, "token %d", i)
		}
	}

	stored, err = repo.Users().FindByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, tokens[sessions/2:], stored.TokenStrings())
}

func TestTokenService_IssueTx(t *testing.T) {
	repo := newTestRepo(t)
	ts := newTestTokens(repo)
	ctx := context.Background()
	ana := createAna(t, repo.Users())

	var kept string
	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := ts.IssueTx(ctx, tx, ana)
		kept = token
		return err
	})
	require.NoError(t, err)

	_, err = ts.Validate(ctx, kept)
	assert.NoError(t, err)

	errAbort := errors.New("abort")
	var dropped string
	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := ts.IssueTx(ctx, tx, ana)
		require.NoError(t, err)
		dropped = token
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	_, err = ts.Validate(ctx, dropped)
	assert.ErrorIs(t, err, auth.ErrTokenRevoked)
}

func TestTokenService_IssueUnknownUser(t *testing.T) {
	repo := newTestRepo(t)
	ts := newTestTokens(repo)

	_, err := ts.Issue(context.Background(), nil)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = ts.Issue(context.Background(), &auth.User{ID: uuid.New()})
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

// tamper rewrites the last two signature characters.
func tamper(token string) string {
	suffix := "xx"
	if strings.HasSuffix(token, suffix) {
		suffix = "yy"
	}
	return token[:len(token)-2] + suffix
}
