package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-account"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

const testSigningKey = "test-signing-key"

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := auth.OpenDB(auth.DriverSQLite, dsn, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func newTestRepo(t *testing.T, opts ...auth.UsersOption) auth.RepositoryManager {
	t.Helper()

	db := newTestDB(t)
	opts = append([]auth.UsersOption{
		auth.WithUsersHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
	}, opts...)

	repo := auth.NewRepositoryManager(db, auth.WithUsersOptions(opts...))
	require.NoError(t, repo.Validate())
	require.NoError(t, repo.Migrate(context.Background()))

	return repo
}

func newTestTokens(repo auth.RepositoryManager, opts ...auth.TokenServiceOption) *auth.TokenServiceImpl {
	return auth.NewTokenService([]byte(testSigningKey), 0, "go-account-test", repo.Users(), &captureLogger{}, opts...)
}

type testEnv struct {
	repo     auth.RepositoryManager
	tokens   *auth.TokenServiceImpl
	accounts *auth.AccountService
	mailer   *MockMailer
	activity *activityRecorder
	logger   *captureLogger
}

func newTestEnv(t *testing.T, opts ...auth.AccountOption) *testEnv {
	t.Helper()

	env := &testEnv{
		repo:     newTestRepo(t),
		mailer:   &MockMailer{},
		activity: &activityRecorder{},
		logger:   &captureLogger{},
	}
	env.tokens = newTestTokens(env.repo)

	opts = append([]auth.AccountOption{
		auth.WithPasswordHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
		auth.WithAccountMailer(env.mailer),
		auth.WithActivitySink(env.activity),
		auth.WithAccountLogger(env.logger),
		auth.WithOperationTimeout(5 * time.Second),
	}, opts...)

	env.accounts = auth.NewAccountService(env.repo, env.tokens, opts...)
	return env
}

// signup registers ana with the welcome mail stubbed out.
func (e *testEnv) signup(t *testing.T, input auth.SignupInput) (*auth.User, string) {
	t.Helper()

	e.mailer.On("SendWelcome", mock.Anything, auth.NormalizeEmail(input.Email), input.Name).Return(nil).Once()

	user, token, err := e.accounts.Signup(context.Background(), input)
	require.NoError(t, err)
	return user, token
}

func anaInput() auth.SignupInput {
	age := 27
	return auth.SignupInput{
		Name:     "Ana",
		Email:    "ana@example.com",
		Password: "red12345!",
		Age:      &age,
	}
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendWelcome(ctx context.Context, email, name string) error {
	args := m.Called(ctx, email, name)
	return args.Error(0)
}

func (m *MockMailer) SendCancellation(ctx context.Context, email, name string) error {
	args := m.Called(ctx, email, name)
	return args.Error(0)
}

type activityRecorder struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *activityRecorder) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *activityRecorder) types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func (r *activityRecorder) last() auth.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return auth.ActivityEvent{}
	}
	return r.events[len(r.events)-1]
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) log(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.log("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.log("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.log("error", msg, args...) }

func (l *captureLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}
