package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultOperationTimeout bounds hashing, storage and image work per call
const DefaultOperationTimeout = 10 * time.Second

// SignupInput holds the fields accepted when creating an account
type SignupInput struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Age      *int   `json:"age" form:"age"`
}

// AccountService orchestrates account and session operations on top of
// the credential store, the token service and the avatar pipeline.
type AccountService struct {
	repo               RepositoryManager
	tokens             TokenService
	hasher             PasswordHasher
	avatars            *AvatarPipeline
	mailer             Mailer
	activity           ActivitySink
	logger             Logger
	timeout            time.Duration
	genericLoginErrors bool
}

// AccountOption configures the account service
type AccountOption func(*AccountService)

func WithAccountLogger(logger Logger) AccountOption {
	return func(s *AccountService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAccountMailer(mailer Mailer) AccountOption {
	return func(s *AccountService) {
		s.mailer = mailer
	}
}

func WithActivitySink(sink ActivitySink) AccountOption {
	return func(s *AccountService) {
		s.activity = normalizeActivitySink(sink)
	}
}

func WithPasswordHasher(hasher PasswordHasher) AccountOption {
	return func(s *AccountService) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

func WithAvatarPipeline(p *AvatarPipeline) AccountOption {
	return func(s *AccountService) {
		if p != nil {
			s.avatars = p
		}
	}
}

func WithOperationTimeout(d time.Duration) AccountOption {
	return func(s *AccountService) {
		s.timeout = d
	}
}

// WithGenericLoginErrors hides whether the email or the password was wrong
func WithGenericLoginErrors(enabled bool) AccountOption {
	return func(s *AccountService) {
		s.genericLoginErrors = enabled
	}
}

func NewAccountService(repo RepositoryManager, tokens TokenService, opts ...AccountOption) *AccountService {
	s := &AccountService{
		repo:     repo,
		tokens:   tokens,
		hasher:   NewBcryptHasher(DefaultPasswordCost),
		avatars:  NewAvatarPipeline(DefaultAvatarMaxBytes, DefaultAvatarSize),
		activity: noopActivitySink{},
		logger:   defLogger{},
		timeout:  DefaultOperationTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Signup creates the account together with its first session token, then
// sends the welcome mail. Either both rows commit or neither does.
func (s *AccountService) Signup(ctx context.Context, input SignupInput) (*User, string, error) {
	ctx, cancel := operationContext(ctx, s.timeout)
	defer cancel()

	var user *User
	var token string
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := s.repo.Users().CreateTx(ctx, tx, &User{
			Name:     input.Name,
			Email:    input.Email,
			Password: input.Password,
			Age:      input.Age,
		})
		if err != nil {
			return err
		}

		issued, err := s.tokens.IssueTx(ctx, tx, created)
		if err != nil {
			return err
		}

		user, token = created, issued
		return nil
	})
	if err != nil {
		return nil, "", storageError(err, "account.signup")
	}

	s.notify(ctx, "welcome", user, s.sendWelcome)
	s.emit(ctx, ActivityEventAccountCreated, user, nil)

	return user, token, nil
}

// Login verifies credentials and issues a new session token. Each login
// adds a token, so a user may be signed in on several devices.
func (s *AccountService) Login(ctx context.Context, email, password string) (*User, string, error) {
	ctx, cancel := operationContext(ctx, s.timeout)
	defer cancel()

	user, err := s.repo.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.emit(ctx, ActivityEventLoginFailure, nil, map[string]any{
				"email":  NormalizeEmail(email),
				"reason": "email",
			})
			return nil, "", s.credentialError(ErrEmailNotRegistered)
		}
		return nil, "", storageError(err, "account.login")
	}

	if err := compareWithContext(ctx, s.hasher, password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			s.emit(ctx, ActivityEventLoginFailure, user, map[string]any{"reason": "password"})
			return nil, "", s.credentialError(ErrMismatchedHashAndPassword)
		}
		return nil, "", storageError(err, "account.login.compare")
	}

	token, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, "", storageError(err, "account.login.token")
	}

	s.emit(ctx, ActivityEventLoginSuccess, user, nil)

	return user, token, nil
}

// Logout revokes the token the request authenticated with.
func (s *AccountService) Logout(ctx context.Context, user *User, token string) error {
	ctx, cancel := operationContext(ctx, s.timeout)
	defer cancel()

	if err := s.tokens.Revoke(ctx, user, token); err != nil {
		return storageError(err, "account.logout")
	}

	s.emit(ctx, ActivityEventLogout, user, nil)
	return nil
}

// LogoutAll revokes every token the user holds.
func (s *AccountService) LogoutAll(ctx context.Context, user *User) error {
	ctx, cancel := operationContext(ctx, s.timeout)
	defer cancel()

	if err := s.tokens.RevokeAll(ctx, user); err != nil {
		return storageError(err, "account.logout_all")
	}

	s.emit(ctx, ActivityEventLogoutAll, user, nil)
	return nil
}

// UpdateProfile applies update to a copy of user and saves it. On failure
// user is left as it was.
func (s *AccountService) UpdateProfile(ctx context.Context, user *User, update ProfileUpdate) (*User, error) {
	if user == nil {
		return nil, NewError(ErrUserNotFound, nil)
	}
	if update.Empty() {
		return user, nil
	}

	ctx, cancel := operationContext(ctx, s.timeout)
	defer cancel()

	saved, err := s.repo.Users().Save(ctx, update.Apply(user))
	if err != nil {
		return nil, storageError(err, "account.update")
	}

	s.emit(ctx, ActivityEventAccountUpdated, saved, map[string]any{"fields": update.Fields()})
	return saved, nil
}

// DeleteAccount removes the user. The cancellation mail goes out only once
// the delete succeeded, addressed with the values held before deletion.
func (s *AccountService) DeleteAccount(ctx context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, NewError(ErrUserNotFound, nil)
	}

	ctx, cancel := operationContext(ctx, s.timeout)
	defer cancel()

	snapshot := user.clone()

	if err := s.repo.Users().Delete(ctx, user); err != nil {
		return nil, storageError(err, "account.delete")
	}

	s.notify(ctx, "cancellation", snapshot, s.sendCancellation)
	s.emit(ctx, ActivityEventAccountDeleted, snapshot, nil)

	return snapshot, nil
}

// UploadAvatar normalizes the upload and stores it on the user.
func (s *AccountService) UploadAvatar(ctx context.Context, user *User, upload AvatarUpload) error {
	if user == nil {
		return NewError(ErrUserNotFound, nil)
	}

	ctx, cancel := operationContext(ctx, s.timeout)
	defer cancel()

	data, err := s.avatars.Accept(ctx, upload)
	if err != nil {
		return err
	}

	if err := s.repo.Users().SetAvatar(ctx, user.ID, data); err != nil {
		return storageError(err, "account.avatar.set")
	}

	user.Avatar = data
	s.emit(ctx, ActivityEventAvatarUpdated, user, map[string]any{"bytes": len(data)})
	return nil
}

// DeleteAvatar clears the stored image and keeps the account.
func (s *AccountService) DeleteAvatar(ctx context.Context, user *User) error {
	if user == nil {
		return NewError(ErrUserNotFound, nil)
	}

	ctx, cancel := operationContext(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Users().ClearAvatar(ctx, user.ID); err != nil {
		return storageError(err, "account.avatar.clear")
	}

	user.Avatar = nil
	s.emit(ctx, ActivityEventAvatarDeleted, user, nil)
	return nil
}

// Avatar returns the stored PNG for the user with the given id.
func (s *AccountService) Avatar(ctx context.Context, id string) ([]byte, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return nil, NewError(ErrUserNotFound, err)
	}

	ctx, cancel := operationContext(ctx, s.timeout)
	defer cancel()

	data, err := s.repo.Users().GetAvatar(ctx, userID)
	if err != nil {
		return nil, storageError(err, "account.avatar.get")
	}
	return data, nil
}

// Authenticate resolves a session token to its user.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*User, error) {
	return s.tokens.Validate(ctx, token)
}

func (s *AccountService) credentialError(sentinel error) error {
	if s.genericLoginErrors {
		return NewError(ErrInvalidCredentials, sentinel)
	}
	return NewError(sentinel, nil)
}

func (s *AccountService) sendWelcome(ctx context.Context, user *User) error {
	return s.mailer.SendWelcome(ctx, user.Email, user.Name)
}

func (s *AccountService) sendCancellation(ctx context.Context, user *User) error {
	return s.mailer.SendCancellation(ctx, user.Email, user.Name)
}

func (s *AccountService) notify(ctx context.Context, kind string, user *User, send func(context.Context, *User) error) {
	if s.mailer == nil || user == nil {
		return
	}
	if err := send(context.WithoutCancel(ctx), user); err != nil {
		s.logger.Error("account notification failed", "kind", kind, "user_id", user.ID.String(), "error", err)
	}
}

func (s *AccountService) emit(ctx context.Context, eventType ActivityEventType, user *User, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	}
	if user != nil {
		event.UserID = user.ID.String()
		event.Email = user.Email
	}

	if err := s.activity.Record(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("activity sink failed", "event", string(eventType), "error", err)
	}
}
