package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// Users is the credential store. Token grants and revocations are row
// level operations so concurrent sessions for one user never overwrite
// each other.
type Users interface {
	Create(ctx context.Context, user *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)

	Save(ctx context.Context, user *User) (*User, error)
	SaveTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	Delete(ctx context.Context, user *User) error

	AppendToken(ctx context.Context, userID uuid.UUID, token string) error
	AppendTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string) error
	RemoveToken(ctx context.Context, userID uuid.UUID, token string) (int64, error)
	RemoveAllTokens(ctx context.Context, userID uuid.UUID) (int64, error)
	HasToken(ctx context.Context, userID uuid.UUID, token string) (bool, error)

	SetAvatar(ctx context.Context, userID uuid.UUID, data []byte) error
	ClearAvatar(ctx context.Context, userID uuid.UUID) error
	GetAvatar(ctx context.Context, userID uuid.UUID) ([]byte, error)
}

type users struct {
	db     *bun.DB
	hasher PasswordHasher
	newID  func(email string) uuid.UUID
}

var _ Users = (*users)(nil)

// UsersOption configures the users repository
type UsersOption func(*users)

// WithUsersHasher sets the password hasher used before persistence
func WithUsersHasher(hasher PasswordHasher) UsersOption {
	return func(u *users) {
		if hasher != nil {
			u.hasher = hasher
		}
	}
}

// WithUsersIDGenerator overrides how new user IDs are derived
func WithUsersIDGenerator(fn func(email string) uuid.UUID) UsersOption {
	return func(u *users) {
		if fn != nil {
			u.newID = fn
		}
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := &users{
		db:     db,
		hasher: NewBcryptHasher(DefaultPasswordCost),
		newID:  func(string) uuid.UUID { return uuid.New() },
	}

	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}

	return repo
}

func (a *users) Create(ctx context.Context, user *User) (*User, error) {
	return a.CreateTx(ctx, a.db, user)
}

// CreateTx validates, hashes and inserts a new user. The caller's record
// is not modified.
func (a *users) CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	record := user.clone()
	if record == nil {
		return nil, NewValidationError(FieldErrors{"user": "missing record"}, nil)
	}

	normalizeUser(record)
	record.PasswordHash = ""
	record.Tokens = nil
	if err := ValidateUser(record); err != nil {
		return nil, err
	}

	if err := a.hashPendingPassword(ctx, record); err != nil {
		return nil, err
	}

	a.prepareUserDefaults(record)

	// A derived ID can still belong to an account that has since changed
	// its email.
	taken, err := tx.NewSelect().Model((*User)(nil)).Where("id = ?", record.ID).Exists(ctx)
	if err != nil {
		return nil, storageError(err, "users.create")
	}
	if taken {
		record.ID = uuid.New()
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		if isDuplicateEmail(err) {
			return nil, NewError(ErrDuplicateEmail, err)
		}
		return nil, storageError(err, "users.create")
	}

	return record, nil
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

func (a *users) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.findOne(ctx, tx, "?TableAlias.email = ?", NormalizeEmail(email))
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *users) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.findOne(ctx, tx, "?TableAlias.id = ?", id)
}

// findOne loads a user with its tokens in login order. Avatar bytes are
// only read through GetAvatar.
func (a *users) findOne(ctx context.Context, tx bun.IDB, where string, arg any) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		ExcludeColumn("avatar").
		Relation("Tokens", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("stk.id ASC")
		}).
		Where(where, arg).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewError(ErrUserNotFound, err)
		}
		return nil, storageError(err, "users.find")
	}

	return record, nil
}

func (a *users) Save(ctx context.Context, user *User) (*User, error) {
	return a.SaveTx(ctx, a.db, user)
}

// SaveTx persists the mutable profile columns. The password is hashed only
// when the transient plaintext field is set, so saving an unchanged record
// keeps the stored hash. The write only lands if the stored revision still
// matches the one the record was loaded with.
func (a *users) SaveTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	record := user.clone()
	if record == nil || record.ID == uuid.Nil {
		return nil, NewError(ErrUserNotFound, nil)
	}

	normalizeUser(record)
	if err := ValidateUser(record); err != nil {
		return nil, err
	}

	if err := a.hashPendingPassword(ctx, record); err != nil {
		return nil, err
	}

	prev := record.Revision
	now := time.Now().UTC()
	record.Revision = prev + 1
	record.UpdatedAt = &now

	res, err := tx.NewUpdate().
		Model(record).
		Column("name", "email", "password_hash", "age", "revision", "updated_at").
		WherePK().
		Where("?TableAlias.revision = ?", prev).
		Exec(ctx)
	if err != nil {
		if isDuplicateEmail(err) {
			return nil, NewError(ErrDuplicateEmail, err)
		}
		return nil, storageError(err, "users.save")
	}

	if n, _ := res.RowsAffected(); n == 0 {
		exists, err := tx.NewSelect().Model((*User)(nil)).Where("id = ?", record.ID).Exists(ctx)
		if err != nil {
			return nil, storageError(err, "users.save")
		}
		if !exists {
			return nil, NewError(ErrUserNotFound, nil)
		}
		return nil, NewError(ErrRevisionConflict, nil).WithMetadata(map[string]any{
			"user_id":  record.ID.String(),
			"revision": prev,
		})
	}

	return record, nil
}

// Delete removes the user and every session token it holds.
func (a *users) Delete(ctx context.Context, user *User) error {
	if user == nil || user.ID == uuid.Nil {
		return NewError(ErrUserNotFound, nil)
	}

	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*SessionToken)(nil)).
			Where("user_id = ?", user.ID).
			Exec(ctx); err != nil {
			return storageError(err, "tokens.delete")
		}

		res, err := tx.NewDelete().
			Model((*User)(nil)).
			Where("id = ?", user.ID).
			Exec(ctx)
		if err != nil {
			return storageError(err, "users.delete")
		}

		if n, _ := res.RowsAffected(); n == 0 {
			return NewError(ErrUserNotFound, nil)
		}
		return nil
	})

	return storageError(err, "users.delete")
}

func (a *users) AppendToken(ctx context.Context, userID uuid.UUID, token string) error {
	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return a.AppendTokenTx(ctx, tx, userID, token)
	})
}

// AppendTokenTx records a newly issued token for an existing user.
func (a *users) AppendTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string) error {
	exists, err := tx.NewSelect().Model((*User)(nil)).Where("id = ?", userID).Exists(ctx)
	if err != nil {
		return storageError(err, "tokens.append")
	}
	if !exists {
		return NewError(ErrUserNotFound, nil)
	}

	now := time.Now().UTC()
	record := &SessionToken{
		UserID:    userID,
		Token:     token,
		CreatedAt: &now,
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return storageError(err, "tokens.append")
	}
	return nil
}

// RemoveToken deletes every row holding token, not just the first.
func (a *users) RemoveToken(ctx context.Context, userID uuid.UUID, token string) (int64, error) {
	res, err := a.db.NewDelete().
		Model((*SessionToken)(nil)).
		Where("user_id = ?", userID).
		Where("token = ?", token).
		Exec(ctx)
	if err != nil {
		return 0, storageError(err, "tokens.remove")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (a *users) RemoveAllTokens(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := a.db.NewDelete().
		Model((*SessionToken)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, storageError(err, "tokens.remove_all")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (a *users) HasToken(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	exists, err := a.db.NewSelect().
		Model((*SessionToken)(nil)).
		Where("user_id = ?", userID).
		Where("token = ?", token).
		Exists(ctx)
	if err != nil {
		return false, storageError(err, "tokens.exists")
	}
	return exists, nil
}

func (a *users) SetAvatar(ctx context.Context, userID uuid.UUID, data []byte) error {
	return a.updateAvatar(ctx, userID, data, "users.set_avatar")
}

// ClearAvatar drops the stored bytes and keeps the user.
func (a *users) ClearAvatar(ctx context.Context, userID uuid.UUID) error {
	return a.updateAvatar(ctx, userID, nil, "users.clear_avatar")
}

func (a *users) updateAvatar(ctx context.Context, userID uuid.UUID, data []byte, op string) error {
	now := time.Now().UTC()
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("avatar = ?", data).
		Set("updated_at = ?", now).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return storageError(err, op)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewError(ErrUserNotFound, nil)
	}
	return nil
}

func (a *users) GetAvatar(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Column("avatar").
		Where("?TableAlias.id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewError(ErrUserNotFound, err)
		}
		return nil, storageError(err, "users.get_avatar")
	}
	if len(record.Avatar) == 0 {
		return nil, NewError(ErrAvatarNotFound, nil)
	}
	return record.Avatar, nil
}

func (a *users) hashPendingPassword(ctx context.Context, record *User) error {
	if record.Password == "" {
		return nil
	}

	hash, err := hashWithContext(ctx, a.hasher, record.Password)
	if err != nil {
		if errors.Is(err, ErrNoEmptyString) {
			return NewError(ErrNoEmptyString, err)
		}
		return storageError(err, "users.hash_password")
	}

	record.PasswordHash = hash
	record.Password = ""
	return nil
}

func (a *users) prepareUserDefaults(record *User) {
	if record.ID == uuid.Nil {
		record.ID = a.newID(record.Email)
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := time.Now().UTC()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	record.UpdatedAt = &now
	record.Revision = 0
}

// isDuplicateEmail reports a unique violation on users.email. Violations
// on other columns are storage failures.
func isDuplicateEmail(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "email")
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed: users.email")
}
