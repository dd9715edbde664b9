package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-account/migrations"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Migrate(ctx context.Context) error
	Users() Users
}

type mngr struct {
	db           *bun.DB
	users        Users
	migrationLog goose.Logger
}

// ManagerOption configures the repository manager
type ManagerOption func(*mngr)

// WithMigrationLogger routes migration output to logger
func WithMigrationLogger(logger goose.Logger) ManagerOption {
	return func(m *mngr) {
		m.migrationLog = logger
	}
}

// WithUsersOptions forwards options to the users repository
func WithUsersOptions(opts ...UsersOption) ManagerOption {
	return func(m *mngr) {
		m.users = NewUsersRepository(m.db, opts...)
	}
}

func NewRepositoryManager(db *bun.DB, opts ...ManagerOption) RepositoryManager {
	m := &mngr{
		db:    db,
		users: NewUsersRepository(db),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository database should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	return nil
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

// Migrate applies the embedded schema for the database dialect.
func (m mngr) Migrate(ctx context.Context) error {
	name := migrations.DialectSQLite
	if m.db.Dialect().Name() == dialect.PG {
		name = migrations.DialectPostgres
	}
	return migrations.Up(ctx, m.db.DB, name, m.migrationLog)
}

func (m mngr) Users() Users {
	return m.users
}
