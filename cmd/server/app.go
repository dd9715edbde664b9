package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-account"
	"github.com/goliatone/go-account/activitymap"
	"github.com/goliatone/go-account/config"
	"github.com/goliatone/go-account/mailer"
)

// App holds the wired server and what it must release on shutdown
type App struct {
	HTTP   *fiber.App
	db     *bun.DB
	mail   *mailer.Async
	logger *logrus.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	db, err := auth.OpenDB(cfg.DBDriver, cfg.DBDSN, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	hasher := auth.NewBcryptHasher(cfg.GetPasswordCost())

	usersOpts := []auth.UsersOption{auth.WithUsersHasher(hasher)}
	if cfg.GetUseHashID() {
		usersOpts = append(usersOpts, auth.WithUsersIDGenerator(auth.HashIDGenerator))
	}

	repo := auth.NewRepositoryManager(db,
		auth.WithMigrationLogger(logger),
		auth.WithUsersOptions(usersOpts...),
	)

	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	authLogger := auth.NewLogrusLogger(logger)

	tokens := auth.NewTokenService(
		[]byte(cfg.GetSigningKey()),
		time.Duration(cfg.GetTokenExpiration())*time.Hour,
		cfg.GetIssuer(),
		repo.Users(),
		authLogger,
		auth.WithTokenTimeout(cfg.GetOperationTimeout()),
	)

	mail := mailer.NewAsync(mailer.New(cfg.Mailer(), logger), logger)

	accounts := auth.NewAccountService(repo, tokens,
		auth.WithAccountLogger(authLogger),
		auth.WithAccountMailer(mail),
		auth.WithActivitySink(activitymap.LogrusSink(logger)),
		auth.WithPasswordHasher(hasher),
		auth.WithAvatarPipeline(auth.NewAvatarPipeline(cfg.GetAvatarMaxBytes(), cfg.GetAvatarSize())),
		auth.WithOperationTimeout(cfg.GetOperationTimeout()),
		auth.WithGenericLoginErrors(cfg.GetGenericLoginErrors()),
	)

	auther, err := auth.NewHTTPAuthenticator(accounts, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	auther.WithLogger(authLogger)

	engine, err := auth.NewViewEngine(cfg.Debug)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("views: %w", err)
	}

	srv := fiber.New(fiber.Config{
		AppName:               "go-account",
		Views:                 engine,
		PassLocalsToViews:     true,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if ferr, ok := err.(*fiber.Error); ok {
				return c.Status(ferr.Code).JSON(fiber.Map{"error": ferr.Message})
			}
			return auther.ErrorHandler(c, err)
		},
	})

	srv.Use(recover.New())
	srv.Use(requestid.New())

	controller := auth.NewUserController(accounts, auther,
		auth.WithControllerDebug(cfg.Debug),
		auth.WithControllerLogger(authLogger),
	)
	auth.RegisterUserRoutes(srv, controller)

	return &App{
		HTTP:   srv,
		db:     db,
		mail:   mail,
		logger: logger,
	}, nil
}

// Shutdown stops accepting requests, waits for queued mail and closes
// the database.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.HTTP.ShutdownWithContext(ctx)

	done := make(chan struct{})
	go func() {
		a.mail.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("Shutdown timed out waiting for mail delivery")
	}

	if cerr := a.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
