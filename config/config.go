package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"

	auth "github.com/goliatone/go-account"
	"github.com/goliatone/go-account/mailer"
)

// Config holds application configuration read from the environment
type Config struct {
	Port     string `env:"PORT" envDefault:"3001"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
	Debug    bool   `env:"DEBUG" envDefault:"false"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN" envDefault:"file:accounts.db?cache=shared&_pragma=foreign_keys(1)"`

	SigningKey      string `env:"JWT_SECRET"`
	Issuer          string `env:"JWT_ISSUER" envDefault:"go-account"`
	TokenExpiration int    `env:"TOKEN_EXPIRATION" envDefault:"0"`
	TokenLookup     string `env:"TOKEN_LOOKUP"`
	AuthScheme      string `env:"AUTH_SCHEME" envDefault:"Bearer"`
	ContextKey      string `env:"CONTEXT_KEY" envDefault:"user"`

	RejectedRouteKey     string `env:"REJECTED_ROUTE_KEY" envDefault:"rejected_route"`
	RejectedRouteDefault string `env:"REJECTED_ROUTE_DEFAULT" envDefault:"/dashboard"`

	CookieName     string        `env:"COOKIE_NAME" envDefault:"jwt"`
	CookieMaxAge   time.Duration `env:"COOKIE_MAX_AGE" envDefault:"24h"`
	CookieSecure   bool          `env:"COOKIE_SECURE" envDefault:"false"`
	CookieHTTPOnly bool          `env:"COOKIE_HTTP_ONLY" envDefault:"true"`
	CookieSameSite string        `env:"COOKIE_SAME_SITE" envDefault:"Lax"`

	PasswordCost       int           `env:"PASSWORD_COST" envDefault:"12"`
	AvatarMaxBytes     int64         `env:"AVATAR_MAX_BYTES" envDefault:"1000000"`
	AvatarSize         int           `env:"AVATAR_SIZE" envDefault:"250"`
	OperationTimeout   time.Duration `env:"OPERATION_TIMEOUT" envDefault:"10s"`
	GenericLoginErrors bool          `env:"GENERIC_LOGIN_ERRORS" envDefault:"false"`
	UseHashID          bool          `env:"USE_HASHID" envDefault:"false"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`
}

var _ auth.Config = (*Config)(nil)

// Load reads the process environment
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the given variables instead of the process environment
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that have no usable default
func (c *Config) Validate() error {
	if c.SigningKey == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.DBDriver {
	case auth.DriverSQLite, auth.DriverPostgres:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", auth.DriverSQLite, auth.DriverPostgres, c.DBDriver)
	}

	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}

	if c.TokenExpiration < 0 {
		return fmt.Errorf("TOKEN_EXPIRATION must not be negative")
	}

	if c.AvatarMaxBytes <= 0 {
		return fmt.Errorf("AVATAR_MAX_BYTES must be positive")
	}

	if c.AvatarSize <= 0 {
		return fmt.Errorf("AVATAR_SIZE must be positive")
	}

	return nil
}

// Level resolves LOG_LEVEL, falling back to info for unknown names
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// Mailer returns the SMTP settings
func (c *Config) Mailer() mailer.Config {
	return mailer.Config{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.MailFrom,
	}
}

func (c *Config) GetSigningKey() string {
	return c.SigningKey
}

func (c *Config) GetIssuer() string {
	return c.Issuer
}

func (c *Config) GetTokenExpiration() int {
	return c.TokenExpiration
}

func (c *Config) GetContextKey() string {
	return c.ContextKey
}

func (c *Config) GetTokenLookup() string {
	return c.TokenLookup
}

func (c *Config) GetAuthScheme() string {
	return c.AuthScheme
}

func (c *Config) GetRejectedRouteKey() string {
	return c.RejectedRouteKey
}

func (c *Config) GetRejectedRouteDefault() string {
	return c.RejectedRouteDefault
}

func (c *Config) GetCookieName() string {
	return c.CookieName
}

func (c *Config) GetCookieMaxAge() time.Duration {
	return c.CookieMaxAge
}

func (c *Config) GetCookieSecure() bool {
	return c.CookieSecure
}

func (c *Config) GetCookieHTTPOnly() bool {
	return c.CookieHTTPOnly
}

func (c *Config) GetCookieSameSite() string {
	return c.CookieSameSite
}

func (c *Config) GetPasswordCost() int {
	return c.PasswordCost
}

func (c *Config) GetAvatarMaxBytes() int64 {
	return c.AvatarMaxBytes
}

func (c *Config) GetAvatarSize() int {
	return c.AvatarSize
}

func (c *Config) GetOperationTimeout() time.Duration {
	return c.OperationTimeout
}

func (c *Config) GetGenericLoginErrors() bool {
	return c.GenericLoginErrors
}

func (c *Config) GetUseHashID() bool {
	return c.UseHashID
}
