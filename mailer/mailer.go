package mailer

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

const (
	SubjectWelcome      = "Thanks for joining in!"
	SubjectCancellation = "Delete Confirmed"
)

// Mailer sends the account notifications.
type Mailer interface {
	SendWelcome(ctx context.Context, to, name string) error
	SendCancellation(ctx context.Context, to, name string) error
}

// Config holds the SMTP settings
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Enabled reports whether enough is set to reach a server.
func (c Config) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// SMTPMailer sends through an SMTP relay
type SMTPMailer struct {
	cfg    Config
	logger *logrus.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewSMTPMailer creates a new SMTP mailer
func NewSMTPMailer(cfg Config, logger *logrus.Logger) *SMTPMailer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SMTPMailer{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// SendWelcome greets a new account holder
func (s *SMTPMailer) SendWelcome(ctx context.Context, to, name string) error {
	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = []string{to}
	e.Subject = SubjectWelcome
	e.Text = []byte(fmt.Sprintf(
		"Welcome to the app, %s. Let me know how you get along with the app.", name,
	))
	return s.deliver(ctx, e)
}

// SendCancellation confirms that an account was removed
func (s *SMTPMailer) SendCancellation(ctx context.Context, to, name string) error {
	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = []string{to}
	e.Subject = SubjectCancellation
	e.HTML = []byte(fmt.Sprintf(
		"<p>Hi %s.</p> <br> <p>Your account has been removed from our database along with your %s.</p>",
		html.EscapeString(name), html.EscapeString(to),
	))
	return s.deliver(ctx, e)
}

func (s *SMTPMailer) deliver(ctx context.Context, e *email.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %v: %v", e.To, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %v: %s", e.To, e.Subject)
	return nil
}

// Noop drops every message. Used when SMTP is not configured.
type Noop struct {
	Logger *logrus.Logger
}

func (n Noop) SendWelcome(_ context.Context, to, _ string) error {
	n.log(SubjectWelcome, to)
	return nil
}

func (n Noop) SendCancellation(_ context.Context, to, _ string) error {
	n.log(SubjectCancellation, to)
	return nil
}

func (n Noop) log(subject, to string) {
	if n.Logger == nil {
		return
	}
	n.Logger.WithFields(logrus.Fields{"to": to, "subject": subject}).Debug("mailer disabled, message dropped")
}

// New returns an SMTP mailer when cfg is usable and a Noop otherwise.
func New(cfg Config, logger *logrus.Logger) Mailer {
	if !cfg.Enabled() {
		return Noop{Logger: logger}
	}
	return NewSMTPMailer(cfg, logger)
}
