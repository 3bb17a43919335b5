// Package mailer provides the outbound email capability for password-reset
// and 2FA-setup notices. Delivery is best-effort: callers surface the outcome
// as emailSent and never roll back state when delivery fails.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/config"
)

// Mailer errors
var (
	ErrNotConfigured = errors.New("smtp transport not configured")
)

// Mailer is the capability for sending security notices
type Mailer interface {
	SendPasswordReset(ctx context.Context, recipient, resetToken string) error
	SendTwoFactorSetup(ctx context.Context, recipient, secret, provisioningURI string) error
}

// SMTPMailer sends notices over a plain SMTP relay
type SMTPMailer struct {
	cfg    config.MailConfig
	logger *slog.Logger
}

// NewSMTPMailer creates a new SMTPMailer instance
func NewSMTPMailer(cfg config.MailConfig, logger *slog.Logger) *SMTPMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPMailer{cfg: cfg, logger: logger}
}

// SendPasswordReset emails the single-use reset link
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, recipient, resetToken string) error {
	resetURL := fmt.Sprintf("%s?token=%s", m.cfg.ResetURL, resetToken)
	body := strings.Join([]string{
		"You requested a password reset for your Student ID Portal account.",
		"",
		"Open the link below to choose a new password:",
		resetURL,
		"",
		"The link expires in 1 hour. If you didn't request this, ignore this email.",
	}, "\r\n")

	return m.send(ctx, recipient, "Password Reset Request", body)
}

// SendTwoFactorSetup emails the freshly generated shared secret
func (m *SMTPMailer) SendTwoFactorSetup(ctx context.Context, recipient, secret, provisioningURI string) error {
	body := strings.Join([]string{
		"Two-factor authentication setup for your Student ID Portal account.",
		"",
		"Secret key: " + secret,
		"Authenticator URI: " + provisioningURI,
		"",
		"Add the secret to your authenticator app and keep it private.",
	}, "\r\n")

	return m.send(ctx, recipient, "Two-Factor Authentication Setup", body)
}

func (m *SMTPMailer) send(ctx context.Context, recipient, subject, body string) error {
	if m.cfg.Host == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + recipient,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := m.cfg.Host + ":" + m.cfg.Port
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{recipient}, []byte(msg)); err != nil {
		m.logger.Warn("email delivery failed", "recipient", recipient, "subject", subject, "error", err)
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

// Noop is a Mailer that drops every message, for tests and mail-less deployments
type Noop struct{}

// SendPasswordReset implements Mailer
func (Noop) SendPasswordReset(context.Context, string, string) error { return nil }

// SendTwoFactorSetup implements Mailer
func (Noop) SendTwoFactorSetup(context.Context, string, string, string) error { return nil }
