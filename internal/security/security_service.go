// Package security implements the self-service security surface: 2FA setup
// and teardown, the password-reset flow, session review and revocation, and
// audit log access.
package security

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/audit"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/auth"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/config"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/mailer"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/repository"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/session"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/totp"
)

// Security service errors
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrInvalidResetToken     = errors.New("invalid or expired reset token")
	ErrTwoFactorAlreadySetup = errors.New("two-factor authentication already enabled")
	ErrTwoFactorNotSetup     = errors.New("two-factor authentication not set up")
	ErrTwoFactorNotEnabled   = errors.New("two-factor authentication not enabled")
	ErrInvalidTwoFactorCode  = errors.New("invalid two-factor code")
	ErrSessionNotOwned       = errors.New("session does not belong to caller")
	ErrSessionNotFound       = errors.New("session not found")
)

const (
	resetTokenBytes = 32
	totpIssuer      = "StudentID"
)

// TwoFactorSetup is returned exactly once from SetupTwoFactor; the plaintext
// secret and backup codes are never retrievable again.
type TwoFactorSetup struct {
	Secret      string   `json:"secret"`
	BackupCodes []string `json:"backupCodes"`
	QRCode      string   `json:"qrCode"`
	EmailSent   bool     `json:"emailSent"`
}

// Service sequences the security sub-flows around the credential store
type Service struct {
	userRepo  repository.UserRepository
	sessions  *session.Service
	audit     *audit.Service
	mail      mailer.Mailer
	passwords *auth.PasswordValidator
	cfg       config.SecurityConfig
	logger    *slog.Logger
}

// NewService creates a new security Service instance
func NewService(
	userRepo repository.UserRepository,
	sessions *session.Service,
	auditLog *audit.Service,
	mail mailer.Mailer,
	passwords *auth.PasswordValidator,
	cfg config.SecurityConfig,
	logger *slog.Logger,
) *Service {
	if mail == nil {
		mail = mailer.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo:  userRepo,
		sessions:  sessions,
		audit:     auditLog,
		mail:      mail,
		passwords: passwords,
		cfg:       cfg,
		logger:    logger,
	}
}

// ForgotPassword issues a single-use, time-limited reset token and attempts
// email delivery. The token is persisted before the email is sent: a delivery
// failure is surfaced as emailSent=false but never rolls the token back.
func (s *Service) ForgotPassword(ctx context.Context, username, ipAddress, userAgent string) (bool, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.audit.Record(ctx, nil, repository.EventPasswordReset, ipAddress, userAgent,
				repository.StatusFailed, "user not found")
			return false, ErrUserNotFound
		}
		return false, err
	}

	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return false, fmt.Errorf("failed to generate reset token: %w", err)
	}
	token := hex.EncodeToString(buf)
	expires := time.Now().UTC().Add(s.cfg.ResetTokenExpiry)

	if err := s.userRepo.SetPasswordResetToken(ctx, user.ID, token, expires); err != nil {
		return false, err
	}

	emailSent := true
	if err := s.mail.SendPasswordReset(ctx, user.Username, token); err != nil {
		emailSent = false
	}

	s.audit.Record(ctx, &user.ID, repository.EventPasswordReset, ipAddress, userAgent,
		repository.StatusSuccess, "reset token issued")
	return emailSent, nil
}

// ResetPassword consumes an unexpired reset token and replaces the password.
// The token is single-use: consuming it clears it, so a second call with the
// same token fails. All sessions are revoked since their credentials predate
// the new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword, ipAddress, userAgent string) ([]auth.PasswordValidationError, error) {
	user, err := s.userRepo.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.audit.Record(ctx, nil, repository.EventPasswordReset, ipAddress, userAgent,
				repository.StatusFailed, "invalid or expired token")
			return nil, ErrInvalidResetToken
		}
		return nil, err
	}

	if validationErrors := s.passwords.ValidatePassword(newPassword); len(validationErrors) > 0 {
		return validationErrors, nil
	}

	passwordHash, err := s.passwords.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return nil, err
	}

	if err := s.sessions.InvalidateAllForUser(ctx, user.ID); err != nil {
		s.logger.Warn("session revocation after password reset failed", "user_id", user.ID, "error", err)
	}

	s.audit.Record(ctx, &user.ID, repository.EventPasswordReset, ipAddress, userAgent,
		repository.StatusSuccess, "password changed")
	return nil, nil
}

// SetupTwoFactor generates a fresh secret and backup codes, persists the
// secret and code hashes, and returns the plaintext material exactly once.
// The enabled flag stays false until EnableTwoFactor confirms possession.
func (s *Service) SetupTwoFactor(ctx context.Context, userID uuid.UUID, ipAddress, userAgent string) (*TwoFactorSetup, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadySetup
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	backupCodes, err := totp.GenerateBackupCodes(totp.DefaultBackupCodeCount)
	if err != nil {
		return nil, err
	}

	hashedCodes := make([]string, 0, len(backupCodes))
	for _, code := range backupCodes {
		hash, err := totp.HashBackupCode(code)
		if err != nil {
			return nil, err
		}
		hashedCodes = append(hashedCodes, hash)
	}

	if err := s.userRepo.SetTwoFactorSecret(ctx, user.ID, secret, hashedCodes); err != nil {
		return nil, err
	}

	uri := totp.ProvisioningURI(totpIssuer, user.Username, secret)

	emailSent := true
	if err := s.mail.SendTwoFactorSetup(ctx, user.Username, secret, uri); err != nil {
		emailSent = false
	}

	return &TwoFactorSetup{
		Secret:      secret,
		BackupCodes: backupCodes,
		QRCode:      uri,
		EmailSent:   emailSent,
	}, nil
}

// EnableTwoFactor flips the enabled flag after the user proves possession of
// the freshly stored secret with a valid code.
func (s *Service) EnableTwoFactor(ctx context.Context, userID uuid.UUID, code, ipAddress, userAgent string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.TwoFactorSecret == nil {
		return ErrTwoFactorNotSetup
	}

	if !totp.VerifyCode(*user.TwoFactorSecret, code, time.Now(), s.cfg.TOTPTimeStep, s.cfg.TOTPWindow) {
		s.audit.Record(ctx, &user.ID, repository.EventTwoFactorEnabled, ipAddress, userAgent,
			repository.StatusFailed, "invalid code")
		return ErrInvalidTwoFactorCode
	}

	if err := s.userRepo.EnableTwoFactor(ctx, user.ID); err != nil {
		return err
	}

	s.audit.Record(ctx, &user.ID, repository.EventTwoFactorEnabled, ipAddress, userAgent,
		repository.StatusSuccess, "")
	return nil
}

// DisableTwoFactor clears the secret, flag, and backup codes after a valid
// code confirms the request.
func (s *Service) DisableTwoFactor(ctx context.Context, userID uuid.UUID, code, ipAddress, userAgent string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return ErrTwoFactorNotEnabled
	}

	if !totp.VerifyCode(*user.TwoFactorSecret, code, time.Now(), s.cfg.TOTPTimeStep, s.cfg.TOTPWindow) {
		s.audit.Record(ctx, &user.ID, repository.EventTwoFactorDisabled, ipAddress, userAgent,
			repository.StatusFailed, "invalid code")
		return ErrInvalidTwoFactorCode
	}

	if err := s.userRepo.DisableTwoFactor(ctx, user.ID); err != nil {
		return err
	}

	s.audit.Record(ctx, &user.ID, repository.EventTwoFactorDisabled, ipAddress, userAgent,
		repository.StatusSuccess, "")
	return nil
}

// Sessions lists the caller's active sessions for device review
func (s *Service) Sessions(ctx context.Context, userID uuid.UUID) ([]session.Info, error) {
	return s.sessions.ListForUser(ctx, userID)
}

// RevokeSession invalidates one session. Callers may only revoke their own
// sessions; operators may revoke any.
func (s *Service) RevokeSession(ctx context.Context, userID uuid.UUID, role, sessionID, ipAddress, userAgent string) error {
	rec, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrInvalidSession) {
			return ErrSessionNotFound
		}
		return err
	}

	if rec.UserID != userID && role != repository.RoleOperator {
		return ErrSessionNotOwned
	}

	if err := s.sessions.Invalidate(ctx, sessionID); err != nil {
		return err
	}

	s.audit.Record(ctx, &userID, repository.EventLogout, ipAddress, userAgent,
		repository.StatusSuccess, "session invalidated")
	return nil
}

// Logs returns a page of the caller's audit trail
func (s *Service) Logs(ctx context.Context, userID uuid.UUID, page, limit int) (*audit.LogPage, error) {
	return s.audit.Logs(ctx, userID, page, limit)
}

// CleanSessions purges all expired sessions. Routed operator-only.
func (s *Service) CleanSessions(ctx context.Context) (int64, error) {
	return s.sessions.CleanExpired(ctx)
}
