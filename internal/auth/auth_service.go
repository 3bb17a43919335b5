package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/audit"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/config"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/metrics"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/notifier"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/repository"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/session"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/totp"
)

// Auth service errors
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountLocked        = errors.New("account temporarily locked")
	ErrPRNExists            = errors.New("student with this PRN already exists")
	ErrTwoFactorNotEnabled  = errors.New("two-factor authentication not enabled")
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	ErrInvalidBackupCode    = errors.New("invalid backup code")
	ErrValidation           = errors.New("invalid request")
)

// Error codes for API responses
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodePRNExists          = "PRN_EXISTS"
	CodeTwoFactorRequired  = "TWO_FACTOR_REQUIRED"
	CodeForbidden          = "FORBIDDEN"
	CodeTokenInvalid       = "AUTH_TOKEN_INVALID"
	CodeInternalError      = "INTERNAL_ERROR"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents the student registration payload
type RegisterRequest struct {
	Name         string `json:"name" validate:"required"`
	Branch       string `json:"branch" validate:"required"`
	DOB          string `json:"dob" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	AcademicYear string `json:"ac_year" validate:"required"`
	Address      string `json:"address" validate:"required"`
	PRN          string `json:"prn" validate:"required"`
	Password     string `json:"password" validate:"required"`
}

// TwoFactorRequest represents the pre-session TOTP verification payload
type TwoFactorRequest struct {
	Username string `json:"username" validate:"required"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

// BackupCodeRequest represents the pre-session backup code payload
type BackupCodeRequest struct {
	Username   string `json:"username" validate:"required"`
	BackupCode string `json:"backupCode" validate:"required"`
}

// LoginResult is the outcome of a successful authentication step.
// When RequiresTwoFactor is set, no token or session has been issued yet and
// the client must complete the challenge via verify-2fa or use-backup-code.
type LoginResult struct {
	RequiresTwoFactor bool   `json:"requires_2fa,omitempty"`
	Token             string `json:"token,omitempty"`
	Role              string `json:"role,omitempty"`
	SessionID         string `json:"session_id,omitempty"`
}

// ValidationError represents a validation error with field details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Service sequences credential verification, the optional 2FA challenge,
// lockout policy, session issuance, and audit logging.
type Service struct {
	userRepo    repository.UserRepository
	studentRepo repository.StudentRepository
	sessions    *session.Service
	audit       *audit.Service
	tokens      *TokenService
	passwords   *PasswordValidator
	notify      notifier.Notifier
	validate    *validator.Validate
	cfg         config.SecurityConfig
	logger      *slog.Logger
}

// NewService creates a new auth Service instance
func NewService(
	userRepo repository.UserRepository,
	studentRepo repository.StudentRepository,
	sessions *session.Service,
	auditLog *audit.Service,
	tokens *TokenService,
	passwords *PasswordValidator,
	notify notifier.Notifier,
	cfg config.SecurityConfig,
	logger *slog.Logger,
) *Service {
	if notify == nil {
		notify = notifier.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo:    userRepo,
		studentRepo: studentRepo,
		sessions:    sessions,
		audit:       auditLog,
		tokens:      tokens,
		passwords:   passwords,
		notify:      notify,
		validate:    validator.New(),
		cfg:         cfg,
		logger:      logger,
	}
}

// StudentLogin authenticates a student credential
func (s *Service) StudentLogin(ctx context.Context, req LoginRequest, ipAddress, userAgent string) (*LoginResult, error) {
	return s.login(ctx, req, repository.RoleStudent, ipAddress, userAgent)
}

// OperatorLogin authenticates an operator credential. Operators go through
// the same credential store and lockout policy as students; there is no
// fixed-credential bypass.
func (s *Service) OperatorLogin(ctx context.Context, req LoginRequest, ipAddress, userAgent string) (*LoginResult, error) {
	return s.login(ctx, req, repository.RoleOperator, ipAddress, userAgent)
}

func (s *Service) login(ctx context.Context, req LoginRequest, requiredRole, ipAddress, userAgent string) (*LoginResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, ErrValidation
	}

	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Unknown usernames are logged with a nil user and answered with
			// the same generic message as a bad password (anti-enumeration).
			s.audit.Record(ctx, nil, repository.EventLoginFailed, ipAddress, userAgent,
				repository.StatusFailed, "unknown username")
			metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.Role != requiredRole {
		s.audit.Record(ctx, &user.ID, repository.EventLoginFailed, ipAddress, userAgent,
			repository.StatusFailed, "role mismatch")
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	// The lock gate comes before any credential processing: a locked account
	// rejects even the correct password until the lock expires.
	if s.isLocked(user) {
		s.audit.Record(ctx, &user.ID, repository.EventLoginFailed, ipAddress, userAgent,
			repository.StatusBlocked, "account locked")
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, ErrAccountLocked
	}

	if err := s.passwords.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		s.recordFailedAttempt(ctx, user, ipAddress, userAgent, "password mismatch")
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	if user.TwoFactorEnabled {
		metrics.LoginAttemptsTotal.WithLabelValues("2fa_required").Inc()
		return &LoginResult{RequiresTwoFactor: true, Role: user.Role}, nil
	}

	return s.issueSession(ctx, user, ipAddress, userAgent, "")
}

// VerifyTwoFactor completes a challenged login with a TOTP code.
// Verification against the shared secret is stateless; a code may verify more
// than once within its window (no replay cache, matching the lockout policy's
// scope).
func (s *Service) VerifyTwoFactor(ctx context.Context, req TwoFactorRequest, ipAddress, userAgent string) (*LoginResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, ErrValidation
	}

	user, err := s.challengedUser(ctx, req.Username, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	if !totp.VerifyCode(*user.TwoFactorSecret, req.Code, time.Now(), s.cfg.TOTPTimeStep, s.cfg.TOTPWindow) {
		s.recordFailedAttempt(ctx, user, ipAddress, userAgent, "invalid 2FA code")
		metrics.TwoFactorVerificationsTotal.WithLabelValues("totp", "failed").Inc()
		return nil, ErrInvalidTwoFactorCode
	}

	metrics.TwoFactorVerificationsTotal.WithLabelValues("totp", "success").Inc()
	return s.issueSession(ctx, user, ipAddress, userAgent, "2FA verified")
}

// UseBackupCode completes a challenged login with a single-use backup code.
// The matching hash is removed from the user's set before the session is
// issued, so the same code can never be accepted twice.
func (s *Service) UseBackupCode(ctx context.Context, req BackupCodeRequest, ipAddress, userAgent string) (*LoginResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, ErrValidation
	}

	user, err := s.challengedUser(ctx, req.Username, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	code := strings.ToUpper(strings.TrimSpace(req.BackupCode))
	var consumed string
	for _, hash := range user.BackupCodes {
		if totp.VerifyBackupCode(code, hash) {
			consumed = hash
			break
		}
	}

	if consumed == "" {
		s.recordFailedAttempt(ctx, user, ipAddress, userAgent, "invalid backup code")
		metrics.TwoFactorVerificationsTotal.WithLabelValues("backup_code", "failed").Inc()
		return nil, ErrInvalidBackupCode
	}

	if err := s.userRepo.RemoveBackupCode(ctx, user.ID, consumed); err != nil {
		return nil, err
	}

	metrics.TwoFactorVerificationsTotal.WithLabelValues("backup_code", "success").Inc()
	return s.issueSession(ctx, user, ipAddress, userAgent, "backup code used")
}

// challengedUser loads and gates a user completing the second factor. The
// lockout policy applies to challenge submissions exactly as to passwords.
func (s *Service) challengedUser(ctx context.Context, username, ipAddress, userAgent string) (*repository.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.audit.Record(ctx, nil, repository.EventLoginFailed, ipAddress, userAgent,
				repository.StatusFailed, "unknown username")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return nil, ErrTwoFactorNotEnabled
	}

	if s.isLocked(user) {
		s.audit.Record(ctx, &user.ID, repository.EventLoginFailed, ipAddress, userAgent,
			repository.StatusBlocked, "account locked")
		return nil, ErrAccountLocked
	}

	return user, nil
}

// Register creates a student profile and its credential record
func (s *Service) Register(ctx context.Context, req RegisterRequest) ([]ValidationError, error) {
	var validationErrors []ValidationError

	if err := s.validate.Struct(req); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, fe := range fieldErrors {
				validationErrors = append(validationErrors, ValidationError{
					Field:   strings.ToLower(fe.Field()),
					Message: "This field is required",
				})
			}
			return validationErrors, nil
		}
		return nil, ErrValidation
	}

	dob, err := time.Parse("2006-01-02", req.DOB)
	if err != nil {
		validationErrors = append(validationErrors, ValidationError{
			Field:   "dob",
			Message: "Date of birth must be in YYYY-MM-DD format",
		})
	}

	for _, pe := range s.passwords.ValidatePassword(req.Password) {
		validationErrors = append(validationErrors, ValidationError{
			Field:   pe.Field,
			Message: pe.Message,
		})
	}

	if len(validationErrors) > 0 {
		return validationErrors, nil
	}

	prn := strings.TrimSpace(req.PRN)
	exists, err := s.studentRepo.PRNExists(ctx, prn)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrPRNExists
	}

	passwordHash, err := s.passwords.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	student := &repository.Student{
		Name:         req.Name,
		Branch:       req.Branch,
		DOB:          dob,
		Phone:        req.Phone,
		AcademicYear: req.AcademicYear,
		Address:      req.Address,
		PRN:          prn,
	}
	if err := s.studentRepo.Create(ctx, student); err != nil {
		if errors.Is(err, repository.ErrPRNAlreadyExists) {
			return nil, ErrPRNExists
		}
		return nil, err
	}

	user := &repository.User{
		Username:     prn,
		PasswordHash: passwordHash,
		Role:         repository.RoleStudent,
		StudentID:    &student.ID,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameAlreadyExists) {
			return nil, ErrPRNExists
		}
		return nil, err
	}

	s.logger.Info("student registered", "prn", prn, "user_id", user.ID)
	return nil, nil
}

// issueSession is the terminal step of a successful authentication: lock and
// counter state are cleared, a session is created under the per-user timeout,
// the session cap is enforced, and the success is audited.
func (s *Service) issueSession(ctx context.Context, user *repository.User, ipAddress, userAgent, details string) (*LoginResult, error) {
	if err := s.userRepo.ResetLoginState(ctx, user.ID); err != nil {
		return nil, err
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return nil, err
	}

	sessionID, err := s.sessions.Create(ctx, user.ID, token, ipAddress, userAgent, user.SessionTimeout(s.cfg.SessionTimeout))
	if err != nil {
		return nil, err
	}

	maxSessions := user.MaxSessions
	if maxSessions <= 0 {
		maxSessions = s.cfg.MaxSessions
	}
	if err := s.sessions.EnforceSessionCap(ctx, user.ID, maxSessions); err != nil {
		s.logger.Warn("session cap enforcement failed", "user_id", user.ID, "error", err)
	}

	s.audit.Record(ctx, &user.ID, repository.EventLogin, ipAddress, userAgent,
		repository.StatusSuccess, details)
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()

	return &LoginResult{
		Token:     token,
		Role:      user.Role,
		SessionID: sessionID,
	}, nil
}

func (s *Service) isLocked(user *repository.User) bool {
	return user.AccountLocked &&
		user.LockExpiresAt != nil &&
		time.Now().UTC().Before(*user.LockExpiresAt)
}

// recordFailedAttempt applies the lockout policy for one failed credential or
// challenge submission. The counter update is a single atomic statement in
// the store, so concurrent failures cannot lose increments.
func (s *Service) recordFailedAttempt(ctx context.Context, user *repository.User, ipAddress, userAgent, details string) {
	lockUntil := time.Now().UTC().Add(s.cfg.LockDuration)
	locked, err := s.userRepo.RecordFailedLogin(ctx, user.ID, s.cfg.MaxFailedAttempts, lockUntil)
	if err != nil {
		s.logger.Error("failed-attempt accounting failed", "user_id", user.ID, "error", err)
	}

	s.audit.Record(ctx, &user.ID, repository.EventLoginFailed, ipAddress, userAgent,
		repository.StatusFailed, details)

	if locked {
		metrics.AccountLockoutsTotal.Inc()
		// Locking an account revokes everything it has open.
		if err := s.sessions.InvalidateAllForUser(ctx, user.ID); err != nil {
			s.logger.Error("session revocation on lockout failed", "user_id", user.ID, "error", err)
		}
		s.audit.Record(ctx, &user.ID, repository.EventSuspiciousActivity, ipAddress, userAgent,
			repository.StatusBlocked, "account locked after repeated failures")
		s.notify.SendToUser(user.ID.String(), notifier.NewMessage("security_alert", map[string]string{
			"message": "Your account was temporarily locked after repeated failed login attempts.",
		}))
	}
}
