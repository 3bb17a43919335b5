package repository

import (
	"time"

	"github.com/google/uuid"
)

// User roles
const (
	RoleStudent  = "student"
	RoleOperator = "operator"
)

// Security log event types
const (
	EventLogin              = "login"
	EventLogout             = "logout"
	EventLoginFailed        = "login_failed"
	EventPasswordReset      = "password_reset"
	EventTwoFactorEnabled   = "2fa_enabled"
	EventTwoFactorDisabled  = "2fa_disabled"
	EventSessionExpired     = "session_expired"
	EventSuspiciousActivity = "suspicious_activity"
)

// Security log statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusBlocked = "blocked"
)

// User represents a credential record in the database
type User struct {
	ID                   uuid.UUID  `db:"id"`
	Username             string     `db:"username"`
	PasswordHash         string     `db:"password_hash"`
	Role                 string     `db:"role"`
	StudentID            *uuid.UUID `db:"student_id"`
	TwoFactorEnabled     bool       `db:"two_factor_enabled"`
	TwoFactorSecret      *string    `db:"two_factor_secret"`
	BackupCodes          []string   `db:"backup_codes"`
	FailedLoginAttempts  int        `db:"failed_login_attempts"`
	AccountLocked        bool       `db:"account_locked"`
	LockExpiresAt        *time.Time `db:"lock_expires_at"`
	PasswordResetToken   *string    `db:"password_reset_token"`
	PasswordResetExpires *time.Time `db:"password_reset_expires"`
	MaxSessions          int        `db:"max_sessions"`
	SessionTimeoutSecs   int        `db:"session_timeout_secs"`
	LastLoginAt          *time.Time `db:"last_login_at"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

// SessionTimeout returns the per-user session lifetime, or fallback when the
// record carries no override.
func (u *User) SessionTimeout(fallback time.Duration) time.Duration {
	if u.SessionTimeoutSecs > 0 {
		return time.Duration(u.SessionTimeoutSecs) * time.Second
	}
	return fallback
}

// Student represents a student profile record in the database
type Student struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	Branch       string    `db:"branch"`
	DOB          time.Time `db:"dob"`
	Phone        string    `db:"phone"`
	AcademicYear string    `db:"academic_year"`
	Address      string    `db:"address"`
	PRN          string    `db:"prn"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Session represents a tracked authentication session in the database.
// The bearer token is never stored in plaintext; TokenHash holds its SHA-256.
type Session struct {
	ID           uuid.UUID `db:"id"`
	SessionID    string    `db:"session_id"`
	UserID       uuid.UUID `db:"user_id"`
	TokenHash    string    `db:"token_hash"`
	IPAddress    string    `db:"ip_address"`
	UserAgent    string    `db:"user_agent"`
	DeviceInfo   *string   `db:"device_info"`
	Location     *string   `db:"location"`
	IsActive     bool      `db:"is_active"`
	LastActivity time.Time `db:"last_activity"`
	CreatedAt    time.Time `db:"created_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// SecurityLog represents an append-only security audit entry.
// UserID is nullable: failed attempts against unknown usernames are still logged.
type SecurityLog struct {
	ID        uuid.UUID  `db:"id"`
	UserID    *uuid.UUID `db:"user_id"`
	EventType string     `db:"event_type"`
	IPAddress string     `db:"ip_address"`
	UserAgent string     `db:"user_agent"`
	Status    string     `db:"status"`
	Details   string     `db:"details"`
	CreatedAt time.Time  `db:"created_at"`
}

// Notice represents an announcement published to students and operators
type Notice struct {
	ID             uuid.UUID  `db:"id"`
	Title          string     `db:"title"`
	Content        string     `db:"content"`
	Category       string     `db:"category"`
	Priority       string     `db:"priority"`
	TargetAudience string     `db:"target_audience"`
	IsActive       bool       `db:"is_active"`
	CreatedBy      string     `db:"created_by"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	ExpiresAt      *time.Time `db:"expires_at"`
}
