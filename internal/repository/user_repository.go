package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrUsernameAlreadyExists = errors.New("username already exists")
)

const userColumns = `id, username, password_hash, role, student_id,
	two_factor_enabled, two_factor_secret, backup_codes,
	failed_login_attempts, account_locked, lock_expires_at,
	password_reset_token, password_reset_expires,
	max_sessions, session_timeout_secs, last_login_at, created_at, updated_at`

// UserRepository defines the interface for credential-store access
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)

	// RecordFailedLogin atomically increments the failed-attempt counter and
	// flips the account into the locked state once maxAttempts is reached.
	// Returns whether the account is now locked.
	RecordFailedLogin(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) (bool, error)
	// ResetLoginState clears the failed-attempt counter and lock fields and
	// stamps last_login_at.
	ResetLoginState(ctx context.Context, id uuid.UUID) error

	SetTwoFactorSecret(ctx context.Context, id uuid.UUID, secret string, hashedBackupCodes []string) error
	EnableTwoFactor(ctx context.Context, id uuid.UUID) error
	DisableTwoFactor(ctx context.Context, id uuid.UUID) error
	RemoveBackupCode(ctx context.Context, id uuid.UUID, hashedCode string) error

	SetPasswordResetToken(ctx context.Context, id uuid.UUID, token string, expires time.Time) error
	GetByResetToken(ctx context.Context, token string) (*User, error)
	// UpdatePassword replaces the password hash and clears reset-token,
	// lock, and failed-attempt state in one statement.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// userRepository implements UserRepository using PostgreSQL
type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.StudentID,
		&user.TwoFactorEnabled,
		&user.TwoFactorSecret,
		&user.BackupCodes,
		&user.FailedLoginAttempts,
		&user.AccountLocked,
		&user.LockExpiresAt,
		&user.PasswordResetToken,
		&user.PasswordResetExpires,
		&user.MaxSessions,
		&user.SessionTimeoutSecs,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Create inserts a new credential record
func (r *userRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (username, password_hash, role, student_id, max_sessions, session_timeout_secs)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, 0), 5), COALESCE(NULLIF($6, 0), 86400))
		RETURNING id, max_sessions, session_timeout_secs, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		user.Username,
		user.PasswordHash,
		user.Role,
		user.StudentID,
		user.MaxSessions,
		user.SessionTimeoutSecs,
	).Scan(&user.ID, &user.MaxSessions, &user.SessionTimeoutSecs, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err, "users_username_key") {
			return ErrUsernameAlreadyExists
		}
		return err
	}

	return nil
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetByUsername retrieves a user by username
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.pool.QueryRow(ctx, query, username))
}

// UsernameExists checks whether a username is already registered
func (r *userRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, username).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// RecordFailedLogin increments failed_login_attempts in a single UPDATE so
// concurrent failed attempts against the same account cannot lose updates.
func (r *userRepository) RecordFailedLogin(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) (bool, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    account_locked = (failed_login_attempts + 1 >= $2),
		    lock_expires_at = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN $3
		        ELSE lock_expires_at
		    END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING account_locked
	`

	var locked bool
	err := r.pool.QueryRow(ctx, query, id, maxAttempts, lockUntil).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, err
	}
	return locked, nil
}

// ResetLoginState clears lock and counter state after a successful authentication
func (r *userRepository) ResetLoginState(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0,
		    account_locked = FALSE,
		    lock_expires_at = NULL,
		    last_login_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetTwoFactorSecret stores a freshly generated secret and hashed backup codes.
// The enabled flag stays false until the user confirms with a valid code.
func (r *userRepository) SetTwoFactorSecret(ctx context.Context, id uuid.UUID, secret string, hashedBackupCodes []string) error {
	query := `
		UPDATE users
		SET two_factor_secret = $2,
		    backup_codes = $3,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, secret, hashedBackupCodes)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// EnableTwoFactor flips the enabled flag for a user with a stored secret
func (r *userRepository) EnableTwoFactor(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET two_factor_enabled = TRUE,
		    updated_at = NOW()
		WHERE id = $1 AND two_factor_secret IS NOT NULL
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DisableTwoFactor clears the secret, flag, and any remaining backup codes
func (r *userRepository) DisableTwoFactor(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET two_factor_enabled = FALSE,
		    two_factor_secret = NULL,
		    backup_codes = '{}',
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RemoveBackupCode deletes a consumed backup-code hash from the user's set,
// enforcing single use.
func (r *userRepository) RemoveBackupCode(ctx context.Context, id uuid.UUID, hashedCode string) error {
	query := `
		UPDATE users
		SET backup_codes = array_remove(backup_codes, $2),
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, hashedCode)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetPasswordResetToken stores a single-use reset token with its expiry
func (r *userRepository) SetPasswordResetToken(ctx context.Context, id uuid.UUID, token string, expires time.Time) error {
	query := `
		UPDATE users
		SET password_reset_token = $2,
		    password_reset_expires = $3,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, token, expires)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetByResetToken retrieves the user holding an unexpired reset token
func (r *userRepository) GetByResetToken(ctx context.Context, token string) (*User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE password_reset_token = $1 AND password_reset_expires > NOW()`
	return scanUser(r.pool.QueryRow(ctx, query, token))
}

// UpdatePassword replaces the hash and clears reset and lock state together
func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2,
		    password_reset_token = NULL,
		    password_reset_expires = NULL,
		    failed_login_attempts = 0,
		    account_locked = FALSE,
		    lock_expires_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
