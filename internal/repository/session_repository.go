package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session repository errors
var (
	ErrSessionNotFound = errors.New("session not found")
)

const sessionColumns = `id, session_id, user_id, token_hash, ip_address, user_agent,
	device_info, location, is_active, last_activity, created_at, expires_at`

// SessionRepository defines the interface for session data access
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	// Validate atomically gates on (session_id, token_hash, active, unexpired)
	// and bumps last_activity. It does not extend expires_at.
	Validate(ctx context.Context, sessionID, tokenHash string) (*Session, error)
	GetBySessionID(ctx context.Context, sessionID string) (*Session, error)
	// Invalidate marks a session inactive. Idempotent: a second call, or a
	// call for an unknown session, is a no-op.
	Invalidate(ctx context.Context, sessionID string) error
	InvalidateAllForUser(ctx context.Context, userID uuid.UUID) error
	ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]Session, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// sessionRepository implements SessionRepository using PostgreSQL
type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*Session, error) {
	session := &Session{}
	err := row.Scan(
		&session.ID,
		&session.SessionID,
		&session.UserID,
		&session.TokenHash,
		&session.IPAddress,
		&session.UserAgent,
		&session.DeviceInfo,
		&session.Location,
		&session.IsActive,
		&session.LastActivity,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// Create inserts a new active session
func (r *sessionRepository) Create(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (session_id, user_id, token_hash, ip_address, user_agent, device_info, location, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, is_active, last_activity, created_at
	`

	return r.pool.QueryRow(ctx, query,
		session.SessionID,
		session.UserID,
		session.TokenHash,
		session.IPAddress,
		session.UserAgent,
		session.DeviceInfo,
		session.Location,
		session.ExpiresAt,
	).Scan(&session.ID, &session.IsActive, &session.LastActivity, &session.CreatedAt)
}

// Validate performs the liveness gate and activity bump in one statement
func (r *sessionRepository) Validate(ctx context.Context, sessionID, tokenHash string) (*Session, error) {
	query := `
		UPDATE sessions
		SET last_activity = NOW()
		WHERE session_id = $1
		  AND token_hash = $2
		  AND is_active = TRUE
		  AND expires_at > NOW()
		RETURNING ` + sessionColumns

	return scanSession(r.pool.QueryRow(ctx, query, sessionID, tokenHash))
}

// GetBySessionID retrieves a session regardless of its state
func (r *sessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = $1`
	return scanSession(r.pool.QueryRow(ctx, query, sessionID))
}

// Invalidate marks Active -> Invalidated
func (r *sessionRepository) Invalidate(ctx context.Context, sessionID string) error {
	query := `UPDATE sessions SET is_active = FALSE WHERE session_id = $1`

	_, err := r.pool.Exec(ctx, query, sessionID)
	return err
}

// InvalidateAllForUser revokes every session owned by a user
func (r *sessionRepository) InvalidateAllForUser(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE sessions SET is_active = FALSE WHERE user_id = $1 AND is_active = TRUE`

	_, err := r.pool.Exec(ctx, query, userID)
	return err
}

// ListActiveForUser returns active, unexpired sessions most-recently-active first
func (r *sessionRepository) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND is_active = TRUE AND expires_at > NOW()
		ORDER BY last_activity DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session := Session{}
		if err := rows.Scan(
			&session.ID,
			&session.SessionID,
			&session.UserID,
			&session.TokenHash,
			&session.IPAddress,
			&session.UserAgent,
			&session.DeviceInfo,
			&session.Location,
			&session.IsActive,
			&session.LastActivity,
			&session.CreatedAt,
			&session.ExpiresAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// DeleteExpired removes all sessions past their expiry. Safe to run
// concurrently with normal traffic: only already-expired rows are touched.
func (r *sessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < NOW()`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
