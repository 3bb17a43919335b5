// Package session implements the session lifecycle: issuance, the validation
// gate, revocation, and expiry cleanup. A session moves Active -> Expired by
// time or Active -> Invalidated by explicit action; both are terminal.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/metrics"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/repository"
)

// Session service errors
var (
	ErrInvalidSession = errors.New("invalid or expired session")
)

const sessionIDBytes = 32 // 256 bits

// Service manages tracked sessions on top of the session store
type Service struct {
	repo           repository.SessionRepository
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewService creates a new session Service instance
func NewService(repo repository.SessionRepository, defaultTimeout time.Duration, logger *slog.Logger) *Service {
	if defaultTimeout <= 0 {
		defaultTimeout = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:           repo,
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// HashToken returns the SHA-256 hex digest under which a bearer token is
// bound to its session. Raw tokens are never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create issues a new active session bound to the given token and returns
// its unguessable session ID.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, token, ipAddress, userAgent string, timeout time.Duration) (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	sessionID := hex.EncodeToString(buf)

	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	rec := &repository.Session{
		SessionID: sessionID,
		UserID:    userID,
		TokenHash: HashToken(token),
		IPAddress: ipAddress,
		UserAgent: userAgent,
		ExpiresAt: time.Now().UTC().Add(timeout),
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to persist session: %w", err)
	}

	metrics.SessionsCreatedTotal.Inc()
	return sessionID, nil
}

// Validate is the sole gate for treating a session as live. It matches the
// session ID and token, requires the Active state and an unexpired deadline,
// and updates last_activity. It does not extend expires_at.
func (s *Service) Validate(ctx context.Context, sessionID, token string) (*repository.Session, error) {
	rec, err := s.repo.Validate(ctx, sessionID, HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return rec, nil
}

// Invalidate marks a session inactive. Idempotent.
func (s *Service) Invalidate(ctx context.Context, sessionID string) error {
	return s.repo.Invalidate(ctx, sessionID)
}

// InvalidateAllForUser revokes all of a user's sessions, used on account lock
// and password reset.
func (s *Service) InvalidateAllForUser(ctx context.Context, userID uuid.UUID) error {
	return s.repo.InvalidateAllForUser(ctx, userID)
}

// Get retrieves a session by ID regardless of state, for ownership checks.
func (s *Service) Get(ctx context.Context, sessionID string) (*repository.Session, error) {
	rec, err := s.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return rec, nil
}

// Info is the API-facing view of an active session ("view my devices")
type Info struct {
	SessionID    string     `json:"session_id"`
	IPAddress    string     `json:"ip_address"`
	UserAgent    string     `json:"user_agent"`
	DeviceInfo   *string    `json:"device_info,omitempty"`
	Location     *string    `json:"location,omitempty"`
	LastActivity time.Time  `json:"last_activity"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

// ListForUser returns the user's active sessions, most-recently-active first
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Info, error) {
	sessions, err := s.repo.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(sessions))
	for _, rec := range sessions {
		infos = append(infos, Info{
			SessionID:    rec.SessionID,
			IPAddress:    rec.IPAddress,
			UserAgent:    rec.UserAgent,
			DeviceInfo:   rec.DeviceInfo,
			Location:     rec.Location,
			LastActivity: rec.LastActivity,
			CreatedAt:    rec.CreatedAt,
			ExpiresAt:    rec.ExpiresAt,
		})
	}
	return infos, nil
}

// EnforceSessionCap invalidates the oldest active sessions beyond maxSessions.
// The cap is policy applied here by the caller's configuration, not a store
// constraint.
func (s *Service) EnforceSessionCap(ctx context.Context, userID uuid.UUID, maxSessions int) error {
	if maxSessions <= 0 {
		return nil
	}

	sessions, err := s.repo.ListActiveForUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(sessions) <= maxSessions {
		return nil
	}

	// List is most-recently-active first; everything past the cap goes.
	for _, victim := range sessions[maxSessions:] {
		if err := s.repo.Invalidate(ctx, victim.SessionID); err != nil {
			return err
		}
	}
	return nil
}

// CleanExpired deletes all sessions whose deadline has passed. Idempotent:
// re-running after no new expiries removes nothing.
func (s *Service) CleanExpired(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		metrics.SessionsCleanedTotal.Add(float64(removed))
		s.logger.Info("expired sessions removed", "count", removed)
	}
	return removed, nil
}

// RunCleaner purges expired sessions on a fixed interval until ctx is done.
// Expiry is handled by this scheduled job rather than a store-level TTL so
// the behavior is the same on any backend.
func (s *Service) RunCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanExpired(ctx); err != nil {
				s.logger.Error("session cleanup failed", "error", err)
			}
		}
	}
}
