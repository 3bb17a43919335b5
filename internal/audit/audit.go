// Package audit provides the append-only security event log. Writes are
// best-effort: a failure to persist an entry is reported to the process log
// and never propagated, so authentication outcomes cannot be changed by a
// logging failure.
package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/metrics"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/repository"
)

// Service records and reads security events
type Service struct {
	repo   repository.SecurityLogRepository
	logger *slog.Logger
}

// NewService creates a new audit Service instance
func NewService(repo repository.SecurityLogRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Record appends one security event. userID may be nil: failed attempts
// against unknown usernames are still recorded.
func (s *Service) Record(ctx context.Context, userID *uuid.UUID, eventType, ipAddress, userAgent, status, details string) {
	entry := &repository.SecurityLog{
		UserID:    userID,
		EventType: eventType,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Status:    status,
		Details:   details,
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Error("security event logging failed",
			"event_type", eventType,
			"status", status,
			"error", err,
		)
		return
	}

	metrics.SecurityEventsTotal.WithLabelValues(eventType, status).Inc()
}

// Entry is the API-facing view of a security log record
type Entry struct {
	ID        string  `json:"id"`
	UserID    *string `json:"user_id,omitempty"`
	EventType string  `json:"event_type"`
	IPAddress string  `json:"ip_address"`
	UserAgent string  `json:"user_agent"`
	Status    string  `json:"status"`
	Details   string  `json:"details,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// LogPage is one page of a user's audit trail
type LogPage struct {
	Logs  []Entry `json:"logs"`
	Total int     `json:"total"`
	Page  int     `json:"page"`
	Pages int     `json:"pages"`
}

// Logs returns a user's audit trail newest-first, paginated
func (s *Service) Logs(ctx context.Context, userID uuid.UUID, page, limit int) (*LogPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	entries, total, err := s.repo.ListForUser(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	result := &LogPage{
		Logs:  make([]Entry, 0, len(entries)),
		Total: total,
		Page:  page,
		Pages: (total + limit - 1) / limit,
	}

	for _, e := range entries {
		entry := Entry{
			ID:        e.ID.String(),
			EventType: e.EventType,
			IPAddress: e.IPAddress,
			UserAgent: e.UserAgent,
			Status:    e.Status,
			Details:   e.Details,
			Timestamp: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if e.UserID != nil {
			id := e.UserID.String()
			entry.UserID = &id
		}
		result.Logs = append(result.Logs, entry)
	}

	return result, nil
}
