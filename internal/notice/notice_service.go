// Package notice implements the announcement board: operators publish
// notices, authenticated users read the ones targeted at their role.
package notice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/notifier"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/repository"
)

// Notice service errors
var (
	ErrNoticeNotFound = errors.New("notice not found")
	ErrValidation     = errors.New("validation failed")
)

// CreateRequest is the payload for publishing a notice
type CreateRequest struct {
	Title          string     `json:"title" validate:"required,max=200"`
	Content        string     `json:"content" validate:"required"`
	Category       string     `json:"category" validate:"omitempty,oneof=general academic exam event"`
	Priority       string     `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	TargetAudience string     `json:"targetAudience" validate:"omitempty,oneof=all student operator"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

// Service manages notice publication and retrieval
type Service struct {
	repo      repository.NoticeRepository
	notify    notifier.Notifier
	sanitizer *bluemonday.Policy
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService creates a new notice Service instance
func NewService(repo repository.NoticeRepository, notify notifier.Notifier, logger *slog.Logger) *Service {
	if notify == nil {
		notify = notifier.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		notify:    notify,
		sanitizer: bluemonday.UGCPolicy(),
		validate:  validator.New(),
		logger:    logger,
	}
}

// Create sanitizes and persists a notice, then broadcasts it to the target
// audience. Broadcast failures are logged, never surfaced.
func (s *Service) Create(ctx context.Context, req CreateRequest, createdBy string) (*repository.Notice, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, ErrValidation
	}

	notice := &repository.Notice{
		Title:          s.sanitizer.Sanitize(req.Title),
		Content:        s.sanitizer.Sanitize(req.Content),
		Category:       defaultString(req.Category, "general"),
		Priority:       defaultString(req.Priority, "normal"),
		TargetAudience: defaultString(req.TargetAudience, "all"),
		IsActive:       true,
		CreatedBy:      createdBy,
		ExpiresAt:      req.ExpiresAt,
	}

	if err := s.repo.Create(ctx, notice); err != nil {
		return nil, err
	}

	msg := notifier.NewMessage("notice", map[string]interface{}{
		"id":       notice.ID.String(),
		"title":    notice.Title,
		"category": notice.Category,
		"priority": notice.Priority,
	})
	if notice.TargetAudience == "all" {
		s.notify.BroadcastToAll(msg)
	} else {
		s.notify.BroadcastToRole(notice.TargetAudience, msg)
	}

	return notice, nil
}

// Get returns a single notice by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*repository.Notice, error) {
	notice, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNoticeNotFound) {
			return nil, ErrNoticeNotFound
		}
		return nil, err
	}
	return notice, nil
}

// ListForRole returns active, unexpired notices visible to the given role,
// newest first.
func (s *Service) ListForRole(ctx context.Context, role string, limit, offset int) ([]repository.Notice, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListActive(ctx, role, limit, offset)
}

// Deactivate retires a notice without deleting its record
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNoticeNotFound) {
			return ErrNoticeNotFound
		}
		return err
	}
	return nil
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
