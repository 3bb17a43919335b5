package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Notice repository errors
var (
	ErrNoticeNotFound = errors.New("notice not found")
)

// NoticeRepository defines the interface for notice data access
type NoticeRepository interface {
	Create(ctx context.Context, notice *Notice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Notice, error)
	// ListActive returns unexpired active notices for an audience
	// ("all" matches every notice), newest first.
	ListActive(ctx context.Context, audience string, limit, offset int) ([]Notice, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// noticeRepository implements NoticeRepository using PostgreSQL
type noticeRepository struct {
	pool *pgxpool.Pool
}

// NewNoticeRepository creates a new NoticeRepository instance
func NewNoticeRepository(pool *pgxpool.Pool) NoticeRepository {
	return &noticeRepository{pool: pool}
}

// Create inserts a new notice
func (r *noticeRepository) Create(ctx context.Context, notice *Notice) error {
	query := `
		INSERT INTO notices (title, content, category, priority, target_audience, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, is_active, created_at, updated_at
	`

	return r.pool.QueryRow(ctx, query,
		notice.Title,
		notice.Content,
		notice.Category,
		notice.Priority,
		notice.TargetAudience,
		notice.CreatedBy,
		notice.ExpiresAt,
	).Scan(&notice.ID, &notice.IsActive, &notice.CreatedAt, &notice.UpdatedAt)
}

// GetByID retrieves a notice by ID
func (r *noticeRepository) GetByID(ctx context.Context, id uuid.UUID) (*Notice, error) {
	query := `
		SELECT id, title, content, category, priority, target_audience, is_active, created_by, created_at, updated_at, expires_at
		FROM notices
		WHERE id = $1
	`

	notice := &Notice{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&notice.ID,
		&notice.Title,
		&notice.Content,
		&notice.Category,
		&notice.Priority,
		&notice.TargetAudience,
		&notice.IsActive,
		&notice.CreatedBy,
		&notice.CreatedAt,
		&notice.UpdatedAt,
		&notice.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoticeNotFound
		}
		return nil, err
	}
	return notice, nil
}

// ListActive returns active, unexpired notices visible to the audience
func (r *noticeRepository) ListActive(ctx context.Context, audience string, limit, offset int) ([]Notice, error) {
	query := `
		SELECT id, title, content, category, priority, target_audience, is_active, created_by, created_at, updated_at, expires_at
		FROM notices
		WHERE is_active = TRUE
		  AND (expires_at IS NULL OR expires_at > NOW())
		  AND (target_audience = 'all' OR target_audience = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, audience, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notices []Notice
	for rows.Next() {
		notice := Notice{}
		if err := rows.Scan(
			&notice.ID,
			&notice.Title,
			&notice.Content,
			&notice.Category,
			&notice.Priority,
			&notice.TargetAudience,
			&notice.IsActive,
			&notice.CreatedBy,
			&notice.CreatedAt,
			&notice.UpdatedAt,
			&notice.ExpiresAt,
		); err != nil {
			return nil, err
		}
		notices = append(notices, notice)
	}

	return notices, rows.Err()
}

// Deactivate soft-deletes a notice
func (r *noticeRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE notices SET is_active = FALSE, updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNoticeNotFound
	}
	return nil
}
