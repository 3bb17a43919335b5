package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SecurityLogRepository defines the interface for the append-only audit store
type SecurityLogRepository interface {
	Append(ctx context.Context, entry *SecurityLog) error
	// ListForUser returns entries newest-first with the total count for
	// pagination.
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]SecurityLog, int, error)
}

// securityLogRepository implements SecurityLogRepository using PostgreSQL
type securityLogRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityLogRepository creates a new SecurityLogRepository instance
func NewSecurityLogRepository(pool *pgxpool.Pool) SecurityLogRepository {
	return &securityLogRepository{pool: pool}
}

// Append inserts one audit entry. Entries are never updated or deleted here.
func (r *securityLogRepository) Append(ctx context.Context, entry *SecurityLog) error {
	query := `
		INSERT INTO security_logs (user_id, event_type, ip_address, user_agent, status, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	return r.pool.QueryRow(ctx, query,
		entry.UserID,
		entry.EventType,
		entry.IPAddress,
		entry.UserAgent,
		entry.Status,
		entry.Details,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// ListForUser retrieves a page of a user's audit trail, newest first
func (r *securityLogRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]SecurityLog, int, error) {
	countQuery := `SELECT COUNT(*) FROM security_logs WHERE user_id = $1`

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, user_id, event_type, ip_address, user_agent, status, details, created_at
		FROM security_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []SecurityLog
	for rows.Next() {
		entry := SecurityLog{}
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.EventType,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.Status,
			&entry.Details,
			&entry.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}

	return entries, total, rows.Err()
}
