package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kumahost/portal/wordpress-service/internal/models"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Create inserts an audit log entry.
func (r *AuditRepository) Create(ctx context.Context, entry *models.SiteAuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO wordpress.site_audit_logs (id, site_id, action, status, message)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query, entry.ID, entry.SiteID, entry.Action, entry.Status, entry.Message)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// GetBySiteID retrieves audit entries for a site, newest first.
func (r *AuditRepository) GetBySiteID(ctx context.Context, siteID string, limit int) ([]*models.SiteAuditLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, site_id, action, status, message, created_at
		FROM wordpress.site_audit_logs
		WHERE site_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.SiteAuditLog
	for rows.Next() {
		entry := &models.SiteAuditLog{}
		err := rows.Scan(&entry.ID, &entry.SiteID, &entry.Action, &entry.Status, &entry.Message, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LogAction is a helper to record a lifecycle action.
func (r *AuditRepository) LogAction(ctx context.Context, siteID, action, status, message string) error {
	return r.Create(ctx, &models.SiteAuditLog{
		SiteID:  siteID,
		Action:  action,
		Status:  status,
		Message: message,
	})
}
