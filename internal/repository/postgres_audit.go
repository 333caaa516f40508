package repository

import (
	"context"
	"database/sql"
	"fmt"

	"corp-access/internal/domain"
)

// PostgresAuditRepo append-only日志Repository实现
type PostgresAuditRepo struct {
	db *sql.DB
}

func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

var _ AuditRepo = (*PostgresAuditRepo)(nil)

func (r *PostgresAuditRepo) LogAuth(ctx context.Context, entry domain.AuthLogEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_logs (corporate_id, messaging_id, action, ip_address, user_agent, success, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.CorporateID, entry.MessagingID, entry.Action, entry.IPAddress, entry.UserAgent, entry.Success, entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auth log: %w", err)
	}
	return nil
}

func (r *PostgresAuditRepo) AuthLogs(ctx context.Context, corporateID string, limit int) ([]domain.AuthLogEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, corporate_id, COALESCE(messaging_id, ''), action,
		       COALESCE(ip_address, ''), COALESCE(user_agent, ''), success,
		       COALESCE(error_message, ''), created_at
		  FROM auth_logs
		 WHERE corporate_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		corporateID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query auth logs: %w", err)
	}
	defer rows.Close()

	var out []domain.AuthLogEntry
	for rows.Next() {
		var e domain.AuthLogEntry
		if err := rows.Scan(&e.ID, &e.CorporateID, &e.MessagingID, &e.Action, &e.IPAddress, &e.UserAgent, &e.Success, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan auth log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresAuditRepo) LogMonitor(ctx context.Context, component, level, message, details string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO monitor_events (component, level, message, details)
		VALUES ($1, $2, $3, $4)`,
		component, level, message, details,
	)
	if err != nil {
		return fmt.Errorf("failed to insert monitor event: %w", err)
	}
	return nil
}
