package repository

import (
	"context"

	"corp-access/internal/domain"
)

// AuditRepo append-only日志Repository接口（auth_logs + monitor_events）
type AuditRepo interface {
	// LogAuth appends an auth_logs entry for an auth or lifecycle action.
	LogAuth(ctx context.Context, entry domain.AuthLogEntry) error

	// AuthLogs returns the most recent entries for a corporate_id.
	AuthLogs(ctx context.Context, corporateID string, limit int) ([]domain.AuthLogEntry, error)

	// LogMonitor appends a monitor_events row.
	LogMonitor(ctx context.Context, component, level, message, details string) error
}
