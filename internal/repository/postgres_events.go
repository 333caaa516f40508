package repository

import (
	"context"
	"database/sql"
	"fmt"

	"corp-access/internal/domain"
)

// PostgresEventsRepo webhook事件Repository实现
type PostgresEventsRepo struct {
	db *sql.DB
}

func NewPostgresEventsRepo(db *sql.DB) *PostgresEventsRepo {
	return &PostgresEventsRepo{db: db}
}

var _ EventsRepo = (*PostgresEventsRepo)(nil)

func (r *PostgresEventsRepo) Insert(ctx context.Context, eventType, corporateID, eventData, traceID string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO webhook_events (event_type, corporate_id, event_data, trace_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		eventType, corporateID, eventData, traceID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert webhook event: %w", err)
	}
	return id, nil
}

func (r *PostgresEventsRepo) Pending(ctx context.Context) ([]domain.WebhookEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, corporate_id, event_data, trace_id, processed, created_at, processed_at
		  FROM webhook_events
		 WHERE processed = FALSE
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var out []domain.WebhookEvent
	for rows.Next() {
		var ev domain.WebhookEvent
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.CorporateID, &ev.EventData, &ev.TraceID, &ev.Processed, &ev.CreatedAt, &ev.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *PostgresEventsRepo) MarkProcessed(ctx context.Context, eventID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		   SET processed = TRUE, processed_at = NOW()
		 WHERE id = $1 AND processed = FALSE`,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
