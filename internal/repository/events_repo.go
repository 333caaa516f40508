package repository

import (
	"context"

	"corp-access/internal/domain"
)

// EventsRepo webhook事件Repository接口
// Event rows are inserted on receipt (after signature check) and never deleted;
// processed transitions false→true exactly once per row.
type EventsRepo interface {
	// Insert persists an accepted event with processed=false and returns its id.
	// The trace id correlates the row with processing logs. The insert succeeds
	// regardless of what the downstream handler later does.
	Insert(ctx context.Context, eventType, corporateID, eventData, traceID string) (int64, error)

	// Pending returns all unprocessed events, oldest first, for operator-driven
	// reprocessing.
	Pending(ctx context.Context) ([]domain.WebhookEvent, error)

	// MarkProcessed sets processed=true and processed_at=now. ErrNotFound for
	// an unknown id.
	MarkProcessed(ctx context.Context, eventID int64) error
}
