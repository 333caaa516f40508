package repository

import (
	"context"
	"time"

	"corp-access/internal/domain"
)

// AccountsRepo 账号Repository接口
// Accounts are the single source of truth for binding, activation, lockout and
// traffic counters. Only this repository writes account rows.
type AccountsRepo interface {
	// Upsert writes the full account record. Called from the grant path after
	// the upstream panel call succeeded; repeated grants are idempotent.
	Upsert(ctx context.Context, acct *domain.Account) error

	GetByCorporateID(ctx context.Context, corporateID string) (*domain.Account, error)
	GetByMessagingID(ctx context.Context, messagingID string) (*domain.Account, error)

	// BindMessaging associates a messaging identity with a corporate_id.
	// Returns ErrAlreadyLinked when the messaging identity is bound to a
	// different corporate_id; the unique index on messaging_id is the atomic
	// backstop under concurrent binds. Creates the account row if the grant
	// has not run yet.
	BindMessaging(ctx context.Context, corporateID, messagingID string) error

	Deactivate(ctx context.Context, corporateID string) error

	// IncrementAuthAttempts bumps the failed-attempt counter and returns the
	// new count in the same statement, so the caller's threshold check cannot
	// race a concurrent increment.
	IncrementAuthAttempts(ctx context.Context, corporateID string) (int, error)

	Lock(ctx context.Context, corporateID string, until time.Time) error
	LockedUntil(ctx context.Context, corporateID string) (*time.Time, error)

	// ResetAuthState zeroes auth_attempts and clears locked_until.
	ResetAuthState(ctx context.Context, corporateID string) error

	// RecordUsage persists panel-reported cumulative totals (kept monotonic)
	// and appends a traffic_stats sample.
	RecordUsage(ctx context.Context, corporateID string, uploadBytes, downloadBytes int64) error
}
