package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"corp-access/internal/domain"

	"github.com/lib/pq"
)

// PostgresAccountsRepo 账号Repository实现
type PostgresAccountsRepo struct {
	db *sql.DB
}

func NewPostgresAccountsRepo(db *sql.DB) *PostgresAccountsRepo {
	return &PostgresAccountsRepo{db: db}
}

var _ AccountsRepo = (*PostgresAccountsRepo)(nil)

const accountColumns = `corporate_id, panel_username, auth_key, subscription_url, connection_url,
       COALESCE(messaging_id, ''), is_active, auth_attempts, locked_until,
       total_upload, total_download, created_at, last_access`

func (r *PostgresAccountsRepo) Upsert(ctx context.Context, acct *domain.Account) error {
	if acct.CorporateID == "" {
		return fmt.Errorf("corporate_id is required")
	}

	var messagingID any
	if acct.MessagingID != "" {
		messagingID = acct.MessagingID
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (corporate_id, panel_username, auth_key, subscription_url, connection_url, messaging_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (corporate_id)
		DO UPDATE SET panel_username   = EXCLUDED.panel_username,
		              auth_key         = EXCLUDED.auth_key,
		              subscription_url = EXCLUDED.subscription_url,
		              connection_url   = EXCLUDED.connection_url,
		              is_active        = TRUE`,
		acct.CorporateID, acct.PanelUsername, acct.AuthKey, acct.SubscriptionURL, acct.ConnectionURL, messagingID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

func (r *PostgresAccountsRepo) GetByCorporateID(ctx context.Context, corporateID string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE corporate_id = $1`, corporateID)
}

func (r *PostgresAccountsRepo) GetByMessagingID(ctx context.Context, messagingID string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE messaging_id = $1`, messagingID)
}

func (r *PostgresAccountsRepo) getOne(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var acct domain.Account
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&acct.CorporateID,
		&acct.PanelUsername,
		&acct.AuthKey,
		&acct.SubscriptionURL,
		&acct.ConnectionURL,
		&acct.MessagingID,
		&acct.IsActive,
		&acct.AuthAttempts,
		&acct.LockedUntil,
		&acct.TotalUpload,
		&acct.TotalDownload,
		&acct.CreatedAt,
		&acct.LastAccess,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acct, nil
}

func (r *PostgresAccountsRepo) BindMessaging(ctx context.Context, corporateID, messagingID string) error {
	if corporateID == "" || messagingID == "" {
		return fmt.Errorf("corporate_id and messaging_id are required")
	}

	// Reject if the messaging identity is already bound elsewhere. The unique
	// index on messaging_id remains the atomic decision point for races.
	var existing string
	err := r.db.QueryRowContext(ctx,
		`SELECT corporate_id FROM accounts WHERE messaging_id = $1 AND corporate_id <> $2`,
		messagingID, corporateID,
	).Scan(&existing)
	if err == nil {
		return domain.ErrAlreadyLinked
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check messaging binding: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (corporate_id, messaging_id, is_active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (corporate_id)
		DO UPDATE SET messaging_id = EXCLUDED.messaging_id`,
		corporateID, messagingID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return domain.ErrAlreadyLinked
		}
		return fmt.Errorf("failed to bind messaging identity: %w", err)
	}
	return nil
}

func (r *PostgresAccountsRepo) Deactivate(ctx context.Context, corporateID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET is_active = FALSE WHERE corporate_id = $1`, corporateID)
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresAccountsRepo) IncrementAuthAttempts(ctx context.Context, corporateID string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE accounts
		   SET auth_attempts = auth_attempts + 1
		 WHERE corporate_id = $1
		RETURNING auth_attempts`,
		corporateID,
	).Scan(&attempts)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment auth attempts: %w", err)
	}
	return attempts, nil
}

func (r *PostgresAccountsRepo) Lock(ctx context.Context, corporateID string, until time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET locked_until = $2 WHERE corporate_id = $1`, corporateID, until)
	if err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresAccountsRepo) LockedUntil(ctx context.Context, corporateID string) (*time.Time, error) {
	var until *time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT locked_until FROM accounts WHERE corporate_id = $1`, corporateID).Scan(&until)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get locked_until: %w", err)
	}
	return until, nil
}

func (r *PostgresAccountsRepo) ResetAuthState(ctx context.Context, corporateID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET auth_attempts = 0, locked_until = NULL WHERE corporate_id = $1`, corporateID)
	if err != nil {
		return fmt.Errorf("failed to reset auth state: %w", err)
	}
	return nil
}

func (r *PostgresAccountsRepo) RecordUsage(ctx context.Context, corporateID string, uploadBytes, downloadBytes int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin usage tx: %w", err)
	}
	defer tx.Rollback()

	var username string
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts
		   SET total_upload   = GREATEST(total_upload, $2),
		       total_download = GREATEST(total_download, $3),
		       last_access    = NOW()
		 WHERE corporate_id = $1
		RETURNING panel_username`,
		corporateID, uploadBytes, downloadBytes,
	).Scan(&username)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to update usage totals: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO traffic_stats (corporate_id, username, upload_bytes, download_bytes)
		VALUES ($1, $2, $3, $4)`,
		corporateID, username, uploadBytes, downloadBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert traffic sample: %w", err)
	}

	return tx.Commit()
}
