package repository

import (
	"context"
	"database/sql"
	"fmt"

	"corp-access/internal/domain"

	"github.com/lib/pq"
)

// PostgresRegistryRepo 企业ID登记表Repository实现
type PostgresRegistryRepo struct {
	db *sql.DB
}

func NewPostgresRegistryRepo(db *sql.DB) *PostgresRegistryRepo {
	return &PostgresRegistryRepo{db: db}
}

var _ RegistryRepo = (*PostgresRegistryRepo)(nil)

// ErrDuplicateID is returned by Create on an id collision; the service
// regenerates and retries.
var ErrDuplicateID = fmt.Errorf("identifier already exists")

func (r *PostgresRegistryRepo) Create(ctx context.Context, id, owner string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO id_registry (id, owner, status)
		VALUES ($1, $2, 'issued')`,
		id, owner,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to create identifier: %w", err)
	}
	return nil
}

func (r *PostgresRegistryRepo) Get(ctx context.Context, id string) (*domain.CorporateIdentifier, error) {
	var rec domain.CorporateIdentifier
	err := r.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(owner, ''), status, issued_at, updated_at
		  FROM id_registry
		 WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Owner, &rec.Status, &rec.IssuedAt, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get identifier: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRegistryRepo) SetStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE id_registry SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to set identifier status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresRegistryRepo) Search(ctx context.Context, query string, limit int) ([]domain.CorporateIdentifier, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(owner, ''), status, issued_at, updated_at
		  FROM id_registry
		 WHERE id ILIKE $1 OR owner ILIKE $1 OR status ILIKE $1
		 ORDER BY issued_at DESC
		 LIMIT $2`,
		like, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search identifiers: %w", err)
	}
	defer rows.Close()

	return scanIdentifiers(rows)
}

func (r *PostgresRegistryRepo) List(ctx context.Context, limit int) ([]domain.CorporateIdentifier, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(owner, ''), status, issued_at, updated_at
		  FROM id_registry
		 ORDER BY issued_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list identifiers: %w", err)
	}
	defer rows.Close()

	return scanIdentifiers(rows)
}

func scanIdentifiers(rows *sql.Rows) ([]domain.CorporateIdentifier, error) {
	var out []domain.CorporateIdentifier
	for rows.Next() {
		var rec domain.CorporateIdentifier
		if err := rows.Scan(&rec.ID, &rec.Owner, &rec.Status, &rec.IssuedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identifier: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRegistryRepo) Audit(ctx context.Context, id, action, actor, details string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO id_audit (id, action, actor, details)
		VALUES ($1, $2, $3, $4)`,
		id, action, actor, details,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}
