package repository

import (
	"context"

	"corp-access/internal/domain"
)

// RegistryRepo 企业ID登记表Repository接口
// Owns id_registry rows and the append-only id_audit trail.
type RegistryRepo interface {
	// Create inserts a new identifier with status "issued". Fails on duplicate
	// id; the caller runs the regenerate-on-collision loop.
	Create(ctx context.Context, id, owner string) error

	Get(ctx context.Context, id string) (*domain.CorporateIdentifier, error)

	// SetStatus updates status and updated_at. ErrNotFound if the identifier
	// does not exist.
	SetStatus(ctx context.Context, id, status string) error

	// Search substring-matches id/owner/status, most recently issued first.
	Search(ctx context.Context, query string, limit int) ([]domain.CorporateIdentifier, error)

	// List returns the whole registry, most recently issued first (export path).
	List(ctx context.Context, limit int) ([]domain.CorporateIdentifier, error)

	// Audit appends an id_audit entry. Never updated or deleted.
	Audit(ctx context.Context, id, action, actor, details string) error
}
