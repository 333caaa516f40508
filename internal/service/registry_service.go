package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"corp-access/internal/domain"
	"corp-access/internal/repository"

	"go.uber.org/zap"
)

// issueMaxAttempts bounds the regenerate-on-collision loop; with a 24^2 * 10^6
// identifier space it is effectively never reached.
const issueMaxAttempts = 50

// RegistryService 企业ID登记服务：发放、查询、状态流转、审计
type RegistryService struct {
	registry repository.RegistryRepo
	logger   *zap.Logger
}

func NewRegistryService(registry repository.RegistryRepo, logger *zap.Logger) *RegistryService {
	return &RegistryService{registry: registry, logger: logger}
}

// Issue generates a fresh identifier (two letters from the restricted
// alphabet, six digits), rejection-sampled against existing rows, persists it
// with status "issued" and audits the action. Never returns a colliding id.
func (s *RegistryService) Issue(ctx context.Context, owner, actor string) (*domain.CorporateIdentifier, error) {
	for i := 0; i < issueMaxAttempts; i++ {
		id, err := generateIdentifier()
		if err != nil {
			return nil, fmt.Errorf("failed to generate identifier: %w", err)
		}
		err = s.registry.Create(ctx, id, owner)
		if err == repository.ErrDuplicateID {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := s.registry.Audit(ctx, id, "issue", actor, owner); err != nil {
			s.logger.Error("Failed to audit identifier issue", zap.String("id", id), zap.Error(err))
		}
		s.logger.Info("Issued corporate identifier",
			zap.String("id", id),
			zap.String("owner", owner),
			zap.String("actor", actor),
		)
		return s.registry.Get(ctx, id)
	}
	return nil, fmt.Errorf("identifier space exhausted after %d attempts", issueMaxAttempts)
}

// Lookup validates the format, then fetches the identifier.
func (s *RegistryService) Lookup(ctx context.Context, id string) (*domain.CorporateIdentifier, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if err := domain.ValidateIdentifierFormat(id); err != nil {
		return nil, err
	}
	return s.registry.Get(ctx, id)
}

// SetStatus transitions an identifier and audits the action. Re-activation of
// revoked/archived ids is allowed here; it is an operator policy call.
func (s *RegistryService) SetStatus(ctx context.Context, id, status, actor string) error {
	id = strings.ToUpper(strings.TrimSpace(id))
	if err := domain.ValidateIdentifierFormat(id); err != nil {
		return err
	}
	if !domain.ValidIdentifierStatus(status) {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidFormat, status)
	}
	if err := s.registry.SetStatus(ctx, id, status); err != nil {
		return err
	}
	if err := s.registry.Audit(ctx, id, actionForStatus(status), actor, ""); err != nil {
		s.logger.Error("Failed to audit status change", zap.String("id", id), zap.Error(err))
	}
	s.logger.Info("Identifier status changed",
		zap.String("id", id),
		zap.String("status", status),
		zap.String("actor", actor),
	)
	return nil
}

// Revoke is the common transition used by the bot's /revoke_id flow.
func (s *RegistryService) Revoke(ctx context.Context, id, actor string) error {
	return s.SetStatus(ctx, id, domain.IDStatusRevoked, actor)
}

// Search substring-matches id/owner/status, most recently issued first.
func (s *RegistryService) Search(ctx context.Context, query string, limit int) ([]domain.CorporateIdentifier, error) {
	return s.registry.Search(ctx, strings.TrimSpace(query), limit)
}

// List returns the registry for export.
func (s *RegistryService) List(ctx context.Context, limit int) ([]domain.CorporateIdentifier, error) {
	return s.registry.List(ctx, limit)
}

// Validate checks format and existence; ErrInvalidFormat / ErrNotFound tell
// the caller which check failed.
func (s *RegistryService) Validate(ctx context.Context, id string) (*domain.CorporateIdentifier, error) {
	rec, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func actionForStatus(status string) string {
	switch status {
	case domain.IDStatusActive:
		return "activate"
	case domain.IDStatusRevoked:
		return "revoke"
	case domain.IDStatusArchived:
		return "archive"
	default:
		return "issue"
	}
}

func generateIdentifier() (string, error) {
	var sb strings.Builder
	for i := 0; i < 2; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(domain.IDAlphabet))))
		if err != nil {
			return "", err
		}
		sb.WriteByte(domain.IDAlphabet[n.Int64()])
	}
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}
