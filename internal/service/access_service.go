package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"corp-access/internal/config"
	"corp-access/internal/domain"
	"corp-access/internal/repository"

	"go.uber.org/zap"
)

// AccessService 网络访问开通/查询/停用编排
// Upstream-first on write paths: the local record is only written after the
// panel call succeeded, so a failure never leaves a half-applied grant.
type AccessService struct {
	accounts repository.AccountsRepo
	audit    repository.AuditRepo
	panel    Panel
	panelCfg config.PanelConfig
	logger   *zap.Logger
}

func NewAccessService(
	accounts repository.AccountsRepo,
	audit repository.AuditRepo,
	panel Panel,
	panelCfg config.PanelConfig,
	logger *zap.Logger,
) *AccessService {
	return &AccessService{
		accounts: accounts,
		audit:    audit,
		panel:    panel,
		panelCfg: panelCfg,
		logger:   logger,
	}
}

// Grant provisions network access for a corporate id. Idempotent: an already
// granted id returns the stored binding unchanged.
func (s *AccessService) Grant(ctx context.Context, corporateID string) (*domain.Account, error) {
	corporateID = strings.ToUpper(strings.TrimSpace(corporateID))
	if err := domain.ValidateIdentifierFormat(corporateID); err != nil {
		return nil, err
	}

	existing, err := s.accounts.GetByCorporateID(ctx, corporateID)
	if err == nil && existing.PanelUsername != "" {
		return existing, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	username := "corp_" + corporateID

	pa, err := s.panel.GetAccount(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		pa, err = s.panel.CreateAccount(ctx, username)
	}
	if err != nil {
		return nil, fmt.Errorf("grant failed: %w", err)
	}

	acct := &domain.Account{
		CorporateID:     corporateID,
		PanelUsername:   username,
		AuthKey:         pa.AuthKey,
		SubscriptionURL: SubscriptionURL(s.publicBase(), username),
		ConnectionURL:   ConnectionURL(s.panelCfg, pa.AuthKey, username),
		IsActive:        true,
	}
	if existing != nil {
		acct.MessagingID = existing.MessagingID
	}
	if err := s.accounts.Upsert(ctx, acct); err != nil {
		return nil, err
	}

	s.logger.Info("Access granted",
		zap.String("corporate_id", corporateID),
		zap.String("panel_username", username),
	)
	return s.accounts.GetByCorporateID(ctx, corporateID)
}

// Config returns the stored binding with best-effort usage stats: a panel
// failure degrades to zeroed stats instead of failing the read.
func (s *AccessService) Config(ctx context.Context, corporateID string) (*domain.Account, *PanelUsage, error) {
	acct, err := s.accounts.GetByCorporateID(ctx, corporateID)
	if err != nil {
		return nil, nil, err
	}

	usage, err := s.panel.GetUsage(ctx, acct.PanelUsername)
	if err != nil {
		s.logger.Warn("Usage stats unavailable, degrading to zeroes",
			zap.String("corporate_id", corporateID),
			zap.Error(err),
		)
		return acct, &PanelUsage{}, nil
	}

	if err := s.accounts.RecordUsage(ctx, corporateID, usage.Upload, usage.Download); err != nil {
		s.logger.Error("Failed to persist usage totals",
			zap.String("corporate_id", corporateID),
			zap.Error(err),
		)
	}
	return acct, usage, nil
}

// Deactivate disables the account in the panel first, then locally. An
// upstream failure surfaces to the caller and leaves the local record intact.
func (s *AccessService) Deactivate(ctx context.Context, corporateID string) error {
	acct, err := s.accounts.GetByCorporateID(ctx, corporateID)
	if err != nil {
		return err
	}

	if err := s.panel.SetEnabled(ctx, acct.PanelUsername, false); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("deactivate failed: %w", err)
	}
	if err := s.accounts.Deactivate(ctx, corporateID); err != nil {
		return err
	}

	lerr := s.audit.LogAuth(ctx, domain.AuthLogEntry{
		CorporateID: corporateID,
		MessagingID: acct.MessagingID,
		Action:      "deactivate",
		IPAddress:   "api",
		UserAgent:   "http",
		Success:     true,
	})
	if lerr != nil {
		s.logger.Error("Failed to append auth log", zap.Error(lerr))
	}

	s.logger.Info("Access deactivated", zap.String("corporate_id", corporateID))
	return nil
}

// BindingByMessagingID returns the account bound to a messaging identity
// (bot /get_config path).
func (s *AccessService) BindingByMessagingID(ctx context.Context, messagingID string) (*domain.Account, error) {
	return s.accounts.GetByMessagingID(ctx, messagingID)
}

func (s *AccessService) publicBase() string {
	base := strings.TrimRight(s.panelCfg.BaseURL, "/")
	return strings.TrimSuffix(base, "/api")
}
