package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"corp-access/internal/config"
	"corp-access/internal/domain"
	"corp-access/internal/repository"

	"go.uber.org/zap"
)

// LockoutService 账号锁定策略
// Failure counting and the timed lock are account-level controls, separate from
// the verification session: "code expired" and "too many failures" stay
// independently testable.
type LockoutService struct {
	accounts repository.AccountsRepo
	cfg      config.LockoutConfig
	logger   *zap.Logger
}

func NewLockoutService(accounts repository.AccountsRepo, cfg config.LockoutConfig, logger *zap.Logger) *LockoutService {
	return &LockoutService{accounts: accounts, cfg: cfg, logger: logger}
}

// RecordFailure increments the failure counter and applies the timed lock when
// the count crosses the threshold. The increment returns the new count in the
// same statement, so two concurrent failures cannot both observe a
// sub-threshold value. Accounts that do not exist yet are a no-op.
func (s *LockoutService) RecordFailure(ctx context.Context, corporateID string) (locked bool, err error) {
	attempts, err := s.accounts.IncrementAuthAttempts(ctx, corporateID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record auth failure: %w", err)
	}

	if s.cfg.Threshold > 0 && attempts%s.cfg.Threshold == 0 {
		if err := s.Lock(ctx, corporateID, s.cfg.LockDuration); err != nil {
			return false, err
		}
		s.logger.Warn("Account locked after repeated auth failures",
			zap.String("corporate_id", corporateID),
			zap.Int("auth_attempts", attempts),
			zap.Duration("lock_duration", s.cfg.LockDuration),
		)
		return true, nil
	}
	return false, nil
}

// Lock sets locked_until = now + duration.
func (s *LockoutService) Lock(ctx context.Context, corporateID string, duration time.Duration) error {
	until := time.Now().Add(duration)
	if err := s.accounts.Lock(ctx, corporateID, until); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to lock account: %w", err)
	}
	return nil
}

// IsLocked is true iff locked_until is set and strictly in the future. A past
// locked_until means unlocked; there is no background sweep. Unknown accounts
// are never locked.
func (s *LockoutService) IsLocked(ctx context.Context, corporateID string) (bool, error) {
	until, err := s.accounts.LockedUntil(ctx, corporateID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check lock: %w", err)
	}
	return until != nil && time.Now().Before(*until), nil
}

// Reset zeroes auth_attempts and clears locked_until. Called on every
// successful authentication.
func (s *LockoutService) Reset(ctx context.Context, corporateID string) error {
	return s.accounts.ResetAuthState(ctx, corporateID)
}
