package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"corp-access/internal/domain"
	"corp-access/internal/repository"
	"corp-access/internal/store"

	"go.uber.org/zap"
)

// Service-level outcomes that are not part of the shared error taxonomy.
var (
	// ErrUnexpectedInput input arrived outside the expected FSM state; state
	// is unchanged and the caller should re-prompt.
	ErrUnexpectedInput = errors.New("unexpected input for current state")
	// ErrCodeMismatch the submitted code does not match the session. The
	// session survives; the caller may retry until expiry.
	ErrCodeMismatch = errors.New("verification code mismatch")
)

// TwoFactorService 两步验证状态机（每个消息账号一个FSM）
// unauthenticated → awaiting_corporate_id → awaiting_code → authenticated.
// Sessions are ephemeral (5-minute TTL); the account-level lockout is a
// separate control consulted before a code is accepted.
type TwoFactorService struct {
	sessions   *store.SessionStore
	accounts   repository.AccountsRepo
	lockout    *LockoutService
	audit      repository.AuditRepo
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewTwoFactorService derives the code lifetime from the session store so
// the ExpiresAt stamp and the redis TTL cannot drift apart.
func NewTwoFactorService(
	sessions *store.SessionStore,
	accounts repository.AccountsRepo,
	lockout *LockoutService,
	audit repository.AuditRepo,
	logger *zap.Logger,
) *TwoFactorService {
	return &TwoFactorService{
		sessions:   sessions,
		accounts:   accounts,
		lockout:    lockout,
		audit:      audit,
		sessionTTL: sessions.SessionTTL(),
		logger:     logger,
	}
}

// BeginResult 认证入口结果
type BeginResult struct {
	State       string
	CorporateID string // set when the identity is already bound
}

// Begin starts (or re-enters) the flow. An already-bound messaging identity
// goes straight to authenticated; re-entry is idempotent.
func (s *TwoFactorService) Begin(ctx context.Context, messagingID string) (*BeginResult, error) {
	acct, err := s.accounts.GetByMessagingID(ctx, messagingID)
	if err == nil {
		if err := s.sessions.SetState(ctx, messagingID, store.StateAuthenticated); err != nil {
			return nil, fmt.Errorf("failed to set state: %w", err)
		}
		return &BeginResult{State: store.StateAuthenticated, CorporateID: acct.CorporateID}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if err := s.sessions.SetState(ctx, messagingID, store.StateAwaitingCorporateID); err != nil {
		return nil, fmt.Errorf("failed to set state: %w", err)
	}
	return &BeginResult{State: store.StateAwaitingCorporateID}, nil
}

// SubmitCorporateID accepts the claimed corporate id, creates/overwrites the
// verification session and moves to awaiting_code. The raw code is never
// returned to the caller; it is logged for operational visibility and
// delivered out of band by a collaborator.
func (s *TwoFactorService) SubmitCorporateID(ctx context.Context, messagingID, rawID string) error {
	state, err := s.sessions.GetState(ctx, messagingID)
	if err != nil {
		return fmt.Errorf("failed to get state: %w", err)
	}
	if state != store.StateAwaitingCorporateID {
		return ErrUnexpectedInput
	}

	corporateID := strings.TrimSpace(rawID)
	if len(corporateID) < 3 {
		// State unchanged; the caller re-prompts.
		return domain.ErrInvalidFormat
	}

	code, err := generateVerificationCode()
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}

	sess := store.VerificationSession{
		CorporateID: corporateID,
		Code:        code,
		ExpiresAt:   time.Now().Add(s.sessionTTL),
	}
	if err := s.sessions.PutSession(ctx, messagingID, sess); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if err := s.sessions.SetState(ctx, messagingID, store.StateAwaitingCode); err != nil {
		return fmt.Errorf("failed to set state: %w", err)
	}

	// Out-of-band delivery is a collaborator responsibility.
	s.logger.Info("Verification code issued",
		zap.String("corporate_id", corporateID),
		zap.String("messaging_id", messagingID),
		zap.String("code", code),
	)
	return nil
}

// SubmitCode verifies the one-time code and, on match, binds the messaging
// identity to the corporate id. A mismatch keeps the session and the state; a
// missing or expired session resets to unauthenticated.
func (s *TwoFactorService) SubmitCode(ctx context.Context, messagingID, rawCode string) (string, error) {
	sess, err := s.sessions.GetSession(ctx, messagingID)
	if err != nil {
		if err == store.ErrMiss {
			_ = s.sessions.SetState(ctx, messagingID, store.StateUnauthenticated)
			return "", domain.ErrNoSession
		}
		return "", fmt.Errorf("failed to load session: %w", err)
	}

	locked, err := s.lockout.IsLocked(ctx, sess.CorporateID)
	if err != nil {
		return "", err
	}
	if locked {
		return "", domain.ErrLocked
	}

	if time.Now().After(sess.ExpiresAt) {
		_ = s.sessions.DeleteSession(ctx, messagingID)
		_ = s.sessions.SetState(ctx, messagingID, store.StateUnauthenticated)
		return "", domain.ErrSessionExpired
	}

	if !strings.EqualFold(strings.TrimSpace(rawCode), sess.Code) {
		// Session and state survive a mismatch: the user may retry until
		// expiry. Failure counting happens at the account layer.
		if _, lerr := s.lockout.RecordFailure(ctx, sess.CorporateID); lerr != nil {
			s.logger.Error("Failed to record auth failure", zap.Error(lerr))
		}
		s.logAuth(ctx, sess.CorporateID, messagingID, "verify_code", false, "code mismatch")
		return "", ErrCodeMismatch
	}

	if err := s.accounts.BindMessaging(ctx, sess.CorporateID, messagingID); err != nil {
		if errors.Is(err, domain.ErrAlreadyLinked) {
			// The code was consumed; the binding is rejected, not overwritten.
			_ = s.sessions.DeleteSession(ctx, messagingID)
			_ = s.sessions.SetState(ctx, messagingID, store.StateUnauthenticated)
			s.logAuth(ctx, sess.CorporateID, messagingID, "link", false, "messaging identity already linked")
			return "", domain.ErrAlreadyLinked
		}
		return "", err
	}

	if err := s.lockout.Reset(ctx, sess.CorporateID); err != nil {
		s.logger.Error("Failed to reset auth state", zap.Error(err))
	}
	_ = s.sessions.DeleteSession(ctx, messagingID)
	if err := s.sessions.SetState(ctx, messagingID, store.StateAuthenticated); err != nil {
		return "", fmt.Errorf("failed to set state: %w", err)
	}

	s.logAuth(ctx, sess.CorporateID, messagingID, "link", true, "")
	s.logger.Info("Messaging identity linked",
		zap.String("corporate_id", sess.CorporateID),
		zap.String("messaging_id", messagingID),
	)
	return sess.CorporateID, nil
}

// CurrentState returns the FSM state for a messaging identity.
func (s *TwoFactorService) CurrentState(ctx context.Context, messagingID string) (string, error) {
	return s.sessions.GetState(ctx, messagingID)
}

func (s *TwoFactorService) logAuth(ctx context.Context, corporateID, messagingID, action string, success bool, errMsg string) {
	err := s.audit.LogAuth(ctx, domain.AuthLogEntry{
		CorporateID:  corporateID,
		MessagingID:  messagingID,
		Action:       action,
		IPAddress:    "bot",
		UserAgent:    "messaging",
		Success:      success,
		ErrorMessage: errMsg,
	})
	if err != nil {
		s.logger.Error("Failed to append auth log", zap.Error(err))
	}
}

// generateVerificationCode returns 6 hex characters, upper-cased.
func generateVerificationCode() (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}
