package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"corp-access/internal/config"
	"corp-access/internal/domain"
	"corp-access/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// restrictedRoles may not keep full network access after a role change.
// Enforcement is a policy hook, not automatic revocation.
var restrictedRoles = map[string]bool{
	"contractor": true,
	"intern":     true,
	"visitor":    true,
}

// InboundEvent HR 生命周期事件载荷
type InboundEvent struct {
	EventType   string         `json:"event_type"`
	CorporateID string         `json:"corporate_id"`
	EventData   map[string]any `json:"event_data"`
	Timestamp   time.Time      `json:"timestamp"`
	Signature   string         `json:"signature,omitempty"`
}

// WebhookService 处理签名校验、事件落库与按类型分发
// Persistence happens before dispatch: a handler failure never loses the event
// record, so deliverers can retry and operators can reprocess.
type WebhookService struct {
	events   repository.EventsRepo
	accounts repository.AccountsRepo
	audit    repository.AuditRepo
	lockout  *LockoutService
	panel    Panel
	cfg      config.WebhookConfig
	logger   *zap.Logger
}

func NewWebhookService(
	events repository.EventsRepo,
	accounts repository.AccountsRepo,
	audit repository.AuditRepo,
	lockout *LockoutService,
	panel Panel,
	cfg config.WebhookConfig,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		events:   events,
		accounts: accounts,
		audit:    audit,
		lockout:  lockout,
		panel:    panel,
		cfg:      cfg,
		logger:   logger,
	}
}

// VerifySignature checks the X-Hub-Signature-256 header against an
// HMAC-SHA256 over the exact raw body bytes, compared in constant time.
// A missing header is accepted in permissive mode and rejected in strict
// mode; the trust level is an explicit deployment decision.
func (s *WebhookService) VerifySignature(body []byte, sigHeader string) error {
	if sigHeader == "" {
		if s.cfg.Strict && s.cfg.Secret != "" {
			return domain.ErrUnauthorized
		}
		return nil
	}
	if s.cfg.Secret == "" {
		// No secret configured: a presented signature cannot be verified.
		return nil
	}

	provided := strings.TrimPrefix(sigHeader, "sha256=")
	mac := hmac.New(sha256.New, []byte(s.cfg.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return domain.ErrUnauthorized
	}
	return nil
}

// canonicalPayload serializes the event with its signature field stripped and
// object keys sorted. Embedded signatures are computed over this form: the
// raw body contains the signature itself, so it cannot be the signed payload.
func canonicalPayload(ev InboundEvent) ([]byte, error) {
	return json.Marshal(map[string]any{
		"event_type":   ev.EventType,
		"corporate_id": ev.CorporateID,
		"event_data":   ev.EventData,
		"timestamp":    ev.Timestamp,
	})
}

// verify picks the signature source. A header signature covers the exact raw
// body bytes; a payload-embedded signature covers the canonical
// signature-stripped payload. Neither present falls through to the
// missing-signature policy (strict/permissive).
func (s *WebhookService) verify(ev InboundEvent, rawBody []byte, sigHeader string) error {
	if sigHeader != "" {
		return s.VerifySignature(rawBody, sigHeader)
	}
	if ev.Signature != "" {
		canonical, err := canonicalPayload(ev)
		if err != nil {
			return fmt.Errorf("%w: event not serializable", domain.ErrInvalidFormat)
		}
		return s.VerifySignature(canonical, ev.Signature)
	}
	return s.VerifySignature(rawBody, "")
}

// Process verifies, persists and dispatches one inbound event. The returned
// event id is valid whenever persistence succeeded, even if the handler
// failed afterwards.
func (s *WebhookService) Process(ctx context.Context, ev InboundEvent, rawBody []byte, sigHeader string) (int64, error) {
	if err := s.verify(ev, rawBody, sigHeader); err != nil {
		s.logger.Warn("Invalid webhook signature",
			zap.String("event_type", ev.EventType),
			zap.String("corporate_id", ev.CorporateID),
		)
		return 0, err
	}

	data, err := json.Marshal(ev.EventData)
	if err != nil {
		return 0, fmt.Errorf("%w: event_data not serializable", domain.ErrInvalidFormat)
	}

	traceID := uuid.NewString()
	eventID, err := s.events.Insert(ctx, ev.EventType, ev.CorporateID, string(data), traceID)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Received HR lifecycle event",
		zap.Int64("event_id", eventID),
		zap.String("trace_id", traceID),
		zap.String("event_type", ev.EventType),
		zap.String("corporate_id", ev.CorporateID),
	)

	switch ev.EventType {
	case domain.EventUserDeactivated:
		err = s.handleDeactivated(ctx, ev.CorporateID, ev.EventData)
	case domain.EventUserRoleChanged:
		err = s.handleRoleChanged(ctx, ev.CorporateID, ev.EventData)
	case domain.EventUserSuspended:
		err = s.handleSuspended(ctx, ev.CorporateID, ev.EventData)
	default:
		s.logger.Warn("Unknown event type",
			zap.String("event_type", ev.EventType),
			zap.String("trace_id", traceID),
		)
	}
	if err != nil {
		s.logger.Error("Event handler failed",
			zap.Int64("event_id", eventID),
			zap.String("trace_id", traceID),
			zap.String("event_type", ev.EventType),
			zap.Error(err),
		)
		return eventID, err
	}
	return eventID, nil
}

func (s *WebhookService) handleDeactivated(ctx context.Context, corporateID string, data map[string]any) error {
	acct, err := s.accounts.GetByCorporateID(ctx, corporateID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("Deactivation event for unknown account", zap.String("corporate_id", corporateID))
			return nil
		}
		return err
	}

	if err := s.panel.SetEnabled(ctx, acct.PanelUsername, false); err != nil {
		return fmt.Errorf("failed to disable panel account: %w", err)
	}
	if err := s.accounts.Deactivate(ctx, corporateID); err != nil {
		return err
	}

	reason, _ := data["deactivation_reason"].(string)
	if reason == "" {
		reason = "unknown"
	}
	s.logAuth(ctx, acct, domain.EventUserDeactivated, "deactivation reason: "+reason)
	s.logger.Info("Account deactivated",
		zap.String("corporate_id", corporateID),
		zap.String("reason", reason),
	)
	return nil
}

func (s *WebhookService) handleRoleChanged(ctx context.Context, corporateID string, data map[string]any) error {
	_, err := s.accounts.GetByCorporateID(ctx, corporateID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("Role change event for unknown account", zap.String("corporate_id", corporateID))
			return nil
		}
		return err
	}

	oldRole, _ := data["old_role"].(string)
	newRole, _ := data["new_role"].(string)

	if restrictedRoles[strings.ToLower(newRole)] {
		s.logger.Warn("Role change into restricted set, access review required",
			zap.String("corporate_id", corporateID),
			zap.String("old_role", oldRole),
			zap.String("new_role", newRole),
		)
	} else {
		s.logger.Info("Role changed",
			zap.String("corporate_id", corporateID),
			zap.String("old_role", oldRole),
			zap.String("new_role", newRole),
		)
	}
	return nil
}

func (s *WebhookService) handleSuspended(ctx context.Context, corporateID string, data map[string]any) error {
	acct, err := s.accounts.GetByCorporateID(ctx, corporateID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("Suspension event for unknown account", zap.String("corporate_id", corporateID))
			return nil
		}
		return err
	}

	reason, _ := data["suspension_reason"].(string)
	days, _ := data["duration_days"].(float64)

	duration := time.Duration(days*1440) * time.Minute
	if err := s.lockout.Lock(ctx, corporateID, duration); err != nil {
		return err
	}

	s.logAuth(ctx, acct, domain.EventUserSuspended,
		fmt.Sprintf("suspension reason: %s, duration: %.0f days", reason, days))
	s.logger.Info("Account suspended",
		zap.String("corporate_id", corporateID),
		zap.Float64("duration_days", days),
	)
	return nil
}

// Pending returns all unprocessed events, oldest first.
func (s *WebhookService) Pending(ctx context.Context) ([]domain.WebhookEvent, error) {
	return s.events.Pending(ctx)
}

// MarkProcessed flips processed false→true once.
func (s *WebhookService) MarkProcessed(ctx context.Context, eventID int64) error {
	return s.events.MarkProcessed(ctx, eventID)
}

func (s *WebhookService) logAuth(ctx context.Context, acct *domain.Account, action, details string) {
	err := s.audit.LogAuth(ctx, domain.AuthLogEntry{
		CorporateID:  acct.CorporateID,
		MessagingID:  acct.MessagingID,
		Action:       action,
		IPAddress:    "system",
		UserAgent:    "webhook",
		Success:      true,
		ErrorMessage: details,
	})
	if err != nil {
		s.logger.Error("Failed to append auth log", zap.Error(err))
	}
}
