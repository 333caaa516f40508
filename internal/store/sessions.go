package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Auth FSM states per messaging identity.
const (
	StateUnauthenticated     = "unauthenticated"
	StateAwaitingCorporateID = "awaiting_corporate_id"
	StateAwaitingCode        = "awaiting_code"
	StateAuthenticated       = "authenticated"
)

// Admin prompt states (multi-step admin commands).
const (
	AdminStateNone             = ""
	AdminStateAwaitingOwner    = "awaiting_owner"
	AdminStateAwaitingRevokeID = "awaiting_revoke_id"
	AdminStateAwaitingSearch   = "awaiting_search"
	AdminStateAwaitingValidate = "awaiting_validate_id"
)

const (
	sessionKeyPrefix    = "twofa:session:"
	stateKeyPrefix      = "twofa:state:"
	adminStateKeyPrefix = "twofa:admin:"
)

// VerificationSession 一次性验证码会话（每个消息账号最多一条，TTL 到期自动回收）
// Expiry is still checked explicitly on every read; the redis TTL only reclaims
// memory and is not relied on for correctness.
type VerificationSession struct {
	CorporateID string    `json:"corporate_id"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionStore keeps verification sessions and per-identity FSM state in a KV
// with bounded lifetimes. Safe under concurrent command handlers: every
// operation is a single KV call.
type SessionStore struct {
	kv         KV
	sessionTTL time.Duration
	stateTTL   time.Duration
}

func NewSessionStore(kv KV, sessionTTL, stateTTL time.Duration) *SessionStore {
	return &SessionStore{kv: kv, sessionTTL: sessionTTL, stateTTL: stateTTL}
}

// SessionTTL is the verification-code lifetime. Callers stamping ExpiresAt
// must use this value so the explicit expiry check and the redis TTL agree.
func (s *SessionStore) SessionTTL() time.Duration {
	return s.sessionTTL
}

// PutSession creates or overwrites the session for a messaging identity.
func (s *SessionStore) PutSession(ctx context.Context, messagingID string, sess VerificationSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.kv.Set(ctx, sessionKeyPrefix+messagingID, string(data), s.sessionTTL)
}

// GetSession returns the live session for a messaging identity, or ErrMiss.
func (s *SessionStore) GetSession(ctx context.Context, messagingID string) (*VerificationSession, error) {
	raw, err := s.kv.Get(ctx, sessionKeyPrefix+messagingID)
	if err != nil {
		return nil, err
	}
	var sess VerificationSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, messagingID string) error {
	return s.kv.Del(ctx, sessionKeyPrefix+messagingID)
}

// SetState records the auth FSM state for a messaging identity.
func (s *SessionStore) SetState(ctx context.Context, messagingID, state string) error {
	return s.kv.Set(ctx, stateKeyPrefix+messagingID, state, s.stateTTL)
}

// GetState returns the auth FSM state; a miss means unauthenticated.
func (s *SessionStore) GetState(ctx context.Context, messagingID string) (string, error) {
	state, err := s.kv.Get(ctx, stateKeyPrefix+messagingID)
	if err != nil {
		if err == ErrMiss {
			return StateUnauthenticated, nil
		}
		return "", err
	}
	return state, nil
}

func (s *SessionStore) ClearState(ctx context.Context, messagingID string) error {
	return s.kv.Del(ctx, stateKeyPrefix+messagingID)
}

// SetAdminState records the admin prompt state for a messaging identity.
func (s *SessionStore) SetAdminState(ctx context.Context, messagingID, state string) error {
	if state == AdminStateNone {
		return s.kv.Del(ctx, adminStateKeyPrefix+messagingID)
	}
	return s.kv.Set(ctx, adminStateKeyPrefix+messagingID, state, s.stateTTL)
}

// GetAdminState returns the admin prompt state; a miss means no prompt pending.
func (s *SessionStore) GetAdminState(ctx context.Context, messagingID string) (string, error) {
	state, err := s.kv.Get(ctx, adminStateKeyPrefix+messagingID)
	if err != nil {
		if err == ErrMiss {
			return AdminStateNone, nil
		}
		return "", err
	}
	return state, nil
}
