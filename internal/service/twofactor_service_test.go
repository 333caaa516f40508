package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"corp-access/internal/config"
	"corp-access/internal/domain"
	"corp-access/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTwoFactor(t *testing.T) (*TwoFactorService, *store.SessionStore, *fakeAccountsRepo, *fakeAuditRepo) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := store.NewSessionStore(store.NewRedisKV(client), 5*time.Minute, time.Hour)

	accounts := newFakeAccountsRepo()
	audit := &fakeAuditRepo{}
	lockout := NewLockoutService(accounts, config.LockoutConfig{
		Threshold:    5,
		LockDuration: 30 * time.Minute,
	}, zap.NewNop())

	svc := NewTwoFactorService(sessions, accounts, lockout, audit, zap.NewNop())
	return svc, sessions, accounts, audit
}

func TestBegin_UnknownIdentity(t *testing.T) {
	svc, _, _, _ := setupTwoFactor(t)
	ctx := context.Background()

	res, err := svc.Begin(ctx, "msg-1")

	require.NoError(t, err)
	assert.Equal(t, store.StateAwaitingCorporateID, res.State)
	assert.Empty(t, res.CorporateID)
}

func TestBegin_AlreadyBound_Idempotent(t *testing.T) {
	svc, _, accounts, _ := setupTwoFactor(t)
	ctx := context.Background()

	require.NoError(t, accounts.BindMessaging(ctx, "AB123456", "msg-1"))

	for i := 0; i < 3; i++ {
		res, err := svc.Begin(ctx, "msg-1")
		require.NoError(t, err)
		assert.Equal(t, store.StateAuthenticated, res.State)
		assert.Equal(t, "AB123456", res.CorporateID)
	}
}

func TestSubmitCorporateID_WrongState(t *testing.T) {
	svc, _, _, _ := setupTwoFactor(t)

	err := svc.SubmitCorporateID(context.Background(), "msg-1", "AB123456")

	assert.ErrorIs(t, err, ErrUnexpectedInput)
}

func TestSubmitCorporateID_InvalidInput_KeepsState(t *testing.T) {
	svc, _, _, _ := setupTwoFactor(t)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "msg-1")
	require.NoError(t, err)

	err = svc.SubmitCorporateID(ctx, "msg-1", "ab")
	assert.ErrorIs(t, err, domain.ErrInvalidFormat)

	state, err := svc.CurrentState(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateAwaitingCorporateID, state)
}

func TestSubmitCorporateID_CreatesSession(t *testing.T) {
	svc, sessions, _, _ := setupTwoFactor(t)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "msg-1")
	require.NoError(t, err)
	require.NoError(t, svc.SubmitCorporateID(ctx, "msg-1", "AB123456"))

	state, err := svc.CurrentState(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateAwaitingCode, state)

	sess, err := sessions.GetSession(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "AB123456", sess.CorporateID)
	assert.Len(t, sess.Code, 6)
	assert.True(t, sess.ExpiresAt.After(time.Now()))
}

func TestSubmitCode_NoSession(t *testing.T) {
	svc, _, _, _ := setupTwoFactor(t)

	_, err := svc.SubmitCode(context.Background(), "msg-1", "ABCDEF")

	assert.ErrorIs(t, err, domain.ErrNoSession)
}

func TestSubmitCode_Expired(t *testing.T) {
	svc, sessions, _, _ := setupTwoFactor(t)
	ctx := context.Background()

	require.NoError(t, sessions.PutSession(ctx, "msg-1", store.VerificationSession{
		CorporateID: "AB123456",
		Code:        "A1B2C3",
		ExpiresAt:   time.Now().Add(-time.Second),
	}))
	require.NoError(t, sessions.SetState(ctx, "msg-1", store.StateAwaitingCode))

	_, err := svc.SubmitCode(ctx, "msg-1", "A1B2C3")
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	// session consumed, state reset
	_, err = sessions.GetSession(ctx, "msg-1")
	assert.ErrorIs(t, err, store.ErrMiss)
	state, err := svc.CurrentState(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateUnauthenticated, state)
}

func TestSubmitCode_Mismatch_KeepsSession(t *testing.T) {
	svc, sessions, accounts, _ := setupTwoFactor(t)
	ctx := context.Background()

	require.NoError(t, accounts.Upsert(ctx, &domain.Account{CorporateID: "AB123456"}))
	_, err := svc.Begin(ctx, "msg-1")
	require.NoError(t, err)
	require.NoError(t, svc.SubmitCorporateID(ctx, "msg-1", "AB123456"))

	_, err = svc.SubmitCode(ctx, "msg-1", "WRONG1")
	assert.ErrorIs(t, err, ErrCodeMismatch)

	// session survives for a retry within the window
	sess, err := sessions.GetSession(ctx, "msg-1")
	require.NoError(t, err)

	// retry with the real code succeeds
	corporateID, err := svc.SubmitCode(ctx, "msg-1", sess.Code)
	require.NoError(t, err)
	assert.Equal(t, "AB123456", corporateID)
}

func TestSubmitCode_FifthFailureLocks(t *testing.T) {
	svc, sessions, accounts, _ := setupTwoFactor(t)
	ctx := context.Background()

	require.NoError(t, accounts.Upsert(ctx, &domain.Account{CorporateID: "AB123456"}))
	_, err := svc.Begin(ctx, "msg-1")
	require.NoError(t, err)
	require.NoError(t, svc.SubmitCorporateID(ctx, "msg-1", "AB123456"))

	for i := 0; i < 5; i++ {
		_, err = svc.SubmitCode(ctx, "msg-1", "WRONG1")
		assert.ErrorIs(t, err, ErrCodeMismatch)
	}

	// lock is now in effect: even the correct code is refused
	sess, err := sessions.GetSession(ctx, "msg-1")
	require.NoError(t, err)
	_, err = svc.SubmitCode(ctx, "msg-1", sess.Code)
	assert.ErrorIs(t, err, domain.ErrLocked)
}

func TestSubmitCode_Success_BindsAndResets(t *testing.T) {
	svc, sessions, accounts, audit := setupTwoFactor(t)
	ctx := context.Background()

	require.NoError(t, accounts.Upsert(ctx, &domain.Account{CorporateID: "AB123456"}))
	_, err := svc.Begin(ctx, "msg-1")
	require.NoError(t, err)
	require.NoError(t, svc.SubmitCorporateID(ctx, "msg-1", "AB123456"))

	// one failure first, to verify the counter resets on success
	_, err = svc.SubmitCode(ctx, "msg-1", "WRONG1")
	assert.ErrorIs(t, err, ErrCodeMismatch)

	sess, err := sessions.GetSession(ctx, "msg-1")
	require.NoError(t, err)

	corporateID, err := svc.SubmitCode(ctx, "msg-1", sess.Code)
	require.NoError(t, err)
	assert.Equal(t, "AB123456", corporateID)

	acct, err := accounts.GetByCorporateID(ctx, "AB123456")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", acct.MessagingID)
	assert.Equal(t, 0, acct.AuthAttempts)
	assert.Nil(t, acct.LockedUntil)

	state, err := svc.CurrentState(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateAuthenticated, state)

	// session consumed
	_, err = sessions.GetSession(ctx, "msg-1")
	assert.ErrorIs(t, err, store.ErrMiss)

	logs, err := audit.AuthLogs(ctx, "AB123456", 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "link", logs[len(logs)-1].Action)
	assert.True(t, logs[len(logs)-1].Success)
}

func TestSubmitCode_AlreadyLinkedElsewhere(t *testing.T) {
	svc, sessions, accounts, _ := setupTwoFactor(t)
	ctx := context.Background()

	// msg-1 is already bound to another corporate id
	require.NoError(t, accounts.BindMessaging(ctx, "CD654321", "msg-1"))
	require.NoError(t, accounts.Upsert(ctx, &domain.Account{CorporateID: "AB123456"}))

	require.NoError(t, sessions.SetState(ctx, "msg-1", store.StateAwaitingCorporateID))
	require.NoError(t, svc.SubmitCorporateID(ctx, "msg-1", "AB123456"))

	sess, err := sessions.GetSession(ctx, "msg-1")
	require.NoError(t, err)

	_, err = svc.SubmitCode(ctx, "msg-1", sess.Code)
	assert.ErrorIs(t, err, domain.ErrAlreadyLinked)

	// the code was consumed and the flow reset
	_, err = sessions.GetSession(ctx, "msg-1")
	assert.ErrorIs(t, err, store.ErrMiss)
	state, err := svc.CurrentState(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateUnauthenticated, state)

	// the original binding is untouched
	orig, err := accounts.GetByMessagingID(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "CD654321", orig.CorporateID)
}

func TestSubmitCode_CaseInsensitive(t *testing.T) {
	svc, sessions, accounts, _ := setupTwoFactor(t)
	ctx := context.Background()

	require.NoError(t, accounts.Upsert(ctx, &domain.Account{CorporateID: "AB123456"}))
	_, err := svc.Begin(ctx, "msg-1")
	require.NoError(t, err)
	require.NoError(t, svc.SubmitCorporateID(ctx, "msg-1", "AB123456"))

	sess, err := sessions.GetSession(ctx, "msg-1")
	require.NoError(t, err)

	lower := "  " + strings.ToLower(sess.Code) + "  "
	corporateID, err := svc.SubmitCode(ctx, "msg-1", lower)
	require.NoError(t, err)
	assert.Equal(t, "AB123456", corporateID)
}
