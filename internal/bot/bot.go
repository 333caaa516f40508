package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"corp-access/internal/domain"
	"corp-access/internal/service"
	"corp-access/internal/store"

	"go.uber.org/zap"
)

const helpText = `Available commands:

/start - Start authentication
/get_config - Get your VPN configuration
/help - Show this message

Admin commands:
/issue_id - Issue a new corporate ID
/revoke_id - Revoke a corporate ID
/search_id - Search corporate IDs
/validate_id - Validate a corporate ID

To get VPN access:
1. Use /start to authenticate
2. Enter your corporate ID
3. Confirm with the emailed code
4. Fetch your configuration with /get_config`

// Bot 消息命令路由：驱动两步验证FSM与登记表管理命令
// The transport only moves text; all state lives in the services.
type Bot struct {
	transport Transport
	twofa     *service.TwoFactorService
	registry  *service.RegistryService
	access    *service.AccessService
	sessions  *store.SessionStore
	admins    map[string]struct{}
	logger    *zap.Logger
}

func New(
	transport Transport,
	twofa *service.TwoFactorService,
	registry *service.RegistryService,
	access *service.AccessService,
	sessions *store.SessionStore,
	adminIDs []string,
	logger *zap.Logger,
) *Bot {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Bot{
		transport: transport,
		twofa:     twofa,
		registry:  registry,
		access:    access,
		sessions:  sessions,
		admins:    admins,
		logger:    logger,
	}
}

func (b *Bot) isAdmin(messagingID string) bool {
	_, ok := b.admins[messagingID]
	return ok
}

// HandleMessage routes one inbound message. Command inputs switch flows;
// free text feeds whichever prompt is pending for that identity.
func (b *Bot) HandleMessage(ctx context.Context, msg Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	var err error
	switch {
	case text == "/start":
		err = b.handleStart(ctx, msg.From)
	case text == "/help":
		err = b.reply(ctx, msg.From, helpText)
	case text == "/get_config":
		err = b.handleGetConfig(ctx, msg.From)
	case text == "/issue_id":
		err = b.handleAdminPrompt(ctx, msg.From, store.AdminStateAwaitingOwner, "Enter the owner name for the new ID:")
	case text == "/revoke_id":
		err = b.handleAdminPrompt(ctx, msg.From, store.AdminStateAwaitingRevokeID, "Enter the ID to revoke:")
	case text == "/search_id":
		err = b.handleAdminPrompt(ctx, msg.From, store.AdminStateAwaitingSearch, "Enter a search query (ID/owner/status):")
	case text == "/validate_id":
		err = b.handleAdminPrompt(ctx, msg.From, store.AdminStateAwaitingValidate, "Enter the ID to validate:")
	default:
		err = b.handleFreeText(ctx, msg.From, text)
	}
	if err != nil {
		b.logger.Error("Failed to handle message",
			zap.String("messaging_id", msg.From),
			zap.Error(err),
		)
	}
}

func (b *Bot) handleStart(ctx context.Context, from string) error {
	res, err := b.twofa.Begin(ctx, from)
	if err != nil {
		return err
	}
	if res.State == store.StateAuthenticated {
		return b.reply(ctx, from, fmt.Sprintf(
			"You are already authenticated.\nYour corporate ID: %s\nUse /help for the command list.",
			res.CorporateID))
	}
	return b.reply(ctx, from,
		"Welcome to the corporate VPN bot.\n\n"+
			"To get access I need to link your messaging account to a corporate ID.\n\n"+
			"Please enter your corporate ID:")
}

func (b *Bot) handleGetConfig(ctx context.Context, from string) error {
	state, err := b.twofa.CurrentState(ctx, from)
	if err != nil {
		return err
	}
	if state != store.StateAuthenticated {
		return b.reply(ctx, from, "Please authenticate first with /start")
	}

	acct, err := b.access.BindingByMessagingID(ctx, from)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return b.reply(ctx, from, "Account not found. Please authenticate again with /start")
		}
		return err
	}

	if acct.SubscriptionURL == "" {
		return b.reply(ctx, from,
			"Your VPN configuration is being prepared.\nPlease check again in a few minutes.")
	}

	return b.reply(ctx, from, fmt.Sprintf(
		"Your VPN configuration:\n\n"+
			"Corporate ID: %s\nUsername: %s\n\n"+
			"Subscription link:\n%s\n\n"+
			"Direct connection:\n%s",
		acct.CorporateID, acct.PanelUsername, acct.SubscriptionURL, acct.ConnectionURL))
}

func (b *Bot) handleAdminPrompt(ctx context.Context, from, state, prompt string) error {
	if !b.isAdmin(from) {
		return b.reply(ctx, from, "Access denied")
	}
	if err := b.sessions.SetAdminState(ctx, from, state); err != nil {
		return err
	}
	return b.reply(ctx, from, prompt)
}

func (b *Bot) handleFreeText(ctx context.Context, from, text string) error {
	adminState, err := b.sessions.GetAdminState(ctx, from)
	if err != nil {
		return err
	}
	if adminState != store.AdminStateNone {
		return b.handleAdminInput(ctx, from, adminState, text)
	}

	state, err := b.twofa.CurrentState(ctx, from)
	if err != nil {
		return err
	}
	switch state {
	case store.StateAwaitingCorporateID:
		return b.handleCorporateIDInput(ctx, from, text)
	case store.StateAwaitingCode:
		return b.handleCodeInput(ctx, from, text)
	default:
		return b.reply(ctx, from, "Use /start to begin authentication.")
	}
}

func (b *Bot) handleCorporateIDInput(ctx context.Context, from, text string) error {
	err := b.twofa.SubmitCorporateID(ctx, from, text)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidFormat) {
			return b.reply(ctx, from, "Invalid corporate ID format. Try again:")
		}
		if errors.Is(err, service.ErrUnexpectedInput) {
			return b.reply(ctx, from, "Use /start to begin authentication.")
		}
		return err
	}
	return b.reply(ctx, from,
		"A verification code has been sent to your corporate email.\n\n"+
			"Please enter the 6-character code:")
}

func (b *Bot) handleCodeInput(ctx context.Context, from, text string) error {
	_, err := b.twofa.SubmitCode(ctx, from, text)
	switch {
	case err == nil:
		return b.reply(ctx, from,
			"Authentication complete.\n\n"+
				"You can now fetch your VPN configuration with /get_config.")
	case errors.Is(err, domain.ErrNoSession), errors.Is(err, domain.ErrSessionExpired):
		return b.reply(ctx, from, "The verification code expired. Please start again with /start")
	case errors.Is(err, domain.ErrLocked):
		return b.reply(ctx, from, "This account is temporarily locked. Try again later.")
	case errors.Is(err, service.ErrCodeMismatch):
		return b.reply(ctx, from, "Wrong verification code. Try again:")
	case errors.Is(err, domain.ErrAlreadyLinked):
		return b.reply(ctx, from, "This messaging account is already linked to a different corporate ID.")
	default:
		return err
	}
}

func (b *Bot) handleAdminInput(ctx context.Context, from, adminState, text string) error {
	if !b.isAdmin(from) {
		_ = b.sessions.SetAdminState(ctx, from, store.AdminStateNone)
		return b.reply(ctx, from, "Access denied")
	}

	switch adminState {
	case store.AdminStateAwaitingOwner:
		rec, err := b.registry.Issue(ctx, text, from)
		if err != nil {
			return err
		}
		if err := b.sessions.SetAdminState(ctx, from, store.AdminStateNone); err != nil {
			return err
		}
		return b.reply(ctx, from, fmt.Sprintf("New ID issued: %s\nOwner: %s", rec.ID, rec.Owner))

	case store.AdminStateAwaitingRevokeID:
		err := b.registry.Revoke(ctx, text, from)
		if errors.Is(err, domain.ErrInvalidFormat) {
			return b.reply(ctx, from, "Invalid ID format. Example: AB123456")
		}
		if errors.Is(err, domain.ErrNotFound) {
			return b.reply(ctx, from, "ID not found")
		}
		if err != nil {
			return err
		}
		if err := b.sessions.SetAdminState(ctx, from, store.AdminStateNone); err != nil {
			return err
		}
		return b.reply(ctx, from, "ID revoked")

	case store.AdminStateAwaitingSearch:
		rows, err := b.registry.Search(ctx, text, 20)
		if err != nil {
			return err
		}
		if err := b.sessions.SetAdminState(ctx, from, store.AdminStateNone); err != nil {
			return err
		}
		if len(rows) == 0 {
			return b.reply(ctx, from, "Nothing found")
		}
		var sb strings.Builder
		sb.WriteString("Results:\n")
		for _, r := range rows {
			fmt.Fprintf(&sb, "%s | %s | %s\n", r.ID, r.Owner, r.Status)
		}
		return b.reply(ctx, from, sb.String())

	case store.AdminStateAwaitingValidate:
		rec, err := b.registry.Validate(ctx, text)
		if errors.Is(err, domain.ErrInvalidFormat) {
			return b.reply(ctx, from, "Invalid ID format. Example: AB123456")
		}
		if cerr := b.sessions.SetAdminState(ctx, from, store.AdminStateNone); cerr != nil {
			return cerr
		}
		if errors.Is(err, domain.ErrNotFound) {
			return b.reply(ctx, from, "ID not found")
		}
		if err != nil {
			return err
		}
		return b.reply(ctx, from, fmt.Sprintf("ID is valid. Status: %s Owner: %s", rec.Status, rec.Owner))
	}
	return nil
}

// NotifyAdmins sends text to every registered administrator, continuing past
// individual delivery failures. Implements service.AdminNotifier.
func (b *Bot) NotifyAdmins(ctx context.Context, text string) error {
	var lastErr error
	for adminID := range b.admins {
		if err := b.transport.Send(ctx, adminID, text); err != nil {
			b.logger.Error("Admin notification failed",
				zap.String("admin_id", adminID),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	return lastErr
}

func (b *Bot) reply(ctx context.Context, to, text string) error {
	return b.transport.Send(ctx, to, text)
}
