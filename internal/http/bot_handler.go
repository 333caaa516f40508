package httpapi

import (
	"net/http"

	"corp-access/internal/bot"

	"go.uber.org/zap"
)

// BotHandler 接收消息桥转发的入站消息
// The bridge asserts the sender identity in the payload, so only a bridge
// holding the shared secret may deliver messages here.
type BotHandler struct {
	bot    *bot.Bot
	secret string
	logger *zap.Logger
}

func NewBotHandler(b *bot.Bot, secret string, logger *zap.Logger) *BotHandler {
	return &BotHandler{bot: b, secret: secret, logger: logger}
}

// authorized checks the X-Corporate-Secret header against the configured
// shared secret. An empty configured secret rejects everything.
func (h *BotHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	return r.Header.Get("X-Corporate-Secret") == h.secret
}

func (h *BotHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var msg bot.Message
	if err := readBodyJSON(r, 1<<16, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg.From == "" {
		writeError(w, http.StatusBadRequest, "from is required")
		return
	}

	h.bot.HandleMessage(r.Context(), msg)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
