package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"corp-access/internal/service"

	"go.uber.org/zap"
)

// maxWebhookBody caps inbound HR event payloads.
const maxWebhookBody = 1 << 20

// WebhookHandler 接收HR系统生命周期事件（HMAC签名校验）
// The operator endpoints (pending list, reprocess) sit behind the shared
// secret; event delivery itself is authenticated by the HMAC signature.
type WebhookHandler struct {
	webhooks *service.WebhookService
	secret   string
	logger   *zap.Logger
}

func NewWebhookHandler(webhooks *service.WebhookService, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, secret: secret, logger: logger}
}

// authorized checks the X-Corporate-Secret header against the configured
// shared secret. An empty configured secret rejects everything.
func (h *WebhookHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	return r.Header.Get("X-Corporate-Secret") == h.secret
}

// Receive reads the raw body first: the signature covers the exact bytes on
// the wire, not a re-serialization.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var ev service.InboundEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if ev.EventType == "" || ev.CorporateID == "" {
		writeError(w, http.StatusBadRequest, "event_type and corporate_id are required")
		return
	}
	sigHeader := r.Header.Get("X-Hub-Signature-256")

	eventID, err := h.webhooks.Process(r.Context(), ev, body, sigHeader)
	if err != nil {
		if eventID != 0 {
			// persisted but the handler failed: signal the deliverer to retry,
			// the stored row stays reprocessable either way
			h.logger.Error("Event stored but processing failed",
				zap.Int64("event_id", eventID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"event_id": eventID,
				"error":    "event stored but processing failed",
			})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"event_id": eventID,
		"status":   "processed",
	})
}

type pendingEventView struct {
	ID          int64     `json:"id"`
	EventType   string    `json:"event_type"`
	CorporateID string    `json:"corporate_id"`
	EventData   string    `json:"event_data"`
	TraceID     string    `json:"trace_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *WebhookHandler) Pending(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	events, err := h.webhooks.Pending(r.Context())
	if err != nil {
		h.logger.Error("List pending events failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}
	out := make([]pendingEventView, 0, len(events))
	for _, ev := range events {
		out = append(out, pendingEventView{
			ID:          ev.ID,
			EventType:   ev.EventType,
			CorporateID: ev.CorporateID,
			EventData:   ev.EventData,
			TraceID:     ev.TraceID,
			CreatedAt:   ev.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out, "count": len(out)})
}

func (h *WebhookHandler) MarkProcessed(w http.ResponseWriter, r *http.Request, idSeg string) {
	if !h.authorized(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	eventID := int64(parseInt(idSeg, 0))
	if eventID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	if err := h.webhooks.MarkProcessed(r.Context(), eventID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
