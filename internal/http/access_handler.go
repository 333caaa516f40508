package httpapi

import (
	"net/http"
	"strings"
	"time"

	"corp-access/internal/domain"
	"corp-access/internal/qr"
	"corp-access/internal/service"

	"go.uber.org/zap"
)

// AccessHandler 开通/配置/停用 API（由核心业务系统调用，需共享密钥）
type AccessHandler struct {
	access *service.AccessService
	secret string
	logger *zap.Logger
}

func NewAccessHandler(access *service.AccessService, secret string, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{access: access, secret: secret, logger: logger}
}

// authorized checks the X-Corporate-Secret header against the configured
// shared secret. An empty configured secret rejects everything.
func (h *AccessHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	return r.Header.Get("X-Corporate-Secret") == h.secret
}

type grantRequest struct {
	CorporateID string `json:"corporate_id"`
}

type grantResponse struct {
	CorporateID     string `json:"corporate_id"`
	PanelUsername   string `json:"panel_username"`
	SubscriptionURL string `json:"subscription_url"`
	ConnectionURL   string `json:"connection_url"`
	QRCode          string `json:"qr_code,omitempty"` // base64 PNG of the connection URL
	IsActive        bool   `json:"is_active"`
}

func (h *AccessHandler) Grant(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req grantRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CorporateID == "" {
		writeError(w, http.StatusBadRequest, "corporate_id is required")
		return
	}

	acct, err := h.access.Grant(r.Context(), req.CorporateID)
	if err != nil {
		h.logger.Error("Grant failed", zap.String("corporate_id", req.CorporateID), zap.Error(err))
		writeDomainError(w, err)
		return
	}

	resp := grantResponse{
		CorporateID:     acct.CorporateID,
		PanelUsername:   acct.PanelUsername,
		SubscriptionURL: acct.SubscriptionURL,
		ConnectionURL:   acct.ConnectionURL,
		IsActive:        acct.IsActive,
	}
	if acct.ConnectionURL != "" {
		png, qerr := qr.EncodePNG(acct.ConnectionURL)
		if qerr != nil {
			// QR is a convenience; the URLs alone are sufficient
			h.logger.Warn("QR encode failed", zap.String("corporate_id", acct.CorporateID), zap.Error(qerr))
		} else {
			resp.QRCode = png
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type configResponse struct {
	CorporateID     string     `json:"corporate_id"`
	PanelUsername   string     `json:"panel_username"`
	SubscriptionURL string     `json:"subscription_url"`
	ConnectionURL   string     `json:"connection_url"`
	IsActive        bool       `json:"is_active"`
	Upload          int64      `json:"upload_bytes"`
	Download        int64      `json:"download_bytes"`
	LastAccess      *time.Time `json:"last_access,omitempty"`
}

func (h *AccessHandler) Config(w http.ResponseWriter, r *http.Request, corporateID string) {
	if !h.authorized(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	acct, usage, err := h.access.Config(r.Context(), corporateID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := configResponse{
		CorporateID:     acct.CorporateID,
		PanelUsername:   acct.PanelUsername,
		SubscriptionURL: acct.SubscriptionURL,
		ConnectionURL:   acct.ConnectionURL,
		IsActive:        acct.IsActive,
		Upload:          usage.Upload,
		Download:        usage.Download,
		LastAccess:      acct.LastAccess,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AccessHandler) Deactivate(w http.ResponseWriter, r *http.Request, corporateID string) {
	if !h.authorized(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if err := h.access.Deactivate(r.Context(), corporateID); err != nil {
		h.logger.Error("Deactivate failed", zap.String("corporate_id", corporateID), zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *AccessHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// trimIdentifier normalizes a path segment before it reaches the service
// layer; full format validation happens there.
func trimIdentifier(seg string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(seg))
	if id == "" {
		return "", domain.ErrInvalidFormat
	}
	return id, nil
}
