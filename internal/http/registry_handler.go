package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"corp-access/internal/domain"
	"corp-access/internal/service"

	"go.uber.org/zap"
)

// RegistryHandler 企业ID登记表管理API（签发/查询/状态/导出）
type RegistryHandler struct {
	registry *service.RegistryService
	secret   string
	logger   *zap.Logger
}

func NewRegistryHandler(registry *service.RegistryService, secret string, logger *zap.Logger) *RegistryHandler {
	return &RegistryHandler{registry: registry, secret: secret, logger: logger}
}

func (h *RegistryHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	return r.Header.Get("X-Corporate-Secret") == h.secret
}

type identifierView struct {
	ID        string     `json:"id"`
	Owner     string     `json:"owner"`
	Status    string     `json:"status"`
	IssuedAt  time.Time  `json:"issued_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type issueRequest struct {
	Owner string `json:"owner"`
	Actor string `json:"actor"`
}

func (h *RegistryHandler) Issue(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req issueRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	rec, err := h.registry.Issue(r.Context(), req.Owner, req.Actor)
	if err != nil {
		h.logger.Error("Issue identifier failed", zap.String("owner", req.Owner), zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIdentifierView(rec))
}

func (h *RegistryHandler) Validate(w http.ResponseWriter, r *http.Request, idSeg string) {
	id, err := trimIdentifier(idSeg)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rec, err := h.registry.Validate(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdentifierView(rec))
}

type setStatusRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
}

func (h *RegistryHandler) SetStatus(w http.ResponseWriter, r *http.Request, idSeg string) {
	if !h.authorized(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	id, err := trimIdentifier(idSeg)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req setStatusRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	if err := h.registry.SetStatus(r.Context(), id, req.Status, req.Actor); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}

func (h *RegistryHandler) Search(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	query := r.URL.Query().Get("q")
	limit := parseInt(r.URL.Query().Get("limit"), 50)

	rows, err := h.registry.Search(r.Context(), query, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]identifierView, 0, len(rows))
	for i := range rows {
		out = append(out, toIdentifierView(&rows[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"identifiers": out, "count": len(out)})
}

// Export streams the registry as an xlsx workbook.
func (h *RegistryHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 10000)
	rows, err := h.registry.List(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	data, err := GenerateRegistryExport(rows)
	if err != nil {
		h.logger.Error("Registry export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	filename := fmt.Sprintf("id_registry_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func toIdentifierView(rec *domain.CorporateIdentifier) identifierView {
	return identifierView{
		ID:        rec.ID,
		Owner:     rec.Owner,
		Status:    rec.Status,
		IssuedAt:  rec.IssuedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
