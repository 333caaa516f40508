package httpapi

import (
	"errors"
	"net/http"

	"corp-access/internal/domain"
	"corp-access/internal/repository"
)

// errorBody 统一错误响应格式
type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeDomainError maps sentinel errors from the service layer onto HTTP
// statuses. Unknown errors become a 500 with a generic body so internal
// detail never leaks to callers.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, "invalid identifier format")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrAlreadyLinked):
		writeError(w, http.StatusConflict, "already linked")
	case errors.Is(err, domain.ErrLocked):
		writeError(w, http.StatusForbidden, "account locked")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, repository.ErrDuplicateID):
		writeError(w, http.StatusConflict, "duplicate identifier")
	case errors.Is(err, domain.ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream panel error")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
