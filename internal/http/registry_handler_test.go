package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"corp-access/internal/domain"
	"corp-access/internal/repository"
	"corp-access/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRegistry struct {
	mu   sync.Mutex
	rows map[string]*domain.CorporateIdentifier
}

func newMemRegistry() *memRegistry {
	return &memRegistry{rows: make(map[string]*domain.CorporateIdentifier)}
}

func (m *memRegistry) Create(ctx context.Context, id, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; ok {
		return repository.ErrDuplicateID
	}
	m.rows[id] = &domain.CorporateIdentifier{ID: id, Owner: owner, Status: domain.IDStatusIssued, IssuedAt: time.Now()}
	return nil
}

func (m *memRegistry) Get(ctx context.Context, id string) (*domain.CorporateIdentifier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRegistry) SetStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	rec.Status = status
	rec.UpdatedAt = &now
	return nil
}

func (m *memRegistry) Search(ctx context.Context, query string, limit int) ([]domain.CorporateIdentifier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(query)
	var out []domain.CorporateIdentifier
	for _, rec := range m.rows {
		if strings.Contains(strings.ToLower(rec.ID), q) || strings.Contains(strings.ToLower(rec.Owner), q) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memRegistry) List(ctx context.Context, limit int) ([]domain.CorporateIdentifier, error) {
	return m.Search(ctx, "", limit)
}

func (m *memRegistry) Audit(ctx context.Context, id, action, actor, details string) error { return nil }

func setupRegistryAPI(t *testing.T) (*Router, *memRegistry) {
	logger := zap.NewNop()
	repo := newMemRegistry()
	registry := service.NewRegistryService(repo, logger)

	router := NewRouter(logger)
	router.RegisterRegistryRoutes(NewRegistryHandler(registry, testSecret, logger))
	return router, repo
}

func doReq(router *Router, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegistryIssue_Success(t *testing.T) {
	router, _ := setupRegistryAPI(t)

	rec := doReq(router, http.MethodPost, "/registry/issue",
		[]byte(`{"owner":"Jordan Lee","actor":"hr-system"}`), withSecret())

	require.Equal(t, http.StatusCreated, rec.Code)
	var view identifierView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Regexp(t, `^[A-HJ-NP-Z]{2}\d{6}$`, view.ID)
	assert.Equal(t, "Jordan Lee", view.Owner)
	assert.Equal(t, domain.IDStatusIssued, view.Status)
}

func TestRegistryIssue_RequiresSecret(t *testing.T) {
	router, _ := setupRegistryAPI(t)

	rec := doReq(router, http.MethodPost, "/registry/issue", []byte(`{"owner":"x"}`), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegistryValidate_PublicLookup(t *testing.T) {
	router, repo := setupRegistryAPI(t)
	require.NoError(t, repo.Create(context.Background(), "AB123456", "Jordan Lee"))

	// validation stays open: no secret header
	rec := doReq(router, http.MethodGet, "/registry/AB123456", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doReq(router, http.MethodGet, "/registry/ZZ999999", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doReq(router, http.MethodGet, "/registry/bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegistrySetStatus(t *testing.T) {
	router, repo := setupRegistryAPI(t)
	require.NoError(t, repo.Create(context.Background(), "AB123456", "Jordan Lee"))

	rec := doReq(router, http.MethodPatch, "/registry/AB123456",
		[]byte(`{"status":"revoked","actor":"admin-1"}`), withSecret())
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := repo.Get(context.Background(), "AB123456")
	require.NoError(t, err)
	assert.Equal(t, domain.IDStatusRevoked, got.Status)
}

func TestRegistrySetStatus_UnknownStatus(t *testing.T) {
	router, repo := setupRegistryAPI(t)
	require.NoError(t, repo.Create(context.Background(), "AB123456", "Jordan Lee"))

	rec := doReq(router, http.MethodPatch, "/registry/AB123456",
		[]byte(`{"status":"frozen"}`), withSecret())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegistrySearch(t *testing.T) {
	router, repo := setupRegistryAPI(t)
	require.NoError(t, repo.Create(context.Background(), "AB123456", "Jordan Lee"))
	require.NoError(t, repo.Create(context.Background(), "CD654321", "Casey Smith"))

	rec := doReq(router, http.MethodGet, "/registry/search?q=lee", nil, withSecret())
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Identifiers []identifierView `json:"identifiers"`
		Count       int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "AB123456", resp.Identifiers[0].ID)
}

func TestRegistryExport_XLSX(t *testing.T) {
	router, repo := setupRegistryAPI(t)
	require.NoError(t, repo.Create(context.Background(), "AB123456", "Jordan Lee"))

	rec := doReq(router, http.MethodGet, "/registry/export", nil, withSecret())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "id_registry_")
	// xlsx files are zip archives
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}
