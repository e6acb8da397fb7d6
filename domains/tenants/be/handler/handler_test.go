package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/repo"
	"github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/service"
)

func newTestRouter(t *testing.T) (http.Handler, *service.Service) {
	t.Helper()
	svc := service.New(repo.NewMemoryRepository())
	r := chi.NewRouter()
	New(svc, zaptest.NewLogger(t)).Routes(r)
	return r, svc
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetTenant(t *testing.T) {
	t.Parallel()

	router, svc := newTestRouter(t)
	_, err := svc.Register(context.Background(), "acmecorp", "Acme Corp", "admin@acme.example", service.PlanSilo)
	require.NoError(t, err)

	rec := get(router, "/tenants/acmecorp")
	require.Equal(t, http.StatusOK, rec.Code)

	var body Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "acmecorp", body.TenantID)
	require.Equal(t, "Acme Corp", body.CompanyName)
	require.Equal(t, "silo", body.Plan)
	require.Equal(t, "provisioning", body.Status)
	require.Nil(t, body.FailedStage)
}

func TestGetTenantNotFound(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)

	rec := get(router, "/tenants/nobody")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var p Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Equal(t, http.StatusNotFound, p.Status)
}

func TestListTenants(t *testing.T) {
	t.Parallel()

	router, svc := newTestRouter(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "acmecorp", "Acme Corp", "a@acme.example", service.PlanPooled)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "globex", "Globex", "a@globex.example", service.PlanSilo)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, "globex", service.StatusProvisioning, service.StatusActive)
	require.NoError(t, err)

	rec := get(router, "/tenants")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items      []Tenant `json:"items"`
		TotalItems int      `json:"totalItems"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.TotalItems)

	rec = get(router, "/tenants?status=active")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	require.Equal(t, "globex", body.Items[0].TenantID)
}

func TestListTenantsRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t)

	rec := get(router, "/tenants?status=bogus")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
