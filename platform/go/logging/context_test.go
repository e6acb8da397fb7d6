package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerCarriesContextLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(base))

	r.Post("/tenants/{tenantId}/deprovision", func(w http.ResponseWriter, req *http.Request) {
		logger, ok := FromContext(req.Context())
		require.True(t, ok)
		logger.Info("handler reached")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/tenants/acmecorp/deprovision", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	fields := completed[0].ContextMap()
	require.Equal(t, "acmecorp", fields["tenant_id"])
	require.Equal(t, "/tenants/acmecorp/deprovision", fields["path"])
	require.NotEmpty(t, fields["request_id"])
}

func TestRequestLoggerOmitsTenantOnUnscopedRoutes(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	r := chi.NewRouter()
	r.Use(RequestLogger(base))
	r.Get("/tenants", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/tenants", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	require.NotContains(t, completed[0].ContextMap(), "tenant_id")
}
