package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nimbusworks/tenant-orchestrator/contracts"
	deployrepo "github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/repo"
	deployservice "github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/service"
	"github.com/nimbusworks/tenant-orchestrator/domains/lifecycle/be/service"
	routingrepo "github.com/nimbusworks/tenant-orchestrator/domains/routing/be/repo"
	routingservice "github.com/nimbusworks/tenant-orchestrator/domains/routing/be/service"
	tenantshandler "github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/handler"
	tenantsrepo "github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/repo"
	tenantsservice "github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/service"
)

type noopResource struct{ err error }

func (noopResource) Kind() string { return "postgres-schema" }

func (r noopResource) Ensure(context.Context, string) (tenantsservice.ResourceResult, error) {
	return tenantsservice.ResourceResult{Ready: r.err == nil}, r.err
}

func (r noopResource) Check(context.Context, string) (tenantsservice.ResourceResult, error) {
	return tenantsservice.ResourceResult{Ready: true}, nil
}

func (noopResource) Teardown(context.Context, string) error { return nil }

type noopIdentity struct{}

func (noopIdentity) Ensure(_ context.Context, tenantID string) (tenantsservice.IdentityResult, error) {
	return tenantsservice.IdentityResult{Ready: true, Ref: "sa-" + tenantID}, nil
}

func (noopIdentity) Check(_ context.Context, tenantID string) (tenantsservice.IdentityResult, error) {
	return tenantsservice.IdentityResult{Ready: true, Ref: "sa-" + tenantID}, nil
}

type noopDeployer struct{ failFor map[string]error }

func (d noopDeployer) Deploy(_ context.Context, params deployservice.JobParams) error {
	return d.failFor[params.Service]
}

func (noopDeployer) Teardown(context.Context, deployservice.JobParams) error { return nil }

func newTestRouter(t *testing.T, resource noopResource, deployer noopDeployer) http.Handler {
	t.Helper()

	catalog := []deployservice.Downstream{
		{Name: "products", URLPrefix: "products", BackendService: "products-api", BackendPort: 8080, ImageRef: "registry/products:1.4.0"},
		{Name: "orders", URLPrefix: "orders", BackendService: "orders-api", BackendPort: 8080, ImageRef: "registry/orders:2.1.3"},
	}

	logger := zaptest.NewLogger(t)
	orch := service.New(service.Deps{
		Registry:  tenantsservice.New(tenantsrepo.NewMemoryRepository()),
		Resources: []tenantsservice.ResourceProvisioner{resource},
		Identity:  noopIdentity{},
		Routing:   routingservice.New(routingrepo.NewMemoryStore(), "api.nimbusworks.io"),
		Fanout:    deployservice.NewFanout(catalog, deployer, deployrepo.NewMemoryRepository(), logger),
		Logger:    logger,
	})

	r := chi.NewRouter()
	New(orch, logger).Routes(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestOnboardEndpoint(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, noopResource{}, noopDeployer{})

	rec := postJSON(t, router, "/tenants/onboard", `{"companyName":"Acme Corp!","adminEmail":"admin@acme.example","plan":"silo"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "acmecorp", resp.TenantID)
	require.Equal(t, "active", resp.Status)
	require.NotEmpty(t, resp.JobID)
	require.Equal(t, "deployed", resp.Deployments["products"])
	require.Equal(t, "deployed", resp.Deployments["orders"])
	require.Empty(t, resp.FailedServices)
}

func TestOnboardEndpointValidation(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, noopResource{}, noopDeployer{})

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"companyName":`},
		{"missing email", `{"companyName":"Acme","plan":"pooled"}`},
		{"bad plan", `{"companyName":"Acme","adminEmail":"a@b.example","plan":"gold"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, router, "/tenants/onboard", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestOnboardEndpointConflict(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, noopResource{}, noopDeployer{})
	body := `{"companyName":"Acme Corp","adminEmail":"admin@acme.example","plan":"pooled"}`

	rec := postJSON(t, router, "/tenants/onboard", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, router, "/tenants/onboard", body)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestOnboardEndpointStageFailure(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, noopResource{err: errors.New("schema create refused")}, noopDeployer{})

	rec := postJSON(t, router, "/tenants/onboard", `{"companyName":"Beta Co","adminEmail":"a@beta.example","plan":"silo"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "failed", resp.Status)
	require.Len(t, resp.Stages, 1)
	require.Equal(t, "resources", resp.Stages[0].Stage)
	require.Contains(t, resp.Stages[0].Error, "schema create refused")
}

func TestOnboardEndpointPartialDeployment(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, noopResource{}, noopDeployer{failFor: map[string]error{"orders": errors.New("job spawn rejected")}})

	rec := postJSON(t, router, "/tenants/onboard", `{"companyName":"Gamma","adminEmail":"a@gamma.example","plan":"pooled"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "active", resp.Status)
	require.Equal(t, []string{"orders"}, resp.FailedServices)
	require.Equal(t, "failed", resp.Deployments["orders"])
	require.Equal(t, "deployed", resp.Deployments["products"])
}

func TestDeprovisionEndpoint(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, noopResource{}, noopDeployer{})

	rec := postJSON(t, router, "/tenants/onboard", `{"companyName":"Acme","adminEmail":"a@acme.example","plan":"silo"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, router, "/tenants/acme/deprovision", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "deleted", resp.Status)

	// Deleted tenants reject a second deprovision.
	rec = postJSON(t, router, "/tenants/acme/deprovision", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = postJSON(t, router, "/tenants/nobody/deprovision", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRollbackEndpoint(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, noopResource{}, noopDeployer{})

	rec := postJSON(t, router, "/tenants/onboard", `{"companyName":"Acme","adminEmail":"a@acme.example","plan":"pooled"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Rollback of an active tenant is rejected.
	rec = postJSON(t, router, "/tenants/acme/rollback", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = postJSON(t, router, "/tenants/nobody/rollback", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// newMountedRouter serves the handlers the way the api binary does: mounted
// under /api/v1 behind the contract request validator, so requests are
// matched against the full path including the mount prefix.
func newMountedRouter(t *testing.T) http.Handler {
	t.Helper()

	catalog := []deployservice.Downstream{
		{Name: "products", URLPrefix: "products", BackendService: "products-api", BackendPort: 8080, ImageRef: "registry/products:1.4.0"},
		{Name: "orders", URLPrefix: "orders", BackendService: "orders-api", BackendPort: 8080, ImageRef: "registry/orders:2.1.3"},
	}

	logger := zaptest.NewLogger(t)
	registry := tenantsservice.New(tenantsrepo.NewMemoryRepository())
	orch := service.New(service.Deps{
		Registry:  registry,
		Resources: []tenantsservice.ResourceProvisioner{noopResource{}},
		Identity:  noopIdentity{},
		Routing:   routingservice.New(routingrepo.NewMemoryStore(), "api.nimbusworks.io"),
		Fanout:    deployservice.NewFanout(catalog, noopDeployer{}, deployrepo.NewMemoryRepository(), logger),
		Logger:    logger,
	})

	spec, err := contracts.OrchestratorSpec()
	require.NoError(t, err)
	validator := oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options:               openapi3filter.Options{},
		SilenceServersWarning: true,
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(validator)
	tenantshandler.New(registry, logger).Routes(apiRouter)
	New(orch, logger).Routes(apiRouter)

	rootRouter := chi.NewRouter()
	rootRouter.Mount("/api/v1", apiRouter)
	return rootRouter
}

func TestMountedRouterAcceptsValidRequests(t *testing.T) {
	t.Parallel()

	router := newMountedRouter(t)

	rec := postJSON(t, router, "/api/v1/tenants/onboard", `{"companyName":"Acme Corp!","adminEmail":"admin@acme.example","plan":"silo"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "acmecorp", resp.TenantID)
	require.Equal(t, "active", resp.Status)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/acmecorp", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)

	rec = postJSON(t, router, "/api/v1/tenants/acmecorp/deprovision", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMountedRouterValidatorRejectsContractViolations(t *testing.T) {
	t.Parallel()

	router := newMountedRouter(t)

	// Plan outside the contract enum never reaches the handler.
	rec := postJSON(t, router, "/api/v1/tenants/onboard", `{"companyName":"Acme","adminEmail":"a@acme.example","plan":"gold"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Tenant id violating the path pattern is rejected by the contract.
	rec = postJSON(t, router, "/api/v1/tenants/Not-A-Slug/deprovision", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRedeployEndpoint(t *testing.T) {
	t.Parallel()

	deployer := noopDeployer{failFor: map[string]error{}}
	router := newTestRouter(t, noopResource{}, deployer)

	rec := postJSON(t, router, "/tenants/onboard", `{"companyName":"Acme","adminEmail":"a@acme.example","plan":"pooled"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, router, "/tenants/acme/services/orders/redeploy", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "orders", resp["service"])
	require.Equal(t, "deployed", resp["status"])

	rec = postJSON(t, router, "/tenants/acme/services/search/redeploy", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
