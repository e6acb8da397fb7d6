package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryRecords struct {
	mu   sync.Mutex
	data map[string]Record
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{data: make(map[string]Record)}
}

func (r *memoryRecords) Put(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[rec.TenantID+"/"+rec.Service] = rec
	return nil
}

func (r *memoryRecords) Get(_ context.Context, tenantID, service string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.data[tenantID+"/"+service]
	if !ok {
		return Record{}, ErrUnknownService
	}
	return rec, nil
}

func (r *memoryRecords) ListByTenant(_ context.Context, tenantID string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.data {
		if rec.TenantID == tenantID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeDeployer struct {
	mu      sync.Mutex
	failFor map[string]error
	calls   map[string]int
}

func newFakeDeployer() *fakeDeployer {
	return &fakeDeployer{failFor: make(map[string]error), calls: make(map[string]int)}
}

func (d *fakeDeployer) Deploy(_ context.Context, params JobParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[params.Service]++
	return d.failFor[params.Service]
}

func (d *fakeDeployer) Teardown(context.Context, JobParams) error { return nil }

var catalog = []Downstream{
	{Name: "products", URLPrefix: "products", BackendService: "products-api", BackendPort: 8080, ImageRef: "registry/products:1.4.0"},
	{Name: "orders", URLPrefix: "orders", BackendService: "orders-api", BackendPort: 8080, ImageRef: "registry/orders:2.1.3"},
	{Name: "billing", URLPrefix: "billing", BackendService: "billing-api", BackendPort: 8080, ImageRef: "registry/billing:0.9.1"},
}

func TestDeployFanoutAllSucceed(t *testing.T) {
	deployer := newFakeDeployer()
	records := newMemoryRecords()
	fanout := NewFanout(catalog, deployer, records, zap.NewNop())

	results, err := fanout.Deploy(context.Background(), "acmecorp", catalog)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, svc := range catalog {
		require.Equal(t, StatusDeployed, results[svc.Name].Status)
		require.NoError(t, results[svc.Name].Err)
	}

	stored, err := records.ListByTenant(context.Background(), "acmecorp")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for _, rec := range stored {
		require.Equal(t, StatusDeployed, rec.Status)
		require.Nil(t, rec.Error)
		require.NotEmpty(t, rec.ImageRef)
	}
}

func TestDeployFanoutFailuresAreIndependent(t *testing.T) {
	deployer := newFakeDeployer()
	deployer.failFor["orders"] = errors.New("job spawn rejected")
	records := newMemoryRecords()
	fanout := NewFanout(catalog, deployer, records, zap.NewNop())

	results, err := fanout.Deploy(context.Background(), "acmecorp", catalog)
	require.NoError(t, err)
	require.Equal(t, StatusDeployed, results["products"].Status)
	require.Equal(t, StatusDeployed, results["billing"].Status)
	require.Equal(t, StatusFailed, results["orders"].Status)
	require.Error(t, results["orders"].Err)

	// Every target was attempted exactly once despite the failure.
	require.Equal(t, 1, deployer.calls["products"])
	require.Equal(t, 1, deployer.calls["orders"])
	require.Equal(t, 1, deployer.calls["billing"])

	rec, err := records.Get(context.Background(), "acmecorp", "orders")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
}

func TestDeployOne(t *testing.T) {
	deployer := newFakeDeployer()
	deployer.failFor["orders"] = errors.New("job spawn rejected")
	records := newMemoryRecords()
	fanout := NewFanout(catalog, deployer, records, zap.NewNop())

	_, err := fanout.Deploy(context.Background(), "acmecorp", catalog)
	require.NoError(t, err)

	delete(deployer.failFor, "orders")
	res, err := fanout.DeployOne(context.Background(), "acmecorp", "orders")
	require.NoError(t, err)
	require.Equal(t, StatusDeployed, res.Status)

	// Other services' records are untouched by the single retry.
	require.Equal(t, 1, deployer.calls["products"])
	require.Equal(t, 2, deployer.calls["orders"])

	_, err = fanout.DeployOne(context.Background(), "acmecorp", "search")
	require.ErrorIs(t, err, ErrUnknownService)
}

func TestLoadCatalog(t *testing.T) {
	doc := `
services:
  - name: products
    urlPrefix: products
    backendService: products-api
    backendPort: 8080
    deployHook: http://products-deployer:9000
    imageRef: registry/products:1.4.0
    siloStore: true
  - name: notifications
    backendService: notifications-api
    backendPort: 8080
    imageRef: registry/notifications:3.0.0
`
	services, err := LoadCatalog(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, services, 2)

	require.Equal(t, "products", services[0].Name)
	require.Equal(t, "products", services[0].URLPrefix)
	require.Equal(t, 8080, services[0].BackendPort)
	require.Equal(t, "http://products-deployer:9000", services[0].DeployHook)
	require.True(t, services[0].SiloStore)

	// A backend without a urlPrefix is a valid catalog entry; it simply gets
	// no routing fragment.
	require.Equal(t, "notifications", services[1].Name)
	require.Empty(t, services[1].URLPrefix)
}

func TestLoadCatalogRejectsNamelessEntry(t *testing.T) {
	doc := `
services:
  - urlPrefix: products
`
	_, err := LoadCatalog(strings.NewReader(doc))
	require.Error(t, err)
}
