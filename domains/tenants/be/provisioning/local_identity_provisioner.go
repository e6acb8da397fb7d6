package provisioning

import (
	"context"
	"sync"

	"github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/service"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/tenant"
)

// LocalIdentityProvisioner mints deterministic identity refs in memory. Used
// for local development and tests where no identity provider is reachable.
type LocalIdentityProvisioner struct {
	mu      sync.Mutex
	created map[string]string
}

func NewLocalIdentityProvisioner() *LocalIdentityProvisioner {
	return &LocalIdentityProvisioner{created: make(map[string]string)}
}

func (p *LocalIdentityProvisioner) Kind() string { return "local-identity" }

func (p *LocalIdentityProvisioner) Ensure(ctx context.Context, tenantID string) (service.IdentityResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref, ok := p.created[tenantID]
	if !ok {
		ref = tenant.ResourceName("sa", tenantID)
		p.created[tenantID] = ref
	}
	return service.IdentityResult{Ready: true, Ref: ref}, nil
}

func (p *LocalIdentityProvisioner) Check(ctx context.Context, tenantID string) (service.IdentityResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref, ok := p.created[tenantID]
	return service.IdentityResult{Ready: ok, Ref: ref}, nil
}

var _ service.IdentityProvisioner = (*LocalIdentityProvisioner)(nil)
