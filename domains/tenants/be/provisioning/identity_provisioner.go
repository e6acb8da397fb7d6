package provisioning

import (
	"context"
	"fmt"

	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"

	"github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/service"
)

// FirebaseIdentityProvisioner maps each tenant namespace to one Firebase Auth
// tenant. The auth tenant is the execution identity boundary: credentials
// minted under it can only touch that tenant's own resources plus the shared
// registry for status lookups.
type FirebaseIdentityProvisioner struct {
	tenants *firebaseauth.TenantManager
}

func NewFirebaseIdentityProvisioner(client *firebaseauth.Client) *FirebaseIdentityProvisioner {
	if client == nil {
		panic("identity provisioner requires firebase auth client")
	}
	return &FirebaseIdentityProvisioner{tenants: client.TenantManager}
}

func (p *FirebaseIdentityProvisioner) Kind() string { return "firebase-auth-tenant" }

// Ensure returns the existing auth tenant when one is already provisioned for
// this tenant id, so onboarding retries never error on the identity stage.
func (p *FirebaseIdentityProvisioner) Ensure(ctx context.Context, tenantID string) (service.IdentityResult, error) {
	if existing, err := p.find(ctx, tenantID); err != nil {
		return service.IdentityResult{}, err
	} else if existing != "" {
		return service.IdentityResult{Ready: true, Ref: existing}, nil
	}

	created, err := p.tenants.CreateTenant(ctx, (&firebaseauth.TenantToCreate{}).DisplayName(tenantID))
	if err != nil {
		return service.IdentityResult{}, fmt.Errorf("create auth tenant: %w", err)
	}
	return service.IdentityResult{Ready: true, Ref: created.ID}, nil
}

func (p *FirebaseIdentityProvisioner) Check(ctx context.Context, tenantID string) (service.IdentityResult, error) {
	ref, err := p.find(ctx, tenantID)
	if err != nil {
		return service.IdentityResult{}, err
	}
	return service.IdentityResult{Ready: ref != "", Ref: ref}, nil
}

func (p *FirebaseIdentityProvisioner) find(ctx context.Context, tenantID string) (string, error) {
	it := p.tenants.Tenants(ctx, "")
	for {
		t, err := it.Next()
		if err == iterator.Done {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("list auth tenants: %w", err)
		}
		if t.DisplayName == tenantID {
			return t.ID, nil
		}
	}
}

var _ service.IdentityProvisioner = (*FirebaseIdentityProvisioner)(nil)
