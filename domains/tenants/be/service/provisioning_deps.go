package service

import "context"

// ResourceProvisioner manages one kind of tenant-scoped data resource for
// silo-tier tenants. Ensure is mutating/idempotent, Check is read-only, and
// Teardown removes the resource; Teardown on an absent resource is a no-op.
type ResourceProvisioner interface {
	Kind() string
	Ensure(ctx context.Context, tenantID string) (ResourceResult, error)
	Check(ctx context.Context, tenantID string) (ResourceResult, error)
	Teardown(ctx context.Context, tenantID string) error
}

// ResourceResult reports readiness of a tenant-scoped resource plus the
// provider-side name it was allocated under.
type ResourceResult struct {
	Ready bool
	Name  string
}

// IdentityProvisioner creates the namespace-scoped execution identity for a
// tenant. Ensure must return the existing identity when called twice for the
// same tenant id, since onboarding may be retried after partial failure.
type IdentityProvisioner interface {
	Ensure(ctx context.Context, tenantID string) (IdentityResult, error)
	Check(ctx context.Context, tenantID string) (IdentityResult, error)
}

// IdentityResult carries the provider reference of the tenant identity.
type IdentityResult struct {
	Ready bool
	Ref   string
}
