package repo

import (
	"context"
	"errors"

	"github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/service"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/persistence"
)

// PostgresRepository implements the tenant registry on top of the shared
// persistence layer. The tenant_id primary key gives the insert-if-absent
// semantics the onboarding pipeline relies on.
type PostgresRepository struct {
	store *persistence.TenantStore
}

// NewPostgresRepository constructs a repository backed by TenantStore.
func NewPostgresRepository(store *persistence.TenantStore) *PostgresRepository {
	if store == nil {
		panic("tenant store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	out, err := r.store.Insert(ctx, toRecord(t))
	if err != nil {
		if errors.Is(err, persistence.ErrConflict) {
			return service.Tenant{}, service.ErrConflict
		}
		return service.Tenant{}, err
	}
	return toServiceTenant(out), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (service.Tenant, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	var statusStr *string
	if opts.Status != nil {
		s := string(*opts.Status)
		statusStr = &s
	}

	rows, total, err := r.store.List(ctx, statusStr, size, offset)
	if err != nil {
		return service.ListResult{}, err
	}

	tenants := make([]service.Tenant, 0, len(rows))
	for _, rec := range rows {
		tenants = append(tenants, toServiceTenant(rec))
	}

	totalPages := (total + size - 1) / size
	return service.ListResult{Tenants: tenants, Page: page, PageSize: size, TotalItems: total, TotalPages: totalPages}, nil
}

func (r *PostgresRepository) Transition(ctx context.Context, id string, from, to service.Status) (service.Tenant, error) {
	rec, err := r.store.TransitionStatus(ctx, id, string(from), string(to))
	if err != nil {
		if errors.Is(err, persistence.ErrStale) {
			return service.Tenant{}, service.ErrInvalidTransition
		}
		return service.Tenant{}, mapNotFound(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) UpdateProvisioning(ctx context.Context, id string, state service.ProvisioningState) (service.Tenant, error) {
	rec := persistence.TenantRecord{
		ResourcesReady:    state.ResourcesReady,
		IdentityReady:     state.IdentityReady,
		RoutesReady:       state.RoutesReady,
		IdentityRef:       state.IdentityRef,
		FailedStage:       state.FailedStage,
		LastError:         state.LastError,
		LastProvisionedAt: state.LastProvisionedAt,
		Compensations:     state.Compensations,
	}
	out, err := r.store.UpdateProvisioning(ctx, id, rec)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return toServiceTenant(out), nil
}

func toRecord(t service.Tenant) persistence.TenantRecord {
	return persistence.TenantRecord{
		TenantID:          t.ID,
		CompanyName:       t.CompanyName,
		AdminEmail:        t.AdminEmail,
		Plan:              string(t.Plan),
		Status:            string(t.Status),
		CreatedAt:         t.CreatedAt,
		ResourcesReady:    t.Provisioning.ResourcesReady,
		IdentityReady:     t.Provisioning.IdentityReady,
		RoutesReady:       t.Provisioning.RoutesReady,
		IdentityRef:       t.Provisioning.IdentityRef,
		FailedStage:       t.Provisioning.FailedStage,
		LastError:         t.Provisioning.LastError,
		LastProvisionedAt: t.Provisioning.LastProvisionedAt,
		Compensations:     t.Provisioning.Compensations,
	}
}

func toServiceTenant(rec persistence.TenantRecord) service.Tenant {
	return service.Tenant{
		ID:          rec.TenantID,
		CompanyName: rec.CompanyName,
		AdminEmail:  rec.AdminEmail,
		Plan:        service.Plan(rec.Plan),
		Status:      service.StatusFromString(rec.Status),
		CreatedAt:   rec.CreatedAt,
		Provisioning: service.ProvisioningState{
			ResourcesReady:    rec.ResourcesReady,
			IdentityReady:     rec.IdentityReady,
			RoutesReady:       rec.RoutesReady,
			IdentityRef:       rec.IdentityRef,
			FailedStage:       rec.FailedStage,
			LastError:         rec.LastError,
			LastProvisionedAt: rec.LastProvisionedAt,
			Compensations:     rec.Compensations,
		},
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
