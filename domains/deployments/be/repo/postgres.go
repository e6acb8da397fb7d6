package repo

import (
	"context"

	"github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/service"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/persistence"
)

// PostgresRepository persists deployment records via the shared DeploymentStore.
type PostgresRepository struct {
	store *persistence.DeploymentStore
}

// NewPostgresRepository constructs a repository backed by DeploymentStore.
func NewPostgresRepository(store *persistence.DeploymentStore) *PostgresRepository {
	if store == nil {
		panic("deployment store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Put(ctx context.Context, rec service.Record) error {
	return r.store.Put(ctx, persistence.DeploymentRecord{
		TenantID:  rec.TenantID,
		Service:   rec.Service,
		ImageRef:  rec.ImageRef,
		Status:    string(rec.Status),
		Error:     rec.Error,
		UpdatedAt: rec.UpdatedAt,
	})
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID, svc string) (service.Record, error) {
	rec, err := r.store.Get(ctx, tenantID, svc)
	if err != nil {
		return service.Record{}, err
	}
	return toServiceRecord(rec), nil
}

func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string) ([]service.Record, error) {
	records, err := r.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]service.Record, 0, len(records))
	for _, rec := range records {
		out = append(out, toServiceRecord(rec))
	}
	return out, nil
}

func toServiceRecord(rec persistence.DeploymentRecord) service.Record {
	return service.Record{
		TenantID:  rec.TenantID,
		Service:   rec.Service,
		ImageRef:  rec.ImageRef,
		Status:    service.Status(rec.Status),
		Error:     rec.Error,
		UpdatedAt: rec.UpdatedAt,
	}
}

var _ service.RecordRepository = (*PostgresRepository)(nil)
