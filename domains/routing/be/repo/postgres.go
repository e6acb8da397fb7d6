package repo

import (
	"context"
	"time"

	"github.com/nimbusworks/tenant-orchestrator/domains/routing/be/service"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/persistence"
)

// PostgresStore persists fragments via the shared RouteStore.
type PostgresStore struct {
	store *persistence.RouteStore
}

// NewPostgresStore constructs a store backed by RouteStore.
func NewPostgresStore(store *persistence.RouteStore) *PostgresStore {
	if store == nil {
		panic("route store is required")
	}
	return &PostgresStore{store: store}
}

func (s *PostgresStore) Upsert(ctx context.Context, f service.Fragment) error {
	return s.store.Upsert(ctx, persistence.RouteFragmentRecord{
		TenantID:       f.TenantID,
		Service:        f.Service,
		Host:           f.Host,
		PathPrefix:     f.PathPrefix,
		BackendService: f.BackendService,
		BackendPort:    f.BackendPort,
		MergeRole:      string(f.MergeRole),
		UpdatedAt:      time.Now().UTC(),
	})
}

func (s *PostgresStore) Remove(ctx context.Context, tenantID, svc string) error {
	return s.store.Delete(ctx, tenantID, svc)
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]service.Fragment, error) {
	records, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	fragments := make([]service.Fragment, 0, len(records))
	for _, rec := range records {
		fragments = append(fragments, service.Fragment{
			TenantID:       rec.TenantID,
			Service:        rec.Service,
			Host:           rec.Host,
			PathPrefix:     rec.PathPrefix,
			BackendService: rec.BackendService,
			BackendPort:    rec.BackendPort,
			MergeRole:      service.Role(rec.MergeRole),
		})
	}
	return fragments, nil
}

var _ service.FragmentStore = (*PostgresStore)(nil)
