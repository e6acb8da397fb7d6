package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/service"
)

type recordKey struct {
	tenantID string
	service  string
}

// MemoryRepository keeps deployment records in memory for tests and dev.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[recordKey]service.Record
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[recordKey]service.Record)}
}

func (r *MemoryRepository) Put(ctx context.Context, rec service.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[recordKey{rec.TenantID, rec.Service}] = rec
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, tenantID, svc string) (service.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[recordKey{tenantID, svc}]
	if !ok {
		return service.Record{}, service.ErrUnknownService
	}
	return rec, nil
}

func (r *MemoryRepository) ListByTenant(ctx context.Context, tenantID string) ([]service.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []service.Record
	for k, rec := range r.records {
		if k.tenantID == tenantID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

var _ service.RecordRepository = (*MemoryRepository)(nil)
