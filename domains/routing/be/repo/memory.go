package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/nimbusworks/tenant-orchestrator/domains/routing/be/service"
)

type fragmentKey struct {
	tenantID string
	service  string
}

// MemoryStore is an in-memory fragment store for tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	fragments map[fragmentKey]service.Fragment
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fragments: make(map[fragmentKey]service.Fragment)}
}

func (s *MemoryStore) Upsert(ctx context.Context, f service.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments[fragmentKey{f.TenantID, f.Service}] = f
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, tenantID, svc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fragments, fragmentKey{tenantID, svc})
	return nil
}

func (s *MemoryStore) ListByTenant(ctx context.Context, tenantID string) ([]service.Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []service.Fragment
	for k, f := range s.fragments {
		if k.tenantID == tenantID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

// Len reports the total number of stored fragments across all tenants.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fragments)
}

var _ service.FragmentStore = (*MemoryStore)(nil)
