package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// inMemoryRepo is a minimal in-memory impl of Repository for tests.
type inMemoryRepo struct {
	mu   sync.Mutex
	data map[string]Tenant
}

func newInMemoryRepo() *inMemoryRepo {
	return &inMemoryRepo{data: make(map[string]Tenant)}
}

func (r *inMemoryRepo) Create(_ context.Context, t Tenant) (Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[t.ID]; exists {
		return Tenant{}, ErrConflict
	}
	r.data[t.ID] = t
	return t, nil
}

func (r *inMemoryRepo) Get(_ context.Context, id string) (Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (r *inMemoryRepo) List(_ context.Context, opts ListOptions) (ListResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []Tenant
	for _, t := range r.data {
		if opts.Status != nil && t.Status != *opts.Status {
			continue
		}
		items = append(items, t)
	}
	return ListResult{Tenants: items, TotalItems: len(items)}, nil
}

func (r *inMemoryRepo) Transition(_ context.Context, id string, from, to Status) (Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	if t.Status != from {
		return Tenant{}, ErrInvalidTransition
	}
	t.Status = to
	r.data[id] = t
	return t, nil
}

func (r *inMemoryRepo) UpdateProvisioning(_ context.Context, id string, state ProvisioningState) (Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	t.Provisioning = state
	r.data[id] = t
	return t, nil
}

func TestRegister(t *testing.T) {
	svc := New(newInMemoryRepo())
	ctx := context.Background()

	created, err := svc.Register(ctx, "acmecorp", "Acme Corp", "admin@acme.example", PlanSilo)
	require.NoError(t, err)
	require.Equal(t, "acmecorp", created.ID)
	require.Equal(t, StatusProvisioning, created.Status)
	require.Equal(t, PlanSilo, created.Plan)
	require.False(t, created.CreatedAt.IsZero())

	_, err = svc.Register(ctx, "acmecorp", "Acme Corp", "admin@acme.example", PlanSilo)
	require.ErrorIs(t, err, ErrConflict)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusProvisioning, StatusActive, true},
		{StatusProvisioning, StatusFailed, true},
		{StatusProvisioning, StatusDeleted, false},
		{StatusActive, StatusDeprovisioning, true},
		{StatusActive, StatusProvisioning, false},
		{StatusDeprovisioning, StatusDeleted, true},
		{StatusDeprovisioning, StatusFailed, true},
		{StatusFailed, StatusProvisioning, true},
		{StatusFailed, StatusDeprovisioning, true},
		{StatusFailed, StatusDeleted, true},
		{StatusDeleted, StatusProvisioning, false},
		{StatusDeleted, StatusActive, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionEnforcesTable(t *testing.T) {
	svc := New(newInMemoryRepo())
	ctx := context.Background()

	_, err := svc.Register(ctx, "acmecorp", "Acme Corp", "admin@acme.example", PlanPooled)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, "acmecorp", StatusProvisioning, StatusDeleted)
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := svc.Transition(ctx, "acmecorp", StatusProvisioning, StatusActive)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)

	// CAS with a stale expected status is rejected by the repo.
	_, err = svc.Transition(ctx, "acmecorp", StatusProvisioning, StatusActive)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStatusFromString(t *testing.T) {
	require.Equal(t, StatusActive, StatusFromString("active"))
	require.Equal(t, StatusDeleted, StatusFromString("deleted"))
	require.Equal(t, StatusFailed, StatusFromString("garbage"))
	require.Equal(t, StatusFailed, StatusFromString(""))
}

func TestUpdateProvisioningStampsTime(t *testing.T) {
	svc := New(newInMemoryRepo())
	ctx := context.Background()

	_, err := svc.Register(ctx, "acmecorp", "Acme Corp", "admin@acme.example", PlanSilo)
	require.NoError(t, err)

	before := time.Now().UTC()
	updated, err := svc.UpdateProvisioning(ctx, "acmecorp", ProvisioningState{ResourcesReady: true})
	require.NoError(t, err)
	require.True(t, updated.Provisioning.ResourcesReady)
	require.NotNil(t, updated.Provisioning.LastProvisionedAt)
	require.False(t, updated.Provisioning.LastProvisionedAt.Before(before))
}

func TestListFiltersByStatus(t *testing.T) {
	svc := New(newInMemoryRepo())
	ctx := context.Background()

	_, err := svc.Register(ctx, "acmecorp", "Acme Corp", "a@acme.example", PlanPooled)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "globex", "Globex", "a@globex.example", PlanSilo)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, "globex", StatusProvisioning, StatusActive)
	require.NoError(t, err)

	active := StatusActive
	res, err := svc.List(ctx, ListOptions{Status: &active})
	require.NoError(t, err)
	require.Len(t, res.Tenants, 1)
	require.Equal(t, "globex", res.Tenants[0].ID)
}
