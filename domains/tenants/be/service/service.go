package service

import (
	"context"
	"errors"
	"time"
)

// Errors returned by the registry layer.
var (
	ErrNotFound          = errors.New("tenant not found")
	ErrConflict          = errors.New("tenant id already exists")
	ErrInvalidTransition = errors.New("invalid tenant status transition")
)

// Status is the lifecycle state of a tenant. Transitions are monotonic:
// provisioning -> active -> deprovisioning -> deleted, with failed reachable
// from provisioning and deprovisioning and retryable from there.
type Status string

const (
	StatusProvisioning   Status = "provisioning"
	StatusActive         Status = "active"
	StatusDeprovisioning Status = "deprovisioning"
	StatusDeleted        Status = "deleted"
	StatusFailed         Status = "failed"
)

var transitions = map[Status][]Status{
	StatusProvisioning:   {StatusActive, StatusFailed},
	StatusActive:         {StatusDeprovisioning},
	StatusDeprovisioning: {StatusDeleted, StatusFailed},
	StatusFailed:         {StatusProvisioning, StatusDeprovisioning, StatusDeleted},
	StatusDeleted:        {},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusFromString converts a stored string to Status; defaults to failed on
// unknown values so a corrupted row is never mistaken for a healthy tenant.
func StatusFromString(s string) Status {
	switch Status(s) {
	case StatusProvisioning, StatusActive, StatusDeprovisioning, StatusDeleted, StatusFailed:
		return Status(s)
	default:
		return StatusFailed
	}
}

// Plan is the tenant's isolation tier.
type Plan string

const (
	PlanPooled Plan = "pooled"
	PlanSilo   Plan = "silo"
)

// ValidPlan reports whether the plan is in the allowed set.
func ValidPlan(p Plan) bool {
	return p == PlanPooled || p == PlanSilo
}

// ProvisioningState tracks per-stage onboarding progress so a retry after a
// partial failure can resume instead of starting over. Compensations lists the
// teardown steps an operator-triggered rollback still has to run.
type ProvisioningState struct {
	ResourcesReady    bool
	IdentityReady     bool
	RoutesReady       bool
	IdentityRef       *string
	FailedStage       *string
	LastError         *string
	LastProvisionedAt *time.Time
	Compensations     []string
}

// Tenant is the authoritative registry record for one customer organization.
// ID is derived from CompanyName and immutable once assigned.
type Tenant struct {
	ID           string
	CompanyName  string
	AdminEmail   string
	Plan         Plan
	Status       Status
	CreatedAt    time.Time
	Provisioning ProvisioningState
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	Status   *Status
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Tenants    []Tenant
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Repository abstracts persistence. Create must be insert-if-absent on the
// tenant id and return ErrConflict when the id is taken; that single check is
// the mutual-exclusion gate giving at-most-one in-flight onboarding per id.
// Transition must be compare-and-set on the current status.
type Repository interface {
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Get(ctx context.Context, id string) (Tenant, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Transition(ctx context.Context, id string, from, to Status) (Tenant, error)
	UpdateProvisioning(ctx context.Context, id string, state ProvisioningState) (Tenant, error)
}

// Service provides tenant registry operations.
type Service struct {
	repo Repository
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	return &Service{repo: repo}
}

// Register inserts a new tenant in provisioning state. The id must already be
// slug-derived by the caller; Register does not normalize it.
func (s *Service) Register(ctx context.Context, id, companyName, adminEmail string, plan Plan) (Tenant, error) {
	t := Tenant{
		ID:          id,
		CompanyName: companyName,
		AdminEmail:  adminEmail,
		Plan:        plan,
		Status:      StatusProvisioning,
		CreatedAt:   time.Now().UTC(),
	}
	return s.repo.Create(ctx, t)
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id string) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// List tenants with optional status filter.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Transition moves a tenant between statuses, enforcing the monotonic
// transition table before touching storage.
func (s *Service) Transition(ctx context.Context, id string, from, to Status) (Tenant, error) {
	if !CanTransition(from, to) {
		return Tenant{}, ErrInvalidTransition
	}
	return s.repo.Transition(ctx, id, from, to)
}

// UpdateProvisioning persists per-stage progress for a tenant.
func (s *Service) UpdateProvisioning(ctx context.Context, id string, state ProvisioningState) (Tenant, error) {
	now := time.Now().UTC()
	state.LastProvisionedAt = &now
	return s.repo.UpdateProvisioning(ctx, id, state)
}
