package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	deployservice "github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/service"
	routingservice "github.com/nimbusworks/tenant-orchestrator/domains/routing/be/service"
	tenantsservice "github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/service"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/metrics"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/tenant"
)

// Pipeline stage names, in execution order. Stage outputs are retained on
// failure; the matching compensation is recorded for operator-triggered
// rollback instead of being run automatically.
const (
	StageResources = "resources"
	StageIdentity  = "identity"
	StageRouting   = "routing"
	StageFanout    = "fanout"
)

// OnboardParams is the validated input of one onboarding invocation.
type OnboardParams struct {
	CompanyName string
	AdminEmail  string
	Plan        tenantsservice.Plan
}

// StageResult records one stage's terminal outcome within a pipeline run.
type StageResult struct {
	Stage   string
	Skipped bool
	Err     error
}

// OnboardResult summarizes a finished onboarding invocation. Status is the
// tenant's terminal registry status; Deployments reports each fan-out target.
type OnboardResult struct {
	TenantID    string
	JobID       uuid.UUID
	Status      tenantsservice.Status
	Stages      []StageResult
	Deployments map[string]deployservice.Result
	Partial     *PartialDeploymentError
}

// DeprovisionResult summarizes a finished deprovisioning invocation.
type DeprovisionResult struct {
	TenantID string
	JobID    uuid.UUID
	Status   tenantsservice.Status
	Stages   []StageResult
}

// Orchestrator runs the tenant onboarding and deprovisioning pipelines.
// Stages within one tenant's lifecycle are strictly ordered; across tenants,
// invocations run concurrently with the registry's insert-if-absent as the
// only synchronization point.
type Orchestrator struct {
	registry  *tenantsservice.Service
	resources []tenantsservice.ResourceProvisioner
	identity  tenantsservice.IdentityProvisioner
	routing   *routingservice.Service
	fanout    *deployservice.Fanout
	logger    *zap.Logger
	metrics   *metrics.Pipeline
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Registry  *tenantsservice.Service
	Resources []tenantsservice.ResourceProvisioner
	Identity  tenantsservice.IdentityProvisioner
	Routing   *routingservice.Service
	Fanout    *deployservice.Fanout
	Logger    *zap.Logger
	Metrics   *metrics.Pipeline
}

// New constructs an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Registry == nil {
		panic("registry is required")
	}
	if deps.Identity == nil {
		panic("identity provisioner is required")
	}
	if deps.Routing == nil {
		panic("routing service is required")
	}
	if deps.Fanout == nil {
		panic("deployment fanout is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:  deps.Registry,
		resources: deps.Resources,
		identity:  deps.Identity,
		routing:   deps.Routing,
		fanout:    deps.Fanout,
		logger:    logger,
		metrics:   deps.Metrics,
	}
}

func (o *Orchestrator) backends() []routingservice.Backend {
	catalog := o.fanout.Catalog()
	backends := make([]routingservice.Backend, 0, len(catalog))
	for _, d := range catalog {
		backends = append(backends, routingservice.Backend{
			Name:    d.Name,
			Prefix:  d.URLPrefix,
			Service: d.BackendService,
			Port:    d.BackendPort,
		})
	}
	return backends
}

func validateOnboard(params OnboardParams) error {
	if strings.TrimSpace(params.CompanyName) == "" {
		return fmt.Errorf("%w: company name is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(params.AdminEmail); err != nil {
		return fmt.Errorf("%w: admin email %q is malformed", ErrValidation, params.AdminEmail)
	}
	if !tenantsservice.ValidPlan(params.Plan) {
		return fmt.Errorf("%w: plan %q is not in the allowed set", ErrValidation, params.Plan)
	}
	return nil
}

// Onboard validates the signup, records the tenant as provisioning (the
// mutual-exclusion gate for this tenant id), then runs the ordered stages:
// silo resources, service identity, routing patch, deployment fan-out.
// A stage failure aborts later stages and leaves the tenant failed with the
// failed stage and remaining compensations recorded; earlier stage outputs
// stay in place so a retried Onboard resumes instead of starting over.
func (o *Orchestrator) Onboard(ctx context.Context, params OnboardParams) (OnboardResult, error) {
	jobID := uuid.New()
	started := time.Now()

	if err := validateOnboard(params); err != nil {
		return OnboardResult{JobID: jobID}, err
	}

	tenantID := tenant.Slug(params.CompanyName)
	if tenantID == "" {
		return OnboardResult{JobID: jobID}, fmt.Errorf("%w: company name %q yields an empty tenant id", ErrValidation, params.CompanyName)
	}

	logger := o.logger.With(zap.String("tenant_id", tenantID), zap.String("job_id", jobID.String()))

	t, err := o.claimTenant(ctx, tenantID, params)
	if err != nil {
		return OnboardResult{TenantID: tenantID, JobID: jobID}, err
	}

	result := OnboardResult{TenantID: tenantID, JobID: jobID}
	state := t.Provisioning
	state.FailedStage = nil
	state.LastError = nil

	fail := func(stage string, stageErr error) (OnboardResult, error) {
		msg := stageErr.Error()
		state.FailedStage = &stage
		state.LastError = &msg
		if _, err := o.registry.UpdateProvisioning(ctx, tenantID, state); err != nil {
			logger.Error("persist provisioning state", zap.Error(err))
		}
		if _, err := o.registry.Transition(ctx, tenantID, tenantsservice.StatusProvisioning, tenantsservice.StatusFailed); err != nil {
			logger.Error("mark tenant failed", zap.Error(err))
		}
		result.Status = tenantsservice.StatusFailed
		result.Stages = append(result.Stages, StageResult{Stage: stage, Err: stageErr})
		o.observe("onboard", string(tenantsservice.StatusFailed), started)
		logger.Warn("onboarding failed", zap.String("stage", stage), zap.Error(stageErr))
		return result, &StageError{Stage: stage, Err: stageErr}
	}

	// Stage 1: tenant-scoped data resources, silo plan only.
	if params.Plan == tenantsservice.PlanSilo && !state.ResourcesReady {
		for _, prov := range o.resources {
			if _, err := prov.Ensure(ctx, tenantID); err != nil {
				return fail(StageResources, fmt.Errorf("provision %s: %w", prov.Kind(), err))
			}
		}
		state.ResourcesReady = true
		state.Compensations = appendCompensation(state.Compensations, StageResources)
		result.Stages = append(result.Stages, StageResult{Stage: StageResources})
	} else {
		result.Stages = append(result.Stages, StageResult{Stage: StageResources, Skipped: true})
	}

	// Cancellation between stages: an issued stage call always runs to a
	// terminal state, but a cancelled context stops the next stage from
	// starting.
	if err := ctx.Err(); err != nil {
		return fail(StageIdentity, err)
	}

	// Stage 2: namespace execution identity.
	if !state.IdentityReady {
		identity, err := o.identity.Ensure(ctx, tenantID)
		if err != nil {
			return fail(StageIdentity, err)
		}
		state.IdentityReady = true
		state.IdentityRef = &identity.Ref
		result.Stages = append(result.Stages, StageResult{Stage: StageIdentity})
	} else {
		result.Stages = append(result.Stages, StageResult{Stage: StageIdentity, Skipped: true})
	}

	if err := ctx.Err(); err != nil {
		return fail(StageRouting, err)
	}

	// Stage 3: per-service routing patch. Re-applying is a no-op, so the
	// ready flag is an optimization, not a correctness requirement.
	if !state.RoutesReady {
		fragments := o.routing.GenerateRoutes(tenantID, o.backends())
		if err := o.routing.Apply(ctx, fragments); err != nil {
			return fail(StageRouting, err)
		}
		state.RoutesReady = true
		state.Compensations = appendCompensation(state.Compensations, StageRouting)
		result.Stages = append(result.Stages, StageResult{Stage: StageRouting})
	} else {
		result.Stages = append(result.Stages, StageResult{Stage: StageRouting, Skipped: true})
	}

	if _, err := o.registry.UpdateProvisioning(ctx, tenantID, state); err != nil {
		return fail(StageRouting, fmt.Errorf("persist provisioning state: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return fail(StageFanout, err)
	}

	// Stage 4: deployment fan-out, concurrent and independent per target.
	deployments, err := o.fanout.Deploy(ctx, tenantID, o.fanout.Catalog())
	if err != nil {
		return fail(StageFanout, err)
	}
	result.Deployments = deployments
	result.Stages = append(result.Stages, StageResult{Stage: StageFanout})

	var failedServices []string
	for name, res := range deployments {
		if res.Status == deployservice.StatusFailed {
			failedServices = append(failedServices, name)
		}
	}

	if _, err := o.registry.Transition(ctx, tenantID, tenantsservice.StatusProvisioning, tenantsservice.StatusActive); err != nil {
		return fail(StageFanout, fmt.Errorf("mark tenant active: %w", err))
	}
	result.Status = tenantsservice.StatusActive

	if len(failedServices) > 0 {
		// The tenant is usable; the aggregate result flags what needs an
		// explicit redeploy.
		result.Partial = &PartialDeploymentError{Failed: failedServices}
		logger.Warn("onboarding completed with partial deployment", zap.Strings("failed_services", failedServices))
	} else {
		logger.Info("onboarding completed")
	}
	o.observe("onboard", string(tenantsservice.StatusActive), started)

	return result, nil
}

// claimTenant inserts the tenant as provisioning, or re-enters provisioning
// for a failed tenant so a retry resumes. Any other existing status is a
// conflict and nothing is mutated.
func (o *Orchestrator) claimTenant(ctx context.Context, tenantID string, params OnboardParams) (tenantsservice.Tenant, error) {
	t, err := o.registry.Register(ctx, tenantID, params.CompanyName, params.AdminEmail, params.Plan)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, tenantsservice.ErrConflict) {
		return tenantsservice.Tenant{}, err
	}

	existing, getErr := o.registry.Get(ctx, tenantID)
	if getErr != nil {
		return tenantsservice.Tenant{}, getErr
	}
	if existing.Status != tenantsservice.StatusFailed {
		return tenantsservice.Tenant{}, fmt.Errorf("%w: %s is %s", ErrConflict, tenantID, existing.Status)
	}

	// CAS from failed to provisioning keeps at-most-one concurrent retry.
	claimed, trErr := o.registry.Transition(ctx, tenantID, tenantsservice.StatusFailed, tenantsservice.StatusProvisioning)
	if trErr != nil {
		return tenantsservice.Tenant{}, fmt.Errorf("%w: %s", ErrConflict, tenantID)
	}
	return claimed, nil
}

// Deprovision reverses onboarding in reverse dependency order. Stages are
// independent and best-effort: a failure at one stage does not block the
// others, so a tenant is never left fully stuck.
func (o *Orchestrator) Deprovision(ctx context.Context, tenantID string) (DeprovisionResult, error) {
	jobID := uuid.New()
	started := time.Now()
	result := DeprovisionResult{TenantID: tenantID, JobID: jobID}
	logger := o.logger.With(zap.String("tenant_id", tenantID), zap.String("job_id", jobID.String()))

	t, err := o.registry.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenantsservice.ErrNotFound) {
			return result, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
		}
		return result, err
	}
	if t.Status == tenantsservice.StatusDeleted {
		return result, fmt.Errorf("%w: %s is already deleted", ErrInvalidState, tenantID)
	}
	if !tenantsservice.CanTransition(t.Status, tenantsservice.StatusDeprovisioning) {
		return result, fmt.Errorf("%w: %s is %s", ErrInvalidState, tenantID, t.Status)
	}

	if _, err := o.registry.Transition(ctx, tenantID, t.Status, tenantsservice.StatusDeprovisioning); err != nil {
		return result, err
	}

	var errs *multierror.Error

	// Stage 1: remove routing fragments for every known service.
	if err := o.routing.Remove(ctx, tenantID, o.backends()); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("remove routes: %w", err))
		result.Stages = append(result.Stages, StageResult{Stage: StageRouting, Err: err})
	} else {
		result.Stages = append(result.Stages, StageResult{Stage: StageRouting})
	}

	// Stage 2: tear down tenant-scoped data resources (silo plans only).
	if t.Plan == tenantsservice.PlanSilo {
		for _, prov := range o.resources {
			if err := prov.Teardown(ctx, tenantID); err != nil {
				err = fmt.Errorf("teardown %s: %w", prov.Kind(), err)
				errs = multierror.Append(errs, err)
				result.Stages = append(result.Stages, StageResult{Stage: StageResources, Err: err})
			}
		}
	}
	if !stageFailed(result.Stages, StageResources) {
		result.Stages = append(result.Stages, StageResult{Stage: StageResources, Skipped: t.Plan != tenantsservice.PlanSilo})
	}

	// Service identities and fan-out deployments are namespace-scoped and
	// garbage-collected with the namespace by the owning services.

	if err := errs.ErrorOrNil(); err != nil {
		msg := err.Error()
		state := t.Provisioning
		state.LastError = &msg
		if _, uErr := o.registry.UpdateProvisioning(ctx, tenantID, state); uErr != nil {
			logger.Error("persist deprovision error", zap.Error(uErr))
		}
		if _, trErr := o.registry.Transition(ctx, tenantID, tenantsservice.StatusDeprovisioning, tenantsservice.StatusFailed); trErr != nil {
			logger.Error("mark tenant failed", zap.Error(trErr))
		}
		result.Status = tenantsservice.StatusFailed
		o.observe("deprovision", string(tenantsservice.StatusFailed), started)
		logger.Warn("deprovisioning failed, operator retry required", zap.Error(err))
		return result, err
	}

	state := t.Provisioning
	state.ResourcesReady = false
	state.RoutesReady = false
	state.Compensations = nil
	state.LastError = nil
	state.FailedStage = nil
	if _, err := o.registry.UpdateProvisioning(ctx, tenantID, state); err != nil {
		logger.Error("reset provisioning state", zap.Error(err))
	}

	if _, err := o.registry.Transition(ctx, tenantID, tenantsservice.StatusDeprovisioning, tenantsservice.StatusDeleted); err != nil {
		return result, err
	}
	result.Status = tenantsservice.StatusDeleted
	o.observe("deprovision", string(tenantsservice.StatusDeleted), started)
	logger.Info("deprovisioning completed")

	return result, nil
}

// Rollback runs the compensations recorded by a failed onboarding, in reverse
// order, and marks the tenant deleted. It is operator-triggered only: the
// pipeline itself never compensates automatically.
func (o *Orchestrator) Rollback(ctx context.Context, tenantID string) error {
	t, err := o.registry.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenantsservice.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, tenantID)
		}
		return err
	}
	if t.Status != tenantsservice.StatusFailed {
		return fmt.Errorf("%w: rollback requires a failed tenant, %s is %s", ErrInvalidState, tenantID, t.Status)
	}

	comps := t.Provisioning.Compensations
	for i := len(comps) - 1; i >= 0; i-- {
		switch comps[i] {
		case StageRouting:
			if err := o.routing.Remove(ctx, tenantID, o.backends()); err != nil {
				return fmt.Errorf("rollback routing: %w", err)
			}
		case StageResources:
			for _, prov := range o.resources {
				if err := prov.Teardown(ctx, tenantID); err != nil {
					return fmt.Errorf("rollback %s: %w", prov.Kind(), err)
				}
			}
		}
	}

	state := t.Provisioning
	state.ResourcesReady = false
	state.RoutesReady = false
	state.Compensations = nil
	if _, err := o.registry.UpdateProvisioning(ctx, tenantID, state); err != nil {
		return err
	}
	if _, err := o.registry.Transition(ctx, tenantID, tenantsservice.StatusFailed, tenantsservice.StatusDeleted); err != nil {
		return err
	}
	return nil
}

// RedeployService retries the fan-out for a single failed service.
func (o *Orchestrator) RedeployService(ctx context.Context, tenantID, serviceName string) (deployservice.Result, error) {
	t, err := o.registry.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenantsservice.ErrNotFound) {
			return deployservice.Result{}, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
		}
		return deployservice.Result{}, err
	}
	if t.Status != tenantsservice.StatusActive {
		return deployservice.Result{}, fmt.Errorf("%w: redeploy requires an active tenant, %s is %s", ErrInvalidState, tenantID, t.Status)
	}
	return o.fanout.DeployOne(ctx, tenantID, serviceName)
}

func (o *Orchestrator) observe(pipeline, status string, started time.Time) {
	if o.metrics != nil {
		o.metrics.Observe(pipeline, status, time.Since(started))
	}
}

func appendCompensation(comps []string, stage string) []string {
	for _, c := range comps {
		if c == stage {
			return comps
		}
	}
	return append(comps, stage)
}

func stageFailed(stages []StageResult, stage string) bool {
	for _, s := range stages {
		if s.Stage == stage && s.Err != nil {
			return true
		}
	}
	return false
}
