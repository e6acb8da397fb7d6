package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Status of one per-(tenant, service) deployment.
type Status string

const (
	StatusPending  Status = "pending"
	StatusDeployed Status = "deployed"
	StatusFailed   Status = "failed"
)

// Downstream declares one fan-out target. The catalog is data, not control
// flow: adding a service means adding an entry here, never editing the
// orchestrator.
type Downstream struct {
	Name           string `yaml:"name"`
	URLPrefix      string `yaml:"urlPrefix"`
	BackendService string `yaml:"backendService"`
	BackendPort    int    `yaml:"backendPort"`
	DeployHook     string `yaml:"deployHook"`
	ImageRef       string `yaml:"imageRef"`
	SiloStore      bool   `yaml:"siloStore"`
}

// LoadCatalog parses a declarative downstream-service catalog from YAML.
func LoadCatalog(r io.Reader) ([]Downstream, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var doc struct {
		Services []Downstream `yaml:"services"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for _, d := range doc.Services {
		if d.Name == "" {
			return nil, errors.New("catalog entry missing name")
		}
	}
	return doc.Services, nil
}

// JobParams is the typed parameter structure handed to a downstream tenant
// deploy job, validated once at the pipeline boundary.
type JobParams struct {
	TenantID string `json:"tenantId"`
	Service  string `json:"service"`
	ImageRef string `json:"imageRef"`
}

// Deployer triggers one downstream service's tenant deploy or teardown job.
// Applying a service overlay to an already-deployed tenant namespace
// converges, so repeat calls are expected to be idempotent.
type Deployer interface {
	Deploy(ctx context.Context, params JobParams) error
	Teardown(ctx context.Context, params JobParams) error
}

// Record is one persisted deployment outcome.
type Record struct {
	TenantID  string
	Service   string
	ImageRef  string
	Status    Status
	Error     *string
	UpdatedAt time.Time
}

// RecordRepository persists deployment records per (tenant, service).
type RecordRepository interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, tenantID, service string) (Record, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Record, error)
}

// Result is one fan-out outcome as reported to the caller.
type Result struct {
	Service string
	Status  Status
	Err     error
}

// ErrUnknownService is returned when a single-service retry names a service
// absent from the catalog.
var ErrUnknownService = errors.New("unknown downstream service")

// Fanout triggers tenant deploy jobs across the downstream catalog.
type Fanout struct {
	catalog  []Downstream
	deployer Deployer
	records  RecordRepository
	logger   *zap.Logger
}

// NewFanout constructs the fan-out runner.
func NewFanout(catalog []Downstream, deployer Deployer, records RecordRepository, logger *zap.Logger) *Fanout {
	if deployer == nil {
		panic("deployer is required")
	}
	if records == nil {
		panic("deployment record repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{catalog: catalog, deployer: deployer, records: records, logger: logger}
}

// Catalog returns the declared downstream services.
func (f *Fanout) Catalog() []Downstream {
	return f.catalog
}

// Deploy triggers every service's tenant deploy job concurrently and
// independently: one failure neither blocks nor rolls back another target.
// Every outcome is persisted as a deployment record; no automatic retry.
func (f *Fanout) Deploy(ctx context.Context, tenantID string, services []Downstream) (map[string]Result, error) {
	results := make([]Result, len(services))

	var g errgroup.Group
	for i, svc := range services {
		g.Go(func() error {
			results[i] = f.deployOne(ctx, tenantID, svc)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Result, len(results))
	for _, res := range results {
		out[res.Service] = res
	}
	return out, nil
}

// DeployOne retries a single named service; other services' records are
// untouched.
func (f *Fanout) DeployOne(ctx context.Context, tenantID, serviceName string) (Result, error) {
	for _, svc := range f.catalog {
		if svc.Name == serviceName {
			return f.deployOne(ctx, tenantID, svc), nil
		}
	}
	return Result{}, fmt.Errorf("%w: %s", ErrUnknownService, serviceName)
}

func (f *Fanout) deployOne(ctx context.Context, tenantID string, svc Downstream) Result {
	rec := Record{
		TenantID:  tenantID,
		Service:   svc.Name,
		ImageRef:  svc.ImageRef,
		Status:    StatusPending,
		UpdatedAt: time.Now().UTC(),
	}
	if err := f.records.Put(ctx, rec); err != nil {
		f.logger.Warn("record pending deployment", zap.String("tenant_id", tenantID), zap.String("service", svc.Name), zap.Error(err))
	}

	err := f.deployer.Deploy(ctx, JobParams{TenantID: tenantID, Service: svc.Name, ImageRef: svc.ImageRef})
	rec.UpdatedAt = time.Now().UTC()
	if err != nil {
		msg := err.Error()
		rec.Status = StatusFailed
		rec.Error = &msg
		f.logger.Warn("tenant deploy failed", zap.String("tenant_id", tenantID), zap.String("service", svc.Name), zap.Error(err))
	} else {
		rec.Status = StatusDeployed
		rec.Error = nil
	}

	if putErr := f.records.Put(ctx, rec); putErr != nil {
		f.logger.Warn("record deployment outcome", zap.String("tenant_id", tenantID), zap.String("service", svc.Name), zap.Error(putErr))
	}

	return Result{Service: svc.Name, Status: rec.Status, Err: err}
}

// Records returns the persisted deployment records for one tenant.
func (f *Fanout) Records(ctx context.Context, tenantID string) ([]Record, error) {
	return f.records.ListByTenant(ctx, tenantID)
}
