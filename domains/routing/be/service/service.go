package service

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/nimbusworks/tenant-orchestrator/platform/go/tenant"
)

// Role marks a fragment's place in the merge pattern: the single shared entry
// point is the master, every per-(tenant, service) addition is a minion.
type Role string

const (
	RoleMaster Role = "master"
	RoleMinion Role = "minion"
)

// Fragment is one declarative routing rule. Minion fragments are
// independently addressable by (TenantID, Service), which is what keeps
// concurrent onboarding of different tenants from contending on one document.
type Fragment struct {
	TenantID       string `json:"tenantId" yaml:"tenantId"`
	Service        string `json:"service" yaml:"service"`
	Host           string `json:"host" yaml:"host"`
	PathPrefix     string `json:"pathPrefix" yaml:"pathPrefix"`
	BackendService string `json:"backendService" yaml:"backendService"`
	BackendPort    int    `json:"backendPort" yaml:"backendPort"`
	MergeRole      Role   `json:"mergeRole" yaml:"mergeRole"`
}

// MarshalYAML is implemented by the struct tags; Document renders the
// fragment as the YAML document published to the routing layer.
func (f Fragment) Document() ([]byte, error) {
	return yaml.Marshal(f)
}

// Backend describes one downstream service as the router needs to see it.
type Backend struct {
	Name    string
	Prefix  string
	Service string
	Port    int
}

// FragmentStore persists minion fragments. Upsert must be idempotent per
// (tenant, service) key and Remove must delete exactly that key.
type FragmentStore interface {
	Upsert(ctx context.Context, f Fragment) error
	Remove(ctx context.Context, tenantID, service string) error
	ListByTenant(ctx context.Context, tenantID string) ([]Fragment, error)
}

//go:embed fragment.schema.json
var fragmentSchemaJSON string

var fragmentSchema = jsonschema.MustCompileString("fragment.schema.json", fragmentSchemaJSON)

// ErrInvalidFragment wraps schema validation failures.
var ErrInvalidFragment = errors.New("invalid route fragment")

// Validate checks the fragment against the embedded JSON schema before it is
// published, so a malformed rule never reaches the shared routing layer.
func Validate(f Fragment) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal fragment: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode fragment: %w", err)
	}
	if err := fragmentSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFragment, err)
	}
	return nil
}

// Service generates and publishes per-tenant routing patches.
type Service struct {
	store FragmentStore
	host  string
}

// New constructs the routing patch generator. host is the shared API host all
// tenant paths hang off.
func New(store FragmentStore, host string) *Service {
	if store == nil {
		panic("fragment store is required")
	}
	if host == "" {
		panic("shared api host is required")
	}
	return &Service{store: store, host: host}
}

// GenerateRoutes emits one minion fragment per backend with a known URL
// prefix. Pure: nothing is persisted until Apply.
func (s *Service) GenerateRoutes(tenantID string, backends []Backend) []Fragment {
	fragments := make([]Fragment, 0, len(backends))
	for _, b := range backends {
		if b.Prefix == "" {
			continue
		}
		fragments = append(fragments, Fragment{
			TenantID:       tenantID,
			Service:        b.Name,
			Host:           s.host,
			PathPrefix:     tenant.PathPrefix(tenantID, b.Prefix),
			BackendService: b.Service,
			BackendPort:    b.Port,
			MergeRole:      RoleMinion,
		})
	}
	return fragments
}

// Apply validates and upserts each fragment. Re-applying the same fragments
// is a no-op relative to routing state, so pipeline retries are safe.
func (s *Service) Apply(ctx context.Context, fragments []Fragment) error {
	for _, f := range fragments {
		if err := Validate(f); err != nil {
			return err
		}
		if err := s.store.Upsert(ctx, f); err != nil {
			return fmt.Errorf("apply fragment %s/%s: %w", f.TenantID, f.Service, err)
		}
	}
	return nil
}

// Remove deletes exactly the fragments for one tenant across the given
// backends; other tenants' fragments are untouched.
func (s *Service) Remove(ctx context.Context, tenantID string, backends []Backend) error {
	for _, b := range backends {
		if err := s.store.Remove(ctx, tenantID, b.Name); err != nil {
			return fmt.Errorf("remove fragment %s/%s: %w", tenantID, b.Name, err)
		}
	}
	return nil
}

// Routes returns the fragments currently published for a tenant.
func (s *Service) Routes(ctx context.Context, tenantID string) ([]Fragment, error) {
	return s.store.ListByTenant(ctx, tenantID)
}
