package provisioning

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/service"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/tenant"
)

// LocalStorageProvisioner backs tenant silo storage with a local filesystem
// prefix under BasePath. Used for local development and tests.
type LocalStorageProvisioner struct {
	BasePath string
	EnvKey   string
}

func NewLocalStorageProvisioner(basePath, envKey string) *LocalStorageProvisioner {
	if basePath == "" {
		panic("local storage provisioner requires basePath")
	}
	if envKey == "" {
		panic("local storage provisioner requires env key")
	}
	return &LocalStorageProvisioner{BasePath: basePath, EnvKey: envKey}
}

func (p *LocalStorageProvisioner) Kind() string { return "local-prefix" }

func (p *LocalStorageProvisioner) path(tenantID string) string {
	return filepath.Join(p.BasePath, filepath.FromSlash(tenant.StoragePrefix(p.EnvKey, tenantID)))
}

func (p *LocalStorageProvisioner) Ensure(ctx context.Context, tenantID string) (service.ResourceResult, error) {
	prefix := tenant.StoragePrefix(p.EnvKey, tenantID)
	if err := os.MkdirAll(p.path(tenantID), 0o755); err != nil {
		return service.ResourceResult{}, fmt.Errorf("create prefix path: %w", err)
	}
	return service.ResourceResult{Ready: true, Name: prefix}, nil
}

func (p *LocalStorageProvisioner) Check(ctx context.Context, tenantID string) (service.ResourceResult, error) {
	prefix := tenant.StoragePrefix(p.EnvKey, tenantID)
	info, err := os.Stat(p.path(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return service.ResourceResult{Ready: false, Name: prefix}, nil
		}
		return service.ResourceResult{}, fmt.Errorf("stat prefix path: %w", err)
	}
	return service.ResourceResult{Ready: info.IsDir(), Name: prefix}, nil
}

func (p *LocalStorageProvisioner) Teardown(ctx context.Context, tenantID string) error {
	if err := os.RemoveAll(p.path(tenantID)); err != nil {
		return fmt.Errorf("remove prefix path: %w", err)
	}
	return nil
}

var _ service.ResourceProvisioner = (*LocalStorageProvisioner)(nil)
