package provisioning

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/service"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/tenant"
)

// GCSStorageProvisioner scopes a tenant's silo object storage to a bucket
// prefix derived from the tenant id. GCS prefixes materialize with the first
// object, so Ensure writes a marker object and Teardown deletes everything
// under the prefix.
type GCSStorageProvisioner struct {
	client *storage.Client
	bucket string
	envKey string
}

func NewGCSStorageProvisioner(client *storage.Client, bucket, envKey string) *GCSStorageProvisioner {
	if client == nil {
		panic("gcs storage provisioner requires client")
	}
	if bucket == "" {
		panic("gcs storage provisioner requires bucket")
	}
	if envKey == "" {
		panic("gcs storage provisioner requires env key")
	}
	return &GCSStorageProvisioner{client: client, bucket: bucket, envKey: envKey}
}

func (p *GCSStorageProvisioner) Kind() string { return "gcs-prefix" }

func (p *GCSStorageProvisioner) Ensure(ctx context.Context, tenantID string) (service.ResourceResult, error) {
	prefix := tenant.StoragePrefix(p.envKey, tenantID)
	bkt := p.client.Bucket(p.bucket)

	if _, err := bkt.Attrs(ctx); err != nil {
		return service.ResourceResult{}, fmt.Errorf("bucket attrs: %w", err)
	}

	marker := bkt.Object(prefix + ".tenant")
	if _, err := marker.Attrs(ctx); err == nil {
		return service.ResourceResult{Ready: true, Name: prefix}, nil
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return service.ResourceResult{}, fmt.Errorf("check marker: %w", err)
	}

	w := marker.NewWriter(ctx)
	if _, err := w.Write([]byte(tenantID + "\n")); err != nil {
		_ = w.Close()
		return service.ResourceResult{}, fmt.Errorf("write marker: %w", err)
	}
	if err := w.Close(); err != nil {
		return service.ResourceResult{}, fmt.Errorf("write marker: %w", err)
	}

	return service.ResourceResult{Ready: true, Name: prefix}, nil
}

func (p *GCSStorageProvisioner) Check(ctx context.Context, tenantID string) (service.ResourceResult, error) {
	prefix := tenant.StoragePrefix(p.envKey, tenantID)
	bkt := p.client.Bucket(p.bucket)

	if _, err := bkt.Attrs(ctx); err != nil {
		return service.ResourceResult{Ready: false, Name: prefix}, fmt.Errorf("bucket attrs: %w", err)
	}

	// List at most one object to validate access to the prefix.
	it := bkt.Objects(ctx, &storage.Query{Prefix: prefix})
	if _, err := it.Next(); err != nil {
		if err == iterator.Done {
			return service.ResourceResult{Ready: false, Name: prefix}, nil
		}
		return service.ResourceResult{}, fmt.Errorf("list prefix: %w", err)
	}
	return service.ResourceResult{Ready: true, Name: prefix}, nil
}

func (p *GCSStorageProvisioner) Teardown(ctx context.Context, tenantID string) error {
	prefix := tenant.StoragePrefix(p.envKey, tenantID)
	bkt := p.client.Bucket(p.bucket)

	it := bkt.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list prefix: %w", err)
		}
		if err := bkt.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("delete %s: %w", attrs.Name, err)
		}
	}
}

var _ service.ResourceProvisioner = (*GCSStorageProvisioner)(nil)
