package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"gopkg.in/yaml.v3"

	"github.com/nimbusworks/tenant-orchestrator/domains/routing/be/service"
)

// GCSStore publishes each minion fragment as a YAML object under
// `<prefix>fragments/<tenantId>/<service>.yaml`. The routing layer's
// reconciler merges these into the effective shared entry point, so writing
// an object here never edits the master document.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore constructs a GCS-backed fragment store.
func NewGCSStore(client *storage.Client, bucket, prefix string) *GCSStore {
	if client == nil {
		panic("gcs fragment store requires client")
	}
	if bucket == "" {
		panic("gcs fragment store requires bucket")
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *GCSStore) objectName(tenantID, svc string) string {
	return fmt.Sprintf("%sfragments/%s/%s.yaml", s.prefix, tenantID, svc)
}

func (s *GCSStore) Upsert(ctx context.Context, f service.Fragment) error {
	doc, err := f.Document()
	if err != nil {
		return fmt.Errorf("render fragment document: %w", err)
	}

	w := s.client.Bucket(s.bucket).Object(s.objectName(f.TenantID, f.Service)).NewWriter(ctx)
	w.ContentType = "application/yaml"
	if _, err := w.Write(doc); err != nil {
		_ = w.Close()
		return fmt.Errorf("write fragment object: %w", err)
	}
	return w.Close()
}

func (s *GCSStore) Remove(ctx context.Context, tenantID, svc string) error {
	err := s.client.Bucket(s.bucket).Object(s.objectName(tenantID, svc)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete fragment object: %w", err)
	}
	return nil
}

func (s *GCSStore) ListByTenant(ctx context.Context, tenantID string) ([]service.Fragment, error) {
	bkt := s.client.Bucket(s.bucket)
	it := bkt.Objects(ctx, &storage.Query{Prefix: s.prefix + "fragments/" + tenantID + "/"})

	var fragments []service.Fragment
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list fragments: %w", err)
		}

		r, err := bkt.Object(attrs.Name).NewReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("open fragment %s: %w", attrs.Name, err)
		}
		raw, err := io.ReadAll(r)
		_ = r.Close()
		if err != nil {
			return nil, fmt.Errorf("read fragment %s: %w", attrs.Name, err)
		}

		var f service.Fragment
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode fragment %s: %w", attrs.Name, err)
		}
		fragments = append(fragments, f)
	}

	sort.Slice(fragments, func(i, j int) bool { return fragments[i].Service < fragments[j].Service })
	return fragments, nil
}

var _ service.FragmentStore = (*GCSStore)(nil)
