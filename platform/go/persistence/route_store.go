package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/nimbusworks/tenant-orchestrator/database"
)

// RouteFragmentsTable holds one minion routing fragment per (tenant, service).
const RouteFragmentsTable = "route_fragments"

// RouteFragmentRecord is one stored fragment row.
type RouteFragmentRecord struct {
	TenantID       string
	Service        string
	Host           string
	PathPrefix     string
	BackendService string
	BackendPort    int
	MergeRole      string
	UpdatedAt      time.Time
}

// RouteStore persists minion fragments. The composite key makes Upsert an
// idempotent per-(tenant, service) operation, so concurrent pipelines for
// different tenants never touch the same row.
type RouteStore struct {
	pool *pgxpool.Pool
}

// NewRouteStore creates the store and ensures the fragments table exists.
func NewRouteStore(ctx context.Context, pool *pgxpool.Pool) (*RouteStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if _, err := pool.Exec(ctx, sqlassets.RouteFragmentsSQL); err != nil {
		return nil, fmt.Errorf("ensure route_fragments table: %w", err)
	}
	return &RouteStore{pool: pool}, nil
}

// Upsert writes one fragment, replacing a prior version for the same key.
func (s *RouteStore) Upsert(ctx context.Context, rec RouteFragmentRecord) error {
	query := fmt.Sprintf(`
        INSERT INTO %s (tenant_id, service, host, path_prefix, backend_service, backend_port, merge_role, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (tenant_id, service) DO UPDATE SET
            host = EXCLUDED.host,
            path_prefix = EXCLUDED.path_prefix,
            backend_service = EXCLUDED.backend_service,
            backend_port = EXCLUDED.backend_port,
            merge_role = EXCLUDED.merge_role,
            updated_at = EXCLUDED.updated_at
    `, RouteFragmentsTable)

	_, err := s.pool.Exec(ctx, query,
		rec.TenantID, rec.Service, rec.Host, rec.PathPrefix,
		rec.BackendService, rec.BackendPort, rec.MergeRole, rec.UpdatedAt,
	)
	return err
}

// Delete removes exactly one fragment; absent rows are not an error.
func (s *RouteStore) Delete(ctx context.Context, tenantID, service string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE tenant_id = $1 AND service = $2", RouteFragmentsTable)
	_, err := s.pool.Exec(ctx, query, tenantID, service)
	return err
}

// ListByTenant returns all fragments belonging to one tenant.
func (s *RouteStore) ListByTenant(ctx context.Context, tenantID string) ([]RouteFragmentRecord, error) {
	query := fmt.Sprintf(`SELECT tenant_id, service, host, path_prefix, backend_service, backend_port, merge_role, updated_at
        FROM %s WHERE tenant_id = $1 ORDER BY service`, RouteFragmentsTable)

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRouteFragments(rows)
}

func scanRouteFragments(rows pgx.Rows) ([]RouteFragmentRecord, error) {
	var records []RouteFragmentRecord
	for rows.Next() {
		var rec RouteFragmentRecord
		if err := rows.Scan(&rec.TenantID, &rec.Service, &rec.Host, &rec.PathPrefix,
			&rec.BackendService, &rec.BackendPort, &rec.MergeRole, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
