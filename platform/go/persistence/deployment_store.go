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

// TenantDeploymentsTable records the outcome of each fan-out target.
const TenantDeploymentsTable = "tenant_deployments"

// DeploymentRecord is one per-(tenant, service) deployment row.
type DeploymentRecord struct {
	TenantID  string
	Service   string
	ImageRef  string
	Status    string
	Error     *string
	UpdatedAt time.Time
}

// DeploymentStore persists deployment records keyed by (tenant, service).
type DeploymentStore struct {
	pool *pgxpool.Pool
}

// NewDeploymentStore creates the store and ensures the table exists.
func NewDeploymentStore(ctx context.Context, pool *pgxpool.Pool) (*DeploymentStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if _, err := pool.Exec(ctx, sqlassets.TenantDeploymentsSQL); err != nil {
		return nil, fmt.Errorf("ensure tenant_deployments table: %w", err)
	}
	return &DeploymentStore{pool: pool}, nil
}

// Put upserts one record; re-deploying a service overwrites its prior outcome
// without touching other services' rows.
func (s *DeploymentStore) Put(ctx context.Context, rec DeploymentRecord) error {
	query := fmt.Sprintf(`
        INSERT INTO %s (tenant_id, service, image_ref, status, error, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (tenant_id, service) DO UPDATE SET
            image_ref = EXCLUDED.image_ref,
            status = EXCLUDED.status,
            error = EXCLUDED.error,
            updated_at = EXCLUDED.updated_at
    `, TenantDeploymentsTable)

	_, err := s.pool.Exec(ctx, query,
		rec.TenantID, rec.Service, rec.ImageRef, rec.Status, rec.Error, rec.UpdatedAt)
	return err
}

// Get fetches one record.
func (s *DeploymentStore) Get(ctx context.Context, tenantID, service string) (DeploymentRecord, error) {
	query := fmt.Sprintf(`SELECT tenant_id, service, image_ref, status, error, updated_at
        FROM %s WHERE tenant_id = $1 AND service = $2`, TenantDeploymentsTable)

	var rec DeploymentRecord
	err := s.pool.QueryRow(ctx, query, tenantID, service).Scan(
		&rec.TenantID, &rec.Service, &rec.ImageRef, &rec.Status, &rec.Error, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeploymentRecord{}, ErrNotFound
		}
		return DeploymentRecord{}, err
	}
	return rec, nil
}

// ListByTenant returns all deployment records for one tenant.
func (s *DeploymentStore) ListByTenant(ctx context.Context, tenantID string) ([]DeploymentRecord, error) {
	query := fmt.Sprintf(`SELECT tenant_id, service, image_ref, status, error, updated_at
        FROM %s WHERE tenant_id = $1 ORDER BY service`, TenantDeploymentsTable)

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DeploymentRecord
	for rows.Next() {
		var rec DeploymentRecord
		if err := rows.Scan(&rec.TenantID, &rec.Service, &rec.ImageRef, &rec.Status, &rec.Error, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
