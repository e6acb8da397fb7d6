package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/nimbusworks/tenant-orchestrator/database"
)

// Store-level errors. Domain repositories map these onto their own taxonomy.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
	ErrStale    = errors.New("record changed concurrently")
)

// TenantsTable is the registry table, keyed by tenant_id (the partition key).
const TenantsTable = "tenants"

// TenantRecord is one registry row.
type TenantRecord struct {
	TenantID          string
	CompanyName       string
	AdminEmail        string
	Plan              string
	Status            string
	CreatedAt         time.Time
	ResourcesReady    bool
	IdentityReady     bool
	RoutesReady       bool
	IdentityRef       *string
	FailedStage       *string
	LastError         *string
	LastProvisionedAt *time.Time
	Compensations     []string
}

// TenantStore provides access to the tenants table.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates the store and ensures the registry table exists.
func NewTenantStore(ctx context.Context, pool *pgxpool.Pool) (*TenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if _, err := pool.Exec(ctx, sqlassets.TenantsSQL); err != nil {
		return nil, fmt.Errorf("ensure tenants table: %w", err)
	}
	return &TenantStore{pool: pool}, nil
}

const tenantColumns = `tenant_id, company_name, admin_email, plan, status, created_at,
    resources_ready, identity_ready, routes_ready, identity_ref, failed_stage,
    last_error, last_provisioned_at, compensations`

// Insert adds a new tenant row; the primary key makes this an atomic
// insert-if-absent, returning ErrConflict when the tenant id is taken.
func (s *TenantStore) Insert(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	if rec.TenantID == "" {
		return TenantRecord{}, errors.New("tenant id is required")
	}
	if rec.Compensations == nil {
		rec.Compensations = []string{}
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (%s)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING %s
    `, TenantsTable, tenantColumns, tenantColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.TenantID, rec.CompanyName, rec.AdminEmail, rec.Plan, rec.Status,
		rec.CreatedAt, rec.ResourcesReady, rec.IdentityReady, rec.RoutesReady,
		rec.IdentityRef, rec.FailedStage, rec.LastError, rec.LastProvisionedAt,
		rec.Compensations,
	)

	out, err := scanTenantRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return TenantRecord{}, ErrConflict
		}
		return TenantRecord{}, err
	}
	return out, nil
}

// Get fetches one tenant by id.
func (s *TenantStore) Get(ctx context.Context, id string) (TenantRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE tenant_id = $1", tenantColumns, TenantsTable)
	return scanTenantRecord(s.pool.QueryRow(ctx, query, id))
}

// TransitionStatus is a compare-and-set on the status column; ErrStale means
// the row moved away from the expected status under a concurrent pipeline.
func (s *TenantStore) TransitionStatus(ctx context.Context, id, from, to string) (TenantRecord, error) {
	query := fmt.Sprintf(`
        UPDATE %s SET status = $3
        WHERE tenant_id = $1 AND status = $2
        RETURNING %s
    `, TenantsTable, tenantColumns)

	out, err := scanTenantRecord(s.pool.QueryRow(ctx, query, id, from, to))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Distinguish missing row from status mismatch.
			if _, getErr := s.Get(ctx, id); getErr == nil {
				return TenantRecord{}, ErrStale
			}
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}
	return out, nil
}

// UpdateProvisioning persists the stage-progress columns for a tenant.
func (s *TenantStore) UpdateProvisioning(ctx context.Context, id string, rec TenantRecord) (TenantRecord, error) {
	if rec.Compensations == nil {
		rec.Compensations = []string{}
	}
	query := fmt.Sprintf(`
        UPDATE %s SET
            resources_ready = $2, identity_ready = $3, routes_ready = $4,
            identity_ref = $5, failed_stage = $6, last_error = $7,
            last_provisioned_at = $8, compensations = $9
        WHERE tenant_id = $1
        RETURNING %s
    `, TenantsTable, tenantColumns)

	row := s.pool.QueryRow(ctx, query, id,
		rec.ResourcesReady, rec.IdentityReady, rec.RoutesReady,
		rec.IdentityRef, rec.FailedStage, rec.LastError,
		rec.LastProvisionedAt, rec.Compensations,
	)
	return scanTenantRecord(row)
}

// List returns paginated tenants with optional status filter.
func (s *TenantStore) List(ctx context.Context, status *string, limit, offset int) ([]TenantRecord, int, error) {
	where := ""
	args := []any{}
	if status != nil {
		where = "WHERE status = $1"
		args = append(args, *status)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", TenantsTable, where)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s %s
        ORDER BY created_at ASC
        LIMIT %d OFFSET %d`, tenantColumns, TenantsTable, where, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []TenantRecord
	for rows.Next() {
		rec, err := scanTenantRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func scanTenantRecord(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	if err := row.Scan(
		&rec.TenantID, &rec.CompanyName, &rec.AdminEmail, &rec.Plan, &rec.Status,
		&rec.CreatedAt, &rec.ResourcesReady, &rec.IdentityReady, &rec.RoutesReady,
		&rec.IdentityRef, &rec.FailedStage, &rec.LastError, &rec.LastProvisionedAt,
		&rec.Compensations,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}
