package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/service"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/tenant"
)

// DBProvisioner allocates a dedicated Postgres schema and owning role per
// silo-tier tenant. Ensure is idempotent so onboarding retries converge;
// Teardown drops everything the schema owns.
type DBProvisioner struct {
	pool *pgxpool.Pool
}

func NewDBProvisioner(pool *pgxpool.Pool) *DBProvisioner {
	if pool == nil {
		panic("db provisioner requires pool")
	}
	return &DBProvisioner{pool: pool}
}

func (p *DBProvisioner) Kind() string { return "postgres-schema" }

func (p *DBProvisioner) Ensure(ctx context.Context, tenantID string) (service.ResourceResult, error) {
	schemaName := tenant.SchemaName(tenantID)
	roleName := tenant.RoleName(tenantID)

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return service.ResourceResult{}, fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return service.ResourceResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// Create the tenant role only if missing to avoid aborting the transaction.
	var roleExists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", roleName).Scan(&roleExists); err != nil {
		return service.ResourceResult{}, fmt.Errorf("check role existence: %w", err)
	}
	if !roleExists {
		roleSQL := fmt.Sprintf("CREATE ROLE %s NOLOGIN", pgx.Identifier{roleName}.Sanitize())
		if _, err := tx.Exec(ctx, roleSQL); err != nil {
			return service.ResourceResult{}, fmt.Errorf("create role: %w", err)
		}
	}

	createSchema := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s AUTHORIZATION %s",
		pgx.Identifier{schemaName}.Sanitize(), pgx.Identifier{roleName}.Sanitize())
	if _, err := tx.Exec(ctx, createSchema); err != nil {
		return service.ResourceResult{}, fmt.Errorf("create schema: %w", err)
	}

	// Least privilege: the tenant role reads and writes only its own schema.
	grantUsage := fmt.Sprintf("GRANT USAGE, CREATE ON SCHEMA %s TO %s",
		pgx.Identifier{schemaName}.Sanitize(), pgx.Identifier{roleName}.Sanitize())
	if _, err := tx.Exec(ctx, grantUsage); err != nil {
		return service.ResourceResult{}, fmt.Errorf("grant usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return service.ResourceResult{}, fmt.Errorf("commit: %w", err)
	}

	return service.ResourceResult{Ready: true, Name: schemaName}, nil
}

func (p *DBProvisioner) Check(ctx context.Context, tenantID string) (service.ResourceResult, error) {
	schemaName := tenant.SchemaName(tenantID)

	var dummy int
	err := p.pool.QueryRow(ctx, "SELECT 1 FROM information_schema.schemata WHERE schema_name = $1", schemaName).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.ResourceResult{Ready: false, Name: schemaName}, nil
		}
		return service.ResourceResult{}, fmt.Errorf("check schema: %w", err)
	}
	return service.ResourceResult{Ready: true, Name: schemaName}, nil
}

func (p *DBProvisioner) Teardown(ctx context.Context, tenantID string) error {
	schemaName := tenant.SchemaName(tenantID)
	roleName := tenant.RoleName(tenantID)

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	dropSchema := fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pgx.Identifier{schemaName}.Sanitize())
	if _, err := tx.Exec(ctx, dropSchema); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}

	var roleExists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", roleName).Scan(&roleExists); err != nil {
		return fmt.Errorf("check role existence: %w", err)
	}
	if roleExists {
		dropOwned := fmt.Sprintf("DROP OWNED BY %s", pgx.Identifier{roleName}.Sanitize())
		if _, err := tx.Exec(ctx, dropOwned); err != nil {
			return fmt.Errorf("drop owned: %w", err)
		}
		dropRole := fmt.Sprintf("DROP ROLE %s", pgx.Identifier{roleName}.Sanitize())
		if _, err := tx.Exec(ctx, dropRole); err != nil {
			return fmt.Errorf("drop role: %w", err)
		}
	}

	return tx.Commit(ctx)
}

var _ service.ResourceProvisioner = (*DBProvisioner)(nil)
