package tenantcmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	deployrepo "github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/repo"
	deployservice "github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/service"
	deploytrigger "github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/trigger"
	lifecycleservice "github.com/nimbusworks/tenant-orchestrator/domains/lifecycle/be/service"
	routingrepo "github.com/nimbusworks/tenant-orchestrator/domains/routing/be/repo"
	routingservice "github.com/nimbusworks/tenant-orchestrator/domains/routing/be/service"
	"github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/provisioning"
	tenantsrepo "github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/repo"
	tenantsservice "github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/service"
	platformlogging "github.com/nimbusworks/tenant-orchestrator/platform/go/logging"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/persistence"
)

// Command groups tenant lifecycle helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant lifecycle utilities (onboard/deprovision/rollback/list)",
	}

	cmd.AddCommand(onboardCommand())
	cmd.AddCommand(deprovisionCommand())
	cmd.AddCommand(rollbackCommand())
	cmd.AddCommand(listCommand())
	return cmd
}

// pipelineFlags are the wiring knobs shared by the commands that run
// pipelines directly against the database.
type pipelineFlags struct {
	databaseURL   string
	envKey        string
	sharedAPIHost string
	catalogFile   string
	deployTrigger string
}

func (f *pipelineFlags) register(c *cobra.Command) {
	c.Flags().StringVar(&f.databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&f.envKey, "env-key", "dev", "Environment key prefix (e.g. dev, stg, prod)")
	c.Flags().StringVar(&f.sharedAPIHost, "shared-api-host", "", "Shared API host tenant routes hang off")
	c.Flags().StringVar(&f.catalogFile, "catalog-file", "", "Downstream service catalog YAML")
	c.Flags().StringVar(&f.deployTrigger, "deploy-trigger", "log", "Deploy trigger: http or log")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("shared-api-host")
	_ = c.MarkFlagRequired("catalog-file")
}

// buildOrchestrator wires a full pipeline against Postgres with local
// identity and the selected deploy trigger.
func (f *pipelineFlags) buildOrchestrator(ctx context.Context) (*lifecycleservice.Orchestrator, func(), error) {
	logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "tenantctl", Level: "warn"})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: f.databaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}
	cleanup := func() {
		persistence.ClosePool(pool)
		_ = logger.Sync()
	}

	catalogReader, err := os.Open(f.catalogFile)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("open catalog: %w", err)
	}
	catalog, err := deployservice.LoadCatalog(catalogReader)
	_ = catalogReader.Close()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("parse catalog: %w", err)
	}

	tenantStore, err := persistence.NewTenantStore(ctx, pool)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init tenant store: %w", err)
	}
	routeStore, err := persistence.NewRouteStore(ctx, pool)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init route store: %w", err)
	}
	deploymentStore, err := persistence.NewDeploymentStore(ctx, pool)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init deployment store: %w", err)
	}

	var deployer deployservice.Deployer
	switch f.deployTrigger {
	case "http":
		deployer = deploytrigger.NewHTTPDeployer(&http.Client{Timeout: 30 * time.Second}, catalog)
	case "log":
		deployer = deploytrigger.NewLogDeployer(logger)
	default:
		cleanup()
		return nil, nil, fmt.Errorf("invalid --deploy-trigger %q (use http or log)", f.deployTrigger)
	}

	orch := lifecycleservice.New(lifecycleservice.Deps{
		Registry: tenantsservice.New(tenantsrepo.NewPostgresRepository(tenantStore)),
		Resources: []tenantsservice.ResourceProvisioner{
			provisioning.NewDBProvisioner(pool),
			provisioning.NewLocalStorageProvisioner("./.data/storage", f.envKey),
		},
		Identity: provisioning.NewLocalIdentityProvisioner(),
		Routing:  routingservice.New(routingrepo.NewPostgresStore(routeStore), f.sharedAPIHost),
		Fanout:   deployservice.NewFanout(catalog, deployer, deployrepo.NewPostgresRepository(deploymentStore), logger),
		Logger:   logger,
	})
	return orch, cleanup, nil
}

func onboardCommand() *cobra.Command {
	var flags pipelineFlags
	var (
		companyName string
		adminEmail  string
		plan        string
	)

	c := &cobra.Command{
		Use:   "onboard",
		Short: "Run the onboarding pipeline for a new tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			orch, cleanup, err := flags.buildOrchestrator(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := orch.Onboard(ctx, lifecycleservice.OnboardParams{
				CompanyName: companyName,
				AdminEmail:  adminEmail,
				Plan:        tenantsservice.Plan(plan),
			})
			if err != nil {
				return fmt.Errorf("onboard %s: %w", result.TenantID, err)
			}

			for _, stage := range result.Stages {
				note := "ok"
				if stage.Skipped {
					note = "skipped"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stage %-10s %s\n", stage.Stage, note)
			}
			for name, dep := range result.Deployments {
				fmt.Fprintf(cmd.OutOrStdout(), "deploy %-10s %s\n", name, dep.Status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s is %s (job %s)\n", result.TenantID, result.Status, result.JobID)
			if result.Partial != nil {
				return fmt.Errorf("partial deployment, redeploy required: %v", result.Partial.Failed)
			}
			return nil
		},
	}

	flags.register(c)
	c.Flags().StringVar(&companyName, "company-name", "", "Customer organization name")
	c.Flags().StringVar(&adminEmail, "admin-email", "", "Tenant admin contact email")
	c.Flags().StringVar(&plan, "plan", "pooled", "Isolation plan: pooled or silo")

	_ = c.MarkFlagRequired("company-name")
	_ = c.MarkFlagRequired("admin-email")

	return c
}

func deprovisionCommand() *cobra.Command {
	var flags pipelineFlags
	var tenantID string

	c := &cobra.Command{
		Use:   "deprovision",
		Short: "Run the deprovisioning pipeline for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			orch, cleanup, err := flags.buildOrchestrator(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := orch.Deprovision(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("deprovision %s: %w", tenantID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s is %s (job %s)\n", result.TenantID, result.Status, result.JobID)
			return nil
		},
	}

	flags.register(c)
	c.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant to deprovision")
	_ = c.MarkFlagRequired("tenant-id")

	return c
}

func rollbackCommand() *cobra.Command {
	var flags pipelineFlags
	var tenantID string

	c := &cobra.Command{
		Use:   "rollback",
		Short: "Run the recorded compensations of a failed onboarding",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			orch, cleanup, err := flags.buildOrchestrator(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := orch.Rollback(ctx, tenantID); err != nil {
				return fmt.Errorf("rollback %s: %w", tenantID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s rolled back and deleted\n", tenantID)
			return nil
		},
	}

	flags.register(c)
	c.Flags().StringVar(&tenantID, "tenant-id", "", "Failed tenant to roll back")
	_ = c.MarkFlagRequired("tenant-id")

	return c
}

func listCommand() *cobra.Command {
	var (
		databaseURL string
		status      string
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			tenantStore, err := persistence.NewTenantStore(ctx, pool)
			if err != nil {
				return fmt.Errorf("init tenant store: %w", err)
			}
			registry := tenantsservice.New(tenantsrepo.NewPostgresRepository(tenantStore))

			opts := tenantsservice.ListOptions{Page: 1, PageSize: 100}
			if status != "" {
				st := tenantsservice.StatusFromString(status)
				if string(st) != status {
					return fmt.Errorf("unknown status %q", status)
				}
				opts.Status = &st
			}

			result, err := registry.List(ctx, opts)
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}

			for _, t := range result.Tenants {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-10s %-8s %s\n", t.ID, t.Status, t.Plan, t.CompanyName)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d tenants\n", result.TotalItems)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	c.Flags().StringVar(&status, "status", "", "Filter by lifecycle status")
	_ = c.MarkFlagRequired("database-url")

	return c
}
