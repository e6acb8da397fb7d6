package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/caarlos0/env/v11"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nimbusworks/tenant-orchestrator/contracts"
	deployrepo "github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/repo"
	deployservice "github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/service"
	deploytrigger "github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/trigger"
	lifecyclehandler "github.com/nimbusworks/tenant-orchestrator/domains/lifecycle/be/handler"
	lifecycleservice "github.com/nimbusworks/tenant-orchestrator/domains/lifecycle/be/service"
	routingrepo "github.com/nimbusworks/tenant-orchestrator/domains/routing/be/repo"
	routingservice "github.com/nimbusworks/tenant-orchestrator/domains/routing/be/service"
	tenantshandler "github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/handler"
	tenantsprov "github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/provisioning"
	tenantsrepo "github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/repo"
	tenantsservice "github.com/nimbusworks/tenant-orchestrator/domains/tenants/be/service"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/gcp"
	platformlogging "github.com/nimbusworks/tenant-orchestrator/platform/go/logging"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/metrics"
	platformmiddleware "github.com/nimbusworks/tenant-orchestrator/platform/go/middleware"
	"github.com/nimbusworks/tenant-orchestrator/platform/go/persistence"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	EnvKey          string        `env:"ENV_KEY,required"`
	SharedAPIHost   string        `env:"SHARED_API_HOST,required"`
	CatalogFile     string        `env:"CATALOG_FILE,required"`

	StorageBackend  string `env:"STORAGE_BACKEND" envDefault:"gcs"`               // gcs | local
	StorageBucket   string `env:"STORAGE_BUCKET"`                                 // required when STORAGE_BACKEND=gcs
	StorageLocalDir string `env:"STORAGE_LOCAL_DIR" envDefault:"./.data/storage"` // used when STORAGE_BACKEND=local

	IdentityProvider    string `env:"IDENTITY_PROVIDER" envDefault:"firebase"` // firebase | local
	FirebaseCredentials string `env:"FIREBASE_CREDENTIALS_FILE"`

	RoutePublisher string `env:"ROUTE_PUBLISHER" envDefault:"postgres"` // postgres | gcs
	RoutesBucket   string `env:"ROUTES_BUCKET"`                         // required when ROUTE_PUBLISHER=gcs
	RoutesPrefix   string `env:"ROUTES_PREFIX" envDefault:"routing/"`

	DeployTrigger string `env:"DEPLOY_TRIGGER" envDefault:"http"` // http | log
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "orchestrator-api",
		Env:       cfg.EnvKey,
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	catalogFile, err := os.Open(cfg.CatalogFile)
	if err != nil {
		logger.Fatal("open service catalog", zap.String("path", cfg.CatalogFile), zap.Error(err))
	}
	catalog, err := deployservice.LoadCatalog(catalogFile)
	_ = catalogFile.Close()
	if err != nil {
		logger.Fatal("parse service catalog", zap.Error(err))
	}
	logger.Info("loaded downstream catalog", zap.Int("services", len(catalog)))

	tenantStore, err := persistence.NewTenantStore(ctx, pool)
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}
	registry := tenantsservice.New(tenantsrepo.NewPostgresRepository(tenantStore))
	tenantsHTTPHandler := tenantshandler.New(registry, logger)

	var gcsClient *storage.Client
	needsGCS := cfg.StorageBackend == "gcs" || cfg.RoutePublisher == "gcs"
	if needsGCS {
		gcsClient, err = storage.NewClient(ctx)
		if err != nil {
			logger.Fatal("init gcs client", zap.Error(err))
		}
		defer gcsClient.Close()
	}

	resources := []tenantsservice.ResourceProvisioner{
		tenantsprov.NewDBProvisioner(pool),
	}
	switch cfg.StorageBackend {
	case "gcs":
		if cfg.StorageBucket == "" {
			logger.Fatal("storage bucket required when STORAGE_BACKEND=gcs")
		}
		resources = append(resources, tenantsprov.NewGCSStorageProvisioner(gcsClient, cfg.StorageBucket, cfg.EnvKey))
	case "local":
		if strings.TrimSpace(cfg.StorageLocalDir) == "" {
			logger.Fatal("storage local dir required when STORAGE_BACKEND=local")
		}
		resources = append(resources, tenantsprov.NewLocalStorageProvisioner(cfg.StorageLocalDir, cfg.EnvKey))
	default:
		logger.Fatal("invalid STORAGE_BACKEND (use gcs or local)", zap.String("backend", cfg.StorageBackend))
	}

	var identity tenantsservice.IdentityProvisioner
	switch cfg.IdentityProvider {
	case "firebase":
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx, cfg.FirebaseCredentials)
		if err != nil {
			logger.Fatal("init firebase auth", zap.Error(err))
		}
		identity = tenantsprov.NewFirebaseIdentityProvisioner(fbAuth)
	case "local":
		identity = tenantsprov.NewLocalIdentityProvisioner()
	default:
		logger.Fatal("invalid IDENTITY_PROVIDER (use firebase or local)", zap.String("provider", cfg.IdentityProvider))
	}

	var fragments routingservice.FragmentStore
	switch cfg.RoutePublisher {
	case "postgres":
		routeStore, err := persistence.NewRouteStore(ctx, pool)
		if err != nil {
			logger.Fatal("init route store", zap.Error(err))
		}
		fragments = routingrepo.NewPostgresStore(routeStore)
	case "gcs":
		if cfg.RoutesBucket == "" {
			logger.Fatal("routes bucket required when ROUTE_PUBLISHER=gcs")
		}
		fragments = routingrepo.NewGCSStore(gcsClient, cfg.RoutesBucket, cfg.RoutesPrefix)
	default:
		logger.Fatal("invalid ROUTE_PUBLISHER (use postgres or gcs)", zap.String("publisher", cfg.RoutePublisher))
	}
	routing := routingservice.New(fragments, cfg.SharedAPIHost)

	deploymentStore, err := persistence.NewDeploymentStore(ctx, pool)
	if err != nil {
		logger.Fatal("init deployment store", zap.Error(err))
	}

	var deployer deployservice.Deployer
	switch cfg.DeployTrigger {
	case "http":
		deployer = deploytrigger.NewHTTPDeployer(&http.Client{Timeout: 30 * time.Second}, catalog)
	case "log":
		deployer = deploytrigger.NewLogDeployer(logger)
	default:
		logger.Fatal("invalid DEPLOY_TRIGGER (use http or log)", zap.String("trigger", cfg.DeployTrigger))
	}
	fanout := deployservice.NewFanout(catalog, deployer, deployrepo.NewPostgresRepository(deploymentStore), logger)

	registerer := prometheus.DefaultRegisterer
	pipelineMetrics := metrics.NewPipeline(registerer)

	orchestrator := lifecycleservice.New(lifecycleservice.Deps{
		Registry:  registry,
		Resources: resources,
		Identity:  identity,
		Routing:   routing,
		Fanout:    fanout,
		Logger:    logger,
		Metrics:   pipelineMetrics,
	})
	lifecycleHTTPHandler := lifecyclehandler.New(orchestrator, logger)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", promhttp.Handler())

	spec, err := contracts.OrchestratorSpec()
	if err != nil {
		logger.Fatal("load orchestrator contract", zap.Error(err))
	}
	// The contract's server base path must stay: the validator matches the
	// full request path, including the /api/v1 mount prefix.
	validator := oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options:               openapi3filter.Options{},
		SilenceServersWarning: true,
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(validator)
	tenantsHTTPHandler.Routes(apiRouter)
	lifecycleHTTPHandler.Routes(apiRouter)
	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting orchestrator api", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
