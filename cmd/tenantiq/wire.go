package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"go.uber.org/zap"

	"github.com/plexica/plexica-sub002/internal/adapter/fsm"
	handler "github.com/plexica/plexica-sub002/internal/adapter/http"
	"github.com/plexica/plexica-sub002/internal/adapter/keycloak"
	"github.com/plexica/plexica-sub002/internal/adapter/minio"
	"github.com/plexica/plexica-sub002/internal/adapter/otel"
	"github.com/plexica/plexica-sub002/internal/adapter/postgres"
	"github.com/plexica/plexica-sub002/internal/adapter/sqlite"
	"github.com/plexica/plexica-sub002/internal/app"
	"github.com/plexica/plexica-sub002/internal/config"
	"github.com/plexica/plexica-sub002/internal/domain"
	"github.com/plexica/plexica-sub002/internal/provisioning"
)

// openStore opens the instrumented SQLite database and applies the schema.
func openStore(path string) (*sql.DB, *sqlite.TenantRepository, error) {
	db, err := otel.OpenDB(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	rows, err := sqlite.NewFromDB(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrating database: %w", err)
	}
	return db, rows, nil
}

// externals are the systems a tenant's resources live in.
type externals struct {
	schemas  *postgres.SchemaAdmin
	identity *keycloak.Admin
	storage  *minio.Storage
}

func connectExternals(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*externals, error) {
	schemas, err := postgres.Connect(ctx, cfg.TenantDB.DSN, logger.Named("postgres"))
	if err != nil {
		return nil, fmt.Errorf("connecting tenant database: %w", err)
	}

	storage, err := minio.New(minio.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	}, logger.Named("storage"))
	if err != nil {
		schemas.Close()
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	identity := keycloak.New(keycloak.Config{
		URL:           cfg.Keycloak.URL,
		AdminRealm:    cfg.Keycloak.AdminRealm,
		AdminUser:     cfg.Keycloak.AdminUser,
		AdminPassword: cfg.Keycloak.AdminPassword,
		RedirectURIs:  cfg.Keycloak.RedirectURIs,
	}, logger.Named("keycloak"))

	return &externals{schemas: schemas, identity: identity, storage: storage}, nil
}

func (e *externals) close() {
	e.schemas.Close()
}

// dependencies binds the external systems into the provisioning plan.
func (e *externals) dependencies(bucketPrefix string, invitations domain.InvitationSender) provisioning.Dependencies {
	return provisioning.Dependencies{
		Identity:     e.identity,
		Schemas:      e.schemas,
		Storage:      e.storage,
		Invitations:  invitations,
		BucketPrefix: bucketPrefix,
	}
}

// newDeletion builds the hard-deletion coordinator and the sweeper driving it.
func newDeletion(
	repo domain.TenantRepository,
	deps provisioning.Dependencies,
	grace time.Duration,
	logger *zap.Logger,
) (*app.HardDeletionCoordinator, *app.Sweeper) {
	deleter := app.NewHardDeletionCoordinator(repo, deps.Identity, deps.Schemas, deps.Storage, deps.BucketPrefix, logger.Named("deletion"))
	return deleter, app.NewSweeper(repo, deleter, grace, logger.Named("sweeper"))
}

// newServices assembles the tenant and membership services. Every saga step
// and repository call is traced.
func newServices(
	db *sql.DB,
	repo domain.TenantRepository,
	deps provisioning.Dependencies,
	deleter *app.HardDeletionCoordinator,
	publisher domain.EventPublisher,
	cfg config.ProvisioningConfig,
	logger *zap.Logger,
) (*app.TenantService, *app.MembershipService) {
	orchestrator := provisioning.NewOrchestrator(logger.Named("provisioning"),
		provisioning.WithStepTimeout(cfg.StepTimeout),
		provisioning.WithCompensationTimeout(cfg.CompensationTimeout),
	)
	runner := provisioning.NewRunner(orchestrator, otel.TraceSteps(provisioning.Plan(deps)))

	tenants := app.NewTenantService(repo, publisher, fsm.New(), runner, deleter, logger.Named("tenants"))
	members := app.NewMembershipService(
		otel.NewTracingWorkspaceRepository(sqlite.NewWorkspaceRepository(db)),
		logger.Named("membership"),
	)
	return tenants, members
}

// newRouter mounts the REST API on a chi router.
func newRouter(tenants *app.TenantService, members *app.MembershipService, logger *zap.Logger) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(otelchi.Middleware("tenantiq", otelchi.WithChiRoutes(router)))
	router.Use(requestLogger(logger.Named("http")))
	router.Use(middleware.Recoverer)

	api := humachi.New(router, huma.DefaultConfig("tenantiq", version))
	handler.Register(api, tenants)
	handler.RegisterWorkspaces(api, members)

	return router
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
