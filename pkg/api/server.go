// Package api assembles the HTTP surface: it builds every store and service from
// the configuration and mounts their handlers behind the shared middleware.
//
// Route layout:
//
//	/health, /health/live, /health/ready          probes
//	/api/v1/auth/...                              public signup, sign-in, SAML
//	/api/v1/roles, /api/v1/tenants/configuration  bearer token required
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/config"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/sso"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/platinummonkey/tenantgate/pkg/tenants"
	"github.com/platinummonkey/tenantgate/pkg/token"
	"github.com/platinummonkey/tenantgate/pkg/users"
)

// Dependencies are the process-level resources the server is built from
type Dependencies struct {
	Config  *config.Config
	DB      *sql.DB
	Redis   *redis.Client // nil when Redis is disabled
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Version string
}

// Server represents our API server
type Server struct {
	router      *mux.Router
	handler     http.Handler
	limiter     middleware.Limiter
	permissions *rbac.PermissionStore
}

// NewServer wires stores, services and handlers and sets up the routes
func NewServer(deps Dependencies) (*Server, error) {
	cfg := deps.Config
	db := deps.DB

	tx := postgres.NewTransactor(db)
	accounts := tenants.NewAccountStore(db)
	userStore := users.NewStore(db, accounts)
	approvals := users.NewApprovalStore(db)
	tenantService := tenants.NewService(tenants.NewStore(db))

	permissions := rbac.NewPermissionStore(db)
	roles := rbac.NewRoleService(rbac.NewRoleStore(db), permissions, tx)
	guard := rbac.NewPermissionMiddleware(rbac.NewAccessChecker(rbac.NewChecker(db, deps.Metrics)))

	builder, err := token.NewBuilder(string(cfg.Auth.TokenMode))
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewJWTService(token.JWTConfig{
		Secret:     cfg.Auth.JWTSecret,
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)

	signup := auth.NewSignupService(auth.SignupDeps{
		Users:      userStore,
		Approvals:  approvals,
		Hasher:     hasher,
		Builder:    builder,
		Tx:         tx,
		Metrics:    deps.Metrics,
		CodeLength: cfg.Auth.ApprovalCodeLength,
	})
	tenantSignup := auth.NewTenantSignupService(signup, tenantService, accounts, roles)
	authService := auth.NewService(auth.ServiceDeps{
		Users:     userStore,
		Accounts:  accounts,
		Roles:     roles,
		Approvals: auth.NewApprovalService(userStore, approvals, tx, deps.Metrics),
		Hasher:    hasher,
		Builder:   builder,
		Tokens:    tokens,
		Tx:        tx,
		Metrics:   deps.Metrics,
	})

	samlConfigs := sso.NewConfigStore(db)
	samlHandler := sso.NewHandler(
		samlConfigs,
		sso.NewProviderFactory(cfg.SAML),
		sso.NewGosaml2Validator(),
		authService,
		deps.Metrics,
	)

	limits := middleware.RateLimitConfig{Limit: cfg.Auth.AttemptLimit, Window: cfg.Auth.AttemptWindow}
	var limiter middleware.Limiter
	if deps.Redis != nil {
		limiter = middleware.NewDistributedRateLimiter(deps.Redis, limits, "tenantgate:attempts")
	} else {
		limiter = middleware.NewRateLimiter(limits)
	}

	s := &Server{
		router:      mux.NewRouter(),
		limiter:     limiter,
		permissions: permissions,
	}

	s.router.Use(
		httputil.RecoveryMiddleware,
		middleware.RequestContext(deps.Logger),
		httputil.LoggingMiddleware,
		observability.HTTPMetricsMiddleware(deps.Metrics),
	)

	observability.RegisterHealthRoutes(s.router, observability.NewHealthChecker(db, deps.Redis, deps.Version))

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	attempts := middleware.RateLimit(limiter, "attempts", middleware.ClientIPKey, deps.Metrics)
	auth.NewHandlers(authService, signup, tenantSignup).RegisterRoutes(v1, attempts)

	samlRoutes := sso.NewHandlers(samlHandler, sso.NewConfigService(samlConfigs), guard)
	samlRoutes.RegisterRoutes(v1)

	authenticated := v1.NewRoute().Subrouter()
	authenticated.Use(
		middleware.NewAuthMiddleware(tokens, accounts, false).Handler,
		httputil.ContentTypeMiddleware,
	)
	rbac.NewHandlers(roles, guard).RegisterRoutes(authenticated)
	samlRoutes.RegisterAdminRoutes(authenticated)

	s.handler = otelhttp.NewHandler(s.router, "tenantgate")
	return s, nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// SyncCatalog stores the built-in permission catalog and its default roles
func (s *Server) SyncCatalog(ctx context.Context) error {
	catalog, err := rbac.DefaultCatalog()
	if err != nil {
		return fmt.Errorf("failed to load permission catalog: %w", err)
	}
	if err := s.permissions.SyncCatalog(ctx, catalog); err != nil {
		return fmt.Errorf("failed to sync permission catalog: %w", err)
	}
	return nil
}

// StartBackground starts the maintenance loops of in-process state until ctx is done
func (s *Server) StartBackground(ctx context.Context) {
	if rl, ok := s.limiter.(*middleware.RateLimiter); ok {
		rl.StartCleanup(ctx)
	}
}
