package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/todoapi/internal/audit"
	"github.com/wisbric/todoapi/internal/auth"
	"github.com/wisbric/todoapi/internal/authadapter"
	"github.com/wisbric/todoapi/internal/config"
	"github.com/wisbric/todoapi/internal/httpserver"
	"github.com/wisbric/todoapi/internal/platform"
	"github.com/wisbric/todoapi/internal/seed"
	"github.com/wisbric/todoapi/internal/telemetry"
	"github.com/wisbric/todoapi/pkg/todo"
	"github.com/wisbric/todoapi/pkg/user"
)

// Version is the build version, overridden with -ldflags "-X".
var Version = "0.1.0"

// Run is the main application entry point. It connects to the database,
// applies migrations and starts the requested mode: api, migrate or seed.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting todoapi",
		"mode", cfg.Mode,
		"version", Version,
		"listen", cfg.ListenAddr(),
	)

	// Tracing
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "todoapi", Version)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	// Database
	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	switch cfg.Mode {
	case "migrate":
		return nil
	case "api":
		// Redis
		rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}()

		return runAPI(ctx, cfg, logger, db, rdb, telemetry.NewMetricsRegistry())
	case "seed":
		return seed.Run(ctx, db, logger)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Audit log writer (async, buffered).
	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	gate, provider, err := buildAuth(ctx, cfg, logger, db, rdb, auditWriter)
	if err != nil {
		return err
	}

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, httpserver.AuthSettings{
		Gate:          gate,
		Realm:         cfg.AuthRealm,
		Provider:      provider,
		ClientID:      cfg.KeycloakClientID,
		KeycloakRealm: cfg.KeycloakRealm,
	})

	// Mount domain handlers.
	userHandler := user.NewHandler(user.NewService(user.NewStore(db), logger), logger)
	srv.APIRouter.Mount("/users", userHandler.Routes())

	todoHandler := todo.NewHandler(todo.NewService(todo.NewStore(db), logger), logger, auditWriter)
	srv.APIRouter.Mount("/todos", todoHandler.Routes())

	auditHandler := audit.NewHandler(db, logger)
	srv.APIRouter.Mount("/audit-log", auditHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildAuth assembles the JWKS cache, verifier, reconciler and gate
// middleware. Provider discovery and JWKS warm-up are best effort: a
// Keycloak outage at startup only delays the first successful request.
func buildAuth(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, auditWriter *audit.Writer) (func(http.Handler) http.Handler, *auth.ProviderMetadata, error) {
	issuer := cfg.Issuer()

	discoverCtx, cancel := context.WithTimeout(ctx, cfg.JWKSFetchTimeout)
	provider := auth.ResolveProvider(discoverCtx, issuer, cfg.KeycloakJWKSURL, logger)
	cancel()

	cacheOpts := auth.JWKSCacheOptions{
		TTL:                cfg.JWKSTTL,
		MinRefreshInterval: cfg.JWKSMinRefresh,
		Logger:             logger,
	}
	if cfg.JWKSSharedCache {
		cacheOpts.Shared = auth.NewRedisKeyStore(rdb, issuer)
	}
	jwks := auth.NewJWKSCache(auth.NewHTTPFetcher(provider.JWKSURL, cfg.JWKSFetchTimeout), cacheOpts)

	algs := make([]jose.SignatureAlgorithm, 0, len(cfg.Algorithms))
	for _, a := range cfg.Algorithms {
		algs = append(algs, jose.SignatureAlgorithm(a))
	}

	verifier, err := auth.NewVerifier(jwks, auth.VerifierConfig{
		Issuer:            issuer,
		Audiences:         cfg.ExpectedAudiences(),
		SkipAudienceCheck: !cfg.VerifyAudience,
		Leeway:            cfg.Leeway,
		Algorithms:        algs,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating token verifier: %w", err)
	}
	if !cfg.VerifyAudience {
		logger.Warn("token audience check is DISABLED (KEYCLOAK_VERIFY_AUDIENCE=false); any client of the realm can call this API")
	}

	if !cfg.JWKSWarmupDisabled {
		warmCtx, cancel := context.WithTimeout(ctx, cfg.JWKSFetchTimeout)
		jwks.Warm(warmCtx)
		cancel()
	}

	reconciler := user.NewReconciler(user.NewStore(db), auditWriter, logger)
	authn := auth.NewAuthenticator(verifier, authadapter.New(reconciler), logger)

	var limiter *auth.FailureLimiter
	if cfg.AuthFailureLimit > 0 {
		limiter = auth.NewFailureLimiter(rdb, cfg.AuthFailureLimit, cfg.AuthFailureWindow)
	}

	logger.Info("keycloak bearer authentication enabled",
		"issuer", issuer,
		"jwks_url", provider.JWKSURL,
		"audiences", cfg.ExpectedAudiences(),
		"leeway", cfg.Leeway,
	)

	return auth.Middleware(authn, limiter, cfg.AuthRealm, logger), provider, nil
}
