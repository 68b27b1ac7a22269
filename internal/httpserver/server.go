package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/todoapi/internal/auth"
	"github.com/wisbric/todoapi/internal/config"
	"github.com/wisbric/todoapi/internal/docs"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuthSettings wires the authentication gate into the router.
type AuthSettings struct {
	// Gate authenticates bearer tokens and binds the identity; see auth.Middleware.
	Gate func(http.Handler) http.Handler
	// Realm is echoed in WWW-Authenticate challenges.
	Realm    string
	Provider *auth.ProviderMetadata
	ClientID string
	// KeycloakRealm is the provider realm name reported to the SPA.
	KeycloakRealm string
}

// Server holds the HTTP server dependencies.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router // authenticated /api/v1 sub-router
	Logger    *slog.Logger
	DB        Pinger
	Redis     *redis.Client
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer creates an HTTP server with middleware and health/metrics endpoints.
// Domain handlers should be mounted on APIRouter after calling NewServer.
func NewServer(cfg *config.Config, logger *slog.Logger, db Pinger, rdb *redis.Client, metricsReg *prometheus.Registry, authn AuthSettings) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	// Global middleware
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	s.Router.Use(RequestID)
	s.Router.Use(Instrument(logger, "/healthz", "/readyz", metricsPath))
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "WWW-Authenticate", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints (unauthenticated)
	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)

	// Prometheus metrics (unauthenticated)
	s.Router.Handle(metricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	// API documentation (unauthenticated)
	s.Router.Mount("/api/docs", docs.Routes())

	// SPA bootstrap (unauthenticated)
	s.Router.Get("/api/auth/config", authConfigHandler(authn))

	s.Router.Route("/api/v1", func(r chi.Router) {
		// 1. Authenticate the bearer token, if any, and bind the local identity.
		r.Use(authn.Gate)

		// 2. Require valid authentication on all /api/v1 routes.
		r.Use(auth.RequireAuth(authn.Realm))

		s.APIRouter = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.DB != nil {
		if err := s.DB.Ping(ctx); err != nil {
			s.Logger.Error("readiness check: database ping failed", "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
			return
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			s.Logger.Error("readiness check: redis ping failed", "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
			return
		}
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// AuthConfigResponse tells the SPA where to run the authorization-code flow.
type AuthConfigResponse struct {
	Issuer                string `json:"issuer"`
	ClientID              string `json:"client_id"`
	Realm                 string `json:"realm"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

func authConfigHandler(authn AuthSettings) http.HandlerFunc {
	resp := AuthConfigResponse{
		ClientID: authn.ClientID,
		Realm:    authn.KeycloakRealm,
	}
	if authn.Provider != nil {
		resp.Issuer = authn.Provider.Issuer
		resp.AuthorizationEndpoint = authn.Provider.Endpoint.AuthURL
		resp.TokenEndpoint = authn.Provider.Endpoint.TokenURL
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		if resp.Issuer == "" {
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "authentication is not configured")
			return
		}
		Respond(w, http.StatusOK, resp)
	}
}
