package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all service configuration, read from the environment.
type Config struct {
	Mode string `env:"APP_MODE" envDefault:"api"`

	// Server
	Host string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"APP_PORT" envDefault:"8080"`

	// Database
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/todoapi?sslmode=disable"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	// Redis
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Telemetry
	OTLPEndpoint string `env:"OTEL_ENDPOINT"`
	MetricsPath  string `env:"METRICS_PATH" envDefault:"/metrics"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Keycloak. Either KEYCLOAK_ISSUER or KEYCLOAK_SERVER_URL + KEYCLOAK_REALM
	// must be set.
	KeycloakIssuer    string   `env:"KEYCLOAK_ISSUER"`
	KeycloakServerURL string   `env:"KEYCLOAK_SERVER_URL"`
	KeycloakRealm     string   `env:"KEYCLOAK_REALM"`
	KeycloakClientID  string   `env:"KEYCLOAK_CLIENT_ID"`
	KeycloakJWKSURL   string   `env:"KEYCLOAK_JWKS_URL"`
	Audiences         []string `env:"KEYCLOAK_AUDIENCES" envSeparator:","`
	VerifyAudience    bool     `env:"KEYCLOAK_VERIFY_AUDIENCE" envDefault:"true"`
	Algorithms        []string `env:"KEYCLOAK_ALGORITHMS" envDefault:"RS256" envSeparator:","`

	Leeway             time.Duration `env:"KEYCLOAK_LEEWAY" envDefault:"10s"`
	JWKSTTL            time.Duration `env:"KEYCLOAK_JWKS_TTL" envDefault:"15m"`
	JWKSFetchTimeout   time.Duration `env:"KEYCLOAK_JWKS_FETCH_TIMEOUT" envDefault:"5s"`
	JWKSMinRefresh     time.Duration `env:"KEYCLOAK_JWKS_MIN_REFRESH" envDefault:"10s"`
	JWKSSharedCache    bool          `env:"KEYCLOAK_JWKS_SHARED_CACHE" envDefault:"true"`
	JWKSWarmupDisabled bool          `env:"KEYCLOAK_JWKS_SKIP_WARMUP" envDefault:"false"`

	// Realm label echoed in the WWW-Authenticate challenge.
	AuthRealm string `env:"AUTH_REALM" envDefault:"api"`

	// Failed bearer attempts per client IP before 429. Zero disables.
	AuthFailureLimit  int           `env:"AUTH_FAILURE_LIMIT" envDefault:"20"`
	AuthFailureWindow time.Duration `env:"AUTH_FAILURE_WINDOW" envDefault:"5m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Issuer returns the expected token issuer. KEYCLOAK_ISSUER is used exactly
// as configured since iss is compared byte for byte; only the issuer built
// from the server URL and realm is normalised.
func (c *Config) Issuer() string {
	if c.KeycloakIssuer != "" {
		return c.KeycloakIssuer
	}
	if c.KeycloakServerURL == "" || c.KeycloakRealm == "" {
		return ""
	}
	return fmt.Sprintf("%s/realms/%s", strings.TrimRight(c.KeycloakServerURL, "/"), c.KeycloakRealm)
}

// ExpectedAudiences returns the configured audiences, falling back to the
// client ID.
func (c *Config) ExpectedAudiences() []string {
	if len(c.Audiences) > 0 {
		return c.Audiences
	}
	if c.KeycloakClientID != "" {
		return []string{c.KeycloakClientID}
	}
	return nil
}

// Validate checks the settings the API mode cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Issuer() == "" {
		errs = append(errs, errors.New("KEYCLOAK_ISSUER or KEYCLOAK_SERVER_URL and KEYCLOAK_REALM must be set"))
	}
	if c.VerifyAudience && len(c.ExpectedAudiences()) == 0 {
		errs = append(errs, errors.New("KEYCLOAK_AUDIENCES or KEYCLOAK_CLIENT_ID must be set while KEYCLOAK_VERIFY_AUDIENCE is true"))
	}
	if c.Leeway < 0 {
		errs = append(errs, fmt.Errorf("KEYCLOAK_LEEWAY must not be negative, got %s", c.Leeway))
	}
	if c.AuthFailureLimit < 0 {
		errs = append(errs, fmt.Errorf("AUTH_FAILURE_LIMIT must not be negative, got %d", c.AuthFailureLimit))
	}
	return errors.Join(errs...)
}
