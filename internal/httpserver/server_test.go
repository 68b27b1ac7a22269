package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"

	"github.com/wisbric/todoapi/internal/auth"
	"github.com/wisbric/todoapi/internal/config"
)

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, raw string) (*auth.VerifiedClaims, error) {
	if raw != "good" {
		return nil, auth.ErrSignatureInvalid
	}
	return &auth.VerifiedClaims{Subject: "abc123", Username: "alice"}, nil
}

type stubResolver struct{ id uuid.UUID }

func (s stubResolver) ResolveIdentity(_ context.Context, c *auth.VerifiedClaims) (*auth.Identity, error) {
	return &auth.Identity{UserID: s.id, Username: c.Username, Subject: c.Subject}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, db Pinger) (*Server, uuid.UUID) {
	t.Helper()
	logger := slog.Default()
	userID := uuid.New()
	authn := auth.NewAuthenticator(stubVerifier{}, stubResolver{id: userID}, logger)

	cfg := &config.Config{CORSAllowedOrigins: []string{"*"}, MetricsPath: "/metrics"}
	srv := NewServer(cfg, logger, db, nil, prometheus.NewRegistry(), AuthSettings{
		Gate:  auth.Middleware(authn, nil, "api", logger),
		Realm: "api",
		Provider: &auth.ProviderMetadata{
			Issuer: "https://sso.example.com/realms/todo",
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://sso.example.com/realms/todo/protocol/openid-connect/auth",
				TokenURL: "https://sso.example.com/realms/todo/protocol/openid-connect/token",
			},
		},
		ClientID:      "todo-spa",
		KeycloakRealm: "todo",
	})
	srv.APIRouter.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		Respond(w, http.StatusOK, map[string]string{"user_id": auth.FromContext(r.Context()).UserID.String()})
	})
	return srv, userID
}

func TestServer_Healthz(t *testing.T) {
	srv, _ := newTestServer(t, stubPinger{})

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestServer_Readyz(t *testing.T) {
	tests := []struct {
		name string
		db   Pinger
		want int
	}{
		{"db up", stubPinger{}, http.StatusOK},
		{"db down", stubPinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.db)
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestServer_ProtectedRouteWithoutHeader(t *testing.T) {
	srv, _ := newTestServer(t, stubPinger{})

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != `Bearer realm="api"` {
		t.Errorf("WWW-Authenticate = %q, want %q", got, `Bearer realm="api"`)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["reason"] != string(auth.ReasonMissingCredentials) {
		t.Errorf("reason = %q, want %q", body["reason"], auth.ReasonMissingCredentials)
	}
}

func TestServer_ProtectedRouteWithToken(t *testing.T) {
	srv, userID := newTestServer(t, stubPinger{})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer good", http.StatusOK},
		{"bad signature", "Bearer forged", http.StatusUnauthorized},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil)
			r.Header.Set("Authorization", tt.header)
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
			if tt.want == http.StatusOK {
				var body map[string]string
				_ = json.NewDecoder(w.Body).Decode(&body)
				if body["user_id"] != userID.String() {
					t.Errorf("user_id = %q, want %q", body["user_id"], userID)
				}
			}
		})
	}
}

func TestServer_AuthConfig(t *testing.T) {
	srv, _ := newTestServer(t, stubPinger{})

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/config", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp AuthConfigResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.ClientID != "todo-spa" || resp.Realm != "todo" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.TokenEndpoint != "https://sso.example.com/realms/todo/protocol/openid-connect/token" {
		t.Errorf("TokenEndpoint = %q", resp.TokenEndpoint)
	}
}
