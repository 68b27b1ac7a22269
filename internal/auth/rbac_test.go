package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAuth(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("rejects unauthenticated", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		RequireAuth("todo")(okHandler).ServeHTTP(w, r)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if got := w.Header().Get("WWW-Authenticate"); got != `Bearer realm="todo"` {
			t.Errorf("WWW-Authenticate = %q", got)
		}
	})

	t.Run("passes authenticated", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := NewContext(r.Context(), &Identity{Subject: "abc123", Username: "alice"})
		r = r.WithContext(ctx)
		w := httptest.NewRecorder()

		RequireAuth("todo")(okHandler).ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

func TestRequireRealmRole(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		identity *Identity
		allowed  []string
		want     int
	}{
		{"no identity", nil, []string{"todo-admin"}, http.StatusForbidden},
		{"no roles", &Identity{Subject: "a"}, []string{"todo-admin"}, http.StatusForbidden},
		{"other role", &Identity{Subject: "a", Roles: []string{"todo-user"}}, []string{"todo-admin"}, http.StatusForbidden},
		{"matching role", &Identity{Subject: "a", Roles: []string{"todo-user", "todo-admin"}}, []string{"todo-admin"}, http.StatusOK},
		{"any of several", &Identity{Subject: "a", Roles: []string{"todo-user"}}, []string{"todo-admin", "todo-user"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.identity != nil {
				r = r.WithContext(NewContext(r.Context(), tt.identity))
			}
			w := httptest.NewRecorder()

			RequireRealmRole(tt.allowed...)(okHandler).ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
