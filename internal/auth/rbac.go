package auth

import (
	"fmt"
	"net/http"
	"slices"
)

// RequireAuth returns middleware that rejects anonymous requests with 401 and
// a Bearer challenge for the given realm.
func RequireAuth(realm string) func(http.Handler) http.Handler {
	challenge := fmt.Sprintf(`Bearer realm="%s"`, realm)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if FromContext(r.Context()) == nil {
				w.Header().Set("WWW-Authenticate", challenge)
				respondErr(w, http.StatusUnauthorized, "unauthorized", "authentication required", ReasonMissingCredentials)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRealmRole returns middleware that rejects requests whose identity
// does not carry at least one of the listed realm roles. The authentication
// core never calls this itself; routes opt in.
func RequireRealmRole(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				respondErr(w, http.StatusForbidden, "forbidden", "authentication required", "")
				return
			}
			if !slices.ContainsFunc(allowed, func(role string) bool { return slices.Contains(id.Roles, role) }) {
				respondErr(w, http.StatusForbidden, "forbidden", "insufficient permissions", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
