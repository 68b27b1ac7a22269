package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// DefaultRealm is echoed in the WWW-Authenticate challenge.
const DefaultRealm = "api"

// Middleware returns an HTTP middleware that authenticates the caller via a
// Keycloak bearer token and stores the resulting Identity in the request
// context.
//
// Requests without an Authorization header pass through anonymously so
// public endpoints stay reachable; use RequireAuth on protected routes.
// Failed bearer attempts are rejected with 401 and a Bearer challenge, except
// identity conflicts (500) and upstream timeouts (504). When limiter is
// non-nil, clients with too many recent failures get 429 before any token
// work is done.
func Middleware(authn *Authenticator, limiter *FailureLimiter, realm string, logger *slog.Logger) func(http.Handler) http.Handler {
	challenge := fmt.Sprintf(`Bearer realm="%s"`, realm)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(authorizationValues(r)) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			if limiter != nil {
				res, err := limiter.Check(r.Context(), ip)
				if err != nil {
					logger.Error("checking auth failure limit", "error", err, "ip", ip)
				} else if !res.Allowed {
					retry := int(time.Until(res.RetryAt).Seconds()) + 1
					w.Header().Set("Retry-After", strconv.Itoa(retry))
					respondErr(w, http.StatusTooManyRequests, "too_many_requests", "too many failed authentication attempts", "")
					return
				}
			}

			identity, err := authn.Authenticate(r)
			if err != nil {
				var authErr *Error
				if !errors.As(err, &authErr) {
					logger.Error("authentication error", "error", err)
					respondErr(w, http.StatusInternalServerError, "internal_error", "authentication failed", "")
					return
				}

				status := authErr.Reason.Status()
				if status == http.StatusUnauthorized {
					logger.Warn("bearer authentication failed", "reason", authErr.Reason, "error", authErr.Err, "ip", ip)
					if limiter != nil {
						if err := limiter.Record(r.Context(), ip); err != nil {
							logger.Error("recording auth failure", "error", err, "ip", ip)
						}
					}
					w.Header().Set("WWW-Authenticate", challenge)
					respondErr(w, status, "unauthorized", authErr.Reason.Label(), authErr.Reason)
					return
				}

				logger.Error("authentication backend failure", "reason", authErr.Reason, "error", authErr.Err)
				respondErr(w, status, "internal_error", authErr.Reason.Label(), authErr.Reason)
				return
			}

			logger.Debug("authenticated via bearer token",
				"sub", identity.Subject,
				"user_id", identity.UserID,
				"username", identity.Username,
			)

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondErr(w http.ResponseWriter, status int, errStr, message string, reason Reason) {
	body := map[string]string{
		"error":   errStr,
		"message": message,
	}
	if reason != "" {
		body["reason"] = string(reason)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
