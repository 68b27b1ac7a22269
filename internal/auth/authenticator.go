package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wisbric/todoapi/internal/telemetry"
)

var tracer = otel.Tracer("github.com/wisbric/todoapi/internal/auth")

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*VerifiedClaims, error)
}

// Authenticator runs one authentication pass per request: bearer parsing,
// token verification, then identity resolution.
type Authenticator struct {
	verifier TokenVerifier
	resolver IdentityResolver
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(verifier TokenVerifier, resolver IdentityResolver, logger *slog.Logger) *Authenticator {
	return &Authenticator{verifier: verifier, resolver: resolver, logger: logger}
}

// Authenticate returns the caller's identity. A request without an
// Authorization header is anonymous and yields (nil, nil).
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	values := authorizationValues(r)
	if len(values) == 0 {
		telemetry.AuthAttemptsTotal.WithLabelValues("anonymous").Inc()
		return nil, nil
	}

	ctx, span := tracer.Start(r.Context(), "auth.Authenticate")
	defer span.End()

	id, err := a.authenticate(ctx, values)
	if err != nil {
		reason := "internal_error"
		var authErr *Error
		if errors.As(err, &authErr) {
			reason = string(authErr.Reason)
		}
		span.SetAttributes(attribute.String("auth.failure_reason", reason))
		span.SetStatus(codes.Error, reason)
		telemetry.AuthAttemptsTotal.WithLabelValues(reason).Inc()
		return nil, err
	}

	span.SetAttributes(attribute.String("auth.user_id", id.UserID.String()))
	telemetry.AuthAttemptsTotal.WithLabelValues("success").Inc()
	return id, nil
}

func (a *Authenticator) authenticate(ctx context.Context, headers []string) (*Identity, error) {
	if len(headers) > 1 {
		return nil, newError(ReasonMalformedCredentials, fmt.Errorf("%d Authorization headers", len(headers)))
	}

	raw, err := ParseBearer(headers[0])
	if err != nil {
		return nil, err
	}

	claims, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}

	id, err := a.resolver.ResolveIdentity(ctx, claims)
	if err != nil {
		var authErr *Error
		if !errors.As(err, &authErr) && errors.Is(err, context.DeadlineExceeded) {
			return nil, NewUpstreamTimeout(err)
		}
		return nil, err
	}
	return id, nil
}
