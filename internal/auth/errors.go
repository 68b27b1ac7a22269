package auth

import (
	"fmt"
	"net/http"
)

// Reason classifies why a request could not be authenticated.
type Reason string

// Authentication failure reasons. Each one maps to a fixed label and HTTP
// status so operators can tell misconfiguration apart from expiry or attack.
const (
	ReasonMissingCredentials   Reason = "missing_credentials"
	ReasonMalformedCredentials Reason = "malformed_credentials"
	ReasonMalformedToken       Reason = "malformed_token"
	ReasonAlgorithmNotAllowed  Reason = "algorithm_not_allowed"
	ReasonKeySourceUnavailable Reason = "key_source_unavailable"
	ReasonUnknownSigningKey    Reason = "unknown_signing_key"
	ReasonSignatureInvalid     Reason = "signature_invalid"
	ReasonTokenExpired         Reason = "token_expired"
	ReasonTokenNotYetValid     Reason = "token_not_yet_valid"
	ReasonIssuerMismatch       Reason = "issuer_mismatch"
	ReasonAudienceMismatch     Reason = "audience_mismatch"
	ReasonMissingRequiredClaim Reason = "missing_required_claim"
	ReasonIdentityConflict     Reason = "identity_conflict"
	ReasonUpstreamTimeout      Reason = "upstream_timeout"
)

var reasonLabels = map[Reason]string{
	ReasonMissingCredentials:   "Invalid Authorization header: no credentials provided.",
	ReasonMalformedCredentials: "Invalid Authorization header: expected a single bearer token.",
	ReasonMalformedToken:       "Malformed token.",
	ReasonAlgorithmNotAllowed:  "Token signing algorithm not allowed.",
	ReasonKeySourceUnavailable: "Unable to obtain signing keys.",
	ReasonUnknownSigningKey:    "Unable to obtain signing key.",
	ReasonSignatureInvalid:     "Invalid token signature.",
	ReasonTokenExpired:         "Token has expired.",
	ReasonTokenNotYetValid:     "Token is not yet valid.",
	ReasonIssuerMismatch:       "Invalid token issuer.",
	ReasonAudienceMismatch:     "Invalid token audience.",
	ReasonMissingRequiredClaim: "Token is missing a required claim.",
	ReasonIdentityConflict:     "Unable to establish a local identity.",
	ReasonUpstreamTimeout:      "Authentication backend timed out.",
}

// Label returns the fixed, user-visible description of the reason.
func (r Reason) Label() string {
	if l, ok := reasonLabels[r]; ok {
		return l
	}
	return "Authentication failed."
}

// Status returns the HTTP status the boundary layer should answer with.
// Identity conflicts and timeouts are backend problems, not bad credentials.
func (r Reason) Status() int {
	switch r {
	case ReasonIdentityConflict:
		return http.StatusInternalServerError
	case ReasonUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusUnauthorized
	}
}

// Error is a typed authentication failure. Err carries diagnostic detail that
// must only be logged, never sent to the client.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("authentication failed: %s", e.Reason)
	}
	return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same reason, so the sentinels below work
// with errors.Is regardless of the wrapped detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

func newError(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}

// Sentinels for errors.Is checks.
var (
	ErrMissingCredentials   = &Error{Reason: ReasonMissingCredentials}
	ErrMalformedCredentials = &Error{Reason: ReasonMalformedCredentials}
	ErrMalformedToken       = &Error{Reason: ReasonMalformedToken}
	ErrAlgorithmNotAllowed  = &Error{Reason: ReasonAlgorithmNotAllowed}
	ErrKeySourceUnavailable = &Error{Reason: ReasonKeySourceUnavailable}
	ErrUnknownSigningKey    = &Error{Reason: ReasonUnknownSigningKey}
	ErrSignatureInvalid     = &Error{Reason: ReasonSignatureInvalid}
	ErrTokenExpired         = &Error{Reason: ReasonTokenExpired}
	ErrTokenNotYetValid     = &Error{Reason: ReasonTokenNotYetValid}
	ErrIssuerMismatch       = &Error{Reason: ReasonIssuerMismatch}
	ErrAudienceMismatch     = &Error{Reason: ReasonAudienceMismatch}
	ErrMissingRequiredClaim = &Error{Reason: ReasonMissingRequiredClaim}
	ErrIdentityConflict     = &Error{Reason: ReasonIdentityConflict}
	ErrUpstreamTimeout      = &Error{Reason: ReasonUpstreamTimeout}
)

// NewIdentityConflict wraps a reconciliation failure that could not settle on
// a unique local user.
func NewIdentityConflict(err error) error {
	return newError(ReasonIdentityConflict, err)
}

// NewUpstreamTimeout wraps a dependency that exceeded the request deadline.
func NewUpstreamTimeout(err error) error {
	return newError(ReasonUpstreamTimeout, err)
}

// NewMissingClaim reports a claim the reconciler or verifier needed but the
// token did not carry.
func NewMissingClaim(claim string) error {
	return newError(ReasonMissingRequiredClaim, fmt.Errorf("token missing %s claim", claim))
}
