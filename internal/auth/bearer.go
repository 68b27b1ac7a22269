package auth

import (
	"errors"
	"net/http"
	"strings"
)

// authorizationValues returns the request's Authorization header values, or
// nil when the request carries no credentials at all: no header, or a single
// empty one.
func authorizationValues(r *http.Request) []string {
	values := r.Header.Values("Authorization")
	if len(values) == 1 && values[0] == "" {
		return nil
	}
	return values
}

// ParseBearer extracts the raw token from an Authorization header value.
// The header must be exactly "Bearer <token>"; the scheme is matched
// case-insensitively.
func ParseBearer(header string) (string, error) {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return "", newError(ReasonMissingCredentials, errors.New("empty Authorization header"))
	}
	if !strings.EqualFold(fields[0], "bearer") {
		return "", newError(ReasonMalformedCredentials, errors.New("unsupported authorization scheme"))
	}

	switch len(fields) {
	case 1:
		return "", newError(ReasonMissingCredentials, errors.New("no credentials provided"))
	case 2:
		return fields[1], nil
	default:
		return "", newError(ReasonMalformedCredentials, errors.New("token string should not contain spaces"))
	}
}
