package auth

import (
	"slices"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4/jwt"
)

// VerifiedClaims is the validated content of a bearer token. It is only ever
// built by Verifier.Verify after the signature and required claims checked
// out, and is never mutated afterwards.
type VerifiedClaims struct {
	Subject       string
	Issuer        string
	Audience      []string
	Expiry        time.Time
	IssuedAt      time.Time
	Username      string // preferred_username
	Email         string
	EmailVerified bool
	DisplayName   string
	GivenName     string
	FamilyName    string
	Roles         []string // realm_access.roles

	// Extra holds every claim not mapped above.
	Extra map[string]any
}

// PreferredUsername returns the name a local account should be keyed by:
// preferred_username, else email, else subject.
func (c *VerifiedClaims) PreferredUsername() string {
	switch {
	case c.Username != "":
		return c.Username
	case c.Email != "":
		return c.Email
	default:
		return c.Subject
	}
}

// HasRole reports whether the token carried the given realm role.
func (c *VerifiedClaims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// keycloakClaims mirrors the Keycloak access-token payload fields we map.
type keycloakClaims struct {
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// mappedClaims are removed from the Extra side map.
var mappedClaims = []string{
	"sub", "iss", "aud", "exp", "iat", "nbf", "jti",
	"preferred_username", "email", "email_verified",
	"name", "given_name", "family_name", "realm_access",
}

func newVerifiedClaims(reg jwt.Claims, kc keycloakClaims, raw map[string]any) *VerifiedClaims {
	display := kc.Name
	if display == "" {
		display = strings.TrimSpace(kc.GivenName + " " + kc.FamilyName)
	}

	for _, k := range mappedClaims {
		delete(raw, k)
	}

	c := &VerifiedClaims{
		Subject:       reg.Subject,
		Issuer:        reg.Issuer,
		Audience:      []string(reg.Audience),
		Username:      kc.PreferredUsername,
		Email:         kc.Email,
		EmailVerified: kc.EmailVerified,
		DisplayName:   display,
		GivenName:     kc.GivenName,
		FamilyName:    kc.FamilyName,
		Roles:         kc.RealmAccess.Roles,
		Extra:         raw,
	}
	if reg.Expiry != nil {
		c.Expiry = reg.Expiry.Time()
	}
	if reg.IssuedAt != nil {
		c.IssuedAt = reg.IssuedAt.Time()
	}
	return c
}
