package auth

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the authenticated caller bound to the current request.
type Identity struct {
	UserID      uuid.UUID // local user ID
	Username    string
	Email       string
	DisplayName string
	Subject     string   // provider subject (sub)
	Roles       []string // realm roles from the token
	Claims      *VerifiedClaims
}

// IdentityResolver maps verified claims onto a local identity.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, claims *VerifiedClaims) (*Identity, error)
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context.
// Returns nil if no identity is set.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}
