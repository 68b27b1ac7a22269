// Package authadapter connects the authentication gate to the local user
// store without an import cycle between internal/auth and pkg/user.
package authadapter

import (
	"context"

	"github.com/wisbric/todoapi/internal/auth"
	"github.com/wisbric/todoapi/pkg/user"
)

// Reconciler is satisfied by *user.Reconciler.
type Reconciler interface {
	Reconcile(ctx context.Context, claims *auth.VerifiedClaims) (*user.LocalUser, error)
}

// Adapter implements auth.IdentityResolver on top of the user reconciler.
type Adapter struct {
	reconciler Reconciler
}

// New creates a new identity resolver adapter.
func New(reconciler Reconciler) *Adapter {
	return &Adapter{reconciler: reconciler}
}

// ResolveIdentity reconciles the claims and returns the request identity.
func (a *Adapter) ResolveIdentity(ctx context.Context, claims *auth.VerifiedClaims) (*auth.Identity, error) {
	u, err := a.reconciler.Reconcile(ctx, claims)
	if err != nil {
		return nil, err
	}
	return &auth.Identity{
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Subject:     claims.Subject,
		Roles:       claims.Roles,
		Claims:      claims,
	}, nil
}
