package user

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wisbric/todoapi/internal/audit"
	"github.com/wisbric/todoapi/internal/auth"
	"github.com/wisbric/todoapi/internal/telemetry"
)

// Store is the persistence the Reconciler needs. The backing store must
// enforce uniqueness of username and of the nullable external_id, reporting
// violations as ErrConflict and misses as ErrNotFound.
type Store interface {
	GetByExternalID(ctx context.Context, externalID string) (LocalUser, error)
	GetByUsername(ctx context.Context, username string) (LocalUser, error)
	Create(ctx context.Context, p CreateParams) (LocalUser, error)
	Update(ctx context.Context, id uuid.UUID, p UpdateParams) (LocalUser, error)
}

// Auditor records identity lifecycle events.
type Auditor interface {
	Log(entry audit.Entry)
}

// Reconciler maps verified token claims onto a local user, creating or
// linking the record on first sight and syncing profile fields afterwards.
type Reconciler struct {
	store  Store
	audit  Auditor
	logger *slog.Logger
	suffix func() string
}

// NewReconciler creates a Reconciler. auditor may be nil.
func NewReconciler(store Store, auditor Auditor, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		audit:  auditor,
		logger: logger,
		suffix: randomSuffix,
	}
}

// Reconcile returns the local user for the claims. Lookup order is by
// subject, then by username, then create. A uniqueness conflict on create is
// resolved by re-reading by subject (a concurrent request won the race) or
// by one retry with a disambiguated username.
func (rc *Reconciler) Reconcile(ctx context.Context, claims *auth.VerifiedClaims) (*LocalUser, error) {
	if claims == nil || claims.Subject == "" {
		return nil, auth.NewMissingClaim("sub")
	}

	u, err := rc.store.GetByExternalID(ctx, claims.Subject)
	switch {
	case err == nil:
		return rc.sync(ctx, u, claims)
	case !errors.Is(err, ErrNotFound):
		return nil, rc.storeError("looking up user by subject", err)
	}

	username := claims.PreferredUsername()
	u, err = rc.store.GetByUsername(ctx, username)
	switch {
	case err == nil && u.ExternalID == nil:
		return rc.link(ctx, u, claims)
	case err == nil:
		rc.logger.Info("username already linked to another subject",
			"username", username, "sub", claims.Subject)
	case !errors.Is(err, ErrNotFound):
		return nil, rc.storeError("looking up user by username", err)
	}

	return rc.create(ctx, claims, username)
}

// sync writes email and display name only when the token carries a
// non-empty value that differs from the stored one.
func (rc *Reconciler) sync(ctx context.Context, u LocalUser, claims *auth.VerifiedClaims) (*LocalUser, error) {
	email, name, changed := profileChanges(u, claims)
	if !changed {
		telemetry.IdentityReconcileTotal.WithLabelValues("matched").Inc()
		return &u, nil
	}

	updated, err := rc.store.Update(ctx, u.ID, UpdateParams{Email: email, DisplayName: name})
	if err != nil {
		return nil, rc.storeError("updating user profile", err)
	}

	telemetry.IdentityReconcileTotal.WithLabelValues("updated").Inc()
	rc.logger.Info("user profile synced from token", "user_id", u.ID, "sub", claims.Subject)
	rc.record(updated.ID, "update", map[string]string{
		"email":        updated.Email,
		"display_name": updated.DisplayName,
	})
	return &updated, nil
}

func (rc *Reconciler) link(ctx context.Context, u LocalUser, claims *auth.VerifiedClaims) (*LocalUser, error) {
	email, name, _ := profileChanges(u, claims)
	sub := claims.Subject

	linked, err := rc.store.Update(ctx, u.ID, UpdateParams{ExternalID: &sub, Email: email, DisplayName: name})
	switch {
	case errors.Is(err, ErrConflict):
		// Another request linked this subject to a different row first.
		return rc.resolveRace(ctx, claims)
	case errors.Is(err, ErrNotFound):
		// The row was claimed by another subject after it was read; it is
		// left untouched.
		winner, err := rc.store.GetByExternalID(ctx, sub)
		if err == nil {
			return rc.sync(ctx, winner, claims)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, rc.storeError("re-reading user by subject", err)
		}
		rc.logger.Info("username linked to another subject during login",
			"username", u.Username, "sub", sub)
		return rc.create(ctx, claims, u.Username)
	case err != nil:
		return nil, rc.storeError("linking user", err)
	}

	telemetry.IdentityReconcileTotal.WithLabelValues("linked").Inc()
	rc.logger.Info("linked existing user to subject", "user_id", linked.ID, "sub", sub)
	rc.record(linked.ID, "link", map[string]string{"sub": sub, "username": linked.Username})
	return &linked, nil
}

func (rc *Reconciler) create(ctx context.Context, claims *auth.VerifiedClaims, username string) (*LocalUser, error) {
	sub := claims.Subject
	params := CreateParams{
		ExternalID:  &sub,
		Username:    username,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
	}
	if params.DisplayName == "" {
		params.DisplayName = username
	}

	for attempt := 0; attempt < 2; attempt++ {
		u, err := rc.store.Create(ctx, params)
		if err == nil {
			action := "created"
			if attempt > 0 {
				action = "renamed"
			}
			telemetry.IdentityReconcileTotal.WithLabelValues(action).Inc()
			rc.logger.Info("created local user", "user_id", u.ID, "username", u.Username, "sub", sub)
			rc.record(u.ID, "create", map[string]string{"sub": sub, "username": u.Username})
			return &u, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, rc.storeError("creating user", err)
		}

		// A concurrent first login for the same subject may have won.
		winner, err := rc.store.GetByExternalID(ctx, sub)
		if err == nil {
			return rc.sync(ctx, winner, claims)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, rc.storeError("re-reading user by subject", err)
		}

		params.Username = username + "-" + rc.suffix()
	}

	telemetry.IdentityReconcileTotal.WithLabelValues("conflict").Inc()
	return nil, auth.NewIdentityConflict(fmt.Errorf("username %q still conflicts after retry", username))
}

func (rc *Reconciler) resolveRace(ctx context.Context, claims *auth.VerifiedClaims) (*LocalUser, error) {
	u, err := rc.store.GetByExternalID(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		telemetry.IdentityReconcileTotal.WithLabelValues("conflict").Inc()
		return nil, auth.NewIdentityConflict(fmt.Errorf("subject %q conflicts but is not linked", claims.Subject))
	}
	if err != nil {
		return nil, rc.storeError("re-reading user by subject", err)
	}
	return rc.sync(ctx, u, claims)
}

func (rc *Reconciler) storeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return auth.NewUpstreamTimeout(fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (rc *Reconciler) record(userID uuid.UUID, action string, detail map[string]string) {
	if rc.audit == nil {
		return
	}
	raw, _ := json.Marshal(detail)
	uid := userID
	rc.audit.Log(audit.Entry{
		UserID:     &uid,
		Action:     action,
		Resource:   "user",
		ResourceID: userID,
		Detail:     raw,
	})
}

// profileChanges returns the email and display name to store. Empty claim
// values never overwrite stored ones.
func profileChanges(u LocalUser, claims *auth.VerifiedClaims) (email, name string, changed bool) {
	email, name = u.Email, u.DisplayName
	if claims.Email != "" && claims.Email != u.Email {
		email, changed = claims.Email, true
	}
	if claims.DisplayName != "" && claims.DisplayName != u.DisplayName {
		name, changed = claims.DisplayName, true
	}
	return email, name, changed
}

func randomSuffix() string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
