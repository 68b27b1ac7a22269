package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wisbric/todoapi/internal/db"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrConflict is returned when a write violates the username or
	// external_id uniqueness constraint.
	ErrConflict = errors.New("user already exists")
)

const uniqueViolation = "23505"

// PGStore provides database operations for users.
type PGStore struct {
	dbtx db.DBTX
}

// NewStore creates a user store backed by the given database connection.
func NewStore(dbtx db.DBTX) *PGStore {
	return &PGStore{dbtx: dbtx}
}

const userColumns = `id, external_id, username, email, display_name, is_active, created_at, updated_at`

// scanUser scans a pgx.Row into a LocalUser.
func scanUser(row pgx.Row) (LocalUser, error) {
	var u LocalUser
	err := row.Scan(
		&u.ID, &u.ExternalID, &u.Username, &u.Email, &u.DisplayName,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// Get returns a single user by ID.
func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (LocalUser, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.dbtx.QueryRow(ctx, query, id))
}

// GetByExternalID returns the user linked to the given provider subject.
func (s *PGStore) GetByExternalID(ctx context.Context, externalID string) (LocalUser, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	return scanUser(s.dbtx.QueryRow(ctx, query, externalID))
}

// GetByUsername returns the user with the given username.
func (s *PGStore) GetByUsername(ctx context.Context, username string) (LocalUser, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(s.dbtx.QueryRow(ctx, query, username))
}

// CreateParams holds parameters for creating a user.
type CreateParams struct {
	ExternalID  *string
	Username    string
	Email       string
	DisplayName string
}

// Create inserts a new user.
func (s *PGStore) Create(ctx context.Context, p CreateParams) (LocalUser, error) {
	query := `INSERT INTO users (external_id, username, email, display_name)
	VALUES ($1, $2, $3, $4)
	RETURNING ` + userColumns
	return scanUser(s.dbtx.QueryRow(ctx, query, p.ExternalID, p.Username, p.Email, p.DisplayName))
}

// UpdateParams holds parameters for updating a user. A nil ExternalID leaves
// the link untouched. A set one makes the whole update conditional on the
// row being unlinked or already linked to that subject.
type UpdateParams struct {
	ExternalID  *string
	Email       string
	DisplayName string
}

// Update writes the profile fields and returns the updated row. When linking,
// a row that another subject claimed first yields ErrNotFound and is left
// unchanged.
func (s *PGStore) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (LocalUser, error) {
	if p.ExternalID == nil {
		query := `UPDATE users
	SET email = $2, display_name = $3, updated_at = now()
	WHERE id = $1
	RETURNING ` + userColumns
		return scanUser(s.dbtx.QueryRow(ctx, query, id, p.Email, p.DisplayName))
	}

	query := `UPDATE users
	SET external_id = $2, email = $3, display_name = $4, updated_at = now()
	WHERE id = $1 AND (external_id IS NULL OR external_id = $2)
	RETURNING ` + userColumns
	return scanUser(s.dbtx.QueryRow(ctx, query, id, *p.ExternalID, p.Email, p.DisplayName))
}
