package todo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/todoapi/internal/db"
)

// ErrNotFound is returned when the todo does not exist or belongs to
// another user.
var ErrNotFound = errors.New("todo not found")

// PGStore provides database operations for todos. Every query is scoped to
// the owner.
type PGStore struct {
	dbtx db.DBTX
}

// NewStore creates a todo store backed by the given database connection.
func NewStore(dbtx db.DBTX) *PGStore {
	return &PGStore{dbtx: dbtx}
}

const todoColumns = `id, owner_id, title, description, completed, created_at, updated_at`

func scanTodo(row pgx.Row) (Todo, error) {
	var t Todo
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Todo{}, ErrNotFound
	}
	return t, err
}

// List returns a page of the owner's todos, newest first, and the total count.
func (s *PGStore) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Todo, int, error) {
	var total int
	if err := s.dbtx.QueryRow(ctx, `SELECT count(*) FROM todos WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting todos: %w", err)
	}

	query := `SELECT ` + todoColumns + ` FROM todos WHERE owner_id = $1
	ORDER BY created_at DESC, id
	LIMIT $2 OFFSET $3`
	rows, err := s.dbtx.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing todos: %w", err)
	}
	defer rows.Close()

	items := make([]Todo, 0, limit)
	for rows.Next() {
		var t Todo
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning todo row: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating todo rows: %w", err)
	}
	return items, total, nil
}

// Get returns a single todo owned by ownerID.
func (s *PGStore) Get(ctx context.Context, ownerID, id uuid.UUID) (Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE id = $1 AND owner_id = $2`
	return scanTodo(s.dbtx.QueryRow(ctx, query, id, ownerID))
}

// Params holds the writable fields of a todo.
type Params struct {
	Title       string
	Description string
	Completed   bool
}

// Create inserts a todo for ownerID.
func (s *PGStore) Create(ctx context.Context, ownerID uuid.UUID, p Params) (Todo, error) {
	query := `INSERT INTO todos (owner_id, title, description, completed)
	VALUES ($1, $2, $3, $4)
	RETURNING ` + todoColumns
	return scanTodo(s.dbtx.QueryRow(ctx, query, ownerID, p.Title, p.Description, p.Completed))
}

// Update overwrites every writable field.
func (s *PGStore) Update(ctx context.Context, ownerID, id uuid.UUID, p Params) (Todo, error) {
	query := `UPDATE todos
	SET title = $3, description = $4, completed = $5, updated_at = now()
	WHERE id = $1 AND owner_id = $2
	RETURNING ` + todoColumns
	return scanTodo(s.dbtx.QueryRow(ctx, query, id, ownerID, p.Title, p.Description, p.Completed))
}

// Delete removes a todo.
func (s *PGStore) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM todos WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting todo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
