package todo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/wisbric/todoapi/internal/telemetry"
)

// ErrEmptyTitle is returned when a title is blank after trimming.
var ErrEmptyTitle = errors.New("title must not be blank")

// Repository is the persistence the Service needs; *PGStore implements it.
type Repository interface {
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Todo, int, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (Todo, error)
	Create(ctx context.Context, ownerID uuid.UUID, p Params) (Todo, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, p Params) (Todo, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

// Service encapsulates todo business logic.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a todo Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List returns a page of the owner's todos and the total count.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Response, int, error) {
	rows, total, err := s.repo.List(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing todos: %w", err)
	}
	items := make([]Response, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToResponse())
	}
	return items, total, nil
}

// Get returns a single todo.
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (Response, error) {
	t, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return Response{}, fmt.Errorf("getting todo: %w", err)
	}
	return t.ToResponse(), nil
}

// Create creates a todo.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, req CreateRequest) (Response, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return Response{}, ErrEmptyTitle
	}

	t, err := s.repo.Create(ctx, ownerID, Params{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Completed:   req.Completed,
	})
	if err != nil {
		return Response{}, fmt.Errorf("creating todo: %w", err)
	}
	telemetry.TodosMutatedTotal.WithLabelValues("create").Inc()
	return t.ToResponse(), nil
}

// Replace overwrites every field of a todo.
func (s *Service) Replace(ctx context.Context, ownerID, id uuid.UUID, req ReplaceRequest) (Response, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return Response{}, ErrEmptyTitle
	}

	t, err := s.repo.Update(ctx, ownerID, id, Params{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Completed:   req.Completed,
	})
	if err != nil {
		return Response{}, fmt.Errorf("replacing todo: %w", err)
	}
	telemetry.TodosMutatedTotal.WithLabelValues("replace").Inc()
	return t.ToResponse(), nil
}

// Patch applies the fields present in req.
func (s *Service) Patch(ctx context.Context, ownerID, id uuid.UUID, req PatchRequest) (Response, error) {
	cur, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return Response{}, fmt.Errorf("getting todo: %w", err)
	}

	p := Params{Title: cur.Title, Description: cur.Description, Completed: cur.Completed}
	if req.Title != nil {
		p.Title = strings.TrimSpace(*req.Title)
		if p.Title == "" {
			return Response{}, ErrEmptyTitle
		}
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.Completed != nil {
		p.Completed = *req.Completed
	}

	t, err := s.repo.Update(ctx, ownerID, id, p)
	if err != nil {
		return Response{}, fmt.Errorf("updating todo: %w", err)
	}
	telemetry.TodosMutatedTotal.WithLabelValues("patch").Inc()
	return t.ToResponse(), nil
}

// Delete removes a todo.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("deleting todo: %w", err)
	}
	telemetry.TodosMutatedTotal.WithLabelValues("delete").Inc()
	return nil
}
