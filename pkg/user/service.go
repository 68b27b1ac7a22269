package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Reader is the store subset the API reads through.
type Reader interface {
	Get(ctx context.Context, id uuid.UUID) (LocalUser, error)
}

// Service serves local user lookups to the HTTP handlers.
type Service struct {
	users  Reader
	logger *slog.Logger
}

// NewService creates a Service over the given store.
func NewService(users Reader, logger *slog.Logger) *Service {
	return &Service{users: users, logger: logger}
}

// Get returns the user with the given local ID. Misses wrap ErrNotFound.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (LocalUser, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		s.logger.Debug("user lookup failed", "user_id", id, "error", err)
		return LocalUser{}, fmt.Errorf("getting user %s: %w", id, err)
	}
	return u, nil
}
