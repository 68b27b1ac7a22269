package user

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/todoapi/internal/auth"
	"github.com/wisbric/todoapi/internal/httpserver"
)

// Getter loads a user by local identifier.
type Getter interface {
	Get(ctx context.Context, id uuid.UUID) (LocalUser, error)
}

// Handler provides HTTP handlers for the users API.
type Handler struct {
	users  Getter
	logger *slog.Logger
}

// NewHandler creates a user Handler.
func NewHandler(users Getter, logger *slog.Logger) *Handler {
	return &Handler{users: users, logger: logger}
}

// Routes returns a chi.Router with all user routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/me", h.handleMe)
	return r
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	u, err := h.users.Get(r.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("getting current user", "error", err, "user_id", id.UserID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get user")
		return
	}

	httpserver.Respond(w, http.StatusOK, u.ToResponse(id.Subject, id.Roles))
}
