package todo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/todoapi/internal/auth"
	"github.com/wisbric/todoapi/internal/httpserver"
)

// AuditLogger records todo mutations.
type AuditLogger interface {
	LogFromRequest(r *http.Request, action, resource string, resourceID uuid.UUID, detail json.RawMessage)
}

// Handler provides HTTP handlers for the todos API.
type Handler struct {
	svc    *Service
	logger *slog.Logger
	audit  AuditLogger
}

// NewHandler creates a todo Handler. audit may be nil.
func NewHandler(svc *Service, logger *slog.Logger, audit AuditLogger) *Handler {
	return &Handler{svc: svc, logger: logger, audit: audit}
}

// Routes returns a chi.Router with all todo routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleReplace)
		r.Patch("/", h.handlePatch)
		r.Delete("/", h.handleDelete)
	})
	return r
}

// owner returns the caller's local user ID. Routes sit behind
// auth.RequireAuth; a missing identity still yields 401.
func owner(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return uuid.Nil, false
	}
	return id.UserID, true
}

func todoID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid todo ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) record(r *http.Request, action string, id uuid.UUID, detail map[string]any) {
	if h.audit == nil {
		return
	}
	raw, _ := json.Marshal(detail)
	h.audit.LogFromRequest(r, action, "todo", id, raw)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, op string, id uuid.UUID) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "todo not found")
	case errors.Is(err, ErrEmptyTitle):
		httpserver.RespondValidationError(w, []httpserver.ValidationError{{Field: "title", Message: "this field is required"}})
	default:
		h.logger.Error(op, "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to "+op)
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.svc.Create(r.Context(), ownerID, req)
	if err != nil {
		h.respondServiceError(w, err, "create todo", uuid.Nil)
		return
	}

	h.record(r, "create", resp.ID, map[string]any{"title": resp.Title})
	httpserver.Respond(w, http.StatusCreated, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}

	params, err := httpserver.ParsePageRequest(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	items, total, err := h.svc.List(r.Context(), ownerID, params.Limit(), params.Offset())
	if err != nil {
		h.logger.Error("listing todos", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list todos")
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewPage(items, params, total))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	id, ok := todoID(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.Get(r.Context(), ownerID, id)
	if err != nil {
		h.respondServiceError(w, err, "get todo", id)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleReplace(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	id, ok := todoID(w, r)
	if !ok {
		return
	}

	var req ReplaceRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.svc.Replace(r.Context(), ownerID, id, req)
	if err != nil {
		h.respondServiceError(w, err, "update todo", id)
		return
	}

	h.record(r, "update", id, map[string]any{"title": resp.Title, "completed": resp.Completed})
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	id, ok := todoID(w, r)
	if !ok {
		return
	}

	var req PatchRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.svc.Patch(r.Context(), ownerID, id, req)
	if err != nil {
		h.respondServiceError(w, err, "update todo", id)
		return
	}

	h.record(r, "update", id, map[string]any{"title": resp.Title, "completed": resp.Completed})
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	id, ok := todoID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), ownerID, id); err != nil {
		h.respondServiceError(w, err, "delete todo", id)
		return
	}

	h.record(r, "delete", id, nil)
	httpserver.Respond(w, http.StatusNoContent, nil)
}
