package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/todoapi/internal/auth"
	"github.com/wisbric/todoapi/internal/db"
	"github.com/wisbric/todoapi/internal/httpserver"
)

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	dbtx   db.DBTX
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(dbtx db.DBTX, logger *slog.Logger) *Handler {
	return &Handler{dbtx: dbtx, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

// EntryResponse is one audit log row as returned to the caller.
type EntryResponse struct {
	ID         uuid.UUID       `json:"id"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID *uuid.UUID      `json:"resource_id,omitempty"`
	Detail     json.RawMessage `json:"detail"`
	IPAddress  *netip.Addr     `json:"ip_address,omitempty"`
	UserAgent  *string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// handleList returns the caller's own audit trail, newest first.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	params, err := httpserver.ParsePageRequest(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var total int
	if err := h.dbtx.QueryRow(r.Context(),
		`SELECT count(*) FROM audit_log WHERE user_id = $1`, id.UserID,
	).Scan(&total); err != nil {
		h.logger.Error("counting audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}

	entries, err := h.list(r, id.UserID, params)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewPage(entries, params, total))
}

func (h *Handler) list(r *http.Request, userID uuid.UUID, params httpserver.PageRequest) ([]EntryResponse, error) {
	rows, err := h.dbtx.Query(r.Context(),
		`SELECT id, action, resource, resource_id, detail, ip_address, user_agent, created_at
		FROM audit_log WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, params.Limit(), params.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	items := make([]EntryResponse, 0, params.Limit())
	for rows.Next() {
		var e EntryResponse
		if err := rows.Scan(&e.ID, &e.Action, &e.Resource, &e.ResourceID, &e.Detail,
			&e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit log row: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log rows: %w", err)
	}
	return items, nil
}
