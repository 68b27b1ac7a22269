package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Respond writes data as JSON. A nil body or 204 writes only the status.
func Respond(w http.ResponseWriter, status int, data any) {
	if data == nil || status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err, "status", status)
	}
}

// ErrorResponse is the JSON error envelope used by every handler. Details is
// only set for validation failures.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Details []ValidationError `json:"details,omitempty"`
}

// RespondError writes an error envelope with a machine-readable code and a
// human-readable message.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	Respond(w, status, ErrorResponse{Error: code, Message: message})
}
