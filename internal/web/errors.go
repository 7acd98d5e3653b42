package web

// errors.go maps service errors onto HTTP responses.
//
// Every handler failure goes through respondError, which classifies it with
// core.AsError, logs it with the request ID and writes
// {"error": message, "code": CODE} plus "details" for database errors.

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/cardissue/internal/core"
	"github.com/JonMunkholm/cardissue/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// respondError writes err as a JSON error response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	e := core.AsError(err)
	status := e.Kind.Status()

	logger := logging.FromContext(r.Context()).With(
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", e.Kind.Code(),
	)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", e.Error())
	} else {
		logger.Debug("request rejected", "error", e.Error())
	}

	writeJSON(w, status, ErrorResponse{
		Error:   e.Message,
		Code:    e.Kind.Code(),
		Details: e.Details(),
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since the header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
