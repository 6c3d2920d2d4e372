package web

// errors.go provides unified error response handling for the web layer.
//
// Every failed request is logged with the technical error and the request
// ID, and the client receives the mapped core.UserMessage either as JSON
// or, for HTMX requests, as an HTML alert fragment.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/core"
	"github.com/JonMunkholm/dealerprice/internal/decode"
	"github.com/JonMunkholm/dealerprice/internal/logging"
	"github.com/JonMunkholm/dealerprice/internal/mapping"
	"github.com/JonMunkholm/dealerprice/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{core.ErrPartialCommit, http.StatusInternalServerError},
	{core.ErrCommitBookkeeping, http.StatusInternalServerError},
	{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
	{core.ErrNoFile, http.StatusBadRequest},
	{decode.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
	{decode.ErrCorruptFile, http.StatusUnprocessableEntity},
	{decode.ErrInvalidSeparator, http.StatusBadRequest},
	{decode.ErrUnknownCodepage, http.StatusBadRequest},
	{mapping.ErrUnknownField, http.StatusBadRequest},
	{mapping.ErrInvalidRule, http.StatusBadRequest},
	{core.ErrNoMapping, http.StatusBadRequest},
	{catalog.ErrDealerNotFound, http.StatusNotFound},
	{core.ErrImportNotFound, http.StatusNotFound},
	{core.ErrImportInProgress, http.StatusConflict},
	{core.ErrTooManyImports, http.StatusServiceUnavailable},
}

// statusFor picks the HTTP status for an error.
func statusFor(err error) int {
	for _, es := range errorStatuses {
		if errors.Is(err, es.err) {
			return es.status
		}
	}
	return http.StatusInternalServerError
}

// respondError logs the technical error and returns the user-facing one.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	fields := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", fields...)
	} else {
		logger.Warn("request rejected", fields...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}

	if isHTMX(r) {
		renderErrorPartial(w, r, userMsg, status)
		return
	}
	respondErrorJSON(w, userMsg, status)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// renderErrorPartial renders an HTMX-compatible error fragment.
func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
