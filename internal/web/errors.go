package web

// errors.go provides unified error response handling for the web layer.
//
// Errors are logged with full technical detail and the request and session
// ids, then returned as the user-facing message from core.MapError: JSON for
// API clients and an alert fragment for HTMX requests.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/banko/internal/core"
	"github.com/JonMunkholm/banko/internal/logging"
	"github.com/JonMunkholm/banko/internal/web/views"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`

	// Missing lists unmapped fields for an incomplete mapping.
	Missing []core.LogicalField `json:"missing,omitempty"`
	// Session is the state after the failed operation, when there is one.
	Session *core.Snapshot `json:"session,omitempty"`
}

var (
	// errBadRequest marks malformed client input.
	errBadRequest = errors.New("bad request")

	errFileTooLarge = errors.New("file too large")
)

// statusFor maps a workflow error to an HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	var incomplete *core.IncompleteMappingError
	var inspection *core.InspectionError
	var importErr *core.ImportError
	var service *core.ServiceError

	switch {
	case errors.As(err, &maxBytes), errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrUnknownField),
		errors.Is(err, core.ErrUnknownColumn):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidState), errors.Is(err, core.ErrSuperseded):
		return http.StatusConflict
	case errors.As(err, &incomplete), errors.As(err, &inspection), errors.As(err, &importErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.As(err, &service):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing message. snap, when
// non-nil, is included so API clients can render the resulting state.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, snap *core.Snapshot) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := views.ErrorAlert(userMsg.Message, userMsg.Action, userMsg.Code).Render(r.Context(), w); err != nil {
			logger.Error("render error alert", "error", err)
		}
		return
	}

	resp := ErrorResponse{
		Error:   err.Error(),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
		Session: snap,
	}
	var incomplete *core.IncompleteMappingError
	if errors.As(err, &incomplete) {
		resp.Missing = incomplete.Missing
	}
	writeJSON(w, status, resp)
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return errors.Join(errBadRequest, errors.New("content type must be application/json"))
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
