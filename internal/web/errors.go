package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with full technical detail server-side and returned
// to the client as a user-friendly message with an action suggestion and a
// support code, mapped via conversion.MapError.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rowforge/rowforge/internal/conversion"
	"github.com/rowforge/rowforge/internal/engine"
)

// ErrorResponse is the JSON structure for API error responses. Code is
// machine-readable; Message and Action are for humans.
type ErrorResponse struct {
	Error    string   `json:"error"`
	Message  string   `json:"message"`
	Action   string   `json:"action,omitempty"`
	Code     string   `json:"code"`
	Problems []string `json:"problems,omitempty"`
}

// respondError logs the technical error and writes the mapped user message
// with a status derived from the error class.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := conversion.MapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}

	// Import validation failures carry the full problem list so callers can
	// fix the document in one round trip.
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		resp.Problems = verr.Problems
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// statusFor maps error classes to HTTP status codes.
func statusFor(err error) int {
	var verr *engine.ValidationError

	switch {
	case errors.As(err, &verr), errors.Is(err, conversion.ErrNoFile):
		return http.StatusBadRequest
	case errors.Is(err, conversion.ErrConfigurationNotFound),
		errors.Is(err, conversion.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversion.ErrTooManyConversions):
		return http.StatusTooManyRequests
	case errors.Is(err, conversion.ErrQuotaExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, conversion.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, conversion.ErrArtifactExpired):
		return http.StatusGone
	case errors.Is(err, conversion.ErrQueueUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a minimal JSON error for middleware-level rejections,
// before any error mapping applies.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
