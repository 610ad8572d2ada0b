package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/scanhub/scanhub/internal/errors"
)

// maxRequestBytes caps JSON request bodies.
const maxRequestBytes = 1 << 20

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps an error to its HTTP status and writes the error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	s.writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		Code:      string(errors.GetCode(err)),
		Timestamp: time.Now().UTC(),
	})
}

// statusFromError maps the error taxonomy onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.IsValidation(err):
		return http.StatusBadRequest
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsConflict(err):
		return http.StatusConflict
	case errors.IsCode(err, errors.CodeServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseJSON decodes a request body into dst, rejecting unknown fields and
// oversized bodies.
func (s *Server) parseJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.WrapScanError(errors.CodeValidation, "invalid request body", err)
	}
	return nil
}
