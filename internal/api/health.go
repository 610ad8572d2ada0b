package api

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 5 * time.Second

// handleLiveness reports that the process is up.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
	})
}

// handleHealth reports service health including database connectivity when
// a database is configured.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "healthy"
	checks := map[string]string{}

	if s.database != nil {
		if err := s.database.Ping(ctx); err != nil {
			status = "unhealthy"
			checks["database"] = "failed: " + err.Error()
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}
