package api

import (
	"net/http"
	"sort"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/scanhub/scanhub/internal/errors"
	"github.com/scanhub/scanhub/internal/scanning"
)

// handleStartScan starts a new scan session.
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req scanning.Request
	if err := s.parseJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, errors.WrapScanError(errors.CodeValidation, "invalid scan request", err))
		return
	}

	snap, err := s.manager.StartScan(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// handleListScans returns snapshots of all retained sessions.
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	sessions := s.manager.Sessions()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	s.writeJSON(w, http.StatusOK, sessions)
}

// handleGetScan returns one session snapshot.
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snap, err := s.manager.Session(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// handleCancelScan cancels a queued or running session.
func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.manager.CancelScan(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "scan_id": id})
}

func sessionID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.ErrSessionNotFound(raw)
	}
	return id, nil
}
