package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/scanhub/scanhub/internal/errors"
	"github.com/scanhub/scanhub/internal/scheduler"
)

// scheduleRequest is the schedule submission body.
type scheduleRequest struct {
	Target     string `json:"target" validate:"required"`
	Ports      string `json:"ports"`
	Preset     string `json:"preset"`
	Flags      string `json:"flags"`
	Threads    int    `json:"threads" validate:"gte=0"`
	RunAt      string `json:"run_at" validate:"required"`
	DaysOfWeek []int  `json:"days_of_week" validate:"dive,gte=0,lte=6"`
	Active     *bool  `json:"active"`
}

// handleListSchedules returns all schedules.
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, schedules)
}

// handleSubmitSchedule creates a new schedule.
func (s *Server) handleSubmitSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := s.parseJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, errors.WrapScheduleError(errors.CodeValidation, "invalid schedule request", err))
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	sched := &scheduler.Schedule{
		Target:     req.Target,
		Ports:      req.Ports,
		Preset:     req.Preset,
		Flags:      req.Flags,
		Threads:    req.Threads,
		RunAt:      req.RunAt,
		DaysOfWeek: req.DaysOfWeek,
		Active:     active,
	}
	if err := s.store.Create(r.Context(), sched); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id":        sched.ID,
		"status":        "scheduled",
		"next_run_time": sched.NextRunTime,
	})
}

// handleUpdateSchedule applies a partial update.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := scheduleID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var fields scheduler.Fields
	if err := s.parseJSON(w, r, &fields); err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := s.store.Update(r.Context(), id, fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "schedule": updated})
}

// handleCancelSchedule deletes a schedule. A session the schedule already
// fired keeps running.
func (s *Server) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := scheduleID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleRunSchedule fires a schedule immediately.
func (s *Server) handleRunSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := scheduleID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	scanID, err := s.engine.RunNow(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "scan_id": scanID})
}

func scheduleID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.ErrScheduleNotFound(raw)
	}
	return id, nil
}
