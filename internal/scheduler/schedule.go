// Package scheduler implements recurring scans: the Schedule entity, its
// stores (in-memory and Postgres), weekly next-occurrence math, and the
// polling engine that fires due schedules.
package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scanhub/scanhub/internal/errors"
	"github.com/scanhub/scanhub/internal/validate"
)

// Schedule is a persisted recurring-scan definition. Weekday indices are
// Sunday-based (0 = Sunday), matching time.Weekday.
type Schedule struct {
	ID            uuid.UUID  `db:"id" json:"job_id"`
	Target        string     `db:"target" json:"target"`
	Ports         string     `db:"ports" json:"ports"`
	Preset        string     `db:"preset" json:"preset"`
	Flags         string     `db:"flags" json:"flags"`
	Threads       int        `db:"threads" json:"threads"`
	RunAt         string     `db:"run_at" json:"run_at"`
	DaysOfWeek    []int      `db:"-" json:"days_of_week"`
	Active        bool       `db:"active" json:"active"`
	NextRunTime   *time.Time `db:"next_run_time" json:"next_run_time"`
	LastRunStatus *string    `db:"last_run_status" json:"last_run_status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Validate checks the user-settable fields.
func (s *Schedule) Validate() error {
	if err := validate.Target(s.Target); err != nil {
		return err
	}
	if err := validate.Ports(s.Ports); err != nil {
		return err
	}
	if _, err := parseRunAt(s.RunAt); err != nil {
		return err
	}
	return validateDays(s.DaysOfWeek)
}

// clone returns a deep copy so store snapshots never share slices.
func (s Schedule) clone() Schedule {
	s.DaysOfWeek = append([]int(nil), s.DaysOfWeek...)
	if s.NextRunTime != nil {
		next := *s.NextRunTime
		s.NextRunTime = &next
	}
	if s.LastRunStatus != nil {
		status := *s.LastRunStatus
		s.LastRunStatus = &status
	}
	return s
}

// refreshNextRun recomputes next_run_time from the recurrence fields.
// Inactive schedules and empty weekday sets get a null next run.
func (s *Schedule) refreshNextRun(anchor time.Time) {
	s.NextRunTime = nil
	if !s.Active {
		return
	}
	if next, ok := NextOccurrence(s.RunAt, s.DaysOfWeek, anchor); ok {
		s.NextRunTime = &next
	}
}

func validateDays(days []int) error {
	for _, day := range days {
		if day < 0 || day > 6 {
			return errors.NewScheduleError(errors.CodeValidation,
				fmt.Sprintf("weekday index %d out of range 0-6", day))
		}
	}
	return nil
}

// Fields is a partial schedule update. Nil fields are left untouched; the
// whole set is applied atomically.
type Fields struct {
	Target     *string `json:"target"`
	Ports      *string `json:"ports"`
	Preset     *string `json:"preset"`
	Flags      *string `json:"flags"`
	Threads    *int    `json:"threads"`
	RunAt      *string `json:"run_at"`
	DaysOfWeek *[]int  `json:"days_of_week"`
	Active     *bool   `json:"active"`
}

// apply writes the non-nil fields onto the schedule.
func (f Fields) apply(s *Schedule) {
	if f.Target != nil {
		s.Target = *f.Target
	}
	if f.Ports != nil {
		s.Ports = *f.Ports
	}
	if f.Preset != nil {
		s.Preset = *f.Preset
	}
	if f.Flags != nil {
		s.Flags = *f.Flags
	}
	if f.Threads != nil {
		s.Threads = *f.Threads
	}
	if f.RunAt != nil {
		s.RunAt = *f.RunAt
	}
	if f.DaysOfWeek != nil {
		s.DaysOfWeek = append([]int(nil), (*f.DaysOfWeek)...)
	}
	if f.Active != nil {
		s.Active = *f.Active
	}
}
