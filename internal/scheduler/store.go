package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the durable record of schedules. Implementations must apply
// Update field sets atomically and hand out consistent snapshots, so a
// schedule being fired never mixes pre- and post-edit fields.
type Store interface {
	// Create validates and persists a new schedule, computing its first
	// next_run_time. The anchor is the start of the current day so a
	// same-day run_at that already passed is still due.
	Create(ctx context.Context, s *Schedule) error

	// Get returns a snapshot of one schedule.
	Get(ctx context.Context, id uuid.UUID) (Schedule, error)

	// List returns snapshots of all schedules.
	List(ctx context.Context) ([]Schedule, error)

	// Update applies a partial field set atomically and recomputes
	// next_run_time from the post-update fields, returning the result.
	Update(ctx context.Context, id uuid.UUID, fields Fields) (Schedule, error)

	// Delete removes a schedule permanently.
	Delete(ctx context.Context, id uuid.UUID) error

	// SetNextRun overwrites next_run_time, typically right after a firing.
	SetNextRun(ctx context.Context, id uuid.UUID, next *time.Time) error

	// SetLastRunStatus records the terminal status of the most recent
	// firing.
	SetLastRunStatus(ctx context.Context, id uuid.UUID, status string) error
}
