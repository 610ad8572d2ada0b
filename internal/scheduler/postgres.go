package scheduler

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/scanhub/scanhub/internal/errors"
)

// PostgresStore persists schedules in the schedules table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a Postgres-backed schedule store.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// scheduleRow is the database shape of a Schedule; weekday sets travel as
// a Postgres integer array.
type scheduleRow struct {
	ID            uuid.UUID     `db:"id"`
	Target        string        `db:"target"`
	Ports         string        `db:"ports"`
	Preset        string        `db:"preset"`
	Flags         string        `db:"flags"`
	Threads       int           `db:"threads"`
	RunAt         string        `db:"run_at"`
	DaysOfWeek    pq.Int64Array `db:"days_of_week"`
	Active        bool          `db:"active"`
	NextRunTime   *time.Time    `db:"next_run_time"`
	LastRunStatus *string       `db:"last_run_status"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

func (r scheduleRow) toSchedule() Schedule {
	days := make([]int, len(r.DaysOfWeek))
	for i, day := range r.DaysOfWeek {
		days[i] = int(day)
	}
	return Schedule{
		ID:            r.ID,
		Target:        r.Target,
		Ports:         r.Ports,
		Preset:        r.Preset,
		Flags:         r.Flags,
		Threads:       r.Threads,
		RunAt:         r.RunAt,
		DaysOfWeek:    days,
		Active:        r.Active,
		NextRunTime:   r.NextRunTime,
		LastRunStatus: r.LastRunStatus,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func daysArray(days []int) pq.Int64Array {
	arr := make(pq.Int64Array, len(days))
	for i, day := range days {
		arr[i] = int64(day)
	}
	return arr
}

const selectColumns = `id, target, ports, preset, flags, threads, run_at,
	days_of_week, active, next_run_time, last_run_status, created_at, updated_at`

// Create implements Store.
func (p *PostgresStore) Create(ctx context.Context, s *Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}

	now := time.Now()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	s.refreshNextRun(startOfDay(now).Add(-time.Second))

	const query = `
		INSERT INTO schedules (id, target, ports, preset, flags, threads,
			run_at, days_of_week, active, next_run_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := p.db.ExecContext(ctx, query,
		s.ID, s.Target, s.Ports, s.Preset, s.Flags, s.Threads,
		s.RunAt, daysArray(s.DaysOfWeek), s.Active, s.NextRunTime,
		s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return errors.ErrDatabaseQuery("insert schedule", err)
	}
	return nil
}

// Get implements Store.
func (p *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Schedule, error) {
	var row scheduleRow
	err := p.db.GetContext(ctx, &row,
		`SELECT `+selectColumns+` FROM schedules WHERE id = $1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Schedule{}, errors.ErrScheduleNotFound(id.String())
	}
	if err != nil {
		return Schedule{}, errors.ErrDatabaseQuery("get schedule", err)
	}
	return row.toSchedule(), nil
}

// List implements Store.
func (p *PostgresStore) List(ctx context.Context) ([]Schedule, error) {
	var rows []scheduleRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT `+selectColumns+` FROM schedules ORDER BY created_at`)
	if err != nil {
		return nil, errors.ErrDatabaseQuery("list schedules", err)
	}
	schedules := make([]Schedule, len(rows))
	for i, row := range rows {
		schedules[i] = row.toSchedule()
	}
	return schedules, nil
}

// Update implements Store. The row is locked for the duration of the
// read-modify-write so concurrent updates serialize and never interleave
// field sets.
func (p *PostgresStore) Update(ctx context.Context, id uuid.UUID, fields Fields) (Schedule, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return Schedule{}, errors.ErrDatabaseQuery("begin update", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row scheduleRow
	err = tx.GetContext(ctx, &row,
		`SELECT `+selectColumns+` FROM schedules WHERE id = $1 FOR UPDATE`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Schedule{}, errors.ErrScheduleNotFound(id.String())
	}
	if err != nil {
		return Schedule{}, errors.ErrDatabaseQuery("lock schedule", err)
	}

	updated := row.toSchedule()
	fields.apply(&updated)
	if err := updated.Validate(); err != nil {
		return Schedule{}, err
	}
	updated.UpdatedAt = time.Now()
	updated.refreshNextRun(time.Now())

	const query = `
		UPDATE schedules
		SET target = $2, ports = $3, preset = $4, flags = $5, threads = $6,
			run_at = $7, days_of_week = $8, active = $9, next_run_time = $10,
			updated_at = $11
		WHERE id = $1`

	if _, err := tx.ExecContext(ctx, query,
		id, updated.Target, updated.Ports, updated.Preset, updated.Flags,
		updated.Threads, updated.RunAt, daysArray(updated.DaysOfWeek),
		updated.Active, updated.NextRunTime, updated.UpdatedAt); err != nil {
		return Schedule{}, errors.ErrDatabaseQuery("update schedule", err)
	}

	if err := tx.Commit(); err != nil {
		return Schedule{}, errors.ErrDatabaseQuery("commit update", err)
	}
	return updated, nil
}

// Delete implements Store.
func (p *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return errors.ErrDatabaseQuery("delete schedule", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return errors.ErrScheduleNotFound(id.String())
	}
	return nil
}

// SetNextRun implements Store.
func (p *PostgresStore) SetNextRun(ctx context.Context, id uuid.UUID, next *time.Time) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE schedules SET next_run_time = $2, updated_at = NOW() WHERE id = $1`,
		id, next)
	if err != nil {
		return errors.ErrDatabaseQuery("set next run", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return errors.ErrScheduleNotFound(id.String())
	}
	return nil
}

// SetLastRunStatus implements Store.
func (p *PostgresStore) SetLastRunStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE schedules SET last_run_status = $2, updated_at = NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return errors.ErrDatabaseQuery("set last run status", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return errors.ErrScheduleNotFound(id.String())
	}
	return nil
}
