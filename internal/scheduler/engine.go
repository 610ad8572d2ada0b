package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scanhub/scanhub/internal/errors"
	"github.com/scanhub/scanhub/internal/logging"
	"github.com/scanhub/scanhub/internal/metrics"
	"github.com/scanhub/scanhub/internal/scanning"
)

// ScanStarter is the slice of the scan manager the engine needs.
type ScanStarter interface {
	StartScan(req scanning.Request) (scanning.Snapshot, error)
	AwaitTerminal(ctx context.Context, id uuid.UUID) (scanning.Status, error)
}

// Engine polls the store and fires due schedules. Firing queues a scan and
// returns; the terminal status of the fired session is recorded
// asynchronously so a long scan never delays the next tick.
type Engine struct {
	store    Store
	scans    ScanStarter
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewEngine creates a schedule engine.
func NewEngine(store Store, scans ScanStarter, interval time.Duration, m *metrics.Metrics, logger *logging.Logger) *Engine {
	if m == nil {
		m = metrics.Global()
	}
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:    store,
		scans:    scans,
		interval: interval,
		metrics:  m,
		logger:   logger.WithComponent("scheduler"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the polling loop.
func (e *Engine) Start() {
	e.once.Do(func() {
		e.logger.Info("starting schedule engine", "poll_interval", e.interval)
		e.wg.Add(1)
		go e.loop()
	})
}

// Stop halts the loop and waits for in-flight status recording goroutines.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
	e.logger.Info("schedule engine stopped")
}

func (e *Engine) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.tick(time.Now())
		case <-e.ctx.Done():
			return
		}
	}
}

// tick fires every active schedule whose next run is due.
func (e *Engine) tick(now time.Time) {
	schedules, err := e.store.List(e.ctx)
	if err != nil {
		e.logger.Error("failed to list schedules", "error", err)
		return
	}

	active := 0
	for _, sched := range schedules {
		if !sched.Active {
			continue
		}
		active++
		if sched.NextRunTime == nil || sched.NextRunTime.After(now) {
			continue
		}
		e.fire(sched, now)
	}
	e.metrics.SetActiveSchedules(active)
}

// fire starts a scan for the schedule snapshot and advances next_run_time.
// The snapshot from List is consistent, so a concurrent edit affects the
// next firing, never this one.
func (e *Engine) fire(sched Schedule, now time.Time) {
	logger := e.logger.WithJobID(sched.ID.String())
	logger.Info("firing schedule", "target", sched.Target, "run_at", sched.RunAt)

	var next *time.Time
	if n, ok := NextOccurrence(sched.RunAt, sched.DaysOfWeek, now); ok {
		next = &n
	}
	if err := e.store.SetNextRun(e.ctx, sched.ID, next); err != nil && !errors.IsNotFound(err) {
		logger.Error("failed to advance next run time", "error", err)
	}

	e.start(sched, logger)
}

// start queues the scan and records its terminal status in the background.
func (e *Engine) start(sched Schedule, logger *logging.Logger) {
	snap, err := e.scans.StartScan(scanning.Request{
		Target:      sched.Target,
		Ports:       sched.Ports,
		Preset:      sched.Preset,
		CustomFlags: sched.Flags,
		Threads:     sched.Threads,
	})
	if err != nil {
		logger.Error("scheduled scan failed to start", "error", err)
		e.metrics.ScheduleFired("start_failed")
		e.recordStatus(sched.ID, string(scanning.StatusError), logger)
		return
	}

	e.metrics.ScheduleFired("started")
	logger.Info("scheduled scan started", "scan_id", snap.ID)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		status, err := e.scans.AwaitTerminal(e.ctx, snap.ID)
		if err != nil {
			// Engine shutdown or the session was evicted before we looked.
			return
		}
		e.recordStatus(sched.ID, string(status), logger)
	}()
}

func (e *Engine) recordStatus(id uuid.UUID, status string, logger *logging.Logger) {
	err := e.store.SetLastRunStatus(e.ctx, id, status)
	if err != nil && !errors.IsNotFound(err) {
		logger.Error("failed to record run status", "error", err)
	}
}

// RunNow fires a schedule immediately, bypassing the due-time check and
// leaving next_run_time untouched. It returns the started scan's id.
func (e *Engine) RunNow(id uuid.UUID) (uuid.UUID, error) {
	sched, err := e.store.Get(e.ctx, id)
	if err != nil {
		return uuid.Nil, err
	}

	logger := e.logger.WithJobID(sched.ID.String())
	snap, err := e.scans.StartScan(scanning.Request{
		Target:      sched.Target,
		Ports:       sched.Ports,
		Preset:      sched.Preset,
		CustomFlags: sched.Flags,
		Threads:     sched.Threads,
	})
	if err != nil {
		return uuid.Nil, err
	}

	e.metrics.ScheduleFired("manual")
	logger.Info("manual run started", "scan_id", snap.ID)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		status, err := e.scans.AwaitTerminal(e.ctx, snap.ID)
		if err != nil {
			return
		}
		e.recordStatus(sched.ID, string(status), logger)
	}()

	return snap.ID, nil
}
