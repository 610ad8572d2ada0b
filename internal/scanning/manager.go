package scanning

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scanhub/scanhub/internal/broadcast"
	"github.com/scanhub/scanhub/internal/config"
	"github.com/scanhub/scanhub/internal/errors"
	"github.com/scanhub/scanhub/internal/logging"
	"github.com/scanhub/scanhub/internal/metrics"
	"github.com/scanhub/scanhub/internal/runner"
	"github.com/scanhub/scanhub/internal/validate"
	"github.com/scanhub/scanhub/internal/workers"
)

// Request describes a scan start request.
type Request struct {
	Target      string `json:"target" validate:"required"`
	Ports       string `json:"ports"`
	Preset      string `json:"preset"`
	CustomFlags string `json:"custom_flags"`
	Threads     int    `json:"threads" validate:"gte=0"`
}

// Manager owns the session table and drives each scan through the worker
// pool. Sessions proceed independently; only the table itself is shared.
type Manager struct {
	cfg     config.ScanningConfig
	runner  *runner.Runner
	hub     *broadcast.Hub
	pool    *workers.Pool
	metrics *metrics.Metrics
	logger  *logging.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewManager creates a scan session manager.
func NewManager(
	cfg config.ScanningConfig,
	r *runner.Runner,
	hub *broadcast.Hub,
	pool *workers.Pool,
	m *metrics.Metrics,
	logger *logging.Logger,
) *Manager {
	if m == nil {
		m = metrics.Global()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		cfg:      cfg,
		runner:   r,
		hub:      hub,
		pool:     pool,
		metrics:  m,
		logger:   logger.WithComponent("scanning"),
		sessions: make(map[uuid.UUID]*Session),
	}
}

// StartScan validates the request, registers a pending session, and queues
// its execution. It returns as soon as the job is queued.
func (m *Manager) StartScan(req Request) (Snapshot, error) {
	if err := validate.Target(req.Target); err != nil {
		return Snapshot{}, err
	}
	if err := validate.Ports(req.Ports); err != nil {
		return Snapshot{}, err
	}

	preset := req.Preset
	if preset == "" {
		preset = m.cfg.DefaultPreset
	}
	flags, err := ResolveFlags(preset, req.CustomFlags)
	if err != nil {
		return Snapshot{}, err
	}

	threads := req.Threads
	if threads <= 0 {
		threads = m.cfg.DefaultThreads
	}

	args := BuildArgs(req.Target, req.Ports, flags, threads)
	session := newSession(req.Target, req.Ports, preset, args)

	m.mu.Lock()
	m.sessions[session.id] = session
	m.mu.Unlock()

	job := &workers.FuncJob{
		JobID:   session.id.String(),
		JobType: "scan",
		Fn: func(ctx context.Context) error {
			return m.execute(ctx, session)
		},
	}
	if err := m.pool.Submit(job); err != nil {
		m.mu.Lock()
		delete(m.sessions, session.id)
		m.mu.Unlock()
		session.cancel()
		return Snapshot{}, err
	}

	m.metrics.ScanStarted()
	m.logger.Info("scan queued",
		"scan_id", session.id, "target", req.Target, "preset", preset)
	return session.Snapshot(), nil
}

// execute runs a session to its terminal state. poolCtx is the worker
// pool's lifetime; the session's own context handles per-scan cancellation.
func (m *Manager) execute(poolCtx context.Context, s *Session) error {
	// Cancelled while still queued.
	if s.ctx.Err() != nil {
		m.finalize(s, StatusCancelled, "scan cancelled")
		return nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, m.cfg.MaxScanTimeout)
	defer cancel()
	stop := context.AfterFunc(poolCtx, s.cancel)
	defer stop()

	s.markRunning()
	logger := m.logger.WithSessionID(s.id.String())
	logger.Info("scan started", "target", s.target, "args", strings.Join(s.args, " "))

	proc, err := m.runner.Start(ctx, s.args)
	if err != nil {
		m.finalize(s, StatusError, err.Error())
		return err
	}

	for line := range proc.Lines() {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.appendLine(line)

		if percent, ok := parsePercent(line); ok {
			m.hub.Publish(broadcast.Event{
				Type:      broadcast.EventProgress,
				SessionID: s.id.String(),
				Percent:   float64(s.advanceProgress(percent)),
			})
		}
		m.hub.Publish(broadcast.Event{
			Type:      broadcast.EventUpdate,
			SessionID: s.id.String(),
			Message:   line,
		})
	}

	err = proc.Wait()
	switch {
	case err == nil:
		s.advanceProgress(100)
		m.finalize(s, StatusCompleted, "")
	case errors.IsCode(err, errors.CodeCanceled):
		m.finalize(s, StatusCancelled, "scan cancelled")
		err = nil
	default:
		m.finalize(s, StatusError, err.Error())
	}
	return err
}

// finalize applies the terminal transition and emits exactly one terminal
// event. Later callers lose the race and do nothing.
func (m *Manager) finalize(s *Session, status Status, message string) {
	if !s.finish(status) {
		return
	}

	event := broadcast.Event{Type: broadcast.EventComplete, SessionID: s.id.String()}
	if status != StatusCompleted {
		event = broadcast.Event{
			Type:      broadcast.EventError,
			SessionID: s.id.String(),
			Message:   message,
		}
	}
	m.hub.Publish(event)

	snap := s.Snapshot()
	m.metrics.ScanFinished(string(status), s.preset, time.Since(s.created))
	m.logger.Info("scan finished",
		"scan_id", s.id, "status", status, "log_lines", snap.LogLines)

	retention := m.cfg.SessionRetention
	if status == StatusCancelled {
		// Cancelled sessions are gone as soon as the caller is told.
		retention = 0
	}
	time.AfterFunc(retention, func() { m.evict(s.id) })
}

func (m *Manager) evict(id uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// CancelScan requests cancellation of a running or queued session.
func (m *Manager) CancelScan(id uuid.UUID) error {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return errors.ErrSessionNotFound(id.String())
	}
	if session.Status().Terminal() {
		return errors.NewScanError(errors.CodeConflict, "scan already finished")
	}

	m.logger.Info("cancelling scan", "scan_id", id)
	session.cancel()
	return nil
}

// Session returns a snapshot of one session.
func (m *Manager) Session(id uuid.UUID) (Snapshot, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, errors.ErrSessionNotFound(id.String())
	}
	return session.Snapshot(), nil
}

// Sessions returns snapshots of all retained sessions.
func (m *Manager) Sessions() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := make([]Snapshot, 0, len(m.sessions))
	for _, session := range m.sessions {
		snaps = append(snaps, session.Snapshot())
	}
	return snaps
}

// AwaitTerminal blocks until the session reaches a terminal state or ctx
// expires, returning the terminal status.
func (m *Manager) AwaitTerminal(ctx context.Context, id uuid.UUID) (Status, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return "", errors.ErrSessionNotFound(id.String())
	}

	select {
	case <-session.Done():
		return session.Status(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// parsePercent extracts the percent-complete value from a progress line
// such as "Stats: ... About 48.50% done; ETC: ...". The value is the token
// immediately before the first percent sign.
func parsePercent(line string) (int, bool) {
	if !strings.Contains(line, "% done") {
		return 0, false
	}
	head := line[:strings.Index(line, "%")]
	fields := strings.Fields(head)
	if len(fields) == 0 {
		return 0, false
	}
	value, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return 0, false
	}
	return int(value), true
}
