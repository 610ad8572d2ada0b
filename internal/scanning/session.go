package scanning

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a scan session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// Session is one scan invocation. All mutation happens through the owning
// manager's job goroutine and the cancel path; everything else reads
// snapshots.
type Session struct {
	id      uuid.UUID
	target  string
	ports   string
	preset  string
	args    []string
	created time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	status   Status
	progress int
	log      []string
	started  time.Time
	finished time.Time

	// done is closed exactly once when the session reaches a terminal state.
	done chan struct{}
}

func newSession(target, ports, preset string, args []string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:      uuid.New(),
		target:  target,
		ports:   ports,
		preset:  preset,
		args:    args,
		created: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		status:  StatusPending,
		done:    make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// Done returns a channel closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) markRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusRunning
	s.started = time.Now()
}

// finish moves the session to a terminal state. Only the first call wins.
func (s *Session) finish(status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	s.status = status
	s.finished = time.Now()
	close(s.done)
	return true
}

func (s *Session) appendLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, line)
}

// advanceProgress raises the progress percent, never lowering it, and
// reports the resulting value.
func (s *Session) advanceProgress(percent int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if percent > s.progress {
		s.progress = percent
	}
	return s.progress
}

// Snapshot is a point-in-time view of a session for API responses.
type Snapshot struct {
	ID        uuid.UUID `json:"scan_id"`
	Target    string    `json:"target"`
	Ports     string    `json:"ports,omitempty"`
	Preset    string    `json:"preset"`
	Command   string    `json:"cmd"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	LogLines  int       `json:"log_lines"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot returns a consistent view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:        s.id,
		Target:    s.target,
		Ports:     s.ports,
		Preset:    s.preset,
		Command:   strings.Join(s.args, " "),
		Status:    s.status,
		Progress:  s.progress,
		LogLines:  len(s.log),
		CreatedAt: s.created,
	}
}
