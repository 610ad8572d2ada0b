// Package broadcast fans scan progress events out to subscribers grouped by
// scan session. Delivery is best-effort: a subscriber that stops draining
// its channel loses events rather than stalling the publisher, and joining
// a session never replays events published before the join.
package broadcast

import (
	"sync"

	"github.com/scanhub/scanhub/internal/logging"
	"github.com/scanhub/scanhub/internal/metrics"
)

// subscriberBuffer is the per-subscriber event channel capacity.
const subscriberBuffer = 64

// EventType identifies the kind of progress event.
type EventType string

const (
	// EventUpdate carries a raw output line from the scan process.
	EventUpdate EventType = "scan_update"
	// EventProgress carries a percent-complete update.
	EventProgress EventType = "scan_progress"
	// EventComplete marks a successful scan end.
	EventComplete EventType = "scan_complete"
	// EventError marks a failed or cancelled scan end.
	EventError EventType = "scan_error"
)

// Event is a single progress event for a scan session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"scan_id"`
	Message   string    `json:"message,omitempty"`
	Percent   float64   `json:"percent,omitempty"`
}

// Subscriber receives events for the sessions it has joined.
type Subscriber struct {
	events   chan Event
	sessions map[string]struct{}
}

// Events returns the subscriber's event channel. It is closed when the
// subscriber is removed from the hub.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Hub routes published events to session subscribers.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Subscriber]struct{}
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewHub creates an empty broadcast hub.
func NewHub(m *metrics.Metrics, logger *logging.Logger) *Hub {
	if m == nil {
		m = metrics.Global()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		sessions: make(map[string]map[*Subscriber]struct{}),
		metrics:  m,
		logger:   logger.WithComponent("broadcast"),
	}
}

// NewSubscriber registers a new subscriber with no session memberships.
func (h *Hub) NewSubscriber() *Subscriber {
	return &Subscriber{
		events:   make(chan Event, subscriberBuffer),
		sessions: make(map[string]struct{}),
	}
}

// Join subscribes sub to events for a session. Joining a session the
// subscriber already belongs to is a no-op.
func (h *Hub) Join(sub *Subscriber, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := sub.sessions[sessionID]; ok {
		return
	}
	sub.sessions[sessionID] = struct{}{}

	set := h.sessions[sessionID]
	if set == nil {
		set = make(map[*Subscriber]struct{})
		h.sessions[sessionID] = set
	}
	set[sub] = struct{}{}
}

// Leave unsubscribes sub from a session. Leaving a session the subscriber
// does not belong to is a no-op.
func (h *Hub) Leave(sub *Subscriber, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(sub, sessionID)
}

func (h *Hub) leaveLocked(sub *Subscriber, sessionID string) {
	if _, ok := sub.sessions[sessionID]; !ok {
		return
	}
	delete(sub.sessions, sessionID)

	if set := h.sessions[sessionID]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}

// Remove unsubscribes sub from all sessions and closes its event channel.
// A removed subscriber must not be reused.
func (h *Hub) Remove(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sessionID := range sub.sessions {
		h.leaveLocked(sub, sessionID)
	}
	close(sub.events)
}

// Publish delivers an event to every subscriber of its session, in the
// order published. Subscribers with full buffers are skipped.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.metrics.EventPublished(string(event.Type))

	for sub := range h.sessions[event.SessionID] {
		select {
		case sub.events <- event:
		default:
			h.metrics.EventDropped()
			h.logger.Warn("dropping event for slow subscriber",
				"scan_id", event.SessionID, "type", event.Type)
		}
	}
}

// SubscriberCount returns the number of subscribers for a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
