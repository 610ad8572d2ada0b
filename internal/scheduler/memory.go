package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scanhub/scanhub/internal/errors"
)

// MemoryStore keeps schedules in process memory. It backs deployments
// without a database and most of the engine and handler tests.
type MemoryStore struct {
	mu        sync.RWMutex
	schedules map[uuid.UUID]*Schedule
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{schedules: make(map[uuid.UUID]*Schedule)}
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, s *Schedule) error {
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

	m.mu.Lock()
	m.schedules[s.ID] = ptr(s.clone())
	m.mu.Unlock()
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return Schedule{}, errors.ErrScheduleNotFound(id.String())
	}
	return s.clone(), nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s.clone())
	}
	return out, nil
}

// Update implements Store. The field set and the next-run recomputation
// are applied under one lock, so concurrent updates and engine reads never
// see a half-applied edit.
func (m *MemoryStore) Update(_ context.Context, id uuid.UUID, fields Fields) (Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[id]
	if !ok {
		return Schedule{}, errors.ErrScheduleNotFound(id.String())
	}

	updated := s.clone()
	fields.apply(&updated)
	if err := updated.Validate(); err != nil {
		return Schedule{}, err
	}
	updated.UpdatedAt = time.Now()
	updated.refreshNextRun(time.Now())

	m.schedules[id] = ptr(updated)
	return updated.clone(), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return errors.ErrScheduleNotFound(id.String())
	}
	delete(m.schedules, id)
	return nil
}

// SetNextRun implements Store.
func (m *MemoryStore) SetNextRun(_ context.Context, id uuid.UUID, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return errors.ErrScheduleNotFound(id.String())
	}
	s.NextRunTime = next
	s.UpdatedAt = time.Now()
	return nil
}

// SetLastRunStatus implements Store.
func (m *MemoryStore) SetLastRunStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return errors.ErrScheduleNotFound(id.String())
	}
	s.LastRunStatus = &status
	s.UpdatedAt = time.Now()
	return nil
}

func ptr(s Schedule) *Schedule { return &s }
