package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanhub/scanhub/internal/errors"
	"github.com/scanhub/scanhub/internal/scanning"
)

// fakeScanner stands in for the scan manager.
type fakeScanner struct {
	mu       sync.Mutex
	requests []scanning.Request
	status   scanning.Status
	startErr error
}

func (f *fakeScanner) StartScan(req scanning.Request) (scanning.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return scanning.Snapshot{}, f.startErr
	}
	f.requests = append(f.requests, req)
	return scanning.Snapshot{ID: uuid.New(), Status: scanning.StatusPending}, nil
}

func (f *fakeScanner) AwaitTerminal(_ context.Context, _ uuid.UUID) (scanning.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeScanner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// pastDueSchedule is active, matches today, and is already due: run_at
// midnight on today's weekday.
func pastDueSchedule() *Schedule {
	s := newTestSchedule()
	s.RunAt = "00:00"
	s.DaysOfWeek = []int{int(time.Now().Weekday())}
	return s
}

func TestEngineFiresPastDueScheduleWithinOneInterval(t *testing.T) {
	store := NewMemoryStore()
	scans := &fakeScanner{status: scanning.StatusCompleted}
	ctx := context.Background()

	sched := pastDueSchedule()
	require.NoError(t, store.Create(ctx, sched))
	require.NotNil(t, sched.NextRunTime)

	engine := NewEngine(store, scans, 20*time.Millisecond, nil, nil)
	engine.Start()
	defer engine.Stop()

	require.Eventually(t, func() bool { return scans.count() >= 1 }, 5*time.Second, 10*time.Millisecond)

	// The fired request carries the schedule's stored fields.
	scans.mu.Lock()
	req := scans.requests[0]
	scans.mu.Unlock()
	assert.Equal(t, sched.Target, req.Target)
	assert.Equal(t, sched.Ports, req.Ports)

	// last_run_status lands asynchronously; next_run_time moves forward.
	require.Eventually(t, func() bool {
		got, err := store.Get(ctx, sched.ID)
		require.NoError(t, err)
		return got.LastRunStatus != nil
	}, 5*time.Second, 10*time.Millisecond)

	got, err := store.Get(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", *got.LastRunStatus)
	require.NotNil(t, got.NextRunTime)
	assert.True(t, got.NextRunTime.After(time.Now()))
}

func TestEngineDoesNotFireInactiveSchedules(t *testing.T) {
	store := NewMemoryStore()
	scans := &fakeScanner{status: scanning.StatusCompleted}
	ctx := context.Background()

	sched := pastDueSchedule()
	require.NoError(t, store.Create(ctx, sched))
	inactive := false
	_, err := store.Update(ctx, sched.ID, Fields{Active: &inactive})
	require.NoError(t, err)

	engine := NewEngine(store, scans, 20*time.Millisecond, nil, nil)
	engine.Start()
	defer engine.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, scans.count())
}

func TestEngineDoesNotFireFutureSchedules(t *testing.T) {
	store := NewMemoryStore()
	scans := &fakeScanner{status: scanning.StatusCompleted}
	ctx := context.Background()

	sched := newTestSchedule()
	sched.RunAt = "23:59"
	sched.DaysOfWeek = []int{int(time.Now().Add(48 * time.Hour).Weekday())}
	require.NoError(t, store.Create(ctx, sched))

	engine := NewEngine(store, scans, 20*time.Millisecond, nil, nil)
	engine.Start()
	defer engine.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, scans.count())
}

func TestEngineFiresOnlyOncePerDueTime(t *testing.T) {
	store := NewMemoryStore()
	scans := &fakeScanner{status: scanning.StatusCompleted}
	ctx := context.Background()

	sched := pastDueSchedule()
	require.NoError(t, store.Create(ctx, sched))

	engine := NewEngine(store, scans, 20*time.Millisecond, nil, nil)
	engine.Start()
	defer engine.Stop()

	require.Eventually(t, func() bool { return scans.count() >= 1 }, 5*time.Second, 10*time.Millisecond)
	// next_run_time advanced past now, so later ticks stay quiet.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, scans.count())
}

func TestEngineRecordsStartFailure(t *testing.T) {
	store := NewMemoryStore()
	scans := &fakeScanner{startErr: errors.NewScanError(errors.CodeServiceUnavailable, "scan queue is full")}
	ctx := context.Background()

	sched := pastDueSchedule()
	require.NoError(t, store.Create(ctx, sched))

	engine := NewEngine(store, scans, 20*time.Millisecond, nil, nil)
	engine.Start()
	defer engine.Stop()

	require.Eventually(t, func() bool {
		got, err := store.Get(ctx, sched.ID)
		require.NoError(t, err)
		return got.LastRunStatus != nil && *got.LastRunStatus == "error"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRunNowLeavesNextRunUntouched(t *testing.T) {
	store := NewMemoryStore()
	scans := &fakeScanner{status: scanning.StatusCompleted}
	ctx := context.Background()

	sched := newTestSchedule()
	sched.RunAt = "23:59"
	sched.DaysOfWeek = []int{int(time.Now().Add(48 * time.Hour).Weekday())}
	require.NoError(t, store.Create(ctx, sched))
	before, err := store.Get(ctx, sched.ID)
	require.NoError(t, err)
	require.NotNil(t, before.NextRunTime)

	engine := NewEngine(store, scans, time.Hour, nil, nil)
	defer engine.Stop()

	scanID, err := engine.RunNow(sched.ID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, scanID)
	assert.Equal(t, 1, scans.count())

	require.Eventually(t, func() bool {
		got, err := store.Get(ctx, sched.ID)
		require.NoError(t, err)
		return got.LastRunStatus != nil
	}, 5*time.Second, 10*time.Millisecond)

	after, err := store.Get(ctx, sched.ID)
	require.NoError(t, err)
	require.NotNil(t, after.NextRunTime)
	assert.True(t, after.NextRunTime.Equal(*before.NextRunTime))
}

func TestRunNowUnknownSchedule(t *testing.T) {
	engine := NewEngine(NewMemoryStore(), &fakeScanner{}, time.Hour, nil, nil)
	defer engine.Stop()

	_, err := engine.RunNow(uuid.New())
	assert.True(t, errors.IsNotFound(err))
}
