package workers

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanhub/scanhub/internal/errors"
)

func testConfig() Config {
	return Config{Size: 2, QueueSize: 4, ShutdownTimeout: 2 * time.Second}
}

func TestPoolExecutesJobs(t *testing.T) {
	pool := New(testConfig(), nil)
	pool.Start()

	var executed atomic.Int32
	for i := 0; i < 4; i++ {
		err := pool.Submit(&FuncJob{
			JobID:   fmt.Sprintf("job-%d", i),
			JobType: "scan",
			Fn: func(ctx context.Context) error {
				executed.Add(1)
				return nil
			},
		})
		require.NoError(t, err)
	}

	pool.Shutdown()
	assert.Equal(t, int32(4), executed.Load())
}

func TestResultsCarryJobErrors(t *testing.T) {
	pool := New(testConfig(), nil)
	pool.Start()

	boom := fmt.Errorf("scan blew up")
	require.NoError(t, pool.Submit(&FuncJob{
		JobID:   "bad",
		JobType: "scan",
		Fn:      func(ctx context.Context) error { return boom },
	}))

	select {
	case result := <-pool.Results():
		assert.Equal(t, "bad", result.JobID)
		assert.Equal(t, boom, result.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("no result received")
	}
	pool.Shutdown()
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	pool := New(Config{Size: 1, QueueSize: 1, ShutdownTimeout: 2 * time.Second}, nil)
	pool.Start()

	release := make(chan struct{})
	blocker := func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}

	// One job occupies the worker, one fills the queue.
	require.NoError(t, pool.Submit(&FuncJob{JobID: "a", JobType: "scan", Fn: blocker}))
	// Give the worker time to pick up the first job.
	require.Eventually(t, func() bool {
		return pool.Submit(&FuncJob{JobID: "b", JobType: "scan", Fn: blocker}) == nil
	}, time.Second, 10*time.Millisecond)

	err := pool.Submit(&FuncJob{JobID: "c", JobType: "scan", Fn: blocker})
	require.Error(t, err)
	assert.Equal(t, errors.CodeServiceUnavailable, errors.GetCode(err))

	close(release)
	pool.Shutdown()
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := New(testConfig(), nil)
	pool.Start()
	pool.Shutdown()

	err := pool.Submit(&FuncJob{JobID: "late", JobType: "scan", Fn: func(ctx context.Context) error { return nil }})
	require.Error(t, err)
	assert.Equal(t, errors.CodeServiceUnavailable, errors.GetCode(err))
}

func TestShutdownCancelsStuckJobs(t *testing.T) {
	pool := New(Config{Size: 1, QueueSize: 1, ShutdownTimeout: 100 * time.Millisecond}, nil)
	pool.Start()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.NoError(t, pool.Submit(&FuncJob{
		JobID:   "stuck",
		JobType: "scan",
		Fn: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		},
	}))

	<-started
	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not cancelled on shutdown")
	}
	<-done
}
