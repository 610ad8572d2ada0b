// Package workers provides the worker pool that bounds concurrent scan
// execution. Jobs are queued with backpressure and executed by a fixed set
// of workers; a full queue rejects the submission rather than blocking the
// API request that triggered it.
package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scanhub/scanhub/internal/errors"
	"github.com/scanhub/scanhub/internal/logging"
)

// Job is a unit of work executed by a worker.
type Job interface {
	// Execute performs the job. The context is cancelled on pool shutdown.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for the job.
	ID() string
	// Type returns the job type for logging.
	Type() string
}

// Result is the outcome of one executed job.
type Result struct {
	JobID    string
	JobType  string
	Error    error
	Duration time.Duration
}

// Config holds worker pool configuration.
type Config struct {
	// Size is the number of worker goroutines.
	Size int
	// QueueSize is the maximum number of queued jobs.
	QueueSize int
	// ShutdownTimeout bounds how long Shutdown waits for running jobs.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Size:            10,
		QueueSize:       100,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool manages a fixed set of worker goroutines.
type Pool struct {
	config    Config
	jobs      chan Job
	results   chan Result
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *logging.Logger
	startOnce sync.Once
	stopped   atomic.Bool
}

// New creates a worker pool with the given configuration.
func New(config Config, logger *logging.Logger) *Pool {
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config:  config,
		jobs:    make(chan Job, config.QueueSize),
		results: make(chan Result, config.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.WithComponent("workers"),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting worker pool",
			"worker_count", p.config.Size,
			"queue_size", p.config.QueueSize)

		for i := 0; i < p.config.Size; i++ {
			p.wg.Add(1)
			go p.run(i)
		}
	})
}

// Submit queues a job. It fails immediately when the queue is full or the
// pool is shutting down.
func (p *Pool) Submit(job Job) error {
	if p.stopped.Load() {
		return errors.NewScanError(errors.CodeServiceUnavailable, "worker pool is shut down")
	}

	select {
	case p.jobs <- job:
		p.logger.Debug("job submitted", "job_id", job.ID(), "job_type", job.Type())
		return nil
	case <-p.ctx.Done():
		return errors.NewScanError(errors.CodeServiceUnavailable, "worker pool is shutting down")
	default:
		return errors.NewScanError(errors.CodeServiceUnavailable, "scan queue is full")
	}
}

// Results returns the channel of completed job results. It is closed after
// Shutdown completes.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Shutdown stops accepting jobs, waits for running jobs up to the
// configured timeout, then cancels the remainder.
func (p *Pool) Shutdown() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}

	p.logger.Info("shutting down worker pool")
	close(p.jobs)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timeout, cancelling running jobs")
		p.cancel()
		<-done
	}

	p.cancel()
	close(p.results)
	p.logger.Info("worker pool stopped")
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", "worker_id", id)
	defer p.logger.Debug("worker stopped", "worker_id", id)

	for job := range p.jobs {
		start := time.Now()
		err := job.Execute(p.ctx)
		duration := time.Since(start)

		if err != nil {
			p.logger.Error("job failed",
				"job_id", job.ID(), "job_type", job.Type(),
				"duration", duration, "error", err)
		} else {
			p.logger.Debug("job completed",
				"job_id", job.ID(), "job_type", job.Type(), "duration", duration)
		}

		// Results are advisory; never stall a worker on a slow consumer.
		select {
		case p.results <- Result{JobID: job.ID(), JobType: job.Type(), Error: err, Duration: duration}:
		default:
		}
	}
}

// FuncJob adapts a plain function to the Job interface.
type FuncJob struct {
	JobID   string
	JobType string
	Fn      func(ctx context.Context) error
}

// Execute implements the Job interface.
func (j *FuncJob) Execute(ctx context.Context) error { return j.Fn(ctx) }

// ID implements the Job interface.
func (j *FuncJob) ID() string { return j.JobID }

// Type implements the Job interface.
func (j *FuncJob) Type() string { return j.JobType }
