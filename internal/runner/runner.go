// Package runner executes external scan processes and streams their output
// line by line. The scan tool writes progress to both stdout and stderr, so
// both streams are merged into a single ordered line feed.
package runner

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/scanhub/scanhub/internal/errors"
	"github.com/scanhub/scanhub/internal/logging"
)

// lineBufferSize bounds how far the reader can run ahead of the consumer.
const lineBufferSize = 256

// maxLineBytes caps a single output line; anything longer is truncated by
// the scanner rather than aborting the stream.
const maxLineBytes = 64 * 1024

// Runner starts scan processes for a configured binary.
type Runner struct {
	binary string
	logger *logging.Logger
}

// New creates a runner for the given scan binary.
func New(binary string, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		binary: binary,
		logger: logger.WithComponent("runner"),
	}
}

// Binary returns the configured scan binary.
func (r *Runner) Binary() string {
	return r.binary
}

// Process is a running scan subprocess with a live output stream.
type Process struct {
	cmd    *exec.Cmd
	ctx    context.Context
	lines  chan string
	done   chan struct{}
	logger *logging.Logger
}

// Start launches the scan binary with the given arguments. The returned
// process streams merged stdout/stderr output until exit. Cancelling ctx
// kills the process.
func (r *Runner) Start(ctx context.Context, args []string) (*Process, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeSpawnFailed, "failed to create output pipe", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, errors.WrapScanError(errors.CodeSpawnFailed,
			fmt.Sprintf("failed to start %s", r.binary), err)
	}

	// The child holds its own copy of the write end; closing ours lets the
	// reader see EOF when the child exits.
	_ = pw.Close()

	p := &Process{
		cmd:    cmd,
		ctx:    ctx,
		lines:  make(chan string, lineBufferSize),
		done:   make(chan struct{}),
		logger: r.logger,
	}

	go p.readLines(pr)

	r.logger.Debug("scan process started", "binary", r.binary, "pid", cmd.Process.Pid)
	return p, nil
}

func (p *Process) readLines(pr *os.File) {
	defer close(p.done)
	defer close(p.lines)
	defer pr.Close()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("scan output stream ended early", "error", err)
	}
}

// Lines returns the merged stdout/stderr line stream. The channel is closed
// when the process closes its output.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// PID returns the process id of the running scan.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits and the output stream is drained,
// then classifies the outcome. It returns nil on a zero exit status, a
// CANCELED error when the context was cancelled, and a SCAN_FAILED error
// otherwise.
func (p *Process) Wait() error {
	<-p.done
	err := p.cmd.Wait()

	switch {
	case stderrors.Is(p.ctx.Err(), context.Canceled):
		return errors.NewScanError(errors.CodeCanceled, "scan cancelled")
	case stderrors.Is(p.ctx.Err(), context.DeadlineExceeded):
		return errors.WrapScanError(errors.CodeScanFailed, "scan timed out", err)
	case err != nil:
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			return errors.NewScanError(errors.CodeScanFailed,
				fmt.Sprintf("scan exited with status %d", exitErr.ExitCode()))
		}
		return errors.WrapScanError(errors.CodeScanFailed, "scan process failed", err)
	default:
		return nil
	}
}
