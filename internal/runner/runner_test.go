package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanhub/scanhub/internal/errors"
)

func shRunner() *Runner {
	return New("/bin/sh", nil)
}

func collectLines(p *Process) []string {
	var lines []string
	for line := range p.Lines() {
		lines = append(lines, line)
	}
	return lines
}

func TestStartStreamsMergedOutput(t *testing.T) {
	p, err := shRunner().Start(context.Background(), []string{"-c", "echo out1; echo err1 1>&2; echo out2"})
	require.NoError(t, err)

	lines := collectLines(p)
	require.NoError(t, p.Wait())
	assert.ElementsMatch(t, []string{"out1", "err1", "out2"}, lines)
}

func TestWaitReportsNonZeroExit(t *testing.T) {
	p, err := shRunner().Start(context.Background(), []string{"-c", "echo partial; exit 3"})
	require.NoError(t, err)

	lines := collectLines(p)
	err = p.Wait()
	require.Error(t, err)
	assert.Equal(t, errors.CodeScanFailed, errors.GetCode(err))
	assert.Contains(t, err.Error(), "status 3")
	assert.Equal(t, []string{"partial"}, lines)
}

func TestStartMissingBinary(t *testing.T) {
	r := New("/nonexistent/scan-binary", nil)
	_, err := r.Start(context.Background(), []string{"-v"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeSpawnFailed, errors.GetCode(err))
}

func TestCancelKillsProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, err := shRunner().Start(ctx, []string{"-c", "echo running; exec sleep 30"})
	require.NoError(t, err)

	// Wait for the first line so the process is definitely up.
	select {
	case line := <-p.Lines():
		assert.Equal(t, "running", line)
	case <-time.After(5 * time.Second):
		t.Fatal("no output before cancel")
	}

	cancel()
	for range p.Lines() {
	}

	err = p.Wait()
	require.Error(t, err)
	assert.Equal(t, errors.CodeCanceled, errors.GetCode(err))
}

func TestTimeoutReportsScanFailed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	p, err := shRunner().Start(ctx, []string{"-c", "exec sleep 30"})
	require.NoError(t, err)

	for range p.Lines() {
	}
	err = p.Wait()
	require.Error(t, err)
	assert.Equal(t, errors.CodeScanFailed, errors.GetCode(err))
}
