package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanhub/scanhub/internal/errors"
)

func TestResolveFlags(t *testing.T) {
	flags, err := ResolveFlags("intense", "")
	require.NoError(t, err)
	assert.Equal(t, "-T4 -A -v", flags)

	// Named presets ignore custom flags entirely.
	flags, err = ResolveFlags("quick", "-sU --top-ports 10")
	require.NoError(t, err)
	assert.Equal(t, "-T4 -F", flags)

	flags, err = ResolveFlags(PresetCustom, "-sU --top-ports 10")
	require.NoError(t, err)
	assert.Equal(t, "-sU --top-ports 10", flags)

	_, err = ResolveFlags("stealth", "")
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidation, errors.GetCode(err))
}

func TestBuildArgs(t *testing.T) {
	args := BuildArgs("10.0.0.1", "80,443", "-T4 -F", 0)
	assert.Equal(t, []string{"-Pn", "-p", "80,443", "-T4", "-F", "-v", "10.0.0.1"}, args)

	// No ports, thread hint forwarded.
	args = BuildArgs("10.0.0.0/24", "", "", 50)
	assert.Equal(t, []string{"-Pn", "--min-parallelism", "50", "-v", "10.0.0.0/24"}, args)

	// Verbose not doubled when flags already ask for it.
	args = BuildArgs("10.0.0.1", "", "-T4 -A -v", 0)
	assert.Equal(t, []string{"-Pn", "-T4", "-A", "-v", "10.0.0.1"}, args)

	// Debug output counts as verbose enough.
	args = BuildArgs("10.0.0.1", "", "-d2", 0)
	assert.Equal(t, []string{"-Pn", "-d2", "10.0.0.1"}, args)
}
