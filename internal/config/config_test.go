package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "nmap", cfg.Scanning.Binary)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.PollInterval)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().API.Port, cfg.API.Port)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  host: 0.0.0.0
  port: 8443
scanning:
  binary: /usr/local/bin/nmap
  worker_pool_size: 4
scheduler:
  poll_interval: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.API.Host)
	assert.Equal(t, 8443, cfg.API.Port)
	assert.Equal(t, "/usr/local/bin/nmap", cfg.Scanning.Binary)
	assert.Equal(t, 4, cfg.Scanning.WorkerPoolSize)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.PollInterval)
	// Untouched sections keep defaults.
	assert.Equal(t, Default().Scanning.QueueSize, cfg.Scanning.QueueSize)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  port: 70000\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestValidateRejectsZeroScanTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scanning:\n  max_scan_timeout: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max scan timeout")

	cfg := Default()
	cfg.Scanning.MaxScanTimeout = -time.Minute
	require.Error(t, cfg.Validate())
}

func TestValidateDatabaseFieldsOnlyWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.Database.Enabled = true
	cfg.Database.Username = ""
	require.Error(t, cfg.Validate())

	cfg.Database.Enabled = false
	require.NoError(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.API.Port = 9999
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.API.Port)
}

func TestAPIAddress(t *testing.T) {
	cfg := Default()
	cfg.API.Host = "10.0.0.5"
	cfg.API.Port = 8080
	assert.Equal(t, "10.0.0.5:8080", cfg.APIAddress())
}
