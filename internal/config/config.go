// Package config defines the daemon configuration for scanhub and loads it
// from YAML files with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scanhub/scanhub/internal/db"
	"github.com/scanhub/scanhub/internal/logging"
)

// Config represents the complete daemon configuration.
type Config struct {
	Daemon    DaemonConfig    `yaml:"daemon" json:"daemon"`
	Database  db.Config       `yaml:"database" json:"database"`
	Scanning  ScanningConfig  `yaml:"scanning" json:"scanning"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	API       APIConfig       `yaml:"api" json:"api"`
	Logging   logging.Config  `yaml:"logging" json:"logging"`
}

// DaemonConfig holds daemon-specific settings.
type DaemonConfig struct {
	PIDFile         string        `yaml:"pid_file" json:"pid_file"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// ScanningConfig holds scan execution settings.
type ScanningConfig struct {
	// Path or name of the external scan binary.
	Binary string `yaml:"binary" json:"binary"`

	// Number of concurrent scan workers.
	WorkerPoolSize int `yaml:"worker_pool_size" json:"worker_pool_size"`

	// Maximum number of queued scan jobs.
	QueueSize int `yaml:"queue_size" json:"queue_size"`

	// Hard ceiling on a single scan's runtime.
	MaxScanTimeout time.Duration `yaml:"max_scan_timeout" json:"max_scan_timeout"`

	// How long finished sessions are retained for late status queries.
	SessionRetention time.Duration `yaml:"session_retention" json:"session_retention"`

	// Default thread hint forwarded to the scan tool.
	DefaultThreads int `yaml:"default_threads" json:"default_threads"`

	// Preset used when a request does not name one.
	DefaultPreset string `yaml:"default_preset" json:"default_preset"`
}

// SchedulerConfig holds recurring-scan engine settings.
type SchedulerConfig struct {
	// Interval between due-schedule evaluations.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Host           string        `yaml:"host" json:"host"`
	Port           int           `yaml:"port" json:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" json:"max_header_bytes"`
	EnableCORS     bool          `yaml:"enable_cors" json:"enable_cors"`
	CORSOrigins    []string      `yaml:"cors_origins" json:"cors_origins"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			PIDFile:         "/var/run/scanhub.pid",
			ShutdownTimeout: 30 * time.Second,
		},
		Database: db.DefaultConfig(),
		Scanning: ScanningConfig{
			Binary:           "nmap",
			WorkerPoolSize:   10,
			QueueSize:        100,
			MaxScanTimeout:   30 * time.Minute,
			SessionRetention: 15 * time.Minute,
			DefaultThreads:   100,
			DefaultPreset:    "basic",
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           5002,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20,
			EnableCORS:     true,
			CORSOrigins:    []string{"*"},
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file, falling back to defaults when the
// file does not exist.
func Load(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Scanning.Binary == "" {
		return fmt.Errorf("scan binary is required")
	}
	if c.Scanning.WorkerPoolSize <= 0 {
		return fmt.Errorf("worker pool size must be positive")
	}
	if c.Scanning.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive")
	}
	if c.Scanning.MaxScanTimeout <= 0 {
		return fmt.Errorf("max scan timeout must be positive")
	}
	if c.Scanning.SessionRetention < 0 {
		return fmt.Errorf("session retention cannot be negative")
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler poll interval must be positive")
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("API port must be between 1 and 65535")
	}
	if c.API.Host == "" {
		return fmt.Errorf("API host is required")
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	}

	validLogLevels := map[logging.LogLevel]bool{
		logging.LevelDebug: true,
		logging.LevelInfo:  true,
		logging.LevelWarn:  true,
		logging.LevelError: true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[logging.LogFormat]bool{
		logging.FormatText: true,
		logging.FormatJSON: true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// APIAddress returns the host:port pair the API server binds to.
func (c *Config) APIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}
