// Package cli provides command-line interface commands for the scanhub
// daemon. This package implements the Cobra-based CLI structure with
// commands for running the server and managing scans and schedules over
// the daemon API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scanhub/scanhub/internal/logging"
)

const (
	// Default configuration constants.
	defaultDatabasePort = 5432 // PostgreSQL default port
	defaultAPIPort      = 5002 // default daemon API port
)

var (
	cfgFile       string
	verbose       bool
	serverAddress string
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "scanhub",
	Short: "Network scan orchestration service",
	Long: `Scanhub runs network scans through an external scan tool, streams
their progress to websocket subscribers, and fires recurring weekly scan
schedules. The server command runs the daemon; the scan and schedule
commands talk to a running daemon over its HTTP API.`,
	Version: getVersion(),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// versionCmd prints build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("scanhub %s\n", getVersion())
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverAddress, "server", "", "daemon address as host:port (default from config)")

	// Bind flags to viper
	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match
	viper.AutomaticEnv()
	viper.SetEnvPrefix("SCANHUB")

	// Set defaults for common configuration
	setConfigDefaults()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// setConfigDefaults sets default values for configuration.
func setConfigDefaults() {
	// Database configuration
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", defaultDatabasePort)
	viper.SetDefault("database.database", "scanhub")
	viper.SetDefault("database.username", "scanhub")
	viper.SetDefault("database.ssl_mode", "require")

	// Scanning configuration
	viper.SetDefault("scanning.binary", "nmap")
	viper.SetDefault("scanning.worker_pool_size", 10)
	viper.SetDefault("scanning.default_preset", "basic")
	viper.SetDefault("scanning.default_threads", 100)

	// API configuration
	viper.SetDefault("api.host", "127.0.0.1")
	viper.SetDefault("api.port", defaultAPIPort)

	// Logging configuration
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stdout")
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// configFilePath returns the config file path the CLI should load.
func configFilePath() string {
	if path := viper.ConfigFileUsed(); path != "" {
		return path
	}
	if cfgFile != "" {
		return cfgFile
	}
	return "config.yaml"
}

// verboseLogging bumps the configured log level to debug when --verbose is set.
func verboseLogging(cfg logging.Config) logging.Config {
	if verbose {
		cfg.Level = logging.LevelDebug
	}
	return cfg
}
