package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scanhub/scanhub/internal/config"
	"github.com/scanhub/scanhub/internal/daemon"
)

var (
	serverHost    string
	serverPort    int
	serverPIDFile string
)

// serverCmd runs the scanhub daemon in the foreground.
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the scanhub daemon",
	Long: `Run the scanhub daemon in the foreground. The daemon executes scans
through the configured scan binary, serves the HTTP and websocket API, and
fires recurring schedules. It stops on SIGINT or SIGTERM.`,
	Example: `  scanhub server
  scanhub server --port 5002
  scanhub server --config /etc/scanhub/config.yaml`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverHost, "host", "", "API listen host (overrides config)")
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "API listen port (overrides config)")
	serverCmd.Flags().StringVar(&serverPIDFile, "pid-file", "", "Path to PID file (overrides config)")
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFilePath())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if serverHost != "" {
		cfg.API.Host = serverHost
	}
	if serverPort != 0 {
		cfg.API.Port = serverPort
	}
	if serverPIDFile != "" {
		cfg.Daemon.PIDFile = serverPIDFile
	}
	cfg.Logging = verboseLogging(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return daemon.Run(ctx, cfg)
}
