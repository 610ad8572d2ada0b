package cli

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/scanhub/scanhub/internal/scanning"
)

var (
	scanPorts   string
	scanPreset  string
	scanFlags   string
	scanThreads int
)

// scanCmd groups the scan session commands.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Manage scan sessions",
	Long: `Start, list, inspect and cancel scan sessions on a running daemon.
Progress streaming is available over the daemon's /ws websocket endpoint.`,
	Example: `  scanhub scan start 192.168.1.0/24 --ports 22,80,443
  scanhub scan list
  scanhub scan status 3f1c9c3a-...
  scanhub scan cancel 3f1c9c3a-...`,
}

// scanStartCmd starts a new scan.
var scanStartCmd = &cobra.Command{
	Use:   "start [target]",
	Short: "Start a scan against a target",
	Long: `Start a scan session for a single target. The target may be an IP
address, a CIDR range, or a hostname.`,
	Example: `  scanhub scan start 10.0.0.5
  scanhub scan start 192.168.1.0/24 --ports 1-1024 --preset quick
  scanhub scan start host.example.com --preset custom --flags "-sV"`,
	Args: cobra.ExactArgs(1),
	RunE: runScanStart,
}

// scanListCmd lists known sessions.
var scanListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scan sessions",
	Long: `List all scan sessions the daemon currently retains, including
finished sessions still inside the retention window.`,
	RunE: runScanList,
}

// scanStatusCmd shows one session.
var scanStatusCmd = &cobra.Command{
	Use:   "status [scan-id]",
	Short: "Show the status of a scan session",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanStatus,
}

// scanCancelCmd cancels a running session.
var scanCancelCmd = &cobra.Command{
	Use:   "cancel [scan-id]",
	Short: "Cancel a pending or running scan session",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanCancel,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.AddCommand(scanStartCmd)
	scanCmd.AddCommand(scanListCmd)
	scanCmd.AddCommand(scanStatusCmd)
	scanCmd.AddCommand(scanCancelCmd)

	scanStartCmd.Flags().StringVar(&scanPorts, "ports", "", "Ports to scan (e.g. '22,80' or '1-1024')")
	scanStartCmd.Flags().StringVar(&scanPreset, "preset", "", "Scan preset: basic, intense, quick, ping, custom")
	scanStartCmd.Flags().StringVar(&scanFlags, "flags", "", "Custom scan tool flags (preset 'custom' only)")
	scanStartCmd.Flags().IntVar(&scanThreads, "threads", 0, "Parallelism hint forwarded to the scan tool")
}

func runScanStart(_ *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	req := scanning.Request{
		Target:      args[0],
		Ports:       scanPorts,
		Preset:      scanPreset,
		CustomFlags: scanFlags,
		Threads:     scanThreads,
	}
	var snapshot scanning.Snapshot
	if err := client.post("/scan", req, &snapshot); err != nil {
		return err
	}

	fmt.Printf("Scan started: %s\n", snapshot.ID)
	fmt.Printf("  Command: %s\n", snapshot.Command)
	return nil
}

func runScanList(_ *cobra.Command, _ []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var sessions []scanning.Snapshot
	if err := client.get("/scan", &sessions); err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No scan sessions found.")
		return nil
	}

	displayScansTable(sessions)
	return nil
}

func runScanStatus(_ *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var snapshot scanning.Snapshot
	if err := client.get("/scan/"+args[0], &snapshot); err != nil {
		return err
	}

	fmt.Printf("Scan:     %s\n", snapshot.ID)
	fmt.Printf("Target:   %s\n", snapshot.Target)
	fmt.Printf("Status:   %s\n", snapshot.Status)
	fmt.Printf("Progress: %d%%\n", snapshot.Progress)
	fmt.Printf("Command:  %s\n", snapshot.Command)
	fmt.Printf("Started:  %s\n", snapshot.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runScanCancel(_ *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	if err := client.post("/scan/"+args[0]+"/cancel", nil, nil); err != nil {
		return err
	}
	fmt.Printf("Scan %s cancelled.\n", args[0])
	return nil
}

// displayScansTable displays scan sessions in a table format.
func displayScansTable(sessions []scanning.Snapshot) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Target", "Preset", "Status", "Progress", "Started")

	for i := range sessions {
		s := &sessions[i]
		_ = table.Append([]string{
			s.ID.String(),
			s.Target,
			s.Preset,
			string(s.Status),
			fmt.Sprintf("%d%%", s.Progress),
			s.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	_ = table.Render()
}
