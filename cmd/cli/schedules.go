package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/scanhub/scanhub/internal/scheduler"
)

var (
	schedulePorts   string
	schedulePreset  string
	scheduleFlags   string
	scheduleThreads int
)

var weekdayNames = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// scheduleCmd groups the recurring-scan commands.
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring scan schedules",
	Long: `Manage recurring weekly scan schedules on a running daemon. A
schedule names a target, a time of day, and the weekdays it fires on;
the daemon starts a scan at each occurrence.`,
	Example: `  scanhub schedule list
  scanhub schedule add 10.0.0.0/24 09:30 mon,wed,fri --ports 22,80
  scanhub schedule run 3f1c9c3a-...
  scanhub schedule remove 3f1c9c3a-...`,
}

// scheduleListCmd lists all schedules.
var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all schedules",
	Long: `Display all schedules with their recurrence, next run time and the
status of their most recent run.`,
	RunE: runScheduleList,
}

// scheduleAddCmd creates a schedule.
var scheduleAddCmd = &cobra.Command{
	Use:   "add [target] [time] [days]",
	Short: "Add a recurring scan schedule",
	Long: `Add a schedule that scans the target at the given time of day
(24-hour HH:MM) on the given weekdays. Days are a comma-separated list of
weekday names or Sunday-based indices (0-6).`,
	Example: `  scanhub schedule add 10.0.0.0/24 09:30 mon,wed,fri
  scanhub schedule add host.example.com 22:00 0,6 --preset intense`,
	Args: cobra.ExactArgs(3),
	RunE: runScheduleAdd,
}

// scheduleRemoveCmd deletes a schedule.
var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove [job-id]",
	Short: "Remove a schedule",
	Long: `Remove a schedule by id. A scan the schedule already started keeps
running.`,
	Args: cobra.ExactArgs(1),
	RunE: runScheduleRemove,
}

// scheduleRunCmd fires a schedule immediately.
var scheduleRunCmd = &cobra.Command{
	Use:   "run [job-id]",
	Short: "Run a schedule's scan immediately",
	Long: `Start the schedule's scan now without changing its next planned
occurrence.`,
	Args: cobra.ExactArgs(1),
	RunE: runScheduleRun,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleRemoveCmd)
	scheduleCmd.AddCommand(scheduleRunCmd)

	scheduleAddCmd.Flags().StringVar(&schedulePorts, "ports", "", "Ports to scan (e.g. '22,80' or '1-1024')")
	scheduleAddCmd.Flags().StringVar(&schedulePreset, "preset", "", "Scan preset: basic, intense, quick, ping, custom")
	scheduleAddCmd.Flags().StringVar(&scheduleFlags, "flags", "", "Custom scan tool flags (preset 'custom' only)")
	scheduleAddCmd.Flags().IntVar(&scheduleThreads, "threads", 0, "Parallelism hint forwarded to the scan tool")
}

func runScheduleList(_ *cobra.Command, _ []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var schedules []scheduler.Schedule
	if err := client.get("/schedule/api", &schedules); err != nil {
		return err
	}
	if len(schedules) == 0 {
		fmt.Println("No schedules found.")
		return nil
	}

	displaySchedulesTable(schedules)
	return nil
}

func runScheduleAdd(_ *cobra.Command, args []string) error {
	days, err := parseWeekdays(args[2])
	if err != nil {
		return err
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}

	req := map[string]any{
		"target":       args[0],
		"run_at":       args[1],
		"days_of_week": days,
		"ports":        schedulePorts,
		"preset":       schedulePreset,
		"flags":        scheduleFlags,
		"threads":      scheduleThreads,
	}
	var resp struct {
		JobID       string `json:"job_id"`
		NextRunTime string `json:"next_run_time"`
	}
	if err := client.post("/schedule/submit", req, &resp); err != nil {
		return err
	}

	fmt.Printf("Schedule created: %s\n", resp.JobID)
	if resp.NextRunTime != "" {
		fmt.Printf("  Next run: %s\n", resp.NextRunTime)
	}
	return nil
}

func runScheduleRemove(_ *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	if err := client.post("/schedule/"+args[0]+"/cancel", nil, nil); err != nil {
		return err
	}
	fmt.Printf("Schedule %s removed.\n", args[0])
	return nil
}

func runScheduleRun(_ *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var resp struct {
		ScanID string `json:"scan_id"`
	}
	if err := client.post("/schedule/"+args[0]+"/run", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("Scan started: %s\n", resp.ScanID)
	return nil
}

// parseWeekdays parses a comma-separated list of weekday names or
// Sunday-based indices into indices.
func parseWeekdays(s string) ([]int, error) {
	var days []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}

		if n, err := strconv.Atoi(part); err == nil {
			if n < 0 || n > 6 {
				return nil, fmt.Errorf("weekday index %d out of range 0-6", n)
			}
			days = append(days, n)
			continue
		}

		matched := false
		for i, name := range weekdayNames {
			if strings.HasPrefix(strings.ToLower(name), part) || strings.HasPrefix(part, strings.ToLower(name)) {
				days = append(days, i)
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("at least one weekday is required")
	}
	return days, nil
}

// displaySchedulesTable displays schedules in a table format.
func displaySchedulesTable(schedules []scheduler.Schedule) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Target", "Time", "Days", "Active", "Next Run", "Last Status")

	for i := range schedules {
		s := &schedules[i]

		nextRun := "-"
		if s.NextRunTime != nil {
			nextRun = s.NextRunTime.Format("2006-01-02 15:04")
		}
		lastStatus := "-"
		if s.LastRunStatus != nil {
			lastStatus = *s.LastRunStatus
		}

		_ = table.Append([]string{
			s.ID.String(),
			s.Target,
			s.RunAt,
			formatWeekdays(s.DaysOfWeek),
			strconv.FormatBool(s.Active),
			nextRun,
			lastStatus,
		})
	}

	_ = table.Render()
}

func formatWeekdays(days []int) string {
	names := make([]string, 0, len(days))
	for _, day := range days {
		if day >= 0 && day < len(weekdayNames) {
			names = append(names, weekdayNames[day])
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
