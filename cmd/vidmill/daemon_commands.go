package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"vidmill/internal/api"
	"vidmill/internal/daemonctl"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the vidmill daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configPath(), LogLevel: startLogLevel},
				10*time.Second,
			)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(out, "Daemon already running")
			default:
				fmt.Fprintf(out, "Daemon started (pid %d, %s)\n", result.Health.PID, client.BaseURL())
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the launched daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the vidmill daemon (fails outstanding jobs)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cmd.Context(), client, cfg, 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon health, readiness checks, and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			running, health, probeErr := daemonctl.Probe(cmd.Context(), client)
			var apiErr *api.Error
			if errors.As(probeErr, &apiErr) && apiErr.StatusCode != http.StatusServiceUnavailable {
				return probeErr
			}
			if ctx.jsonOutput() {
				if !running {
					return writeJSON(cmd, map[string]any{"running": false})
				}
				return writeJSON(cmd, health)
			}
			renderHealth(cmd.OutOrStdout(), client.BaseURL(), running, health)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func renderHealth(out io.Writer, address string, running bool, health api.HealthResponse) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(out, line)
	}
	if !running {
		fmt.Fprintln(out, renderStatusLine("vidmill", statusWarn, fmt.Sprintf("Not running at %s (run `vidmill start`)", address), colorize))
		return
	}
	kind := statusOK
	if health.Status != "ok" {
		kind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("vidmill", kind, fmt.Sprintf("%s (pid %d, up %s)", health.Status, health.PID, health.Uptime), colorize))
	fmt.Fprintln(out, renderStatusLine("Engine", statusInfo, health.Engine, colorize))
	db := health.Database
	dbDetail := fmt.Sprintf("%s (schema v%d, %d jobs)", db.DBPath, db.SchemaVersion, db.TotalJobs)
	if db.Error != "" {
		dbDetail = db.Error
	}
	fmt.Fprintln(out, renderStatusLine("Journal", readyKind(db.IntegrityCheck), dbDetail, colorize))
	fmt.Fprintln(out)

	if len(health.Checks) > 0 {
		for _, line := range renderSectionHeader("Readiness", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, check := range health.Checks {
			fmt.Fprintln(out, renderStatusLine(check.Name, readyKind(check.Ready), check.Detail, colorize))
		}
		fmt.Fprintln(out)
	}

	for _, line := range renderSectionHeader("Queue Status", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := buildCountRows(health.Counts)
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return
	}
	fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func buildCountRows(counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for k, v := range counts {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, fmt.Sprintf("%d", counts[k])})
	}
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
