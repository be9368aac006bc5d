package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"reelscribe/internal/api"
	"reelscribe/internal/backends"
	"reelscribe/internal/config"
	"reelscribe/internal/daemon"
	"reelscribe/internal/preflight"
	"reelscribe/internal/queue"
)

type statusReport struct {
	DaemonRunning bool               `json:"daemonRunning"`
	Summary       api.Summary        `json:"summary"`
	Database      api.DatabaseHealth `json:"database"`
	Checks        []preflight.Result `json:"checks,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOut       bool
		checks        bool
		probeBackends bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, stage and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				report, err := buildStatusReport(cmd.Context(), cfg, store, checks || probeBackends, probeBackends)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, report)
				}
				renderStatus(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&checks, "check", false, "Run directory, disk and binary checks")
	cmd.Flags().BoolVar(&probeBackends, "backends", false, "Also probe the configured translation backends")
	return cmd
}

func buildStatusReport(ctx context.Context, cfg *config.Config, store *queue.Store, runChecks, probeBackends bool) (statusReport, error) {
	running, err := daemon.Running(cfg.LockPath())
	if err != nil {
		return statusReport{}, err
	}
	service := api.NewStatusService(store)
	summary, err := service.Summary(ctx)
	if err != nil {
		return statusReport{}, err
	}
	health, err := service.Health(ctx)
	if err != nil {
		return statusReport{}, err
	}
	report := statusReport{DaemonRunning: running, Summary: summary, Database: health}
	if !runChecks {
		return report, nil
	}

	checkers := map[string]preflight.HealthChecker{}
	if probeBackends {
		set, err := backends.New(ctx, cfg)
		if err != nil {
			return statusReport{}, err
		}
		for name, checker := range set.Checkers() {
			checkers[name] = checker
		}
	}
	report.Checks = preflight.RunAll(ctx, cfg, checkers)
	return report, nil
}

func renderStatus(out io.Writer, report statusReport) {
	fmt.Fprintf(out, "Daemon:   %s\n", runningLabel(report.DaemonRunning))
	db := report.Database
	dbState := "ok"
	if !db.Healthy {
		dbState = "unhealthy"
		if db.Error != "" {
			dbState += ": " + db.Error
		} else if len(db.MissingTables) > 0 {
			dbState += ": missing " + strings.Join(db.MissingTables, ", ")
		}
	}
	fmt.Fprintf(out, "Database: %s (%s, schema v%d)\n", db.Path, dbState, db.SchemaVersion)
	fmt.Fprintf(out, "Files:    %d (%s)\n", report.Summary.Files, fileStateLine(report.Summary.FileStates))
	fmt.Fprintf(out, "Errors:   %d recorded\n", report.Summary.Errors)

	if len(report.Summary.ByStage) > 0 {
		fmt.Fprintln(out)
		headers := stateHeaders("Stage")
		rows := make([][]string, 0, len(report.Summary.ByStage))
		for _, stageName := range sortedKeys(report.Summary.ByStage) {
			rows = append(rows, append([]string{stageName}, countsRow(report.Summary.ByStage[stageName])...))
		}
		fmt.Fprintln(out, renderTable(headers, rows))
	}

	if len(report.Checks) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(report.Checks))
		for _, check := range report.Checks {
			rows = append(rows, []string{check.Name, passLabel(check.Passed), check.Detail})
		}
		fmt.Fprintln(out, renderTable([]column{{header: "Check"}, {header: "Result"}, {header: "Detail", maxWidth: 60}}, rows))
	}
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

func passLabel(passed bool) string {
	if passed {
		return "ok"
	}
	return "FAIL"
}

func fileStateLine(counts map[string]int) string {
	parts := make([]string, 0, len(counts))
	for _, state := range queue.AllStates() {
		if n := counts[string(state)]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, state))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func countsRow(counts map[string]int) []string {
	typed := make(map[queue.State]int, len(counts))
	for state, n := range counts {
		typed[queue.State(state)] = n
	}
	return stateColumns(typed)
}
