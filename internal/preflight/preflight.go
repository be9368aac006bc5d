package preflight

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"reelscribe/internal/config"
	"reelscribe/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes directory, disk, binary and backend checks. checkers maps
// provider names to the clients built for cfg; only those are probed.
func RunAll(ctx context.Context, cfg *config.Config, checkers map[string]HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDiskSpace("Work disk space", cfg.Paths.WorkDir, MinFreeBytes),
	}
	results = append(results, CheckBinaries(deps.Requirements(cfg))...)

	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		results = append(results, CheckProvider(ctx, "Backend "+name, checkers[name]))
	}
	return results
}

// Failures folds failed results into one error, or nil when all passed.
func Failures(results []Result) error {
	var failures []string
	for _, r := range results {
		if !r.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("preflight checks failed: %s", strings.Join(failures, "; "))
}
