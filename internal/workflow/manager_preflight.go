package workflow

import (
	"context"

	"reelscribe/internal/logging"
	"reelscribe/internal/preflight"
)

// RunPreflight validates directories, binaries and backends before pools
// start. Every result is logged; the error lists all failures.
func (m *Manager) RunPreflight(ctx context.Context, checkers map[string]preflight.HealthChecker) error {
	results := preflight.RunAll(ctx, m.cfg, checkers)
	results = append(results, preflight.CheckStore(ctx, m.store))
	for _, r := range results {
		if r.Passed {
			m.logger.Info("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		logging.ErrorWithContext(m.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported issue and restart the daemon"),
		)
	}
	return preflight.Failures(results)
}
