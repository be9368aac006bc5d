package preflight

import (
	"context"
	"fmt"
	"strings"

	"reelscribe/internal/queue"
)

// CheckStore reports the status database health as a result.
func CheckStore(ctx context.Context, store *queue.Store) Result {
	const name = "Status database"
	if store == nil {
		return Result{Name: name, Detail: "not open"}
	}
	health, err := store.CheckHealth(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if health.Healthy() {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("schema v%d, %d files", health.SchemaVersion, health.TotalFiles)}
	}
	switch {
	case health.Error != "":
		return Result{Name: name, Detail: health.Error}
	case len(health.MissingTables) > 0:
		return Result{Name: name, Detail: "missing tables: " + strings.Join(health.MissingTables, ", ")}
	case !health.IntegrityCheck:
		return Result{Name: name, Detail: "integrity check failed"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unexpected schema version %d", health.SchemaVersion)}
	}
}
