package workflow

import (
	"context"
	"time"

	"reelscribe/internal/logging"
	"reelscribe/internal/queue"
	"reelscribe/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	LastReclaim time.Time
	Pools       []PoolStatus
	Summary     queue.Summary
	StageHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastReclaim := m.lastReclaim
	pools := m.pools
	m.mu.RUnlock()

	summary, err := m.store.Summary(ctx)
	if err != nil {
		m.logger.Warn("failed to read status summary", logging.Error(err))
	}

	status := StatusSummary{
		Running:     running,
		LastReclaim: lastReclaim,
		Summary:     summary,
		Pools:       make([]PoolStatus, 0, len(pools)),
		StageHealth: make(map[string]stage.Health),
	}
	if lastErr != nil {
		status.LastError = lastErr.Error()
	}
	for _, p := range pools {
		status.Pools = append(status.Pools, PoolStatus{
			Stage:   p.stage,
			Workers: p.workers,
			Busy:    int(p.busy.Load()),
		})
		kind := string(p.stage.Kind())
		if _, ok := status.StageHealth[kind]; !ok {
			status.StageHealth[kind] = p.handler.HealthCheck(ctx)
		}
	}
	return status
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
