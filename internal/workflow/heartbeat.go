package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"reelscribe/internal/logging"
	"reelscribe/internal/queue"
)

// heartbeatLoop refreshes the claim until ctx ends. When the store reports
// the claim lost it calls onLost and returns, so the handler stops working on
// a row that now belongs to someone else.
func (m *Manager) heartbeatLoop(ctx context.Context, logger *slog.Logger, claim queue.WorkClaim, onLost func()) {
	if m.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := m.store.Heartbeat(ctx, claim)
			switch {
			case err == nil:
			case errors.Is(err, queue.ErrClaimLost):
				logging.WarnWithContext(logger, "claim lost during execution; abandoning work", "claim_lost",
					logging.String(logging.FieldImpact, "another worker owns this stage now"),
					logging.String(logging.FieldErrorHint, "raise reclaim_timeout above heartbeat_interval"),
				)
				onLost()
				return
			case errors.Is(err, context.Canceled):
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
