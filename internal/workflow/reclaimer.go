package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reelscribe/internal/logging"
	"reelscribe/internal/queue"
)

// Reclaimer returns in_progress rows whose worker stopped heartbeating to the
// claimable pool.
type Reclaimer struct {
	store   *queue.Store
	timeout time.Duration
	logger  *slog.Logger
}

// NewReclaimer builds a reclaimer that treats rows idle for longer than
// timeout as stuck.
func NewReclaimer(store *queue.Store, timeout time.Duration, logger *slog.Logger) *Reclaimer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reclaimer{
		store:   store,
		timeout: timeout,
		logger:  logger.With(logging.String(logging.FieldComponent, "reclaimer")),
	}
}

// Timeout returns the staleness threshold.
func (r *Reclaimer) Timeout() time.Duration {
	return r.timeout
}

// Sweep runs one reclaim pass and logs every recovered row.
func (r *Reclaimer) Sweep(ctx context.Context) ([]queue.Reclaimed, error) {
	if r.timeout < 0 {
		return nil, fmt.Errorf("reclaim timeout must not be negative, got %s", r.timeout)
	}
	rows, err := r.store.ReclaimStuck(ctx, r.timeout)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		attrs := []logging.Attr{
			logging.String(logging.FieldFileID, row.FileID),
			logging.String(logging.FieldStage, row.Stage.String()),
			logging.Int(logging.FieldAttempt, row.Attempts),
			logging.String("state", string(row.State)),
			logging.Duration("timeout", r.timeout),
			logging.Error(row.Err()),
		}
		if row.State == queue.StateFailed {
			logging.ErrorWithContext(r.logger, "stuck work exhausted its attempts", "stuck_work_failed",
				append(attrs,
					logging.Alert("stuck_work"),
					logging.String(logging.FieldErrorHint, "inspect the input; it repeatedly stalled its worker"),
				)...,
			)
			continue
		}
		logging.WarnWithContext(r.logger, "reclaimed stuck work", "stuck_work_reclaimed", attrs...)
	}
	return rows, nil
}
