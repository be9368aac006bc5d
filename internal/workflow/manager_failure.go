package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"reelscribe/internal/logging"
	"reelscribe/internal/notifications"
	"reelscribe/internal/queue"
	"reelscribe/internal/services"
)

// recordFailure classifies err and records it against the claim. Transient
// failures are rescheduled with backoff until the attempt budget runs out.
func (m *Manager) recordFailure(ctx context.Context, logger *slog.Logger, claim queue.WorkClaim, err error) {
	if errors.Is(err, queue.ErrClaimLost) {
		m.outcomeLost(logger, err)
		return
	}
	m.setLastError(err)

	outcome := services.Classify(err)
	failure := queue.Failure{
		Kind:     queue.ErrorKind(outcome.Kind),
		Message:  strings.TrimSpace(err.Error()),
		Terminal: outcome.Terminal,
	}
	if !outcome.Terminal {
		if delay := m.retry.Backoff(claim.Attempts); delay > 0 {
			failure.RetryAt = time.Now().Add(delay)
		}
	}

	var state queue.State
	writeErr := m.persistOutcome(ctx, func() error {
		var err error
		state, err = m.store.Fail(ctx, claim, failure)
		return err
	})
	if writeErr != nil {
		m.outcomeLost(logger, writeErr)
		return
	}

	attrs := []logging.Attr{
		logging.Error(err),
		logging.String("error_kind", string(failure.Kind)),
		logging.Bool("terminal", failure.Terminal),
		logging.String("state", string(state)),
	}
	if state == queue.StateFailed {
		logging.ErrorWithContext(logger, "stage failed", "stage_failed",
			append(attrs,
				logging.Alert("stage_failure"),
				logging.String(logging.FieldErrorHint, failureHint(failure)),
			)...,
		)
		m.notifyStageFailed(ctx, claim, failure.Message)
		return
	}
	retryAttrs := append(attrs, logging.String(logging.FieldImpact, "stage will be retried"))
	if !failure.RetryAt.IsZero() {
		retryAttrs = append(retryAttrs, logging.Time("retry_at", failure.RetryAt))
	}
	logging.WarnWithContext(logger, "stage attempt failed; retry scheduled", "stage_retry", retryAttrs...)
}

func failureHint(failure queue.Failure) string {
	switch failure.Kind {
	case queue.ErrorCardinality:
		return "backend returned a different number of items; try another provider for this language"
	case queue.ErrorPermanent:
		return "input cannot be processed; check the file and its limits"
	default:
		return "attempts exhausted; run retry once the backend is healthy"
	}
}

func (m *Manager) notifyStageFailed(ctx context.Context, claim queue.WorkClaim, message string) {
	path := claim.Path
	if path == "" {
		if file, err := m.store.GetFile(ctx, claim.FileID); err == nil && file != nil {
			path = file.Path
		}
	}
	if path == "" {
		path = claim.FileID
	}
	m.publish(ctx, notifications.EventStageFailed, notifications.Payload{
		"path":     path,
		"stage":    claim.Stage.String(),
		"attempts": claim.Attempts,
		"error":    message,
	})
}

// checkFileCompletion publishes file_completed once when the last stage of a
// file completes.
func (m *Manager) checkFileCompletion(ctx context.Context, logger *slog.Logger, claim queue.WorkClaim) {
	state, err := m.store.FileState(ctx, claim.FileID)
	if err != nil {
		logger.Warn("failed to read file state", logging.Error(err))
		return
	}
	if state != queue.StateCompleted {
		return
	}
	m.mu.Lock()
	_, seen := m.notified[claim.FileID]
	m.notified[claim.FileID] = struct{}{}
	m.mu.Unlock()
	if seen {
		return
	}
	logger.Info("file completed",
		logging.String(logging.FieldEventType, "file_complete"),
		logging.String("source_file", claim.Path),
	)
	m.publish(ctx, notifications.EventFileCompleted, notifications.Payload{
		"path":      claim.Path,
		"languages": m.cfg.Subtitles.TargetLanguages,
	})
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		m.logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check ntfy topic and network"),
		)
	}
}
