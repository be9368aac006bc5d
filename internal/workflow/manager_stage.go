package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelscribe/internal/logging"
	"reelscribe/internal/queue"
	"reelscribe/internal/services"
)

// executeClaim runs one claim to its outcome. The handler runs detached
// from runCtx so shutdown lets in-flight work finish, bounded by the stage
// timeout.
func (m *Manager) executeClaim(runCtx context.Context, p *pool, worker string, claim queue.WorkClaim) {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	ctx := context.WithoutCancel(runCtx)
	ctx = services.WithFileID(ctx, claim.FileID)
	ctx = services.WithStage(ctx, claim.Stage.String())
	ctx = services.WithWorker(ctx, worker)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger).With(logging.Int(logging.FieldAttempt, claim.Attempts))
	if lang := claim.Stage.Language(); lang != "" {
		logger = logger.With(logging.String(logging.FieldLanguage, lang))
	}

	started := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("source_file", claim.Path),
	)

	outputRef, err := m.runHandler(ctx, logger, p, claim)
	if err != nil {
		m.recordFailure(ctx, logger, claim, err)
		return
	}

	err = m.persistOutcome(ctx, func() error {
		return m.store.Complete(ctx, claim, outputRef)
	})
	if err != nil {
		m.outcomeLost(logger, err)
		return
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("output", outputRef),
		logging.Duration("stage_duration", time.Since(started)),
	)
	m.nudgeDependents(claim.Stage)
	m.checkFileCompletion(ctx, logger, claim)
}

// runHandler executes Prepare and Execute under the stage timeout while a
// heartbeat keeps the claim alive.
func (m *Manager) runHandler(ctx context.Context, logger *slog.Logger, p *pool, claim queue.WorkClaim) (string, error) {
	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if m.stageTimeout > 0 {
		var timeoutCancel context.CancelFunc
		stageCtx, timeoutCancel = context.WithTimeout(stageCtx, m.stageTimeout)
		defer timeoutCancel()
	}

	var lost bool
	var lostMu sync.Mutex
	hbCtx, hbCancel := context.WithCancel(stageCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go func() {
		defer hbWG.Done()
		m.heartbeatLoop(hbCtx, logger, claim, func() {
			lostMu.Lock()
			lost = true
			lostMu.Unlock()
			cancel()
		})
	}()
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()

	if err := p.handler.Prepare(stageCtx, claim); err != nil {
		return "", err
	}
	outputRef, err := p.handler.Execute(stageCtx, claim)

	lostMu.Lock()
	defer lostMu.Unlock()
	if lost {
		return "", queue.ErrClaimLost
	}
	if err != nil && errors.Is(err, context.DeadlineExceeded) && stageCtx.Err() != nil {
		return "", services.Wrap(services.ErrTimeout, claim.Stage.String(), "execute", "stage timeout exceeded", err)
	}
	return outputRef, err
}

// persistOutcome retries an outcome write a few times. A lost claim is not
// retried; the row belongs to another worker.
func (m *Manager) persistOutcome(ctx context.Context, write func() error) error {
	const attempts = 3
	delay := 100 * time.Millisecond
	var err error
	for i := range attempts {
		if err = write(); err == nil || errors.Is(err, queue.ErrClaimLost) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (m *Manager) outcomeLost(logger *slog.Logger, err error) {
	if errors.Is(err, queue.ErrClaimLost) {
		logging.WarnWithContext(logger, "outcome discarded; claim no longer held", "claim_lost",
			logging.String(logging.FieldImpact, "the reclaimed attempt decides the outcome"),
		)
		return
	}
	m.setLastError(err)
	logging.ErrorWithContext(logger, "failed to record stage outcome", "outcome_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "the reclaimer will return the row after reclaim_timeout"),
	)
}
