package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reelscribe/internal/logging"
	"reelscribe/internal/queue"
)

// Start begins background processing. Dispatchers stop when ctx is
// cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.pools) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	pools := m.pools
	m.wg.Add(len(pools) + 1)
	m.mu.Unlock()

	m.sweep(runCtx)
	go m.runReclaimer(runCtx)
	for _, p := range pools {
		m.logger.Info("stage pool started",
			logging.String(logging.FieldStage, p.stage.String()),
			logging.Int("workers", p.workers),
			logging.String(logging.FieldEventType, "pool_start"),
		)
		go m.runPool(runCtx, p)
	}
	return nil
}

// Stop cancels dispatching and waits for in-flight claims to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// runPool dispatches claims of one stage to its workers. A slot is taken
// before claiming so the pool never holds more claims than it has workers.
func (m *Manager) runPool(ctx context.Context, p *pool) {
	defer m.wg.Done()

	slots := make(chan struct{}, p.workers)
	claims := make(chan queue.WorkClaim, p.workers)
	var workers sync.WaitGroup
	for i := range p.workers {
		worker := fmt.Sprintf("%s#%d", p.stage, i+1)
		workers.Add(1)
		go func() {
			defer workers.Done()
			for claim := range claims {
				m.executeClaim(ctx, p, worker, claim)
				<-slots
			}
		}()
	}
	defer func() {
		close(claims)
		workers.Wait()
	}()

	idle := m.pollInterval
	for {
		select {
		case <-ctx.Done():
			return
		case slots <- struct{}{}:
		}
		acquired := 1
	fill:
		for acquired < m.claimBatch {
			select {
			case slots <- struct{}{}:
				acquired++
			default:
				break fill
			}
		}

		// Claim can fail after taking some rows; those are dispatched
		// before the error is handled.
		batch, err := m.store.Claim(ctx, p.stage, acquired)
		for range acquired - len(batch) {
			<-slots
		}
		for _, claim := range batch {
			p.logger.Debug("claim acquired",
				logging.String(logging.FieldFileID, claim.FileID),
				logging.Int(logging.FieldAttempt, claim.Attempts),
				logging.String(logging.FieldEventType, "claim_acquired"),
			)
			claims <- claim
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			logging.ErrorWithContext(p.logger, "claim failed", "claim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check status database access"),
			)
			m.idleWait(ctx, p, m.maxIdleInterval)
			continue
		}
		if len(batch) == 0 {
			m.idleWait(ctx, p, idle)
			idle = min(idle*2, m.maxIdleInterval)
			continue
		}
		idle = m.pollInterval
	}
}

func (m *Manager) idleWait(ctx context.Context, p *pool, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-p.wake:
	case <-timer.C:
	}
}

func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	if m.reclaimer == nil || m.reclaimInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.reclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep runs one reclaim pass, wakes the pools that regained work and
// reports rows that ran out of attempts.
func (m *Manager) sweep(ctx context.Context) {
	if m.reclaimer == nil {
		return
	}
	rows, err := m.reclaimer.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.setLastError(err)
			m.logger.Warn("reclaim sweep failed; stuck work may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check status database access"),
			)
		}
		return
	}
	m.mu.Lock()
	m.lastReclaim = time.Now()
	m.mu.Unlock()
	for _, row := range rows {
		if row.State == queue.StateFailed {
			m.notifyStageFailed(ctx, queue.WorkClaim{FileID: row.FileID, Stage: row.Stage, Attempts: row.Attempts},
				"worker stopped responding")
			continue
		}
		for _, p := range m.pools {
			if p.stage == row.Stage {
				p.nudge()
			}
		}
	}
}
