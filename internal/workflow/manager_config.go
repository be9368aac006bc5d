package workflow

import (
	"errors"
	"fmt"

	"reelscribe/internal/logging"
	"reelscribe/internal/queue"
)

// ConfigureStages builds one pool per configured stage. Stages whose pool
// size is zero or whose handler is missing get no pool and are never
// claimed by this manager.
func (m *Manager) ConfigureStages(set StageSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("cannot reconfigure stages while running")
	}

	stages := queue.StagesFor(m.cfg.Subtitles.TargetLanguages, m.cfg.Evaluation.Enabled)
	pools := make([]*pool, 0, len(stages))
	for _, stg := range stages {
		handler := set.handlerFor(stg.Kind())
		if handler == nil {
			m.logger.Warn("stage has no handler; pool disabled",
				logging.String(logging.FieldStage, stg.String()),
				logging.String(logging.FieldEventType, "pool_disabled"),
				logging.String(logging.FieldErrorHint, "check backend configuration"),
			)
			continue
		}
		workers := m.workersFor(stg)
		if workers <= 0 {
			m.logger.Info("stage pool disabled by configuration",
				logging.String(logging.FieldStage, stg.String()),
				logging.String(logging.FieldEventType, "pool_disabled"),
			)
			continue
		}
		pools = append(pools, &pool{
			stage:   stg,
			handler: handler,
			workers: workers,
			logger:  m.logger.With(logging.String(logging.FieldStage, stg.String())),
			wake:    make(chan struct{}, 1),
		})
	}
	if len(pools) == 0 {
		return fmt.Errorf("no stage pools configured for %d stages", len(stages))
	}
	m.pools = pools
	return nil
}

func (m *Manager) workersFor(stg queue.Stage) int {
	switch stg.Kind() {
	case queue.KindTranscription:
		return m.cfg.Workflow.TranscriptionWorkers
	case queue.KindTranslation:
		return m.cfg.TranslationWorkersFor(stg.Language())
	case queue.KindEvaluation:
		return m.cfg.Workflow.EvaluationWorkers
	default:
		return 0
	}
}

// nudgeDependents wakes the pools whose prerequisite just completed.
func (m *Manager) nudgeDependents(completed queue.Stage) {
	for _, p := range m.pools {
		if p.stage.Prerequisite() == completed {
			p.nudge()
		}
	}
}
