package workflow

import (
	"log/slog"
	"sync/atomic"

	"reelscribe/internal/queue"
	"reelscribe/internal/stage"
)

// StageSet bundles the concrete stage handlers the manager orchestrates.
// Translation and Evaluation serve every target language.
type StageSet struct {
	Transcription stage.Handler
	Translation   stage.Handler
	Evaluation    stage.Handler
}

func (s StageSet) handlerFor(kind queue.StageKind) stage.Handler {
	switch kind {
	case queue.KindTranscription:
		return s.Transcription
	case queue.KindTranslation:
		return s.Translation
	case queue.KindEvaluation:
		return s.Evaluation
	default:
		return nil
	}
}

// pool is the worker pool of one stage.
type pool struct {
	stage   queue.Stage
	handler stage.Handler
	workers int
	logger  *slog.Logger

	// wake nudges an idle dispatcher when a prerequisite stage completes.
	wake chan struct{}
	busy atomic.Int64
}

func (p *pool) nudge() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// PoolStatus reports the size and load of one pool.
type PoolStatus struct {
	Stage   queue.Stage
	Workers int
	Busy    int
}
