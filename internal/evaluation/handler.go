package evaluation

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"reelscribe/internal/config"
	"reelscribe/internal/fileutil"
	"reelscribe/internal/logging"
	"reelscribe/internal/queue"
	"reelscribe/internal/services"
	"reelscribe/internal/stage"
	"reelscribe/internal/subtitles"
)

const stageName = "evaluation"

// Report is the persisted result of one evaluation.
type Report struct {
	FileID         string             `json:"file_id"`
	Language       string             `json:"language"`
	EvaluatedAt    time.Time          `json:"evaluated_at"`
	Coverage       subtitles.Coverage `json:"coverage"`
	Sampled        int                `json:"sampled"`
	Score          *int               `json:"score,omitempty"`
	Notes          string             `json:"notes,omitempty"`
	MinScore       int                `json:"min_score"`
	BelowThreshold bool               `json:"below_threshold"`
}

// Handler runs evaluation stages.
type Handler struct {
	cfg       *config.Config
	store     *queue.Store
	evaluator subtitles.Evaluator
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler constructs an evaluation handler. A nil evaluator limits the
// evaluation to alignment and coverage checks.
func NewHandler(cfg *config.Config, store *queue.Store, evaluator subtitles.Evaluator, logger *slog.Logger) *Handler {
	h := &Handler{cfg: cfg, store: store, evaluator: evaluator, now: time.Now}
	h.SetLogger(logger)
	return h
}

// SetLogger replaces the handler logger. Call it before the handler is shared
// with a worker pool; claim fields come from the context.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	h.logger = logger.With(logging.String(logging.FieldComponent, stageName))
}

// Prepare validates the claim.
func (h *Handler) Prepare(ctx context.Context, claim queue.WorkClaim) error {
	_, err := stage.RequireLanguage(claim, stageName)
	return err
}

// Execute evaluates the stored translation and returns the report path.
func (h *Handler) Execute(ctx context.Context, claim queue.WorkClaim) (string, error) {
	lang, err := stage.RequireLanguage(claim, stageName)
	if err != nil {
		return "", err
	}
	logger := logging.WithContext(ctx, h.logger).With(logging.String(logging.FieldLanguage, lang))

	source, err := h.store.LoadCues(ctx, claim.FileID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "load cues", "", err)
	}
	if err := stage.RequireCues(source, stageName); err != nil {
		return "", err
	}
	translated, err := h.store.LoadTranslations(ctx, claim.FileID, lang)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "load translations", "", err)
	}
	if len(translated) == 0 {
		return "", services.Wrap(services.ErrNotFound, stageName, "load translations",
			"No stored translation; retry translation:"+lang, nil)
	}
	if err := subtitles.VerifyAlignment(source, translated); err != nil {
		return "", err
	}

	report := Report{
		FileID:      claim.FileID,
		Language:    lang,
		EvaluatedAt: h.now().UTC(),
		Coverage:    subtitles.MeasureCoverage(source, translated),
		MinScore:    h.cfg.Evaluation.MinScore,
	}

	if h.evaluator != nil {
		pairs := subtitles.SamplePairs(source, translated, h.cfg.Evaluation.SampleSize)
		evaluator := stage.TimeoutEvaluator{
			Evaluator: h.evaluator,
			Timeout:   config.Seconds(h.cfg.Workflow.BackendTimeout),
		}
		assessment, err := evaluator.Evaluate(ctx, pairs, lang)
		if err != nil {
			return "", err
		}
		score := assessment.Score
		report.Score = &score
		report.Notes = assessment.Notes
		report.Sampled = len(pairs)
		report.BelowThreshold = score < h.cfg.Evaluation.MinScore
	}

	path := filepath.Join(stage.ArtifactDir(h.cfg.Paths.OutputDir, claim.FileID), stage.EvaluationReportName(lang))
	if err := fileutil.WriteJSONAtomic(path, report); err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "write report", "", err)
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "evaluation_complete"),
		logging.Float64("translated_ratio", report.Coverage.TranslatedRatio),
		logging.Float64("blank_ratio", report.Coverage.BlankRatio),
		logging.Float64("identical_ratio", report.Coverage.IdenticalRatio),
		logging.String("output", path),
	}
	if report.Score != nil {
		attrs = append(attrs, logging.Int("score", *report.Score))
	}
	if report.BelowThreshold {
		logging.WarnWithContext(logger, "translation scored below threshold", "evaluation_below_threshold",
			append(attrs,
				logging.Int("min_score", report.MinScore),
				logging.String(logging.FieldErrorHint, "review "+stage.TranslationSRTName(lang)+" manually"),
				logging.String(logging.FieldImpact, "subtitles delivered but may need correction"),
			)...,
		)
		return path, nil
	}
	logger.Info("translation evaluated", logging.Args(attrs...)...)
	return path, nil
}

// HealthCheck reports readiness for evaluation stages.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if h.store == nil {
		return stage.Unhealthy(stageName, "status store unavailable")
	}
	if h.cfg.Evaluation.UseLLM && h.evaluator == nil {
		return stage.Unhealthy(stageName, "llm evaluator not configured")
	}
	return stage.Healthy(stageName)
}
