package translation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"reelscribe/internal/config"
	"reelscribe/internal/language"
	"reelscribe/internal/logging"
	"reelscribe/internal/queue"
	"reelscribe/internal/services"
	"reelscribe/internal/stage"
	"reelscribe/internal/subtitles"
)

const stageName = "translation"

// Providers resolves the detection and translation backends for a run.
type Providers interface {
	Detector() (subtitles.LanguageDetector, error)
	TranslatorFor(lang string) (subtitles.TextTranslator, error)
}

// Handler runs translation stages for every target language.
type Handler struct {
	cfg       *config.Config
	store     *queue.Store
	providers Providers
	logger    *slog.Logger
}

// NewHandler constructs a translation handler.
func NewHandler(cfg *config.Config, store *queue.Store, providers Providers, logger *slog.Logger) *Handler {
	h := &Handler{cfg: cfg, store: store, providers: providers}
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

// Prepare resolves the target language and its backends.
func (h *Handler) Prepare(ctx context.Context, claim queue.WorkClaim) error {
	lang, err := stage.RequireLanguage(claim, stageName)
	if err != nil {
		return err
	}
	if !slices.Contains(language.NormalizeList(h.cfg.Subtitles.TargetLanguages), lang) {
		return services.Wrap(services.ErrConfiguration, stageName, "resolve language",
			fmt.Sprintf("Language %q is not a configured target", lang), nil)
	}
	if h.providers == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "resolve backends", "No translation providers configured", nil)
	}
	if _, err := h.providers.TranslatorFor(lang); err != nil {
		return err
	}
	return nil
}

// Execute translates the stored source cues into the claim's language and
// returns the written SRT path.
func (h *Handler) Execute(ctx context.Context, claim queue.WorkClaim) (string, error) {
	lang, err := stage.RequireLanguage(claim, stageName)
	if err != nil {
		return "", err
	}
	logger := logging.WithContext(ctx, h.logger).With(logging.String(logging.FieldLanguage, lang))

	cues, err := h.store.LoadCues(ctx, claim.FileID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "load cues", "", err)
	}
	if err := stage.RequireCues(cues, stageName); err != nil {
		return "", err
	}

	translator, err := NewTranslator(h.cfg, h.providers, cues, lang, logger)
	if err != nil {
		return "", err
	}

	detected, newly, err := translator.Detect(ctx, cues)
	if err != nil {
		return "", err
	}
	if newly > 0 {
		if err := h.persistDetections(ctx, claim.FileID, cues, detected, logger); err != nil {
			return "", err
		}
	}
	for pos, tag := range detected {
		if tag != "" {
			cues[pos].Language = tag
		}
	}

	result, err := translator.Translate(ctx, cues, lang)
	if err != nil {
		return "", err
	}

	if err := h.store.SaveTranslations(ctx, claim.FileID, lang, result.Cues); err != nil {
		if errors.Is(err, queue.ErrCuesMismatch) {
			return "", services.Wrap(services.ErrPermanent, stageName, "save translations", "Translated cues drifted from source", err)
		}
		return "", services.Wrap(services.ErrTransient, stageName, "save translations", "", err)
	}

	path, err := stage.WriteTrack(h.cfg.Paths.OutputDir, claim.FileID, stage.TranslationSRTName(lang), result.Cues)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "write srt", "", err)
	}

	report := result.Report
	logger.Info("subtitles translated",
		logging.String(logging.FieldEventType, "translation_complete"),
		logging.Int("cues", len(cues)),
		logging.Int("translated", len(report.Translated)),
		logging.Int("newly_detected", newly),
		logging.Int("translation_calls", report.TranslationCalls),
		logging.Int("translation_fallbacks", report.TranslationFallbacks),
		logging.String("output", path),
	)
	return path, nil
}

// NewTranslator builds a segment-preserving translator for lang from the
// configured backends. A detector is only resolved when some non-blank cue
// lacks a language tag.
func NewTranslator(cfg *config.Config, providers Providers, cues []subtitles.Cue, lang string, logger *slog.Logger) (*subtitles.Translator, error) {
	if providers == nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "resolve backends", "No translation providers configured", nil)
	}
	textTranslator, err := providers.TranslatorFor(lang)
	if err != nil {
		return nil, err
	}
	timeout := config.Seconds(cfg.Workflow.BackendTimeout)

	var detector subtitles.LanguageDetector
	if needsDetection(cues) {
		d, err := providers.Detector()
		if err != nil {
			return nil, err
		}
		detector = stage.TimeoutDetector{Detector: d, Timeout: timeout}
	}

	return subtitles.NewTranslator(
		detector,
		stage.TimeoutTranslator{Translator: textTranslator, Timeout: timeout},
		subtitles.Options{
			DetectionBatchSize:   cfg.Subtitles.DetectionBatchSize,
			TranslationBatchSize: cfg.Subtitles.TranslationBatchSize,
			Concurrency:          cfg.Subtitles.BatchConcurrency,
		},
		logger,
	), nil
}

func (h *Handler) persistDetections(ctx context.Context, fileID string, cues []subtitles.Cue, detected []string, logger *slog.Logger) error {
	detections := make(map[int]string)
	for pos, cue := range cues {
		if cue.Language == "" && detected[pos] != "" {
			detections[cue.Index] = detected[pos]
		}
	}
	updated, err := h.store.SaveDetections(ctx, fileID, detections)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "save detections", "", err)
	}
	logger.Debug("language detections stored",
		logging.String(logging.FieldEventType, "detections_saved"),
		logging.Int("updated", updated),
	)
	return nil
}

func needsDetection(cues []subtitles.Cue) bool {
	for _, cue := range cues {
		if !cue.Blank() && cue.Language == "" {
			return true
		}
	}
	return false
}

// HealthCheck reports readiness for the translation stages.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if h.store == nil {
		return stage.Unhealthy(stageName, "status store unavailable")
	}
	if h.providers == nil {
		return stage.Unhealthy(stageName, "translation providers unavailable")
	}
	for _, lang := range h.cfg.Subtitles.TargetLanguages {
		if _, err := h.providers.TranslatorFor(lang); err != nil {
			return stage.Unhealthy(stageName, err.Error())
		}
	}
	return stage.Healthy(stageName)
}
