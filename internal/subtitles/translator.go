package subtitles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"reelscribe/internal/language"
	"reelscribe/internal/logging"
	"reelscribe/internal/services"
)

// UndeterminedLanguage is stored for cues whose detection was attempted but
// produced no usable tag, so later stages do not detect them again.
const UndeterminedLanguage = "und"

const defaultBatchSize = 50

// LanguageDetector returns one language tag per input text.
type LanguageDetector interface {
	DetectLanguages(ctx context.Context, texts []string) ([]string, error)
}

// TextTranslator translates every input text into target, one output per
// input, in order.
type TextTranslator interface {
	Translate(ctx context.Context, texts []string, target string) ([]string, error)
}

// Options tunes batching.
type Options struct {
	DetectionBatchSize   int
	TranslationBatchSize int
	Concurrency          int
}

func (o Options) withDefaults() Options {
	if o.DetectionBatchSize <= 0 {
		o.DetectionBatchSize = defaultBatchSize
	}
	if o.TranslationBatchSize <= 0 {
		o.TranslationBatchSize = defaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return o
}

// Report describes what a translation run did.
type Report struct {
	Target string
	// Detected holds the language tag per cue position: a normalized code,
	// UndeterminedLanguage, or "" for blank cues.
	Detected             []string
	NewlyDetected        int
	Translated           []int
	DetectionCalls       int
	TranslationCalls     int
	DetectionFallbacks   int
	TranslationFallbacks int
}

// Result is the aligned output of a translation run.
type Result struct {
	Cues   []Cue
	Report Report
}

// Translator performs segment-preserving translation.
type Translator struct {
	detector   LanguageDetector
	translator TextTranslator
	opts       Options
	logger     *slog.Logger
}

// NewTranslator constructs a Translator. The detector may be nil when every
// cue already carries a language tag.
func NewTranslator(detector LanguageDetector, translator TextTranslator, opts Options, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Translator{
		detector:   detector,
		translator: translator,
		opts:       opts.withDefaults(),
		logger:     logger,
	}
}

type runStats struct {
	detectionCalls       atomic.Int64
	translationCalls     atomic.Int64
	detectionFallbacks   atomic.Int64
	translationFallbacks atomic.Int64
}

// Translate returns cues whose text is in target. Cues already detected as
// target and blank cues keep their source text; every other cue is sent to
// the translation backend. The output always has the same count and the same
// (index, start, end) triples as the input.
func (t *Translator) Translate(ctx context.Context, cues []Cue, target string) (Result, error) {
	code := language.Normalize(target)
	if code == "" {
		return Result{}, services.Wrap(services.ErrValidation, "subtitles", "translate", fmt.Sprintf("unknown target language %q", target), nil)
	}
	if t.translator == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "subtitles", "translate", "no translation backend configured", nil)
	}

	stats := &runStats{}
	detected, newly, err := t.detect(ctx, cues, stats)
	if err != nil {
		return Result{}, err
	}

	selected := make([]int, 0, len(cues))
	for pos, cue := range cues {
		if cue.Blank() {
			continue
		}
		if language.Equal(detected[pos], code) {
			continue
		}
		selected = append(selected, pos)
	}

	translations := make([]string, len(cues))
	if err := t.translateSelected(ctx, cues, selected, code, translations, stats); err != nil {
		return Result{}, err
	}

	out := Clone(cues)
	if out == nil {
		out = []Cue{}
	}
	for pos := range out {
		if lang := detected[pos]; lang != UndeterminedLanguage {
			out[pos].Language = lang
		} else {
			out[pos].Language = ""
		}
	}
	translatedIdx := make([]int, 0, len(selected))
	for _, pos := range selected {
		out[pos].Text = CompactText(translations[pos])
		out[pos].Language = code
		translatedIdx = append(translatedIdx, cues[pos].Index)
	}

	if err := VerifyAlignment(cues, out); err != nil {
		return Result{}, err
	}

	report := Report{
		Target:               code,
		Detected:             detected,
		NewlyDetected:        newly,
		Translated:           translatedIdx,
		DetectionCalls:       int(stats.detectionCalls.Load()),
		TranslationCalls:     int(stats.translationCalls.Load()),
		DetectionFallbacks:   int(stats.detectionFallbacks.Load()),
		TranslationFallbacks: int(stats.translationFallbacks.Load()),
	}
	t.logger.Debug("subtitle translation complete",
		logging.String(logging.FieldEventType, "translation_complete"),
		logging.String(logging.FieldLanguage, code),
		logging.Int("cues", len(cues)),
		logging.Int("translated", len(translatedIdx)),
		logging.Int("detection_calls", report.DetectionCalls),
		logging.Int("translation_calls", report.TranslationCalls),
		logging.Int("detection_fallbacks", report.DetectionFallbacks),
		logging.Int("translation_fallbacks", report.TranslationFallbacks),
	)
	return Result{Cues: out, Report: report}, nil
}

// Detect fills in language tags for cues that lack one and returns the tag
// per position together with the number of cues detected by this call.
func (t *Translator) Detect(ctx context.Context, cues []Cue) ([]string, int, error) {
	return t.detect(ctx, cues, &runStats{})
}

func (t *Translator) detect(ctx context.Context, cues []Cue, stats *runStats) ([]string, int, error) {
	detected := make([]string, len(cues))
	pending := make([]int, 0, len(cues))
	for pos, cue := range cues {
		if cue.Blank() {
			continue
		}
		if tag := storedTag(cue.Language); tag != "" {
			detected[pos] = tag
			continue
		}
		pending = append(pending, pos)
	}
	if len(pending) == 0 {
		return detected, 0, nil
	}
	if t.detector == nil {
		for _, pos := range pending {
			detected[pos] = UndeterminedLanguage
		}
		return detected, 0, nil
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(t.opts.Concurrency)
	for _, batch := range chunk(pending, t.opts.DetectionBatchSize) {
		group.Go(func() error {
			return t.detectBatch(gctx, cues, batch, detected, stats)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, 0, err
	}
	return detected, len(pending), nil
}

func (t *Translator) detectBatch(ctx context.Context, cues []Cue, batch []int, detected []string, stats *runStats) error {
	texts := textsAt(cues, batch)
	stats.detectionCalls.Add(1)
	tags, err := t.detector.DetectLanguages(ctx, texts)
	if err == nil && len(tags) == len(texts) {
		for i, pos := range batch {
			detected[pos] = resolvedTag(tags[i])
		}
		return nil
	}
	if err != nil && !errors.Is(err, services.ErrCardinality) {
		return err
	}

	stats.detectionFallbacks.Add(1)
	t.logger.Debug("detection batch mismatch; falling back to per-cue calls",
		logging.String(logging.FieldEventType, "detection_fallback"),
		logging.Int("batch_size", len(texts)),
		logging.Int("tags_returned", len(tags)),
		logging.Error(err),
	)
	for _, pos := range batch {
		stats.detectionCalls.Add(1)
		single, err := t.detector.DetectLanguages(ctx, []string{cues[pos].Text})
		switch {
		case err != nil && retryable(ctx, err):
			return err
		case err != nil || len(single) != 1:
			detected[pos] = UndeterminedLanguage
		default:
			detected[pos] = resolvedTag(single[0])
		}
	}
	return nil
}

func (t *Translator) translateSelected(ctx context.Context, cues []Cue, selected []int, target string, translations []string, stats *runStats) error {
	if len(selected) == 0 {
		return nil
	}
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(t.opts.Concurrency)
	for _, batch := range chunk(selected, t.opts.TranslationBatchSize) {
		group.Go(func() error {
			return t.translateBatch(gctx, cues, batch, target, translations, stats)
		})
	}
	return group.Wait()
}

func (t *Translator) translateBatch(ctx context.Context, cues []Cue, batch []int, target string, translations []string, stats *runStats) error {
	texts := textsAt(cues, batch)
	stats.translationCalls.Add(1)
	out, err := t.translator.Translate(ctx, texts, target)
	if err == nil && len(out) == len(texts) {
		for i, pos := range batch {
			translations[pos] = out[i]
		}
		return nil
	}
	if err != nil && !errors.Is(err, services.ErrCardinality) {
		return err
	}

	stats.translationFallbacks.Add(1)
	t.logger.Debug("translation batch mismatch; falling back to per-cue calls",
		logging.String(logging.FieldEventType, "translation_fallback"),
		logging.String(logging.FieldLanguage, target),
		logging.Int("batch_size", len(texts)),
		logging.Int("texts_returned", len(out)),
		logging.Error(err),
	)
	for _, pos := range batch {
		stats.translationCalls.Add(1)
		single, err := t.translator.Translate(ctx, []string{cues[pos].Text}, target)
		if err != nil && !errors.Is(err, services.ErrCardinality) {
			return err
		}
		if err != nil || len(single) != 1 {
			return services.Wrap(
				services.ErrCardinality,
				"subtitles",
				"translate",
				fmt.Sprintf("cue %d: backend returned %d texts for 1 input", cues[pos].Index, len(single)),
				err,
			)
		}
		translations[pos] = single[0]
	}
	return nil
}

// retryable reports whether a per-cue failure should abort the run so the
// stage is retried rather than recorded as undetected.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return !services.Classify(err).Terminal
}

func storedTag(raw string) string {
	if raw == "" {
		return ""
	}
	return resolvedTag(raw)
}

func resolvedTag(raw string) string {
	if code := language.Normalize(raw); code != "" {
		return code
	}
	return UndeterminedLanguage
}

func textsAt(cues []Cue, positions []int) []string {
	texts := make([]string, len(positions))
	for i, pos := range positions {
		texts[i] = cues[pos].Text
	}
	return texts
}

func chunk(positions []int, size int) [][]int {
	if size <= 0 {
		size = defaultBatchSize
	}
	batches := make([][]int, 0, (len(positions)+size-1)/size)
	for start := 0; start < len(positions); start += size {
		end := min(start+size, len(positions))
		batches = append(batches, positions[start:end])
	}
	return batches
}
