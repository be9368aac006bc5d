package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reelscribe/internal/queue"
	"reelscribe/internal/services"
	"reelscribe/internal/subtitles"
)

// SourceSRTName is the artifact name of the transcribed track.
const SourceSRTName = "source.srt"

// ArtifactDir returns the per-file output directory.
func ArtifactDir(outputDir, fileID string) string {
	return filepath.Join(outputDir, fileID)
}

// TranslationSRTName returns the artifact name of one translated track.
func TranslationSRTName(lang string) string {
	return lang + ".srt"
}

// EvaluationReportName returns the artifact name of one evaluation report.
func EvaluationReportName(lang string) string {
	return lang + ".eval.json"
}

// WriteTrack writes cues as SRT under the file's artifact directory and
// returns the written path.
func WriteTrack(outputDir, fileID, name string, cues []subtitles.Cue) (string, error) {
	dir := ArtifactDir(outputDir, fileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := subtitles.WriteSRTFile(path, cues); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

// RequireLanguage returns the language tag of a per-language claim.
// On failure it returns a services.ErrValidation suitable for stage Execute methods.
func RequireLanguage(claim queue.WorkClaim, name string) (string, error) {
	lang := strings.TrimSpace(claim.Stage.Language())
	if lang == "" {
		return "", services.Wrap(
			services.ErrValidation, name, "resolve language",
			fmt.Sprintf("stage %q carries no target language", claim.Stage), nil)
	}
	return lang, nil
}

// RequireCues fails with services.ErrNotFound when transcription left no cues.
func RequireCues(cues []subtitles.Cue, name string) error {
	if len(cues) == 0 {
		return services.Wrap(
			services.ErrNotFound, name, "load cues",
			"No transcribed cues stored; retry transcription", nil)
	}
	return nil
}

// TimeoutDetector bounds every detection call with its own deadline.
type TimeoutDetector struct {
	Detector subtitles.LanguageDetector
	Timeout  time.Duration
}

// DetectLanguages implements subtitles.LanguageDetector.
func (d TimeoutDetector) DetectLanguages(ctx context.Context, texts []string) ([]string, error) {
	ctx, cancel := withTimeout(ctx, d.Timeout)
	defer cancel()
	return d.Detector.DetectLanguages(ctx, texts)
}

// TimeoutTranslator bounds every translation call with its own deadline.
type TimeoutTranslator struct {
	Translator subtitles.TextTranslator
	Timeout    time.Duration
}

// Translate implements subtitles.TextTranslator.
func (t TimeoutTranslator) Translate(ctx context.Context, texts []string, target string) ([]string, error) {
	ctx, cancel := withTimeout(ctx, t.Timeout)
	defer cancel()
	return t.Translator.Translate(ctx, texts, target)
}

// TimeoutEvaluator bounds every evaluation call with its own deadline.
type TimeoutEvaluator struct {
	Evaluator subtitles.Evaluator
	Timeout   time.Duration
}

// Evaluate implements subtitles.Evaluator.
func (e TimeoutEvaluator) Evaluate(ctx context.Context, pairs []subtitles.Pair, target string) (subtitles.Assessment, error) {
	ctx, cancel := withTimeout(ctx, e.Timeout)
	defer cancel()
	return e.Evaluator.Evaluate(ctx, pairs, target)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
