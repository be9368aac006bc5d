package evaluation_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reelscribe/internal/config"
	"reelscribe/internal/evaluation"
	"reelscribe/internal/queue"
	"reelscribe/internal/services"
	"reelscribe/internal/subtitles"
	"reelscribe/internal/testsupport"
)

type fakeEvaluator struct {
	score int
	err   error
	pairs []subtitles.Pair
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, pairs []subtitles.Pair, target string) (subtitles.Assessment, error) {
	f.pairs = pairs
	if f.err != nil {
		return subtitles.Assessment{}, f.err
	}
	return subtitles.Assessment{Score: f.score, Notes: "fine"}, nil
}

var sourceCues = []subtitles.Cue{
	{Index: 1, Start: 0, End: time.Second, Text: "Guten Morgen"},
	{Index: 2, Start: time.Second, End: 2 * time.Second, Text: "Hello there"},
	{Index: 3, Start: 2 * time.Second, End: 3 * time.Second, Text: ""},
	{Index: 4, Start: 3 * time.Second, End: 4 * time.Second, Text: "Wie geht's?"},
}

func setup(t *testing.T, translated []subtitles.Cue) (*config.Config, *queue.Store, *queue.MediaFile) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithTargetLanguages("en"))
	store := testsupport.MustOpenStore(t, cfg)
	file := testsupport.RegisterFile(t, store, cfg, "talk.mp3")
	ctx := context.Background()
	if _, err := store.SaveCues(ctx, file.ID, sourceCues); err != nil {
		t.Fatalf("SaveCues: %v", err)
	}
	if translated != nil {
		if err := store.SaveTranslations(ctx, file.ID, "en", translated); err != nil {
			t.Fatalf("SaveTranslations: %v", err)
		}
	}
	return cfg, store, file
}

func english() []subtitles.Cue {
	out := subtitles.Clone(sourceCues)
	out[0].Text = "Good morning"
	out[3].Text = "How are you?"
	return out
}

func readReport(t *testing.T, path string) evaluation.Report {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report evaluation.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	return report
}

func TestExecuteWritesCoverageReport(t *testing.T) {
	cfg, store, file := setup(t, english())
	handler := evaluation.NewHandler(cfg, store, nil, nil)
	claim := queue.WorkClaim{FileID: file.ID, Stage: queue.EvaluationStage("en")}

	path, err := handler.Execute(context.Background(), claim)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if path != filepath.Join(cfg.Paths.OutputDir, file.ID, "en.eval.json") {
		t.Fatalf("unexpected path %q", path)
	}
	report := readReport(t, path)
	if report.Coverage.NonBlank != 3 || report.Coverage.Translated != 2 || report.Coverage.Identical != 1 {
		t.Fatalf("unexpected coverage %+v", report.Coverage)
	}
	if report.Score != nil {
		t.Fatalf("score should be absent without evaluator, got %d", *report.Score)
	}
}

func TestLowScoreIsNotAFailure(t *testing.T) {
	cfg, store, file := setup(t, english())
	cfg.Evaluation.MinScore = 80
	evaluator := &fakeEvaluator{score: 40}
	handler := evaluation.NewHandler(cfg, store, evaluator, nil)
	claim := queue.WorkClaim{FileID: file.ID, Stage: queue.EvaluationStage("en")}

	path, err := handler.Execute(context.Background(), claim)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	report := readReport(t, path)
	if report.Score == nil || *report.Score != 40 || !report.BelowThreshold {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(evaluator.pairs) != 2 || report.Sampled != 2 {
		t.Fatalf("expected 2 sampled pairs, got %d", len(evaluator.pairs))
	}
}

func TestEvaluatorErrorsPropagate(t *testing.T) {
	cfg, store, file := setup(t, english())
	evaluator := &fakeEvaluator{err: services.Wrap(services.ErrTransient, "llm", "evaluate", "", nil)}
	handler := evaluation.NewHandler(cfg, store, evaluator, nil)
	claim := queue.WorkClaim{FileID: file.ID, Stage: queue.EvaluationStage("en")}

	if _, err := handler.Execute(context.Background(), claim); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestMissingTranslationIsNotFound(t *testing.T) {
	cfg, store, file := setup(t, nil)
	handler := evaluation.NewHandler(cfg, store, nil, nil)
	claim := queue.WorkClaim{FileID: file.ID, Stage: queue.EvaluationStage("en")}

	if _, err := handler.Execute(context.Background(), claim); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHealthCheckRequiresEvaluatorWhenEnabled(t *testing.T) {
	cfg, store, _ := setup(t, nil)
	cfg.Evaluation.UseLLM = true
	if health := evaluation.NewHandler(cfg, store, nil, nil).HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy without evaluator")
	}
	if health := evaluation.NewHandler(cfg, store, &fakeEvaluator{}, nil).HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy, got %+v", health)
	}
}
