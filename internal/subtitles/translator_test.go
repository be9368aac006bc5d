package subtitles_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelscribe/internal/services"
	"reelscribe/internal/subtitles"
)

type fakeDetector struct {
	mu    sync.Mutex
	calls [][]string
	// tagFor maps a text to its language; unknown texts are "en".
	tagFor func(text string) string
	// short drops the last tag of any batch larger than one.
	short bool
	err   error
}

func (f *fakeDetector) DetectLanguages(_ context.Context, texts []string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	tags := make([]string, 0, len(texts))
	for _, text := range texts {
		tag := "en"
		if f.tagFor != nil {
			tag = f.tagFor(text)
		}
		tags = append(tags, tag)
	}
	if f.short && len(tags) > 1 {
		tags = tags[:len(tags)-1]
	}
	return tags, nil
}

type fakeTranslator struct {
	mu    sync.Mutex
	calls [][]string
	// extra appends a spurious output to batches larger than one.
	extra bool
	// failSingle rejects single-text requests with a cardinality error.
	failSingle bool
	err        error
	inFlight   atomic.Int32
	maxSeen    atomic.Int32
	delay      time.Duration
}

func (f *fakeTranslator) Translate(_ context.Context, texts []string, target string) ([]string, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if current <= seen || f.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.failSingle && len(texts) == 1 {
		return nil, services.Wrap(services.ErrCardinality, "fake", "translate", "unparseable", nil)
	}
	out := make([]string, 0, len(texts)+1)
	for _, text := range texts {
		out = append(out, fmt.Sprintf("[%s] %s", target, text))
	}
	if f.extra && len(texts) > 1 {
		out = append(out, "spurious")
	}
	return out, nil
}

func makeCues(texts ...string) []subtitles.Cue {
	cues := make([]subtitles.Cue, len(texts))
	for i, text := range texts {
		cues[i] = subtitles.Cue{
			Index: i + 1,
			Start: time.Duration(i) * 2 * time.Second,
			End:   time.Duration(i)*2*time.Second + 1500*time.Millisecond,
			Text:  text,
		}
	}
	return cues
}

func germanTagger(text string) string {
	if strings.HasPrefix(text, "de:") {
		return "de"
	}
	return "en"
}

func assertAligned(t *testing.T, source, output []subtitles.Cue) {
	t.Helper()
	if len(source) != len(output) {
		t.Fatalf("expected %d cues, got %d", len(source), len(output))
	}
	for i := range source {
		if !source[i].SameTiming(output[i]) {
			t.Fatalf("cue %d timing changed: %+v vs %+v", i, source[i], output[i])
		}
	}
}

func TestTranslateTwelveCueScenario(t *testing.T) {
	texts := make([]string, 12)
	for i := range texts {
		texts[i] = fmt.Sprintf("line %d", i+1)
	}
	texts[3] = "de: guten Morgen"
	texts[8] = "de: danke schön"
	cues := makeCues(texts...)

	detector := &fakeDetector{tagFor: germanTagger}
	translator := &fakeTranslator{}
	tr := subtitles.NewTranslator(detector, translator, subtitles.Options{}, nil)

	result, err := tr.Translate(context.Background(), cues, "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	assertAligned(t, cues, result.Cues)

	if len(detector.calls) != 1 || len(detector.calls[0]) != 12 {
		t.Fatalf("expected one detection call with 12 texts, got %v", detector.calls)
	}
	if len(translator.calls) != 1 {
		t.Fatalf("expected one translation call, got %d", len(translator.calls))
	}
	if got := translator.calls[0]; len(got) != 2 || got[0] != texts[3] || got[1] != texts[8] {
		t.Fatalf("unexpected translation request %v", got)
	}
	if result.Cues[3].Text != "[en] de: guten Morgen" {
		t.Fatalf("cue 4 not translated: %q", result.Cues[3].Text)
	}
	if result.Cues[0].Text != "line 1" || result.Cues[0].Language != "en" {
		t.Fatalf("cue 1 should pass through untouched: %+v", result.Cues[0])
	}
	if want := []int{4, 9}; fmt.Sprint(result.Report.Translated) != fmt.Sprint(want) {
		t.Fatalf("translated indices = %v, want %v", result.Report.Translated, want)
	}
	if result.Report.NewlyDetected != 12 {
		t.Fatalf("expected 12 newly detected, got %d", result.Report.NewlyDetected)
	}
}

func TestTranslateSkipsBackendWhenAllCuesMatch(t *testing.T) {
	cues := makeCues("one", "two", "three")
	translator := &fakeTranslator{}
	tr := subtitles.NewTranslator(&fakeDetector{}, translator, subtitles.Options{}, nil)

	result, err := tr.Translate(context.Background(), cues, "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(translator.calls) != 0 {
		t.Fatalf("expected zero translation calls, got %d", len(translator.calls))
	}
	for i := range cues {
		if result.Cues[i].Text != cues[i].Text {
			t.Fatalf("cue %d text changed: %q", i, result.Cues[i].Text)
		}
	}
}

func TestTranslateReusesStoredDetections(t *testing.T) {
	cues := makeCues("hallo", "hello", "")
	cues[0].Language = "de"
	cues[1].Language = "en"
	detector := &fakeDetector{}
	translator := &fakeTranslator{}
	tr := subtitles.NewTranslator(detector, translator, subtitles.Options{}, nil)

	result, err := tr.Translate(context.Background(), cues, "de")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(detector.calls) != 0 {
		t.Fatalf("expected no detection calls, got %d", len(detector.calls))
	}
	if len(translator.calls) != 1 || len(translator.calls[0]) != 1 || translator.calls[0][0] != "hello" {
		t.Fatalf("unexpected translation calls %v", translator.calls)
	}
	if result.Cues[2].Text != "" {
		t.Fatalf("blank cue should pass through, got %q", result.Cues[2].Text)
	}
}

func TestTranslateUndeterminedTagsAreTranslated(t *testing.T) {
	cues := makeCues("mixed words", "clear")
	detector := &fakeDetector{tagFor: func(text string) string {
		if text == "mixed words" {
			return "mul"
		}
		return "en"
	}}
	translator := &fakeTranslator{}
	tr := subtitles.NewTranslator(detector, translator, subtitles.Options{}, nil)

	result, err := tr.Translate(context.Background(), cues, "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(translator.calls) != 1 || translator.calls[0][0] != "mixed words" {
		t.Fatalf("expected undetermined cue translated, got %v", translator.calls)
	}
	if result.Report.Detected[0] != subtitles.UndeterminedLanguage {
		t.Fatalf("expected und tag, got %q", result.Report.Detected[0])
	}
}

func TestTranslateFallsBackOnDetectionMismatch(t *testing.T) {
	cues := makeCues("a", "de: b", "c", "d")
	detector := &fakeDetector{tagFor: germanTagger, short: true}
	translator := &fakeTranslator{}
	tr := subtitles.NewTranslator(detector, translator, subtitles.Options{DetectionBatchSize: 2}, nil)

	result, err := tr.Translate(context.Background(), cues, "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	// Two batches, each falling back to two single calls.
	if len(detector.calls) != 6 {
		t.Fatalf("expected 6 detection calls, got %d", len(detector.calls))
	}
	if result.Report.DetectionFallbacks != 2 {
		t.Fatalf("expected 2 detection fallbacks, got %d", result.Report.DetectionFallbacks)
	}
	if len(translator.calls) != 1 || translator.calls[0][0] != "de: b" {
		t.Fatalf("unexpected translation calls %v", translator.calls)
	}
	assertAligned(t, cues, result.Cues)
}

func TestTranslateFallsBackOnTranslationMismatch(t *testing.T) {
	cues := makeCues("de: a", "de: b", "de: c")
	translator := &fakeTranslator{extra: true}
	tr := subtitles.NewTranslator(&fakeDetector{tagFor: germanTagger}, translator, subtitles.Options{}, nil)

	result, err := tr.Translate(context.Background(), cues, "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(translator.calls) != 4 {
		t.Fatalf("expected 1 batch + 3 single calls, got %d", len(translator.calls))
	}
	if result.Report.TranslationFallbacks != 1 {
		t.Fatalf("expected 1 translation fallback, got %d", result.Report.TranslationFallbacks)
	}
	for i, cue := range result.Cues {
		if cue.Text != "[en] "+cues[i].Text {
			t.Fatalf("cue %d = %q", i, cue.Text)
		}
	}
	assertAligned(t, cues, result.Cues)
}

func TestTranslatePerCueFailureIsCardinalityError(t *testing.T) {
	cues := makeCues("de: a", "de: b")
	translator := &fakeTranslator{extra: true, failSingle: true}
	tr := subtitles.NewTranslator(&fakeDetector{tagFor: germanTagger}, translator, subtitles.Options{}, nil)

	_, err := tr.Translate(context.Background(), cues, "en")
	if !errors.Is(err, services.ErrCardinality) {
		t.Fatalf("expected cardinality error, got %v", err)
	}
	if outcome := services.Classify(err); !outcome.Terminal || outcome.Kind != services.KindCardinality {
		t.Fatalf("unexpected classification %+v", outcome)
	}
}

func TestTranslatePropagatesTransientErrors(t *testing.T) {
	cues := makeCues("de: a")
	transient := services.Wrap(services.ErrTransient, "fake", "translate", "rate limited", nil)

	tr := subtitles.NewTranslator(&fakeDetector{err: transient}, &fakeTranslator{}, subtitles.Options{}, nil)
	if _, err := tr.Translate(context.Background(), cues, "en"); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient detection error, got %v", err)
	}

	tr = subtitles.NewTranslator(&fakeDetector{tagFor: germanTagger}, &fakeTranslator{err: transient}, subtitles.Options{}, nil)
	if _, err := tr.Translate(context.Background(), cues, "en"); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient translation error, got %v", err)
	}
}

func TestTranslatePreservesAlignmentForAllSizes(t *testing.T) {
	for _, n := range []int{0, 1, 2, 49, 50, 51, 137} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			texts := make([]string, n)
			for i := range texts {
				if i%3 == 0 {
					texts[i] = fmt.Sprintf("de: %d", i)
				} else if i%7 == 0 {
					texts[i] = "  "
				} else {
					texts[i] = fmt.Sprintf("text %d", i)
				}
			}
			cues := makeCues(texts...)
			translator := &fakeTranslator{extra: n%2 == 1}
			tr := subtitles.NewTranslator(&fakeDetector{tagFor: germanTagger}, translator, subtitles.Options{Concurrency: 4}, nil)

			result, err := tr.Translate(context.Background(), cues, "en")
			if err != nil {
				t.Fatalf("Translate: %v", err)
			}
			assertAligned(t, cues, result.Cues)
			if n == 0 && len(translator.calls) != 0 {
				t.Fatalf("expected no calls for empty input")
			}
		})
	}
}

func TestTranslateBoundsBatchConcurrency(t *testing.T) {
	texts := make([]string, 40)
	for i := range texts {
		texts[i] = fmt.Sprintf("de: %d", i)
	}
	cues := makeCues(texts...)
	translator := &fakeTranslator{delay: 5 * time.Millisecond}
	tr := subtitles.NewTranslator(&fakeDetector{tagFor: germanTagger}, translator, subtitles.Options{
		TranslationBatchSize: 4,
		Concurrency:          2,
	}, nil)

	result, err := tr.Translate(context.Background(), cues, "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got := translator.maxSeen.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent batches, saw %d", got)
	}
	if len(translator.calls) != 10 {
		t.Fatalf("expected 10 batches, got %d", len(translator.calls))
	}
	for i, cue := range result.Cues {
		if cue.Text != "[en] "+texts[i] {
			t.Fatalf("cue %d out of order: %q", i, cue.Text)
		}
	}
}

func TestTranslateRejectsUnknownTarget(t *testing.T) {
	tr := subtitles.NewTranslator(&fakeDetector{}, &fakeTranslator{}, subtitles.Options{}, nil)
	_, err := tr.Translate(context.Background(), makeCues("x"), "???")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type paragraphTranslator struct{}

func (paragraphTranslator) Translate(_ context.Context, texts []string, _ string) ([]string, error) {
	out := make([]string, len(texts))
	for i := range texts {
		out[i] = "Erster Absatz.\n\n  \nZweiter Absatz.\n"
	}
	return out, nil
}

func TestTranslateOutputSurvivesSRTRoundTrip(t *testing.T) {
	cues := makeCues("First paragraph. Second paragraph.", "Another line.")
	tr := subtitles.NewTranslator(&fakeDetector{}, paragraphTranslator{}, subtitles.Options{}, nil)

	result, err := tr.Translate(context.Background(), cues, "de")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got := result.Cues[0].Text; got != "Erster Absatz.\nZweiter Absatz." {
		t.Fatalf("expected blank lines collapsed, got %q", got)
	}

	parsed, err := subtitles.ParseSRT(subtitles.FormatSRT(result.Cues))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	assertAligned(t, cues, parsed)
	for i := range parsed {
		if parsed[i].Text != result.Cues[i].Text {
			t.Fatalf("cue %d text changed on disk: %q vs %q", i, parsed[i].Text, result.Cues[i].Text)
		}
	}
}

// flakyDetector answers batches with one tag too few and fails single-cue
// requests for the texts listed in broken.
type flakyDetector struct {
	broken map[string]error
	garble map[string]bool
}

func (f *flakyDetector) DetectLanguages(_ context.Context, texts []string) ([]string, error) {
	if len(texts) > 1 {
		tags := make([]string, len(texts)-1)
		for i := range tags {
			tags[i] = "en"
		}
		return tags, nil
	}
	if err := f.broken[texts[0]]; err != nil {
		return nil, err
	}
	if f.garble[texts[0]] {
		return []string{"en", "de"}, nil
	}
	return []string{"en"}, nil
}

func TestTranslateUndetectableCuesAreTranslated(t *testing.T) {
	cues := makeCues("lost", "hello", "garbled", "world")
	detector := &flakyDetector{
		broken: map[string]error{"lost": services.Wrap(services.ErrPermanent, "fake", "detect", "rejected", nil)},
		garble: map[string]bool{"garbled": true},
	}
	translator := &fakeTranslator{}
	tr := subtitles.NewTranslator(detector, translator, subtitles.Options{}, nil)

	result, err := tr.Translate(context.Background(), cues, "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(translator.calls) != 1 || strings.Join(translator.calls[0], "|") != "lost|garbled" {
		t.Fatalf("expected only undetected cues translated, got %v", translator.calls)
	}
	for _, pos := range []int{0, 2} {
		if result.Report.Detected[pos] != subtitles.UndeterminedLanguage {
			t.Fatalf("cue %d: expected und tag, got %q", pos, result.Report.Detected[pos])
		}
		if result.Cues[pos].Text != "[en] "+cues[pos].Text {
			t.Fatalf("cue %d not translated: %q", pos, result.Cues[pos].Text)
		}
	}
	if result.Report.DetectionFallbacks != 1 {
		t.Fatalf("expected one detection fallback, got %d", result.Report.DetectionFallbacks)
	}
	assertAligned(t, cues, result.Cues)
}
