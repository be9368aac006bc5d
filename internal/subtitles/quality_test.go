package subtitles

import (
	"testing"
	"time"
)

func track(texts ...string) []Cue {
	cues := make([]Cue, len(texts))
	for i, text := range texts {
		cues[i] = Cue{Index: i + 1, Start: time.Duration(i) * time.Second, End: time.Duration(i+1) * time.Second, Text: text}
	}
	return cues
}

func TestMeasureCoverage(t *testing.T) {
	source := track("Hallo", "Hello", "", "Tschüss", "Danke")
	translated := track("Hi", "Hello", "", "Bye", "")

	cov := MeasureCoverage(source, translated)
	if cov.Cues != 5 || cov.NonBlank != 4 {
		t.Fatalf("unexpected counts %+v", cov)
	}
	if cov.Translated != 2 || cov.Identical != 1 || cov.Blank != 1 {
		t.Fatalf("unexpected classification %+v", cov)
	}
	if cov.TranslatedRatio != 0.5 || cov.BlankRatio != 0.25 || cov.IdenticalRatio != 0.25 {
		t.Fatalf("unexpected ratios %+v", cov)
	}
}

func TestMeasureCoverageEmpty(t *testing.T) {
	cov := MeasureCoverage(nil, nil)
	if cov.NonBlank != 0 || cov.TranslatedRatio != 0 {
		t.Fatalf("unexpected coverage %+v", cov)
	}
}

func TestSamplePairsSkipsUnchangedAndSpreads(t *testing.T) {
	source := track("a", "b", "c", "d", "e", "f", "same", "")
	translated := track("A", "B", "C", "D", "E", "F", "same", "")

	all := SamplePairs(source, translated, 0)
	if len(all) != 6 {
		t.Fatalf("expected 6 candidates, got %d", len(all))
	}

	sample := SamplePairs(source, translated, 3)
	if len(sample) != 3 {
		t.Fatalf("expected 3 pairs, got %d", len(sample))
	}
	want := []string{"a", "c", "e"}
	for i, pair := range sample {
		if pair.Source != want[i] {
			t.Fatalf("sample[%d] = %q, want %q", i, pair.Source, want[i])
		}
	}
}
