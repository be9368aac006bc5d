package subtitles

import (
	"context"
	"strings"
)

// Pair is one source line and its translation, sent to an evaluator.
type Pair struct {
	Source      string `json:"source"`
	Translation string `json:"translation"`
}

// Assessment is an evaluator's verdict over a sample of pairs.
type Assessment struct {
	Score int    `json:"score"`
	Notes string `json:"notes,omitempty"`
}

// Evaluator scores translation quality from 0 to 100.
type Evaluator interface {
	Evaluate(ctx context.Context, pairs []Pair, target string) (Assessment, error)
}

// Coverage summarizes how a translated track relates to its source.
type Coverage struct {
	Cues            int     `json:"cues"`
	NonBlank        int     `json:"non_blank"`
	Translated      int     `json:"translated"`
	Blank           int     `json:"blank"`
	Identical       int     `json:"identical"`
	TranslatedRatio float64 `json:"translated_ratio"`
	BlankRatio      float64 `json:"blank_ratio"`
	IdenticalRatio  float64 `json:"identical_ratio"`
}

// MeasureCoverage compares an aligned translation with its source. A cue
// counts as translated when its text differs from the source; identical
// cues are normal for lines already in the target language.
func MeasureCoverage(source, translated []Cue) Coverage {
	cov := Coverage{Cues: len(source)}
	for i := range source {
		if source[i].Blank() {
			continue
		}
		cov.NonBlank++
		if i >= len(translated) || translated[i].Blank() {
			cov.Blank++
			continue
		}
		if strings.TrimSpace(source[i].Text) == strings.TrimSpace(translated[i].Text) {
			cov.Identical++
			continue
		}
		cov.Translated++
	}
	if cov.NonBlank > 0 {
		total := float64(cov.NonBlank)
		cov.TranslatedRatio = float64(cov.Translated) / total
		cov.BlankRatio = float64(cov.Blank) / total
		cov.IdenticalRatio = float64(cov.Identical) / total
	}
	return cov
}

// SamplePairs picks up to n changed, non-blank pairs spread evenly across the
// track.
func SamplePairs(source, translated []Cue, n int) []Pair {
	candidates := make([]Pair, 0, len(source))
	for i := range source {
		if i >= len(translated) || source[i].Blank() || translated[i].Blank() {
			continue
		}
		if strings.TrimSpace(source[i].Text) == strings.TrimSpace(translated[i].Text) {
			continue
		}
		candidates = append(candidates, Pair{Source: source[i].Text, Translation: translated[i].Text})
	}
	if n <= 0 || len(candidates) <= n {
		return candidates
	}
	out := make([]Pair, 0, n)
	step := float64(len(candidates)) / float64(n)
	for i := range n {
		out = append(out, candidates[int(float64(i)*step)])
	}
	return out
}
