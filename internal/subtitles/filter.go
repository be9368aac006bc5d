package subtitles

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Removal records a single cue dropped by hallucination filtering.
type Removal struct {
	Cue    Cue
	Reason string // "isolated_hallucination", "repeated_hallucination", "music_symbols", "trailing_hallucination", "trailing_music"
}

// FilterResult holds the surviving cues and everything removed.
type FilterResult struct {
	Cues     []Cue
	Removals []Removal
}

const (
	isolationGap   = 30 * time.Second
	repeatGap      = 10 * time.Second
	trailingWindow = 5 * time.Minute
)

// Phrases WhisperX emits over silence, in normalized form.
var hallucinationPhrases = map[string]bool{
	"thank you":              true,
	"thank you for watching": true,
	"thanks for watching":    true,
	"please subscribe":       true,
	"like and subscribe":     true,
	"well be right back":     true,
	"bye":                    true,
	"bye bye":                true,
	"see you next time":      true,
	"see you later":          true,
	"vielen dank":            true,
}

var textNormalizeRe = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// FilterHallucinations removes transcription artifacts before cues are
// persisted: known phrases that appear in isolation, runs of three or more
// identical widely spaced cues, isolated music-only cues, and phrase or music
// cues in the final minutes of long recordings. Survivors are renumbered.
func FilterHallucinations(cues []Cue, mediaDuration time.Duration) FilterResult {
	var removals []Removal

	remaining, isolated := removeIsolatedHallucinations(cues)
	removals = append(removals, isolated...)

	remaining, trailing := sweepTrailingHallucinations(remaining, mediaDuration)
	removals = append(removals, trailing...)

	for i := range remaining {
		remaining[i].Index = i + 1
	}
	return FilterResult{Cues: remaining, Removals: removals}
}

func removeIsolatedHallucinations(cues []Cue) ([]Cue, []Removal) {
	if len(cues) == 0 {
		return cues, nil
	}

	remove := make([]bool, len(cues))
	var removals []Removal

	markRepeatedHallucinations(cues, remove, &removals)

	for i := range cues {
		if remove[i] {
			continue
		}
		isolated := gapToPrevious(cues, i) >= isolationGap && gapToNext(cues, i) >= isolationGap
		if !isolated {
			continue
		}
		if hallucinationPhrases[normalizeText(cues[i].Text)] {
			remove[i] = true
			removals = append(removals, Removal{Cue: cues[i], Reason: "isolated_hallucination"})
			continue
		}
		if isMusicCue(cues[i].Text) {
			remove[i] = true
			removals = append(removals, Removal{Cue: cues[i], Reason: "music_symbols"})
		}
	}

	kept := make([]Cue, 0, len(cues))
	for i, cue := range cues {
		if !remove[i] {
			kept = append(kept, cue)
		}
	}
	return kept, removals
}

func markRepeatedHallucinations(cues []Cue, remove []bool, removals *[]Removal) {
	i := 0
	for i < len(cues) {
		norm := normalizeText(cues[i].Text)
		if norm == "" {
			i++
			continue
		}
		runEnd := i + 1
		for runEnd < len(cues) {
			if normalizeText(cues[runEnd].Text) != norm {
				break
			}
			if cues[runEnd].Start-cues[runEnd-1].End <= repeatGap {
				break
			}
			runEnd++
		}
		if runEnd-i >= 3 {
			for j := i; j < runEnd; j++ {
				remove[j] = true
				*removals = append(*removals, Removal{Cue: cues[j], Reason: "repeated_hallucination"})
			}
		}
		i = runEnd
	}
}

func gapToPrevious(cues []Cue, i int) time.Duration {
	if i == 0 {
		return cues[i].Start
	}
	return cues[i].Start - cues[i-1].End
}

func gapToNext(cues []Cue, i int) time.Duration {
	if i >= len(cues)-1 {
		return time.Duration(1<<62 - 1)
	}
	return cues[i+1].Start - cues[i].End
}

func isMusicCue(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, r := range text {
		switch {
		case r == '¶', r == '♪', r == '♫', r == '*':
		case unicode.IsSpace(r):
		default:
			return false
		}
	}
	return true
}

// The trailing sweep only applies to recordings long enough to have a
// credits or outro section.
func sweepTrailingHallucinations(cues []Cue, mediaDuration time.Duration) ([]Cue, []Removal) {
	if mediaDuration < 2*trailingWindow || len(cues) == 0 {
		return cues, nil
	}
	threshold := mediaDuration - trailingWindow

	var removals []Removal
	kept := make([]Cue, 0, len(cues))
	for _, cue := range cues {
		if cue.Start < threshold {
			kept = append(kept, cue)
			continue
		}
		if hallucinationPhrases[normalizeText(cue.Text)] {
			removals = append(removals, Removal{Cue: cue, Reason: "trailing_hallucination"})
			continue
		}
		if isMusicCue(cue.Text) {
			removals = append(removals, Removal{Cue: cue, Reason: "trailing_music"})
			continue
		}
		kept = append(kept, cue)
	}
	return kept, removals
}

func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "\n", " ")
	s = textNormalizeRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}
