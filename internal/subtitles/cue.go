package subtitles

import (
	"fmt"
	"strings"
	"time"

	"reelscribe/internal/services"
)

// Cue is one timed subtitle segment. Index, Start and End form the cue's
// identity and never change once transcription has produced them.
type Cue struct {
	Index    int
	Start    time.Duration
	End      time.Duration
	Text     string
	Language string
}

// Blank reports whether the cue carries no visible text.
func (c Cue) Blank() bool {
	return strings.TrimSpace(c.Text) == ""
}

// SameTiming reports whether two cues share index and timings.
func (c Cue) SameTiming(other Cue) bool {
	return c.Index == other.Index && c.Start == other.Start && c.End == other.End
}

// Clone returns a copy of the slice that can be mutated independently.
func Clone(cues []Cue) []Cue {
	if cues == nil {
		return nil
	}
	out := make([]Cue, len(cues))
	copy(out, cues)
	return out
}

// Normalize repairs raw transcription output before it is persisted:
// timings are truncated to milliseconds, indices are renumbered from 1, every
// cue ends at or after its start, and no cue starts before its predecessor
// ends. It runs once; later stages treat the result as immutable.
func Normalize(cues []Cue) []Cue {
	out := make([]Cue, 0, len(cues))
	var prevEnd time.Duration
	for _, cue := range cues {
		cue.Start = cue.Start.Truncate(time.Millisecond)
		cue.End = cue.End.Truncate(time.Millisecond)
		if cue.Start < 0 {
			cue.Start = 0
		}
		if len(out) > 0 && cue.Start < prevEnd {
			cue.Start = prevEnd
		}
		if cue.End < cue.Start {
			cue.End = cue.Start
		}
		cue.Text = strings.TrimSpace(strings.ReplaceAll(cue.Text, "\r\n", "\n"))
		cue.Index = len(out) + 1
		out = append(out, cue)
		prevEnd = cue.End
	}
	return out
}

// VerifyAlignment checks that output has the same cue count as source and
// that every (index, start, end) triple matches. Any deviation is a permanent
// error: retrying the same input cannot repair it.
func VerifyAlignment(source, output []Cue) error {
	if len(source) != len(output) {
		return services.Wrap(
			services.ErrPermanent,
			"subtitles",
			"verify alignment",
			fmt.Sprintf("cue count changed from %d to %d", len(source), len(output)),
			nil,
		)
	}
	for i := range source {
		if !source[i].SameTiming(output[i]) {
			return services.Wrap(
				services.ErrPermanent,
				"subtitles",
				"verify alignment",
				fmt.Sprintf(
					"cue %d drifted: source #%d %s --> %s, output #%d %s --> %s",
					i,
					source[i].Index, formatTimestamp(source[i].Start), formatTimestamp(source[i].End),
					output[i].Index, formatTimestamp(output[i].Start), formatTimestamp(output[i].End),
				),
				nil,
			)
		}
	}
	return nil
}
