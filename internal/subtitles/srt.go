package subtitles

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"reelscribe/internal/fileutil"
)

// ParseSRT decodes SRT content into cues. Cue numbers in the input are
// ignored; cues are indexed from 1 in file order. Blocks without a timing
// line are rejected.
func ParseSRT(data []byte) ([]Cue, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}

	blocks := strings.Split(content, "\n\n")
	cues := make([]Cue, 0, len(blocks))
	for n, block := range blocks {
		block = strings.Trim(block, "\n")
		if strings.TrimSpace(block) == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		timing := 0
		if !strings.Contains(lines[0], "-->") {
			timing = 1
		}
		if timing >= len(lines) || !strings.Contains(lines[timing], "-->") {
			return nil, fmt.Errorf("srt block %d: missing timing line", n+1)
		}
		start, end, err := parseTimingLine(lines[timing])
		if err != nil {
			return nil, fmt.Errorf("srt block %d: %w", n+1, err)
		}
		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: start,
			End:   end,
			Text:  strings.Join(lines[timing+1:], "\n"),
		})
	}
	return cues, nil
}

// FormatSRT encodes cues as SRT. Cue numbers come from Cue.Index so a
// translated file carries the same numbering as its source.
func FormatSRT(cues []Cue) []byte {
	var buf bytes.Buffer
	for i, cue := range cues {
		if i > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "%d\n%s --> %s\n", cue.Index, formatTimestamp(cue.Start), formatTimestamp(cue.End))
		if text := CompactText(cue.Text); text != "" {
			buf.WriteString(text)
			buf.WriteString("\n")
		}
	}
	return buf.Bytes()
}

// CompactText drops empty lines from cue text. A blank line terminates an
// SRT block, so text that contains one would split its cue on disk.
func CompactText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimRight(line, " \t\r"); strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// ReadSRTFile parses the SRT file at path.
func ReadSRTFile(path string) ([]Cue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	return ParseSRT(data)
}

// WriteSRTFile atomically writes cues to path.
func WriteSRTFile(path string, cues []Cue) error {
	if err := fileutil.WriteFileAtomic(path, FormatSRT(cues), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}

func parseTimingLine(line string) (time.Duration, time.Duration, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	start, err := parseSRTTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	// Position hints (X1:... Y1:...) may follow the end timestamp.
	endFields := strings.Fields(parts[1])
	if len(endFields) == 0 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	end, err := parseSRTTimestamp(endFields[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseSRTTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if hours < 0 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 || millis < 0 || millis > 999 {
		return 0, fmt.Errorf("timestamp out of range %q", value)
	}
	total := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond
	return total, nil
}

func formatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	hours := ms / 3_600_000
	ms -= hours * 3_600_000
	minutes := ms / 60_000
	ms -= minutes * 60_000
	seconds := ms / 1000
	ms -= seconds * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, ms)
}
