package subtitles_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelscribe/internal/services"
	"reelscribe/internal/subtitles"
)

const sampleSRT = "\ufeff1\r\n00:00:01,000 --> 00:00:02,500\r\nHello there.\r\n\r\n" +
	"2\n00:00:03.000 --> 00:00:04,250 X1:10 Y1:20\nSecond line\nwraps here\n\n" +
	"7\n01:02:03,004 --> 01:02:05,000\nShalom\n"

func TestParseSRT(t *testing.T) {
	cues, err := subtitles.ParseSRT([]byte(sampleSRT))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(cues) != 3 {
		t.Fatalf("expected 3 cues, got %d", len(cues))
	}
	if cues[0].Start != time.Second || cues[0].End != 2500*time.Millisecond {
		t.Fatalf("unexpected timing %+v", cues[0])
	}
	if cues[1].Text != "Second line\nwraps here" {
		t.Fatalf("unexpected text %q", cues[1].Text)
	}
	if cues[2].Index != 3 {
		t.Fatalf("expected renumbered index 3, got %d", cues[2].Index)
	}
	want := time.Hour + 2*time.Minute + 3*time.Second + 4*time.Millisecond
	if cues[2].Start != want {
		t.Fatalf("expected %v, got %v", want, cues[2].Start)
	}
}

func TestParseSRTRejectsMalformedBlocks(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing timing", "1\nno timing here\n"},
		{"bad timestamp", "1\n00:00:01 --> 00:00:02,000\ntext\n"},
		{"out of range", "1\n00:61:01,000 --> 00:62:02,000\ntext\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := subtitles.ParseSRT([]byte(tt.input)); err == nil {
				t.Fatalf("expected error for %q", tt.input)
			}
		})
	}
}

func TestParseSRTEmpty(t *testing.T) {
	cues, err := subtitles.ParseSRT([]byte("  \n\n"))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(cues) != 0 {
		t.Fatalf("expected no cues, got %d", len(cues))
	}
}

func TestFormatSRTRoundTripKeepsTimings(t *testing.T) {
	cues, err := subtitles.ParseSRT([]byte(sampleSRT))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	cues = append(cues, subtitles.Cue{Index: 4, Start: 2 * time.Hour, End: 2*time.Hour + time.Second})

	path := filepath.Join(t.TempDir(), "out.srt")
	if err := subtitles.WriteSRTFile(path, cues); err != nil {
		t.Fatalf("WriteSRTFile: %v", err)
	}
	again, err := subtitles.ReadSRTFile(path)
	if err != nil {
		t.Fatalf("ReadSRTFile: %v", err)
	}
	if err := subtitles.VerifyAlignment(cues, again); err != nil {
		t.Fatalf("round trip changed alignment: %v", err)
	}
	if again[3].Text != "" {
		t.Fatalf("blank cue gained text %q", again[3].Text)
	}

	formatted := string(subtitles.FormatSRT(cues[:1]))
	if !strings.HasPrefix(formatted, "1\n00:00:01,000 --> 00:00:02,500\nHello there.\n") {
		t.Fatalf("unexpected formatting %q", formatted)
	}
}

func TestNormalizeRepairsTimings(t *testing.T) {
	raw := []subtitles.Cue{
		{Index: 9, Start: -time.Second, End: time.Second, Text: " first "},
		{Index: 10, Start: 500 * time.Millisecond, End: 400 * time.Millisecond, Text: "overlap"},
		{Index: 11, Start: 3 * time.Second, End: 2 * time.Second, Text: "inverted"},
	}
	cues := subtitles.Normalize(raw)
	if cues[0].Start != 0 || cues[0].Text != "first" || cues[0].Index != 1 {
		t.Fatalf("unexpected first cue %+v", cues[0])
	}
	for i, cue := range cues {
		if cue.End < cue.Start {
			t.Fatalf("cue %d ends before it starts: %+v", i, cue)
		}
		if i > 0 && cue.Start < cues[i-1].End {
			t.Fatalf("cue %d overlaps predecessor", i)
		}
		if cue.Index != i+1 {
			t.Fatalf("cue %d has index %d", i, cue.Index)
		}
	}
}

func TestVerifyAlignmentDetectsDrift(t *testing.T) {
	source := []subtitles.Cue{{Index: 1, Start: 0, End: time.Second}, {Index: 2, Start: time.Second, End: 2 * time.Second}}

	shifted := subtitles.Clone(source)
	shifted[1].End += time.Millisecond
	if err := subtitles.VerifyAlignment(source, shifted); !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error for drift, got %v", err)
	}
	if err := subtitles.VerifyAlignment(source, source[:1]); !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error for count change, got %v", err)
	}
	retexted := subtitles.Clone(source)
	retexted[0].Text = "different"
	if err := subtitles.VerifyAlignment(source, retexted); err != nil {
		t.Fatalf("text changes must not fail alignment: %v", err)
	}
}

func TestFormatSRTCollapsesBlankLinesInText(t *testing.T) {
	cues := []subtitles.Cue{
		{Index: 1, Start: time.Second, End: 2 * time.Second, Text: "One.\n\nTwo.\r\n \r\nThree."},
		{Index: 2, Start: 3 * time.Second, End: 4 * time.Second, Text: "Last."},
	}
	parsed, err := subtitles.ParseSRT(subtitles.FormatSRT(cues))
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if err := subtitles.VerifyAlignment(cues, parsed); err != nil {
		t.Fatalf("alignment lost: %v", err)
	}
	if parsed[0].Text != "One.\nTwo.\nThree." {
		t.Fatalf("unexpected text %q", parsed[0].Text)
	}
}
