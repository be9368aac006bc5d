package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"reelscribe/internal/services"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int               `json:"index"`
	CodecName  string            `json:"codec_name"`
	CodecType  string            `json:"codec_type"`
	Duration   string            `json:"duration"`
	SampleRate string            `json:"sample_rate"`
	Channels   int               `json:"channels"`
	Tags       map[string]string `json:"tags"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Limits bounds what the transcription provider accepts. Zero means no limit.
type Limits struct {
	MaxDuration time.Duration
	MaxSize     int64
}

// Inspect executes ffprobe against the provided path and decodes the JSON
// response. Files ffprobe cannot parse are reported as services.ErrPermanent;
// other failures as services.ErrExternalTool.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
			if strings.Contains(strings.ToLower(detail), "invalid data found") {
				return Result{}, services.Wrap(services.ErrPermanent, "ffprobe", "inspect", detail, err)
			}
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "ffprobe", "inspect", detail, err)
	}
	return Parse(output)
}

// Parse decodes ffprobe JSON output.
func Parse(output []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "ffprobe", "parse", "", err)
	}
	return result, nil
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	return r.countStreams("video")
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return r.countStreams("audio")
}

func (r Result) countStreams(kind string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, kind) {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// Duration returns the container duration, or 0 when unknown.
func (r Result) Duration() time.Duration {
	seconds := r.DurationSeconds()
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

// CheckLimits rejects inputs the transcription provider cannot take. The
// file's on-disk size is used when ffprobe does not report one. Violations
// are permanent: the same file will never fit.
func (r Result) CheckLimits(limits Limits, fileSize int64) error {
	if r.AudioStreamCount() == 0 {
		return services.Wrap(services.ErrPermanent, "ffprobe", "check limits", "no audio stream", nil)
	}
	if limits.MaxDuration > 0 {
		if duration := r.Duration(); duration > limits.MaxDuration {
			return services.Wrap(services.ErrPermanent, "ffprobe", "check limits",
				fmt.Sprintf("duration %s exceeds limit %s", duration.Round(time.Second), limits.MaxDuration), nil)
		}
	}
	size := r.SizeBytes()
	if size == 0 {
		size = fileSize
	}
	if limits.MaxSize > 0 && size > limits.MaxSize {
		return services.Wrap(services.ErrPermanent, "ffprobe", "check limits",
			fmt.Sprintf("size %d bytes exceeds limit %d", size, limits.MaxSize), nil)
	}
	return nil
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
