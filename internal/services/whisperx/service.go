package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"reelscribe/internal/language"
	"reelscribe/internal/services"
	"reelscribe/internal/subtitles"
)

// CommandRunner executes an external command and returns its combined
// output on failure inside the error.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Service provides WhisperX transcription.
type Service struct {
	cfg           Config
	commandRunner CommandRunner
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config) *Service {
	if cfg.FFmpegBinary == "" {
		cfg.FFmpegBinary = FFmpegCommand
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.VADMethod == "" {
		cfg.VADMethod = VADMethodSilero
	}
	return &Service{cfg: cfg, commandRunner: runCommand}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner CommandRunner) {
	if runner != nil {
		s.commandRunner = runner
	}
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	return s.cfg.Model
}

// Transcribe extracts the audio of mediaPath into workDir, runs WhisperX on
// it and returns the raw cues in segment order. Cues are not normalized.
func (s *Service) Transcribe(ctx context.Context, mediaPath, workDir string) ([]subtitles.Cue, error) {
	if strings.TrimSpace(mediaPath) == "" {
		return nil, services.Wrap(services.ErrValidation, "whisperx", "transcribe", "media path required", nil)
	}
	if workDir == "" {
		return nil, services.Wrap(services.ErrValidation, "whisperx", "transcribe", "work dir required", nil)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcribe: ensure work dir: %w", err)
	}

	audioPath := filepath.Join(workDir, AudioFileName)
	if err := s.commandRunner(ctx, s.cfg.FFmpegBinary, extractArgs(mediaPath, audioPath)...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if undecodable(err) {
			return nil, services.Wrap(services.ErrPermanent, "whisperx", "extract audio", "input has no decodable audio", err)
		}
		return nil, services.Wrap(services.ErrExternalTool, "whisperx", "extract audio", "", err)
	}

	if err := s.commandRunner(ctx, UVXCommand, s.buildArgs(audioPath, workDir)...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrExternalTool, "whisperx", "transcribe", "", err)
	}

	jsonPath := filepath.Join(workDir, strings.TrimSuffix(AudioFileName, filepath.Ext(AudioFileName))+".json")
	segments, err := LoadSegments(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "whisperx", "load output", "", err)
	}
	return SegmentsToCues(segments), nil
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 40)

	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.cfg.Model,
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--chunk_size", ChunkSize,
		"--vad_onset", VADOnset,
		"--vad_offset", VADOffset,
		"--beam_size", BeamSize,
		"--temperature", Temperature,
		"--vad_method", s.cfg.VADMethod,
	)
	if s.cfg.VADMethod == VADMethodPyannote && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}
	if lang := language.Normalize(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

// Segment represents a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperXPayload struct {
	Segments []Segment `json:"segments"`
}

// LoadSegments loads segments from a WhisperX JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload.Segments, nil
}

// SegmentsToCues converts WhisperX segments to cues numbered from 1. Empty
// segments are dropped.
func SegmentsToCues(segments []Segment) []subtitles.Cue {
	cues := make([]subtitles.Cue, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		cues = append(cues, subtitles.Cue{
			Index: len(cues) + 1,
			Start: secondsToDuration(seg.Start),
			End:   secondsToDuration(seg.End),
			Text:  text,
		})
	}
	return cues
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)
}

func undecodable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid data found") ||
		strings.Contains(msg, "matches no streams") ||
		strings.Contains(msg, "does not contain any stream")
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking WhisperX/pyannote.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s: exit %d: %s", name, exitErr.ExitCode(), strings.TrimSpace(string(output)))
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
