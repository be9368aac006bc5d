package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reelscribe/internal/config"
	"reelscribe/internal/logging"
	"reelscribe/internal/media/ffprobe"
	"reelscribe/internal/queue"
	"reelscribe/internal/services"
	"reelscribe/internal/services/whisperx"
	"reelscribe/internal/stage"
	"reelscribe/internal/subtitles"
)

const stageName = "transcription"

// Transcriber turns a media file into raw cues.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath, workDir string) ([]subtitles.Cue, error)
}

// Prober inspects a media file.
type Prober func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Handler runs the transcription stage.
type Handler struct {
	cfg         *config.Config
	store       *queue.Store
	transcriber Transcriber
	probe       Prober
	logger      *slog.Logger
}

// NewHandler constructs a transcription handler backed by WhisperX and ffprobe.
func NewHandler(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Handler {
	service := whisperx.NewService(whisperx.Config{
		Model:        cfg.Transcription.Model,
		CUDAEnabled:  cfg.Transcription.CUDAEnabled,
		VADMethod:    cfg.Transcription.VADMethod,
		HFToken:      cfg.Transcription.HuggingFaceToken,
		Language:     cfg.Transcription.SourceLanguage,
		FFmpegBinary: cfg.Transcription.FFmpegBinary,
	})
	return NewHandlerWithDependencies(cfg, store, service, ffprobe.Inspect, logger)
}

// NewHandlerWithDependencies allows injecting the transcriber and prober (used in tests).
func NewHandlerWithDependencies(cfg *config.Config, store *queue.Store, transcriber Transcriber, probe Prober, logger *slog.Logger) *Handler {
	h := &Handler{cfg: cfg, store: store, transcriber: transcriber, probe: probe}
	h.SetLogger(logger)
	return h
}

// SetLogger replaces the handler logger. Call it before the handler is shared
// with a worker pool; claim fields come from the context.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	h.logger = logger.With(logging.String(logging.FieldComponent, stageName))
}

// Prepare validates the claim before any work starts.
func (h *Handler) Prepare(ctx context.Context, claim queue.WorkClaim) error {
	if strings.TrimSpace(claim.Path) == "" {
		return services.Wrap(services.ErrValidation, stageName, "validate inputs", "Claim has no media path", nil)
	}
	return nil
}

// Execute transcribes the claimed file and returns the source.srt path.
func (h *Handler) Execute(ctx context.Context, claim queue.WorkClaim) (string, error) {
	logger := logging.WithContext(ctx, h.logger)

	stored, err := h.store.LoadCues(ctx, claim.FileID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "load cues", "", err)
	}
	if len(stored) > 0 {
		logger.Info("transcription resumed from stored cues",
			logging.String(logging.FieldEventType, "transcription_resumed"),
			logging.Int("cues", len(stored)),
		)
		return h.writeSource(claim.FileID, stored)
	}

	info, err := os.Stat(claim.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, stageName, "stat input",
				fmt.Sprintf("Media file %s no longer exists", claim.Path), err)
		}
		return "", services.Wrap(services.ErrTransient, stageName, "stat input", "", err)
	}

	probe, err := h.probe(ctx, h.cfg.Transcription.FFprobeBinary, claim.Path)
	if err != nil {
		return "", err
	}
	limits := ffprobe.Limits{MaxDuration: h.cfg.MaxDuration(), MaxSize: h.cfg.MaxSizeBytes()}
	if err := probe.CheckLimits(limits, info.Size()); err != nil {
		return "", err
	}

	workDir := filepath.Join(h.cfg.Paths.WorkDir, claim.FileID)
	raw, err := h.transcriber.Transcribe(ctx, claim.Path, workDir)
	if err != nil {
		return "", err
	}

	filtered := subtitles.FilterHallucinations(raw, probe.Duration())
	if removed := len(filtered.Removals); removed > 0 {
		logger.Info("hallucinated cues removed",
			logging.String(logging.FieldEventType, "hallucinations_filtered"),
			logging.Int("removed", removed),
			logging.Int("remaining", len(filtered.Cues)),
		)
	}
	cues := subtitles.Normalize(filtered.Cues)
	if len(cues) == 0 {
		return "", services.Wrap(services.ErrPermanent, stageName, "transcribe", "No speech detected in media", nil)
	}

	written, err := h.store.SaveCues(ctx, claim.FileID, cues)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "save cues", "", err)
	}
	if !written {
		// Another attempt persisted cues first; stored cues win.
		if cues, err = h.store.LoadCues(ctx, claim.FileID); err != nil {
			return "", services.Wrap(services.ErrTransient, stageName, "load cues", "", err)
		}
	}

	if err := os.RemoveAll(workDir); err != nil {
		logging.WarnWithContext(logger, "failed to remove transcription work dir", "workdir_cleanup_failed",
			logging.String("work_dir", workDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "scratch audio left on disk"),
		)
	}

	logger.Info("transcription produced cues",
		logging.String(logging.FieldEventType, "transcription_complete"),
		logging.Int("cues", len(cues)),
		logging.Duration("media_duration", probe.Duration()),
	)
	return h.writeSource(claim.FileID, cues)
}

func (h *Handler) writeSource(fileID string, cues []subtitles.Cue) (string, error) {
	path, err := stage.WriteTrack(h.cfg.Paths.OutputDir, fileID, stage.SourceSRTName, cues)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "write source srt", "", err)
	}
	return path, nil
}

// HealthCheck reports readiness for the transcription stage.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.cfg == nil {
		return stage.Unhealthy(stageName, "configuration unavailable")
	}
	if h.store == nil {
		return stage.Unhealthy(stageName, "status store unavailable")
	}
	if h.transcriber == nil {
		return stage.Unhealthy(stageName, "transcriber unavailable")
	}
	if strings.TrimSpace(h.cfg.Paths.OutputDir) == "" {
		return stage.Unhealthy(stageName, "output directory not configured")
	}
	return stage.Healthy(stageName)
}
