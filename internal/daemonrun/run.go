package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"reelscribe/internal/backends"
	"reelscribe/internal/config"
	"reelscribe/internal/daemon"
	"reelscribe/internal/deps"
	"reelscribe/internal/evaluation"
	"reelscribe/internal/logging"
	"reelscribe/internal/preflight"
	"reelscribe/internal/queue"
	"reelscribe/internal/transcription"
	"reelscribe/internal/translation"
	"reelscribe/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel      string
	Development   bool
	SkipPreflight bool
}

// Run starts the reelscribe daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("reelscribe-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	root, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		ComponentLevels:  cfg.Logging.ComponentLevels,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger := root.Logger

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update reelscribe.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "reelscribe-*.log", Exclude: []string{logPath}},
	)
	logDependencySnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, "reelscribed.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open status store", logging.Error(err))
		return err
	}

	providers, err := backends.New(signalCtx, cfg)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("build backends: %w", err)
	}

	manager := workflow.NewManager(cfg, store, root.ForComponent("workflow"))
	if err := manager.ConfigureStages(BuildStages(cfg, store, providers, root)); err != nil {
		_ = store.Close()
		return fmt.Errorf("configure stages: %w", err)
	}

	if !opts.SkipPreflight {
		if err := manager.RunPreflight(signalCtx, preflightCheckers(providers)); err != nil {
			_ = store.Close()
			return err
		}
	}

	d, err := daemon.New(cfg, store, root.ForComponent("daemon"), manager)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and the api bind address"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("reelscribe daemon shutting down; waiting for in-flight stages",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

// BuildStages constructs the stage handlers backed by providers.
func BuildStages(cfg *config.Config, store *queue.Store, providers *backends.Set, root *logging.Logger) workflow.StageSet {
	set := workflow.StageSet{
		Transcription: transcription.NewHandler(cfg, store, root.ForComponent("transcription")),
		Translation:   translation.NewHandler(cfg, store, providers, root.ForComponent("translation")),
	}
	if cfg.Evaluation.Enabled {
		set.Evaluation = evaluation.NewHandler(cfg, store, providers.Evaluator(), root.ForComponent("evaluation"))
	}
	return set
}

func preflightCheckers(providers *backends.Set) map[string]preflight.HealthChecker {
	checkers := providers.Checkers()
	out := make(map[string]preflight.HealthChecker, len(checkers))
	for name, checker := range checkers {
		out[name] = checker
	}
	return out
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "reelscribe.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Any("target_languages", cfg.Subtitles.TargetLanguages),
		logging.String("whisperx_model", cfg.Transcription.Model),
		logging.Bool("whisperx_cuda", cfg.Transcription.CUDAEnabled),
		logging.Bool("evaluation_enabled", cfg.Evaluation.Enabled),
	}
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		attrs = append(attrs, logging.Bool(strings.ToLower(status.Name)+"_available", status.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
