package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"reelscribe/internal/backends"
	"reelscribe/internal/config"
	"reelscribe/internal/language"
	"reelscribe/internal/logging"
	"reelscribe/internal/subtitles"
	"reelscribe/internal/translation"
)

func newTranslateSRTCommand(ctx *commandContext) *cobra.Command {
	var (
		languages []string
		outputDir string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "translate-srt <file.srt>",
		Short: "Translate an existing SRT file without touching the status database",
		Long: "Run the segment-preserving translator over an SRT file and write one " +
			"<name>.<lang>.srt per target language next to it (or into --output). " +
			"Cue count and timings are preserved exactly.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			targets := language.NormalizeList(languages)
			if len(languages) == 0 {
				targets = cfg.Subtitles.TargetLanguages
			}
			if len(targets) == 0 {
				return fmt.Errorf("no target languages given")
			}
			set, err := backends.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			logger := logging.NewNop()
			if verbose {
				root, err := logging.New(logging.Options{Level: "debug", Format: "console", OutputPaths: []string{"stderr"}})
				if err != nil {
					return err
				}
				logger = root.ForComponent("translate-srt")
			}
			job := srtJob{cfg: cfg, providers: set, logger: logger, outputDir: outputDir}
			return job.run(cmd.Context(), cmd.OutOrStdout(), args[0], targets)
		},
	}

	cmd.Flags().StringSliceVarP(&languages, "lang", "l", nil, "Target languages (default: configured target languages)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for translated files")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log backend calls to stderr")
	return cmd
}

type srtJob struct {
	cfg       *config.Config
	providers translation.Providers
	logger    *slog.Logger
	outputDir string
}

func (j srtJob) run(ctx context.Context, out io.Writer, input string, targets []string) error {
	path, err := config.ExpandPath(input)
	if err != nil {
		return err
	}
	cues, err := subtitles.ReadSRTFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(cues) == 0 {
		return fmt.Errorf("%s contains no cues", path)
	}

	dir := j.outputDir
	if dir == "" {
		dir = filepath.Dir(path)
	} else if dir, err = config.ExpandPath(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	for _, lang := range targets {
		translator, err := translation.NewTranslator(j.cfg, j.providers, cues, lang, j.logger)
		if err != nil {
			return err
		}
		result, err := translator.Translate(ctx, cues, lang)
		if err != nil {
			return fmt.Errorf("translate to %s: %w", lang, err)
		}
		// Later targets reuse the detections of the first run.
		for pos, tag := range result.Report.Detected {
			if tag != "" {
				cues[pos].Language = tag
			}
		}
		target := filepath.Join(dir, fmt.Sprintf("%s.%s.srt", base, lang))
		if err := subtitles.WriteSRTFile(target, result.Cues); err != nil {
			return err
		}
		report := result.Report
		fmt.Fprintf(out, "%s: %d of %d cues translated (%d calls, %d fallbacks) -> %s\n",
			lang, len(report.Translated), len(cues), report.TranslationCalls, report.TranslationFallbacks, target)
	}
	return nil
}
