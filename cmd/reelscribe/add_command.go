package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"reelscribe/internal/config"
	"reelscribe/internal/fileutil"
	"reelscribe/internal/media/ffprobe"
	"reelscribe/internal/queue"
)

type prober func(ctx context.Context, binary, path string) (ffprobe.Result, error)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Register audio or video files for processing",
		Long: "Register media files and create their transcription, translation and " +
			"evaluation stages. Directories add every supported file they contain. " +
			"Registering a path twice returns the existing record.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				paths, err := collectMedia(args, recursive)
				if err != nil {
					return err
				}
				if len(paths) == 0 {
					return fmt.Errorf("no supported media files found")
				}
				return registerFiles(cmd.Context(), cmd.OutOrStdout(), cfg, store, ffprobe.Inspect, paths)
			})
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	return cmd
}

func collectMedia(args []string, recursive bool) ([]string, error) {
	var paths []string
	for _, arg := range args {
		path, err := config.ExpandPath(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("inspect %q: %w", path, err)
		}
		if !info.IsDir() {
			if _, ok := queue.MediaTypeForPath(path); !ok {
				return nil, fmt.Errorf("%s: unsupported media type", path)
			}
			paths = append(paths, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if p != path && (!recursive || strings.HasPrefix(d.Name(), ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if _, ok := queue.MediaTypeForPath(p); ok {
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %q: %w", path, err)
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}

func registerFiles(ctx context.Context, out io.Writer, cfg *config.Config, store *queue.Store, probe prober, paths []string) error {
	stages := stagesFor(cfg)
	for _, path := range paths {
		checksum, size, err := fileutil.Checksum(path)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", path, err)
		}
		file := queue.MediaFile{Path: path, SizeBytes: size, Checksum: checksum}
		if probe != nil {
			if result, err := probe(ctx, cfg.Transcription.FFprobeBinary, path); err != nil {
				fmt.Fprintf(out, "warn: %s: duration unknown: %v\n", filepath.Base(path), err)
			} else {
				file.Duration = result.Duration()
			}
		}

		stored, created, err := store.Register(ctx, file, stages)
		if err != nil {
			return err
		}
		if !created {
			fmt.Fprintf(out, "Already registered %s as %s\n", path, stored.ID)
			continue
		}
		fmt.Fprintf(out, "Registered %s as %s (%s, %s, %d stages)\n",
			path, stored.ID, stored.MediaType, formatDuration(stored.Duration), len(stages))
	}
	return nil
}

func stagesFor(cfg *config.Config) []queue.Stage {
	return queue.StagesFor(cfg.Subtitles.TargetLanguages, cfg.Evaluation.Enabled)
}
