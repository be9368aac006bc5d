package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"reelscribe/internal/config"
	"reelscribe/internal/logs"
	"reelscribe/internal/queue"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		fileID string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the daemon log",
		Long: "Print the tail of the current daemon log. --follow keeps streaming new " +
			"lines across daemon restarts; --file limits output to one media file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			match := ""
			if fileID != "" {
				err := ctx.withStore(func(_ *config.Config, store *queue.Store) error {
					file, err := resolveFile(cmd.Context(), store, fileID)
					if err != nil {
						return err
					}
					match = file.ID
					return nil
				})
				if err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			return logs.Stream(cmd.Context(), filepath.Join(cfg.Paths.LogDir, "reelscribe.log"), logs.Options{
				Lines:  lines,
				Follow: follow,
				Match:  match,
			}, func(line string) error {
				_, err := fmt.Fprintln(out, line)
				return err
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of existing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&fileID, "file", "", "Only lines mentioning this file id or path")
	return cmd
}
