package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"reelscribe/internal/api"
	"reelscribe/internal/config"
	"reelscribe/internal/queue"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOut bool
		states  []string
	)

	cmd := &cobra.Command{
		Use:     "files",
		Aliases: []string{"ls"},
		Short:   "List registered files with their aggregate state",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := api.ParseStates(states)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				files, err := api.NewStatusService(store).Files(cmd.Context(), filter...)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.FileListResponse{Files: files})
				}
				renderFiles(cmd.OutOrStdout(), files)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Only show files in these states")
	return cmd
}

func renderFiles(out io.Writer, files []api.FileSummary) {
	if len(files) == 0 {
		fmt.Fprintln(out, "No files registered")
		return
	}
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{
			shortID(f.File.ID),
			filepath.Base(f.File.Path),
			f.File.MediaType,
			f.State,
			fmt.Sprintf("%d/%d", f.Completed, f.Total),
		})
	}
	fmt.Fprintln(out, renderTable([]column{
		{header: "ID"},
		{header: "File", maxWidth: 48},
		{header: "Type"},
		{header: "State"},
		{header: "Stages", right: true},
	}, rows))
}
