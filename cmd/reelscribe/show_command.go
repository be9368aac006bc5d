package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"reelscribe/internal/api"
	"reelscribe/internal/config"
	"reelscribe/internal/queue"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <file-id|path>",
		Short: "Show the stages and recent errors of one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				file, err := resolveFile(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				service := api.NewStatusService(store)
				detail, err := service.Describe(cmd.Context(), file.ID)
				if err != nil {
					return err
				}
				if detail == nil {
					return fmt.Errorf("file %s not found", file.ID)
				}
				records, _, err := service.Errors(cmd.Context(), file.ID)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, struct {
						api.FileResponse
						Errors []api.ErrorRecord `json:"errors"`
					}{api.FileResponse{File: *detail}, records})
				}
				renderFileDetail(cmd.OutOrStdout(), *detail, records)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderFileDetail(out io.Writer, detail api.FileDetail, records []api.ErrorRecord) {
	f := detail.File
	fmt.Fprintf(out, "ID:       %s\n", f.ID)
	fmt.Fprintf(out, "Path:     %s\n", f.Path)
	fmt.Fprintf(out, "Type:     %s\n", f.MediaType)
	fmt.Fprintf(out, "Duration: %s\n", formatDuration(time.Duration(f.DurationSeconds*float64(time.Second))))
	fmt.Fprintf(out, "Size:     %s\n", formatSize(f.SizeBytes))
	fmt.Fprintf(out, "State:    %s\n\n", detail.State)

	rows := make([][]string, 0, len(detail.Stages))
	for _, st := range detail.Stages {
		next := st.NextAttemptAt
		if next == "" {
			next = "-"
		}
		output := st.OutputRef
		if output == "" {
			output = "-"
		}
		rows = append(rows, []string{st.Stage, st.State, fmt.Sprintf("%d", st.Attempts), yesNo(st.Terminal), next, output})
	}
	fmt.Fprintln(out, renderTable([]column{
		{header: "Stage"},
		{header: "State"},
		{header: "Attempts", right: true},
		{header: "Terminal"},
		{header: "Next attempt"},
		{header: "Output", maxWidth: 50},
	}, rows))

	if len(records) == 0 {
		return
	}
	const recent = 5
	if len(records) > recent {
		fmt.Fprintf(out, "\nLast %d of %d errors:\n", recent, len(records))
		records = records[len(records)-recent:]
	} else {
		fmt.Fprintln(out, "\nErrors:")
	}
	renderErrors(out, records)
}
