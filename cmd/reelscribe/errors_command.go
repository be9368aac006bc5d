package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"reelscribe/internal/api"
	"reelscribe/internal/config"
	"reelscribe/internal/queue"
)

func newErrorsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "errors <file-id|path>",
		Short: "Show the full error history of one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				file, err := resolveFile(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				records, _, err := api.NewStatusService(store).Errors(cmd.Context(), file.ID)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.ErrorListResponse{FileID: file.ID, Errors: records})
				}
				if len(records) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No errors recorded for %s\n", file.ID)
					return nil
				}
				renderErrors(cmd.OutOrStdout(), records)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderErrors(out io.Writer, records []api.ErrorRecord) {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{rec.CreatedAt, rec.Stage, fmt.Sprintf("%d", rec.Attempt), rec.Kind, rec.Message})
	}
	fmt.Fprintln(out, renderTable([]column{
		{header: "When"},
		{header: "Stage"},
		{header: "Attempt", right: true},
		{header: "Kind"},
		{header: "Message", maxWidth: 70},
	}, rows))
}
