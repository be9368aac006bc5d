package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reelscribe/internal/config"
	"reelscribe/internal/logging"
	"reelscribe/internal/queue"
	"reelscribe/internal/workflow"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [file-id|path]...",
		Short: "Reset failed stages so the daemon picks them up again",
		Long: "Reset failed stages to pending with a fresh attempt budget. Without " +
			"arguments every failed stage is retried.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				ids := make([]string, 0, len(args))
				for _, arg := range args {
					file, err := resolveFile(cmd.Context(), store, arg)
					if err != nil {
						return err
					}
					ids = append(ids, file.ID)
				}
				count, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				if count == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No failed stages to retry")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed stages\n", count)
				return nil
			})
		},
	}
}

func newReclaimCommand(ctx *commandContext) *cobra.Command {
	var timeoutSeconds int

	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Return stuck in-progress stages to the claimable pool",
		Long: "Reset in-progress stages whose heartbeat is older than the reclaim " +
			"timeout. Stages that have used their attempt budget are marked failed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				timeout := config.Seconds(cfg.Workflow.ReclaimTimeout)
				if cmd.Flags().Changed("timeout") {
					timeout = time.Duration(timeoutSeconds) * time.Second
				}
				reclaimer := workflow.NewReclaimer(store, timeout, logging.NewNop())
				rows, err := reclaimer.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintf(out, "No stages idle longer than %s\n", timeout)
					return nil
				}
				lines := make([][]string, 0, len(rows))
				for _, row := range rows {
					lines = append(lines, []string{shortID(row.FileID), row.Stage.String(), fmt.Sprintf("%d", row.Attempts), string(row.State)})
				}
				fmt.Fprintln(out, renderTable([]column{
					{header: "File"},
					{header: "Stage"},
					{header: "Attempts", right: true},
					{header: "Now"},
				}, lines))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "Override the configured reclaim timeout in seconds")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <file-id|path>",
		Aliases: []string{"rm"},
		Short:   "Forget a file and all of its stages, cues and errors",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				file, err := resolveFile(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				removed, err := store.RemoveFile(cmd.Context(), file.ID)
				if errors.Is(err, queue.ErrFileBusy) {
					return fmt.Errorf("file %s has a stage in progress; retry once it finishes", file.ID)
				}
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("file %s not found", file.ID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s)\n", file.ID, file.Path)
				return nil
			})
		},
	}
}
