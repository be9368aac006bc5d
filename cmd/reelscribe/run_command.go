package main

import (
	"github.com/spf13/cobra"

	"reelscribe/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reelscribe daemon in the foreground",
		Long: "Run the worker pools, the stuck-work reclaimer and the status API until " +
			"interrupted. Only one daemon may run per data directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Include source locations in log output")
	cmd.Flags().BoolVar(&opts.SkipPreflight, "skip-preflight", false, "Start without checking directories, binaries and backends")
	return cmd
}
