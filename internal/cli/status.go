package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/loupe-re/loupe/internal/cli/helpers"
	"github.com/loupe-re/loupe/internal/cli/status"
	"github.com/loupe-re/loupe/internal/config"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var (
		format  string
		verbose bool
	)

	supported := []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the loupe environment and engine status",
		Long: `Show where the engine is expected, whether it is running and, when it is,
its process statistics.

This command never starts an engine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, supported); err != nil {
				return err
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Engine.RPCTimeout)
			defer cancel()

			provider := status.NewProvider(cfg, config.NewLoader().ConfigPath(), opts.logger(cfg))
			info := provider.Collect(ctx)

			if format == string(helpers.FormatJSON) {
				return status.OutputJSON(cmd.OutOrStdout(), info)
			}
			return status.OutputTable(cmd.OutOrStdout(), info, verbose)
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, supported)
	helpers.AddVerboseFlag(cmd, &verbose)

	return cmd
}
