package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPingCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the engine responds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			start := time.Now()
			alive, err := rt.manager.Ping(ctx)
			if err != nil {
				return err
			}
			if !alive {
				return fmt.Errorf("engine at %s is not alive", rt.cfg.Engine.Address)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "engine at %s is alive (%s)\n", rt.cfg.Engine.Address, time.Since(start).Round(time.Microsecond))
			return nil
		},
	}
}
