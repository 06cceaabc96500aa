// Package engine implements the loupe-engine command line.
package engine

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/loupe-re/loupe/internal/constants"
	"github.com/loupe-re/loupe/internal/engine/arch"
	"github.com/loupe-re/loupe/internal/engine/server"
	"github.com/loupe-re/loupe/internal/logging"
	"github.com/loupe-re/loupe/pkg/version"
)

// NewRootCmd builds the loupe-engine command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   constants.EngineBinaryName,
		Short: "Loupe analysis engine",
		Long: `The loupe analysis engine serves the decompiler service over HTTP/2.

It is normally started and supervised by loupe. Run it by hand to share one
engine between several loupe invocations (see loupe --no-spawn).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", constants.EngineBinaryName, version.String())
		},
	})

	return rootCmd
}

// serveOptions are the flags of the serve command.
type serveOptions struct {
	listen     string
	blockLimit int
	specDir    string
	logLevel   string
	pretty     bool
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{
		listen: net.JoinHostPort(constants.DefaultEngineHost, strconv.Itoa(constants.DefaultEnginePort)),
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the decompiler service until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := logging.NewWithComponent(logging.Config{
				Level:  opts.logLevel,
				Pretty: opts.pretty,
			}, "engine")

			return serve(ctx, opts, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.listen, "listen", opts.listen, "Address to listen on (host:port)")
	flags.IntVar(&opts.blockLimit, "block-limit", constants.DefaultBlockLimit, "Maximum instructions in a function's entry block")
	flags.StringVar(&opts.specDir, "spec-dir", "", "Default processor specification directory")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.BoolVar(&opts.pretty, "pretty", false, "Human-readable log output")

	return cmd
}

// serve runs the engine until ctx is cancelled.
func serve(ctx context.Context, opts serveOptions, logger zerolog.Logger) error {
	if opts.blockLimit <= 0 {
		return fmt.Errorf("--block-limit must be positive, got %d", opts.blockLimit)
	}

	cfg := server.DefaultConfig()
	cfg.BlockLimit = opts.blockLimit
	cfg.SpecDir = opts.specDir

	srv := server.New(arch.Builtin(), cfg, logger)
	httpSrv, err := srv.Listen(opts.listen)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("engine shutdown failed: %w", err)
	}
	return <-errCh
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
