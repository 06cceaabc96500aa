// Package cli implements the loupe command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loupe-re/loupe/pkg/version"
)

// NewRootCmd builds the loupe command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "loupe",
		Short: "Loupe - decompile functions through a supervised analysis engine",
		Long: `Loupe loads a binary into the loupe-engine co-process and decompiles or
disassembles functions from it.

The engine is started on demand and watched. If it dies, loupe restarts it,
replays the loaded binary and retries the request, so a crash in the
analysis engine costs a retry instead of the session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.addFlags(rootCmd)

	rootCmd.AddCommand(newPingCmd(opts))
	rootCmd.AddCommand(newDecompileCmd(opts))
	rootCmd.AddCommand(newDisasmCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Loupe version %s\n", version.Version)
			fmt.Fprintf(out, "Git commit: %s\n", version.GitCommit)
			fmt.Fprintf(out, "Build date: %s\n", version.BuildDate)
			fmt.Fprintf(out, "Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
