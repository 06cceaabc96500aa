package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/loupe-re/loupe/internal/cli/helpers"
	"github.com/loupe-re/loupe/internal/client"
	"github.com/loupe-re/loupe/internal/errors"
)

// functionOutput is the JSON form of a decompiled function.
type functionOutput struct {
	Address   string        `json:"address"`
	Success   bool          `json:"success"`
	Signature string        `json:"signature,omitempty"`
	Code      string        `json:"code,omitempty"`
	Blocks    []blockOutput `json:"blocks,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type blockOutput struct {
	Start        string              `json:"start"`
	End          string              `json:"end"`
	Instructions []instructionOutput `json:"instructions"`
}

type instructionOutput struct {
	Address  string `json:"address"`
	Bytes    string `json:"bytes"`
	Mnemonic string `json:"mnemonic"`
	Operands string `json:"operands,omitempty"`
}

func newDecompileCmd(opts *globalOptions) *cobra.Command {
	var (
		binFlags helpers.BinaryFlags
		format   string
		blocks   bool
		jobs     int
	)

	cmd := &cobra.Command{
		Use:   "decompile FILE ADDRESS...",
		Short: "Decompile functions from a binary",
		Long: `Load FILE into the engine and decompile the function at each ADDRESS.

Addresses are numbers (0x140001000, 1000h) or symbol names from the binary.
Functions are decompiled concurrently; results print in argument order.`,
		Example: `  loupe decompile ./a.out main
  loupe decompile --raw --base 0x140001000 code.bin 0x140001000 0x140001010`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, []helpers.OutputFormat{formatText, helpers.FormatJSON}); err != nil {
				return err
			}
			if jobs < 1 {
				return fmt.Errorf("--jobs must be at least 1")
			}

			ctx := cmd.Context()
			rt, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			img, err := rt.load(ctx, args[0], binFlags)
			if err != nil {
				return err
			}

			addrs := make([]uint64, 0, len(args)-1)
			for _, a := range args[1:] {
				addr, err := helpers.ParseAddress(a, img.Lookup)
				if err != nil {
					return err
				}
				addrs = append(addrs, addr)
			}

			results, failed, err := decompileAll(ctx, rt, addrs, jobs)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == string(helpers.FormatJSON) {
				if err := printFunctionsJSON(out, results, blocks); err != nil {
					return err
				}
			} else {
				printFunctionsText(out, results, blocks)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d functions failed to decompile", failed, len(addrs))
			}
			return nil
		},
	}

	binFlags.AddFlags(cmd)
	helpers.AddFormatFlag(cmd, &format, formatText, []helpers.OutputFormat{formatText, helpers.FormatJSON})
	cmd.Flags().BoolVar(&blocks, "blocks", false, "Include basic blocks and instructions")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "Functions to decompile concurrently")

	return cmd
}

// formatText is plain listing output.
const formatText helpers.OutputFormat = "text"

// decompileAll decompiles addrs with at most jobs requests in flight.
// Per-function failures are reported in the results; an unavailable engine
// aborts the remaining work.
func decompileAll(ctx context.Context, rt *engineRuntime, addrs []uint64, jobs int) ([]*client.FunctionResult, int, error) {
	results := make([]*client.FunctionResult, len(addrs))
	var failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			res, err := rt.manager.Decompile(gctx, addr)
			if err != nil {
				if errors.IsKind(err, errors.KindUnavailable) {
					return err
				}
				if res == nil {
					res = &client.FunctionResult{Address: addr, ErrorMessage: err.Error()}
				}
				failed.Add(1)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return results, int(failed.Load()), nil
}

func printFunctionsText(w io.Writer, results []*client.FunctionResult, blocks bool) {
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if !res.Success {
			fmt.Fprintf(w, "// %#x: %s\n", res.Address, res.ErrorMessage)
			continue
		}
		fmt.Fprintf(w, "// %#x\n", res.Address)
		fmt.Fprint(w, res.Code)
		if !strings.HasSuffix(res.Code, "\n") {
			fmt.Fprintln(w)
		}
		if !blocks {
			continue
		}
		for _, b := range res.Blocks {
			fmt.Fprintf(w, "\n// block %#x-%#x\n", b.StartAddr, b.EndAddr)
			for _, inst := range b.Instructions {
				fmt.Fprintf(w, "//   %#x  %-24x %s\n", inst.Address, inst.Raw, inst.Text())
			}
		}
	}
}

func printFunctionsJSON(w io.Writer, results []*client.FunctionResult, blocks bool) error {
	out := make([]functionOutput, 0, len(results))
	for _, res := range results {
		fo := functionOutput{
			Address:   fmt.Sprintf("%#x", res.Address),
			Success:   res.Success,
			Signature: res.Signature,
			Code:      res.Code,
			Error:     res.ErrorMessage,
		}
		if blocks {
			for _, b := range res.Blocks {
				fo.Blocks = append(fo.Blocks, blockOutput{
					Start:        fmt.Sprintf("%#x", b.StartAddr),
					End:          fmt.Sprintf("%#x", b.EndAddr),
					Instructions: toInstructionOutputs(b.Instructions),
				})
			}
		}
		out = append(out, fo)
	}
	return (&helpers.JSONFormatter{}).Format(out, w)
}

func toInstructionOutputs(in []client.Instruction) []instructionOutput {
	out := make([]instructionOutput, len(in))
	for i, inst := range in {
		out[i] = instructionOutput{
			Address:  fmt.Sprintf("%#x", inst.Address),
			Bytes:    fmt.Sprintf("%x", inst.Raw),
			Mnemonic: inst.Mnemonic,
			Operands: inst.Operands,
		}
	}
	return out
}
