package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loupe-re/loupe/internal/cli/helpers"
)

// instructionRow is the table form of a disassembled instruction.
type instructionRow struct {
	Address  uint64 `header:"ADDRESS" format:"hex"`
	Bytes    string `header:"BYTES"`
	Mnemonic string `header:"MNEMONIC"`
	Operands string `header:"OPERANDS"`
}

func newDisasmCmd(opts *globalOptions) *cobra.Command {
	var (
		binFlags helpers.BinaryFlags
		format   string
	)

	supported := []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON, helpers.FormatCSV}

	cmd := &cobra.Command{
		Use:   "disasm FILE START END",
		Short: "Disassemble an address range",
		Long: `Load FILE into the engine and disassemble [START, END).

END may be written +LENGTH. Bytes that do not decode are shown as (bad).`,
		Example: `  loupe disasm ./a.out main +64
  loupe disasm --raw --base 0x1000 code.bin 0x1000 0x1020`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, supported); err != nil {
				return err
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

			start, end, err := helpers.ParseRange(args[1], args[2], img.Lookup)
			if err != nil {
				return err
			}

			insts, err := rt.manager.Disassemble(ctx, start, end)
			if err != nil {
				return err
			}

			if format == string(helpers.FormatJSON) {
				return (&helpers.JSONFormatter{}).Format(toInstructionOutputs(insts), cmd.OutOrStdout())
			}

			rows := make([]instructionRow, len(insts))
			for i, inst := range insts {
				rows[i] = instructionRow{
					Address:  inst.Address,
					Bytes:    fmt.Sprintf("%x", inst.Raw),
					Mnemonic: inst.Mnemonic,
					Operands: inst.Operands,
				}
			}
			formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
			if err != nil {
				return err
			}
			return formatter.Format(rows, cmd.OutOrStdout())
		},
	}

	binFlags.AddFlags(cmd)
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, supported)

	return cmd
}
