package arch

import (
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"

	"github.com/loupe-re/loupe/internal/engine/memory"
)

const arm64InstLen = 4

type arm64Decoder struct {
	image *memory.Image
}

func (d *arm64Decoder) decode(addr uint64) (Instruction, error) {
	buf := d.image.Read(addr, arm64InstLen)

	inst, err := arm64asm.Decode(buf)
	if err != nil {
		return Instruction{}, fmt.Errorf("%w at %#x: %v", ErrDecode, addr, err)
	}

	mnemonic := inst.Op.String()
	var operands []string
	for i, arg := range inst.Args {
		if arg == nil {
			break
		}
		// B.cond carries its condition as the first argument.
		if cond, ok := arg.(arm64asm.Cond); ok && i == 0 && inst.Op == arm64asm.B {
			mnemonic += "." + cond.String()
			continue
		}
		if rel, ok := arg.(arm64asm.PCRel); ok {
			operands = append(operands, fmt.Sprintf("%#x", addr+uint64(int64(rel))))
			continue
		}
		operands = append(operands, arg.String())
	}

	return Instruction{
		Address:  addr,
		Length:   arm64InstLen,
		Mnemonic: mnemonic,
		Operands: strings.Join(operands, ", "),
		Raw:      buf,
	}, nil
}
