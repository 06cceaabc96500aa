package arch

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"github.com/loupe-re/loupe/internal/engine/memory"
)

// x86MaxInstLen is the architectural limit on x86 instruction length.
const x86MaxInstLen = 15

type x86Decoder struct {
	image *memory.Image
	mode  int
}

func (d *x86Decoder) decode(addr uint64) (Instruction, error) {
	buf := d.image.Read(addr, x86MaxInstLen)

	inst, err := x86asm.Decode(buf, d.mode)
	if err != nil {
		return Instruction{}, fmt.Errorf("%w at %#x: %v", ErrDecode, addr, err)
	}
	if inst.Len <= 0 {
		return Instruction{}, fmt.Errorf("%w at %#x: zero-length decode", ErrDecode, addr)
	}

	mnemonic, operands := splitX86(inst, x86asm.IntelSyntax(inst, addr, nil))

	return Instruction{
		Address:  addr,
		Length:   inst.Len,
		Mnemonic: mnemonic,
		Operands: operands,
		Raw:      buf[:inst.Len],
	}, nil
}

// splitX86 returns the upper-case opcode name and the operand text that
// follows it in the Intel-syntax rendering. Prefixes such as "lock" or "rep"
// precede the opcode in text and are dropped from the operands.
func splitX86(inst x86asm.Inst, text string) (string, string) {
	mnemonic := strings.ToUpper(inst.Op.String())
	fields := strings.Fields(text)
	op := strings.ToLower(mnemonic)

	for i, f := range fields {
		if f == op {
			return mnemonic, strings.Join(fields[i+1:], " ")
		}
	}
	if len(fields) > 1 {
		return mnemonic, strings.Join(fields[1:], " ")
	}
	return mnemonic, ""
}
