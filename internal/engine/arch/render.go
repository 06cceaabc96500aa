package arch

import (
	"errors"
	"fmt"
	"strings"
)

// renderListing produces a C skeleton for fn whose body is the entry block's
// instructions as inline assembly. Returns become return statements.
func renderListing(spec Spec, fn *Function, entry *BasicBlock) (Source, error) {
	if entry == nil || len(entry.Instructions) == 0 {
		return Source{}, errors.New("no instructions decoded at function entry")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "// %s @ %#x (%s)\n", fn.Name, fn.Address, spec)
	fmt.Fprintf(&b, "void %s(void)\n{\n", fn.Name)

	terminated := false
	for _, inst := range entry.Instructions {
		if isReturn(inst.Mnemonic) {
			fmt.Fprintf(&b, "  return;  // %#x\n", inst.Address)
			terminated = true
			break
		}
		fmt.Fprintf(&b, "  __asm__(%q);  // %#x\n", strings.ToLower(inst.Text()), inst.Address)
	}
	if !terminated {
		fmt.Fprintf(&b, "  // listing truncated at %#x\n", entry.EndAddr)
	}
	b.WriteString("}\n")

	return Source{
		Signature: fn.Name + "()",
		Code:      b.String(),
	}, nil
}

func isReturn(mnemonic string) bool {
	switch strings.ToUpper(mnemonic) {
	case "RET", "RETF", "LRET", "RETAA", "RETAB":
		return true
	}
	return false
}
