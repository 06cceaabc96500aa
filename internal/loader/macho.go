package loader

import (
	"bytes"
	"fmt"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
)

func machoArchSpec(cpu types.CPU) string {
	switch cpu {
	case types.CPUAmd64:
		return "x86:LE:64:default"
	case types.CPUArm64:
		return "AARCH64:LE:64:AppleSilicon"
	}
	return ""
}

func parseMachO(data []byte, maxSize int64) (*Image, error) {
	slice, err := thinSlice(data)
	if err != nil {
		return nil, err
	}

	m, err := macho.NewFile(bytes.NewReader(slice))
	if err != nil {
		return nil, err
	}
	defer m.Close()

	var segs []segment
	for _, seg := range m.Segments() {
		// __PAGEZERO reserves the low 4GiB and __LINKEDIT holds loader
		// metadata; neither contains code.
		if seg.Name == "__PAGEZERO" || seg.Name == "__LINKEDIT" {
			continue
		}
		segs = append(segs, segment{
			addr:    seg.Addr,
			memSize: seg.Memsz,
			data:    fileRange(slice, seg.Offset, seg.Filesz),
		})
	}

	flat, base, err := flatten(segs, maxSize)
	if err != nil {
		return nil, err
	}

	img := &Image{
		Data:        flat,
		BaseAddress: base,
		ArchSpec:    machoArchSpec(m.CPU),
		Symbols:     make(map[string]uint64),
	}
	if m.Symtab != nil {
		for _, sym := range m.Symtab.Syms {
			if sym.Value == 0 || sym.Name == "" || sym.Type.IsUndefinedSym() {
				continue
			}
			img.Symbols[sym.Name] = sym.Value
		}
	}
	if addr, ok := img.Symbols["_main"]; ok {
		img.Entry = addr
	}
	return img, nil
}

// thinSlice returns the first slice of a universal binary whose CPU the
// engine supports, or data itself for a thin binary.
func thinSlice(data []byte) ([]byte, error) {
	fat, err := macho.NewFatFile(bytes.NewReader(data))
	if err == macho.ErrNotFat {
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	defer fat.Close()

	for _, arch := range fat.Arches {
		if machoArchSpec(arch.CPU) == "" {
			continue
		}
		slice := fileRange(data, uint64(arch.Offset), uint64(arch.Size))
		if len(slice) != int(arch.Size) {
			return nil, fmt.Errorf("truncated %s slice", arch.CPU)
		}
		return slice, nil
	}
	return nil, fmt.Errorf("universal binary has no supported architecture")
}
