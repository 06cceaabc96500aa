package loader

import (
	"bytes"
	"debug/elf"
)

func elfArchSpec(f *elf.File) string {
	endian := "LE"
	if f.Data == elf.ELFDATA2MSB {
		endian = "BE"
	}
	switch f.Machine {
	case elf.EM_X86_64:
		return "x86:" + endian + ":64:default"
	case elf.EM_386:
		return "x86:" + endian + ":32:default"
	case elf.EM_AARCH64:
		return "AARCH64:" + endian + ":64:v8A"
	}
	return ""
}

func parseELF(data []byte, maxSize int64) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var segs []segment
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		segs = append(segs, segment{
			addr:    p.Vaddr,
			memSize: p.Memsz,
			data:    fileRange(data, p.Off, p.Filesz),
		})
	}

	flat, base, err := flatten(segs, maxSize)
	if err != nil {
		return nil, err
	}

	img := &Image{
		Data:        flat,
		BaseAddress: base,
		ArchSpec:    elfArchSpec(f),
		Entry:       f.Entry,
		Symbols:     make(map[string]uint64),
	}

	// Stripped binaries have no symbol table.
	syms, _ := f.Symbols()
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) == elf.STT_FUNC && s.Value != 0 && s.Name != "" {
			img.Symbols[s.Name] = s.Value
		}
	}
	return img, nil
}
