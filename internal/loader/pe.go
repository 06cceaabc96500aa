package loader

import (
	"bytes"
	"debug/pe"
	"fmt"
)

func parsePE(data []byte, maxSize int64) (*Image, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		imageBase     uint64
		entryRVA      uint32
		sizeOfHeaders uint32
	)
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		imageBase, entryRVA, sizeOfHeaders = oh.ImageBase, oh.AddressOfEntryPoint, oh.SizeOfHeaders
	case *pe.OptionalHeader32:
		imageBase, entryRVA, sizeOfHeaders = uint64(oh.ImageBase), oh.AddressOfEntryPoint, oh.SizeOfHeaders
	default:
		return nil, fmt.Errorf("missing optional header")
	}

	segs := []segment{{
		addr:    imageBase,
		memSize: uint64(sizeOfHeaders),
		data:    fileRange(data, 0, uint64(sizeOfHeaders)),
	}}
	for _, s := range f.Sections {
		memSize := uint64(s.VirtualSize)
		if memSize == 0 {
			memSize = uint64(s.Size)
		}
		segs = append(segs, segment{
			addr:    imageBase + uint64(s.VirtualAddress),
			memSize: memSize,
			data:    fileRange(data, uint64(s.Offset), uint64(s.Size)),
		})
	}

	flat, base, err := flatten(segs, maxSize)
	if err != nil {
		return nil, err
	}

	img := &Image{
		Data:        flat,
		BaseAddress: base,
		ArchSpec:    peArchSpec(f.Machine),
		Symbols:     make(map[string]uint64),
	}
	if entryRVA != 0 {
		img.Entry = imageBase + uint64(entryRVA)
	}

	for _, s := range f.Symbols {
		// Function symbols in COFF have a derived type of 0x20.
		if s.Type&0xf0 != 0x20 || s.SectionNumber <= 0 || int(s.SectionNumber) > len(f.Sections) {
			continue
		}
		sec := f.Sections[s.SectionNumber-1]
		img.Symbols[s.Name] = imageBase + uint64(sec.VirtualAddress) + uint64(s.Value)
	}
	return img, nil
}

func peArchSpec(machine uint16) string {
	switch machine {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return "x86:LE:64:default"
	case pe.IMAGE_FILE_MACHINE_I386:
		return "x86:LE:32:default"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return "AARCH64:LE:64:v8A"
	}
	return ""
}
