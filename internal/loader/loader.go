// Package loader reads executables from disk and flattens their loadable
// segments into a single memory image for the engine.
package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/loupe-re/loupe/internal/constants"
	"github.com/loupe-re/loupe/internal/safe"
	"github.com/loupe-re/loupe/internal/session"
)

// Format identifies the container format of a binary.
type Format int

const (
	FormatRaw Format = iota
	FormatELF
	FormatPE
	FormatMachO
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatPE:
		return "pe"
	case FormatMachO:
		return "macho"
	default:
		return "raw"
	}
}

// Options control how a binary is loaded.
type Options struct {
	// ArchSpec overrides the detected language id. Required for raw images.
	ArchSpec string
	// BaseAddress overrides the detected base. Raw images default to 0.
	BaseAddress *uint64
	// Raw skips format detection.
	Raw bool
	// MaxSize caps the flattened image size. Zero means DefaultMaxBinarySize.
	MaxSize int64
}

// Image is a binary flattened into one contiguous span of memory.
type Image struct {
	Path        string
	Format      Format
	Data        []byte
	BaseAddress uint64
	ArchSpec    string
	// Entry is the program entry point, or 0 when unknown.
	Entry uint64
	// Symbols maps function names to addresses when the binary has them.
	Symbols map[string]uint64
}

// Lookup returns the address of a named symbol.
func (img *Image) Lookup(name string) (uint64, bool) {
	addr, ok := img.Symbols[name]
	return addr, ok
}

// Binary converts the image into a session binary.
func (img *Image) Binary(specDir string) *session.Binary {
	return &session.Binary{
		Path:        img.Path,
		Data:        img.Data,
		BaseAddress: img.BaseAddress,
		ArchSpec:    img.ArchSpec,
		SpecDir:     specDir,
	}
}

// Load reads and parses the binary at path.
func Load(path string, opts Options) (*Image, error) {
	data, err := safe.ReadFile(path, &safe.ReadOptions{
		MaxSize:       opts.maxSize(),
		AllowSymlinks: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read binary: %w", err)
	}
	return Parse(path, data, opts)
}

// Parse detects the format of data and flattens it.
func Parse(path string, data []byte, opts Options) (*Image, error) {
	format := FormatRaw
	if !opts.Raw {
		format = Detect(data)
	}

	var (
		img *Image
		err error
	)
	switch format {
	case FormatELF:
		img, err = parseELF(data, opts.maxSize())
	case FormatPE:
		img, err = parsePE(data, opts.maxSize())
	case FormatMachO:
		img, err = parseMachO(data, opts.maxSize())
	default:
		img = &Image{Data: data, ArchSpec: constants.DefaultArchSpec}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s binary %s: %w", format, path, err)
	}

	img.Path = path
	img.Format = format
	if opts.ArchSpec != "" {
		img.ArchSpec = opts.ArchSpec
	}
	if opts.BaseAddress != nil {
		img.BaseAddress = *opts.BaseAddress
	}
	if img.ArchSpec == "" {
		return nil, fmt.Errorf("cannot detect architecture of %s, pass an arch spec", path)
	}
	return img, nil
}

// Detect identifies the container format from the leading magic bytes.
func Detect(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte("\x7fELF")):
		return FormatELF
	case bytes.HasPrefix(data, []byte("MZ")):
		return FormatPE
	case len(data) >= 4 && isMachOMagic(binary.LittleEndian.Uint32(data)):
		return FormatMachO
	}
	return FormatRaw
}

func isMachOMagic(m uint32) bool {
	switch m {
	case 0xfeedface, 0xfeedfacf, 0xcefaedfe, 0xcffaedfe, 0xcafebabe, 0xbebafeca:
		return true
	}
	return false
}

func (o Options) maxSize() int64 {
	if o.MaxSize > 0 {
		return o.MaxSize
	}
	return constants.DefaultMaxBinarySize
}

// segment is one loadable region: memSize bytes at addr, the first
// len(data) of which come from the file.
type segment struct {
	addr    uint64
	memSize uint64
	data    []byte
}

// fileRange returns data[off:off+size] clamped to the file.
func fileRange(data []byte, off, size uint64) []byte {
	if off >= uint64(len(data)) {
		return nil
	}
	end := off + size
	if end > uint64(len(data)) || end < off {
		end = uint64(len(data))
	}
	return data[off:end]
}

// flatten lays segments out contiguously from the lowest address, zero
// filling gaps and bss.
func flatten(segs []segment, maxSize int64) ([]byte, uint64, error) {
	var live []segment
	for _, s := range segs {
		if s.memSize == 0 {
			continue
		}
		if uint64(len(s.data)) > s.memSize {
			s.data = s.data[:s.memSize]
		}
		live = append(live, s)
	}
	if len(live) == 0 {
		return nil, 0, fmt.Errorf("no loadable segments")
	}

	sort.Slice(live, func(i, j int) bool { return live[i].addr < live[j].addr })

	base := live[0].addr
	var top uint64
	for _, s := range live {
		if end := s.addr + s.memSize; end > top {
			top = end
		}
	}
	span := top - base
	if span > uint64(maxSize) {
		return nil, 0, fmt.Errorf("mapped image spans %d bytes, exceeds limit of %d", span, maxSize)
	}

	out := make([]byte, span)
	for _, s := range live {
		copy(out[s.addr-base:], s.data)
	}
	return out, base, nil
}
