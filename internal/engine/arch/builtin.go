package arch

import (
	"fmt"
	"os"

	"github.com/loupe-re/loupe/internal/engine/memory"
)

// Builtin returns the Factory backed by golang.org/x/arch decoders and the
// listing renderer. It supports x86 (16, 32 and 64 bit) and AArch64, both
// little-endian.
func Builtin() Factory {
	return FactoryFunc(newBuiltin)
}

func newBuiltin(spec Spec, image *memory.Image, opts Options) (Architecture, error) {
	if opts.SpecDir != "" {
		info, err := os.Stat(opts.SpecDir)
		if err != nil {
			return nil, fmt.Errorf("specification directory %q: %w", opts.SpecDir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("specification path %q is not a directory", opts.SpecDir)
		}
	}

	if spec.Endian != "LE" {
		return nil, fmt.Errorf("%w: %s (only little-endian is supported)", ErrUnsupported, spec)
	}

	var dec decoder
	switch {
	case spec.Is("x86") && (spec.Bits == 16 || spec.Bits == 32 || spec.Bits == 64):
		dec = &x86Decoder{image: image, mode: spec.Bits}
	case spec.Is("AARCH64") && spec.Bits == 64:
		dec = &arm64Decoder{image: image}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, spec)
	}

	return &builtinArch{spec: spec, decoder: dec}, nil
}

// decoder decodes a single instruction from the memory image.
type decoder interface {
	decode(addr uint64) (Instruction, error)
}

// builtinArch pairs a decoder with the listing renderer. Rendering is a
// pure function of the entry block, so it keeps no per-function state.
type builtinArch struct {
	spec    Spec
	decoder decoder
}

func (a *builtinArch) Spec() Spec { return a.spec }

func (a *builtinArch) DecodeOne(addr uint64) (Instruction, error) {
	return a.decoder.decode(addr)
}

func (a *builtinArch) RenderFunction(fn *Function, entry *BasicBlock) (Source, error) {
	return renderListing(a.spec, fn, entry)
}

func (a *builtinArch) ClearAnalysis(uint64) {}
