// Package arch abstracts the decompiler engine behind a small capability
// interface: decode one instruction, render one function.
//
// The engine server only talks to an Architecture, so the orchestration
// layer can be exercised against a fake without linking a real decompiler.
package arch

import (
	"errors"

	"github.com/loupe-re/loupe/internal/engine/memory"
)

var (
	// ErrDecode is returned when no valid instruction starts at an address.
	ErrDecode = errors.New("cannot decode instruction")

	// ErrUnsupported is returned by a Factory for a language it cannot handle.
	ErrUnsupported = errors.New("unsupported language")
)

// Instruction is one decoded machine instruction.
type Instruction struct {
	Address  uint64
	Length   int
	Mnemonic string
	Operands string
	Raw      []byte
}

// End returns the address following the instruction.
func (i Instruction) End() uint64 {
	return i.Address + uint64(i.Length)
}

// Text returns "mnemonic operands".
func (i Instruction) Text() string {
	if i.Operands == "" {
		return i.Mnemonic
	}
	return i.Mnemonic + " " + i.Operands
}

// BasicBlock is a straight-line run of instructions. ID equals StartAddr for
// the entry block of a function.
type BasicBlock struct {
	ID           uint64
	StartAddr    uint64
	EndAddr      uint64
	Instructions []Instruction
}

// Function is the engine's record of a function being analysed.
type Function struct {
	Address uint64
	Name    string
	// Analyses counts completed analysis passes over this function.
	Analyses int
}

// Source is the rendered output for a function.
type Source struct {
	Signature string
	Code      string
}

// Architecture decodes and renders code for one loaded binary. Implementations
// are not safe for concurrent use; the engine server serialises access.
type Architecture interface {
	// Spec returns the language the architecture was built for.
	Spec() Spec

	// DecodeOne decodes the instruction at addr.
	DecodeOne(addr uint64) (Instruction, error)

	// RenderFunction runs the analysis pipeline for fn and renders source.
	// entry is the function's linear-sweep block.
	RenderFunction(fn *Function, entry *BasicBlock) (Source, error)

	// ClearAnalysis discards any analysis state kept for the function at addr.
	ClearAnalysis(addr uint64)
}

// Options are passed to a Factory when a binary is loaded.
type Options struct {
	// SpecDir optionally points at a directory holding language
	// specification files.
	SpecDir string
}

// Factory builds an Architecture for a language and memory image.
type Factory interface {
	New(spec Spec, image *memory.Image, opts Options) (Architecture, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(spec Spec, image *memory.Image, opts Options) (Architecture, error)

// New implements Factory.
func (f FactoryFunc) New(spec Spec, image *memory.Image, opts Options) (Architecture, error) {
	return f(spec, image, opts)
}
