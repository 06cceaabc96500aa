// Package blocks assembles basic blocks by linear sweep.
//
// The builder produces one block per function: it decodes forward from the
// entry and stops at the first unconditional return or jump. Conditional
// branch targets are not followed.
package blocks

import (
	"strings"

	"github.com/loupe-re/loupe/internal/engine/arch"
)

// DefaultLimit caps the number of instructions in one block.
const DefaultLimit = 200

// Decoder decodes a single instruction.
type Decoder interface {
	DecodeOne(addr uint64) (arch.Instruction, error)
}

// StopReason records why a sweep ended.
type StopReason int

const (
	// StopDecodeFailed means the decoder returned an error or a zero-length instruction.
	StopDecodeFailed StopReason = iota
	// StopLimit means the instruction cap was reached.
	StopLimit
	// StopTerminator means an unconditional return or jump ended the block.
	StopTerminator
)

// String returns a human-readable representation of the stop reason.
func (r StopReason) String() string {
	switch r {
	case StopDecodeFailed:
		return "decode_failed"
	case StopLimit:
		return "limit"
	case StopTerminator:
		return "terminator"
	default:
		return "unknown"
	}
}

// Result is a built block plus the reason the sweep stopped.
type Result struct {
	Block  arch.BasicBlock
	Reason StopReason
	// Err is the decoder error when Reason is StopDecodeFailed.
	Err error
}

// Builder runs linear sweeps over a Decoder.
type Builder struct {
	decoder    Decoder
	limit      int
	terminates func(arch.Instruction) bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithLimit sets the instruction cap. Values below one are ignored.
func WithLimit(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.limit = n
		}
	}
}

// WithTerminator replaces the mnemonic-based terminator check.
func WithTerminator(fn func(arch.Instruction) bool) Option {
	return func(b *Builder) {
		if fn != nil {
			b.terminates = fn
		}
	}
}

// NewBuilder creates a builder over decoder.
func NewBuilder(decoder Decoder, opts ...Option) *Builder {
	b := &Builder{
		decoder: decoder,
		limit:   DefaultLimit,
		terminates: func(inst arch.Instruction) bool {
			return IsTerminator(inst.Mnemonic)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Limit returns the configured instruction cap.
func (b *Builder) Limit() int { return b.limit }

// Build sweeps from entry and returns the entry block. EndAddr always equals
// StartAddr plus the summed lengths of the block's instructions.
func (b *Builder) Build(entry uint64) Result {
	block := arch.BasicBlock{
		ID:        entry,
		StartAddr: entry,
	}
	cursor := entry

	for {
		inst, err := b.decoder.DecodeOne(cursor)
		if err != nil || inst.Length <= 0 {
			block.EndAddr = cursor
			return Result{Block: block, Reason: StopDecodeFailed, Err: err}
		}

		block.Instructions = append(block.Instructions, inst)
		cursor += uint64(inst.Length)

		if len(block.Instructions) >= b.limit {
			block.EndAddr = cursor
			return Result{Block: block, Reason: StopLimit}
		}
		if b.terminates(inst) {
			block.EndAddr = cursor
			return Result{Block: block, Reason: StopTerminator}
		}
	}
}

// terminators are the mnemonics that unconditionally leave a block. AArch64
// conditional branches are rendered as B.<cond> and so never match "B".
var terminators = map[string]struct{}{
	// x86
	"RET": {}, "RETF": {}, "LRET": {}, "IRET": {}, "IRETD": {}, "IRETQ": {},
	"JMP": {}, "LJMP": {}, "HLT": {}, "UD2": {}, "SYSRET": {}, "SYSEXIT": {},
	// AArch64
	"RETAA": {}, "RETAB": {}, "B": {}, "BR": {}, "BRAA": {}, "BRAAZ": {},
	"BRAB": {}, "BRABZ": {}, "ERET": {}, "ERETAA": {}, "ERETAB": {},
}

// IsTerminator reports whether mnemonic is an unconditional return or jump.
func IsTerminator(mnemonic string) bool {
	_, ok := terminators[strings.ToUpper(strings.TrimSpace(mnemonic))]
	return ok
}
