// Package decompv1 defines the messages exchanged between the loupe client
// and the decompiler engine process.
//
// Field names on the wire follow the snake_case naming of the service
// definition so that non-Go clients speaking the Connect JSON protocol can
// talk to the engine.
package decompv1

// DefaultArchSpec is the language id used when a LoadBinaryRequest leaves
// ArchSpec empty.
const DefaultArchSpec = "x86:LE:64:default"

// PingRequest is the liveness probe request.
type PingRequest struct{}

// PingResponse reports whether the engine is alive.
type PingResponse struct {
	Alive bool `json:"alive"`
}

// LoadBinaryRequest replaces the engine's loaded binary.
type LoadBinaryRequest struct {
	BinaryContent []byte `json:"binary_content"`
	BaseAddress   uint64 `json:"base_address"`
	ArchSpec      string `json:"arch_spec"`
	SlaPath       string `json:"sla_path,omitempty"`
}

// LoadBinaryResponse reports the outcome of a load.
type LoadBinaryResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// DecompileRequest asks for the function starting at Address.
type DecompileRequest struct {
	Address uint64 `json:"address"`
}

// DecompileResponse carries the rendered source and the function's blocks.
type DecompileResponse struct {
	Success      bool          `json:"success"`
	Signature    string        `json:"signature,omitempty"`
	CCode        string        `json:"c_code,omitempty"`
	Blocks       []*BasicBlock `json:"blocks"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// DisassembleRequest asks for a flat listing of [Start, End).
type DisassembleRequest struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// DisassembleResponse is the flat listing of a range.
type DisassembleResponse struct {
	Success      bool           `json:"success"`
	Instructions []*Instruction `json:"instructions"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// BasicBlock is a straight-line run of instructions.
type BasicBlock struct {
	ID           uint64         `json:"id"`
	StartAddr    uint64         `json:"start_addr"`
	EndAddr      uint64         `json:"end_addr"`
	Instructions []*Instruction `json:"instructions"`
}

// Instruction is a single decoded machine instruction.
type Instruction struct {
	Address  uint64 `json:"address"`
	Length   uint32 `json:"length"`
	Mnemonic string `json:"mnemonic"`
	Operands string `json:"operands"`
	RawBytes []byte `json:"raw_bytes"`
}
