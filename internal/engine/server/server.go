// Package server implements the DecompilerService on the engine side.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"

	"github.com/loupe-re/loupe/internal/constants"
	"github.com/loupe-re/loupe/internal/engine/arch"
	"github.com/loupe-re/loupe/internal/engine/blocks"
	"github.com/loupe-re/loupe/internal/engine/memory"
	"github.com/loupe-re/loupe/internal/errors"
	decompv1 "github.com/loupe-re/loupe/loupe/decomp/v1"
	"github.com/loupe-re/loupe/loupe/decomp/v1/decompv1connect"
)

// errNotLoaded is returned to callers that need a loaded binary.
const errNotLoaded = "binary not loaded"

// Config holds engine limits.
type Config struct {
	// BlockLimit caps the instructions in a function's entry block.
	BlockLimit int
	// MaxDisassembleBytes caps the size of a DisassembleRange request.
	MaxDisassembleBytes uint64
	// MaxDisassembleInstructions caps the instructions returned by one
	// DisassembleRange request.
	MaxDisassembleInstructions int
	// SpecDir is used when a LoadBinary request names no specification
	// directory.
	SpecDir string
}

// DefaultConfig returns the engine limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		BlockLimit:                 blocks.DefaultLimit,
		MaxDisassembleBytes:        constants.DefaultMaxDisassembleBytes,
		MaxDisassembleInstructions: constants.DefaultMaxDisassembleInstructions,
	}
}

// engineSession is the state derived from one loaded binary.
type engineSession struct {
	image     *memory.Image
	arch      arch.Architecture
	functions map[uint64]*arch.Function
}

// function returns the record for addr, creating it on first use.
func (s *engineSession) function(addr uint64) *arch.Function {
	fn, ok := s.functions[addr]
	if !ok {
		fn = &arch.Function{Address: addr, Name: fmt.Sprintf("func_%x", addr)}
		s.functions[addr] = fn
	}
	return fn
}

// Server implements the DecompilerService.
type Server struct {
	// mu serialises every operation that touches session. Ping does not
	// take it.
	mu      sync.Mutex
	session *engineSession

	factory arch.Factory
	config  Config
	logger  zerolog.Logger
}

// New creates a decompiler service backed by factory.
func New(factory arch.Factory, cfg Config, logger zerolog.Logger) *Server {
	def := DefaultConfig()
	if cfg.BlockLimit <= 0 {
		cfg.BlockLimit = def.BlockLimit
	}
	if cfg.MaxDisassembleBytes == 0 {
		cfg.MaxDisassembleBytes = def.MaxDisassembleBytes
	}
	if cfg.MaxDisassembleInstructions <= 0 {
		cfg.MaxDisassembleInstructions = def.MaxDisassembleInstructions
	}
	return &Server{
		factory: factory,
		config:  cfg,
		logger:  logger.With().Str("component", "decompiler").Logger(),
	}
}

// Ensure Server implements the DecompilerServiceHandler interface.
var _ decompv1connect.DecompilerServiceHandler = (*Server)(nil)

// Loaded reports whether a binary is currently loaded.
func (s *Server) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// Ping reports liveness.
func (s *Server) Ping(
	ctx context.Context,
	req *connect.Request[decompv1.PingRequest],
) (*connect.Response[decompv1.PingResponse], error) {
	return connect.NewResponse(&decompv1.PingResponse{Alive: true}), nil
}

// LoadBinary replaces the loaded binary. The previous session is discarded
// before the new one is built, so a failed load leaves nothing loaded.
func (s *Server) LoadBinary(
	ctx context.Context,
	req *connect.Request[decompv1.LoadBinaryRequest],
) (*connect.Response[decompv1.LoadBinaryResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		s.logger.Debug().Msg("Discarding previously loaded binary")
		s.session = nil
	}

	archSpec := req.Msg.ArchSpec
	if archSpec == "" {
		archSpec = decompv1.DefaultArchSpec
	}

	specDir := req.Msg.SlaPath
	if specDir == "" {
		specDir = s.config.SpecDir
	}

	session, err := s.load(req.Msg.BinaryContent, req.Msg.BaseAddress, archSpec, specDir)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Int("size", len(req.Msg.BinaryContent)).
			Str("arch_spec", archSpec).
			Msg("Binary load rejected")
		return connect.NewResponse(&decompv1.LoadBinaryResponse{
			Success:      false,
			ErrorMessage: err.Error(),
		}), nil
	}

	s.session = session

	s.logger.Info().
		Int("size", len(req.Msg.BinaryContent)).
		Str("base_address", fmt.Sprintf("%#x", req.Msg.BaseAddress)).
		Str("arch_spec", archSpec).
		Msg("Binary loaded")

	return connect.NewResponse(&decompv1.LoadBinaryResponse{Success: true}), nil
}

func (s *Server) load(content []byte, base uint64, archSpec, specDir string) (session *engineSession, err error) {
	defer errors.RecoverInto(&err, "load")

	if len(content) == 0 {
		return nil, stderrors.New("binary content is empty")
	}

	spec, err := arch.ParseSpec(archSpec)
	if err != nil {
		return nil, err
	}

	image := memory.NewImage(content, base)
	a, err := s.factory.New(spec, image, arch.Options{SpecDir: specDir})
	if err != nil {
		return nil, err
	}

	return &engineSession{
		image:     image,
		arch:      a,
		functions: make(map[uint64]*arch.Function),
	}, nil
}

// DecompileFunction analyses the function at the requested address.
func (s *Server) DecompileFunction(
	ctx context.Context,
	req *connect.Request[decompv1.DecompileRequest],
) (*connect.Response[decompv1.DecompileResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := req.Msg.Address
	if s.session == nil {
		return connect.NewResponse(&decompv1.DecompileResponse{
			Success:      false,
			Blocks:       []*decompv1.BasicBlock{},
			ErrorMessage: errNotLoaded,
		}), nil
	}

	src, result, err := s.decompile(s.session, addr)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("address", fmt.Sprintf("%#x", addr)).
			Msg("Decompilation failed")
		return connect.NewResponse(&decompv1.DecompileResponse{
			Success:      false,
			Blocks:       []*decompv1.BasicBlock{},
			ErrorMessage: err.Error(),
		}), nil
	}

	s.logger.Debug().
		Str("address", fmt.Sprintf("%#x", addr)).
		Int("instructions", len(result.Block.Instructions)).
		Str("stop_reason", result.Reason.String()).
		Msg("Function decompiled")

	return connect.NewResponse(&decompv1.DecompileResponse{
		Success:   true,
		Signature: src.Signature,
		CCode:     src.Code,
		Blocks:    []*decompv1.BasicBlock{toProtoBlock(result.Block)},
	}), nil
}

func (s *Server) decompile(session *engineSession, addr uint64) (src arch.Source, result blocks.Result, err error) {
	defer errors.RecoverInto(&err, "decompile")

	fn := session.function(addr)
	if fn.Analyses > 0 {
		session.arch.ClearAnalysis(addr)
	}

	result = blocks.NewBuilder(session.arch, blocks.WithLimit(s.config.BlockLimit)).Build(addr)

	src, err = session.arch.RenderFunction(fn, &result.Block)
	if err != nil {
		return arch.Source{}, blocks.Result{}, fmt.Errorf("decompile %#x: %w", addr, err)
	}
	fn.Analyses++

	return src, result, nil
}

// DisassembleRange returns a flat listing of [start, end).
func (s *Server) DisassembleRange(
	ctx context.Context,
	req *connect.Request[decompv1.DisassembleRequest],
) (*connect.Response[decompv1.DisassembleResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fail := func(msg string) (*connect.Response[decompv1.DisassembleResponse], error) {
		return connect.NewResponse(&decompv1.DisassembleResponse{
			Success:      false,
			Instructions: []*decompv1.Instruction{},
			ErrorMessage: msg,
		}), nil
	}

	if s.session == nil {
		return fail(errNotLoaded)
	}

	start, end := req.Msg.Start, req.Msg.End
	if start >= end {
		return fail(fmt.Sprintf("invalid range [%#x, %#x)", start, end))
	}
	if end-start > s.config.MaxDisassembleBytes {
		return fail(fmt.Sprintf("range of %d bytes exceeds limit of %d", end-start, s.config.MaxDisassembleBytes))
	}

	insts, err := s.disassemble(s.session, start, end)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("start", fmt.Sprintf("%#x", start)).
			Str("end", fmt.Sprintf("%#x", end)).
			Msg("Disassembly failed")
		return fail(err.Error())
	}

	return connect.NewResponse(&decompv1.DisassembleResponse{
		Success:      true,
		Instructions: insts,
	}), nil
}

func (s *Server) disassemble(session *engineSession, start, end uint64) (out []*decompv1.Instruction, err error) {
	defer errors.RecoverInto(&err, "disassemble")

	out = make([]*decompv1.Instruction, 0, 64)
	for cursor := start; cursor < end; {
		if len(out) >= s.config.MaxDisassembleInstructions {
			break
		}

		inst, decErr := session.arch.DecodeOne(cursor)
		if decErr != nil || inst.Length <= 0 {
			inst = arch.Instruction{
				Address:  cursor,
				Length:   1,
				Mnemonic: "(bad)",
				Raw:      session.image.Read(cursor, 1),
			}
		}
		out = append(out, toProtoInstruction(inst))

		next := cursor + uint64(inst.Length)
		if next <= cursor {
			break
		}
		cursor = next
	}
	return out, nil
}

func toProtoBlock(b arch.BasicBlock) *decompv1.BasicBlock {
	insts := make([]*decompv1.Instruction, 0, len(b.Instructions))
	for _, inst := range b.Instructions {
		insts = append(insts, toProtoInstruction(inst))
	}
	return &decompv1.BasicBlock{
		ID:           b.ID,
		StartAddr:    b.StartAddr,
		EndAddr:      b.EndAddr,
		Instructions: insts,
	}
}

func toProtoInstruction(inst arch.Instruction) *decompv1.Instruction {
	return &decompv1.Instruction{
		Address:  inst.Address,
		Length:   uint32(inst.Length),
		Mnemonic: inst.Mnemonic,
		Operands: inst.Operands,
		RawBytes: inst.Raw,
	}
}
