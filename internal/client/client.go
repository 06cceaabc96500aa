// Package client provides a typed client for the decompiler engine.
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/loupe-re/loupe/internal/constants"
	"github.com/loupe-re/loupe/internal/errors"
	decompv1 "github.com/loupe-re/loupe/loupe/decomp/v1"
	"github.com/loupe-re/loupe/loupe/decomp/v1/decompv1connect"
)

// API is the set of engine operations the session layer depends on.
type API interface {
	Ping(ctx context.Context) (bool, error)
	LoadBinary(ctx context.Context, req *LoadRequest) error
	DecompileFunction(ctx context.Context, address uint64) (*FunctionResult, error)
	DisassembleRange(ctx context.Context, start, end uint64) ([]Instruction, error)
}

// Timeouts bounds each class of call. A zero value disables the bound.
type Timeouts struct {
	Health    time.Duration
	RPC       time.Duration
	Decompile time.Duration
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Health:    constants.DefaultHealthTimeout,
		RPC:       constants.DefaultRPCTimeout,
		Decompile: constants.DefaultDecompileTimeout,
	}
}

// Client wraps the decompiler service client.
type Client struct {
	client   decompv1connect.DecompilerServiceClient
	endpoint string
	timeouts Timeouts
}

// Ensure Client implements the API interface.
var _ API = (*Client)(nil)

// New creates a new engine client for endpoint, e.g. http://127.0.0.1:50051.
func New(endpoint string, timeouts Timeouts) *Client {
	return NewWithHTTPClient(http.DefaultClient, endpoint, timeouts)
}

// NewWithHTTPClient creates a new engine client using httpClient.
func NewWithHTTPClient(httpClient connect.HTTPClient, endpoint string, timeouts Timeouts) *Client {
	return &Client{
		client:   decompv1connect.NewDecompilerServiceClient(httpClient, endpoint),
		endpoint: endpoint,
		timeouts: timeouts,
	}
}

// Endpoint returns the engine base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// LoadRequest describes a binary to load into the engine.
type LoadRequest struct {
	Content     []byte
	BaseAddress uint64
	// ArchSpec is a processor:endian:bits:variant language id. Empty means
	// x86:LE:64:default.
	ArchSpec string
	// SpecDir optionally points the engine at language specification files.
	SpecDir string
}

// Instruction is a single decoded machine instruction.
type Instruction struct {
	Address  uint64
	Length   uint32
	Mnemonic string
	Operands string
	Raw      []byte
}

// Text returns "mnemonic operands".
func (i Instruction) Text() string {
	if i.Operands == "" {
		return i.Mnemonic
	}
	return i.Mnemonic + " " + i.Operands
}

// BasicBlock is a straight-line run of instructions.
type BasicBlock struct {
	ID           uint64
	StartAddr    uint64
	EndAddr      uint64
	Instructions []Instruction
}

// FunctionResult is the engine's output for one function. It is never
// modified after it is returned.
type FunctionResult struct {
	Address      uint64
	Success      bool
	Signature    string
	Code         string
	Blocks       []BasicBlock
	ErrorMessage string
}

// Ping checks the engine is alive.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	ctx, cancel := withTimeout(ctx, c.timeouts.Health)
	defer cancel()

	resp, err := c.client.Ping(ctx, connect.NewRequest(&decompv1.PingRequest{}))
	if err != nil {
		return false, errors.Wrap(errors.KindTransport, "ping", err)
	}
	return resp.Msg.Alive, nil
}

// LoadBinary replaces the engine's loaded binary.
func (c *Client) LoadBinary(ctx context.Context, req *LoadRequest) error {
	if req == nil {
		return errors.New(errors.KindInvalidArgument, "load_binary", "missing load request")
	}

	ctx, cancel := withTimeout(ctx, c.timeouts.RPC)
	defer cancel()

	resp, err := c.client.LoadBinary(ctx, connect.NewRequest(&decompv1.LoadBinaryRequest{
		BinaryContent: req.Content,
		BaseAddress:   req.BaseAddress,
		ArchSpec:      req.ArchSpec,
		SlaPath:       req.SpecDir,
	}))
	if err != nil {
		return errors.Wrap(errors.KindTransport, "load_binary", err)
	}
	if !resp.Msg.Success {
		return errors.New(errors.KindLoad, "load_binary", resp.Msg.ErrorMessage)
	}
	return nil
}

// DecompileFunction decompiles the function at address. When the engine
// reports a failure the partial result is returned along with the error.
func (c *Client) DecompileFunction(ctx context.Context, address uint64) (*FunctionResult, error) {
	ctx, cancel := withTimeout(ctx, c.timeouts.Decompile)
	defer cancel()

	op := fmt.Sprintf("decompile %#x", address)
	resp, err := c.client.DecompileFunction(ctx, connect.NewRequest(&decompv1.DecompileRequest{
		Address: address,
	}))
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, op, err)
	}

	result := &FunctionResult{
		Address:      address,
		Success:      resp.Msg.Success,
		Signature:    resp.Msg.Signature,
		Code:         resp.Msg.CCode,
		Blocks:       fromProtoBlocks(resp.Msg.Blocks),
		ErrorMessage: resp.Msg.ErrorMessage,
	}
	if !resp.Msg.Success {
		return result, errors.New(failureKind(resp.Msg.ErrorMessage, errors.KindAnalysis), op, resp.Msg.ErrorMessage)
	}
	return result, nil
}

// DisassembleRange returns a flat listing of [start, end).
func (c *Client) DisassembleRange(ctx context.Context, start, end uint64) ([]Instruction, error) {
	op := fmt.Sprintf("disassemble [%#x, %#x)", start, end)
	if start >= end {
		return nil, errors.New(errors.KindInvalidArgument, op, "start must be below end")
	}

	ctx, cancel := withTimeout(ctx, c.timeouts.RPC)
	defer cancel()

	resp, err := c.client.DisassembleRange(ctx, connect.NewRequest(&decompv1.DisassembleRequest{
		Start: start,
		End:   end,
	}))
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, op, err)
	}
	if !resp.Msg.Success {
		return nil, errors.New(failureKind(resp.Msg.ErrorMessage, errors.KindAnalysis), op, resp.Msg.ErrorMessage)
	}
	return fromProtoInstructions(resp.Msg.Instructions), nil
}

// notLoadedMessage is the engine's response when no binary is loaded.
const notLoadedMessage = "binary not loaded"

func failureKind(message string, fallback errors.Kind) errors.Kind {
	if message == notLoadedMessage {
		return errors.KindNotLoaded
	}
	return fallback
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func fromProtoBlocks(in []*decompv1.BasicBlock) []BasicBlock {
	out := make([]BasicBlock, 0, len(in))
	for _, b := range in {
		if b == nil {
			continue
		}
		out = append(out, BasicBlock{
			ID:           b.ID,
			StartAddr:    b.StartAddr,
			EndAddr:      b.EndAddr,
			Instructions: fromProtoInstructions(b.Instructions),
		})
	}
	return out
}

func fromProtoInstructions(in []*decompv1.Instruction) []Instruction {
	out := make([]Instruction, 0, len(in))
	for _, inst := range in {
		if inst == nil {
			continue
		}
		out = append(out, Instruction{
			Address:  inst.Address,
			Length:   inst.Length,
			Mnemonic: inst.Mnemonic,
			Operands: inst.Operands,
			Raw:      inst.RawBytes,
		})
	}
	return out
}
