package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupe-re/loupe/internal/engine/arch"
	"github.com/loupe-re/loupe/internal/engine/memory"
	"github.com/loupe-re/loupe/internal/testutil"
	decompv1 "github.com/loupe-re/loupe/loupe/decomp/v1"
	"github.com/loupe-re/loupe/loupe/decomp/v1/decompv1connect"
)

func newTestServer(t *testing.T) *Server {
	return New(arch.Builtin(), Config{}, testutil.NewTestLogger(t))
}

func load(t *testing.T, srv *Server, content []byte, base uint64, spec string) *decompv1.LoadBinaryResponse {
	t.Helper()
	resp, err := srv.LoadBinary(context.Background(), connect.NewRequest(&decompv1.LoadBinaryRequest{
		BinaryContent: content,
		BaseAddress:   base,
		ArchSpec:      spec,
	}))
	require.NoError(t, err)
	return resp.Msg
}

func TestServer_Ping(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Ping(context.Background(), connect.NewRequest(&decompv1.PingRequest{}))
	require.NoError(t, err)
	assert.True(t, resp.Msg.Alive)
}

func TestServer_PingWhileBusy(t *testing.T) {
	srv := newTestServer(t)

	srv.mu.Lock()
	defer srv.mu.Unlock()

	resp, err := srv.Ping(context.Background(), connect.NewRequest(&decompv1.PingRequest{}))
	require.NoError(t, err)
	assert.True(t, resp.Msg.Alive)
}

func TestServer_LoadBinary(t *testing.T) {
	ctx := context.Background()

	t.Run("successful load", func(t *testing.T) {
		srv := newTestServer(t)
		msg := load(t, srv, testutil.X64Add, 0x1000, "x86:LE:64:default")
		assert.True(t, msg.Success)
		assert.Empty(t, msg.ErrorMessage)
		assert.True(t, srv.Loaded())
	})

	t.Run("empty arch spec defaults to x86-64", func(t *testing.T) {
		srv := newTestServer(t)
		msg := load(t, srv, testutil.X64Add, 0x1000, "")
		require.True(t, msg.Success)
		assert.Equal(t, "x86:LE:64:default", srv.session.arch.Spec().String())
	})

	t.Run("empty content clears previous session", func(t *testing.T) {
		srv := newTestServer(t)
		require.True(t, load(t, srv, testutil.X64Add, 0x1000, "").Success)

		msg := load(t, srv, nil, 0x1000, "")
		assert.False(t, msg.Success)
		assert.Equal(t, "binary content is empty", msg.ErrorMessage)
		assert.False(t, srv.Loaded())

		ping, err := srv.Ping(ctx, connect.NewRequest(&decompv1.PingRequest{}))
		require.NoError(t, err)
		assert.True(t, ping.Msg.Alive)
	})

	t.Run("unsupported language", func(t *testing.T) {
		srv := newTestServer(t)
		msg := load(t, srv, testutil.X64Add, 0, "MIPS:BE:32:default")
		assert.False(t, msg.Success)
		assert.Contains(t, msg.ErrorMessage, "unsupported language")
		assert.False(t, srv.Loaded())
	})

	t.Run("malformed language id", func(t *testing.T) {
		srv := newTestServer(t)
		msg := load(t, srv, testutil.X64Add, 0, "x86")
		assert.False(t, msg.Success)
		assert.NotEmpty(t, msg.ErrorMessage)
	})

	t.Run("missing spec directory", func(t *testing.T) {
		srv := newTestServer(t)
		resp, err := srv.LoadBinary(ctx, connect.NewRequest(&decompv1.LoadBinaryRequest{
			BinaryContent: testutil.X64Add,
			SlaPath:       t.TempDir() + "/nope",
		}))
		require.NoError(t, err)
		assert.False(t, resp.Msg.Success)
		assert.Contains(t, resp.Msg.ErrorMessage, "specification directory")
	})
}

func TestServer_DecompileFunction(t *testing.T) {
	ctx := context.Background()

	t.Run("not loaded", func(t *testing.T) {
		srv := newTestServer(t)
		resp, err := srv.DecompileFunction(ctx, connect.NewRequest(&decompv1.DecompileRequest{Address: 0x1000}))
		require.NoError(t, err)
		assert.False(t, resp.Msg.Success)
		assert.Equal(t, "binary not loaded", resp.Msg.ErrorMessage)
	})

	t.Run("entry function", func(t *testing.T) {
		srv := newTestServer(t)
		require.True(t, load(t, srv, testutil.X64Add, 0x140001000, "").Success)

		resp, err := srv.DecompileFunction(ctx, connect.NewRequest(&decompv1.DecompileRequest{Address: 0x140001000}))
		require.NoError(t, err)
		require.True(t, resp.Msg.Success, resp.Msg.ErrorMessage)

		assert.Equal(t, "func_140001000()", resp.Msg.Signature)
		assert.Contains(t, resp.Msg.CCode, "func_140001000")
		require.Len(t, resp.Msg.Blocks, 1)

		block := resp.Msg.Blocks[0]
		assert.Equal(t, uint64(0x140001000), block.ID)
		assert.Equal(t, uint64(0x140001000), block.StartAddr)
		assert.Equal(t, uint64(0x14000100a), block.EndAddr)
		require.Len(t, block.Instructions, 6)
		assert.Equal(t, "PUSH", block.Instructions[0].Mnemonic)
		assert.Equal(t, []byte{0x55}, block.Instructions[0].RawBytes)
		assert.Equal(t, "RET", block.Instructions[5].Mnemonic)
	})

	t.Run("repeated decompile is stable", func(t *testing.T) {
		srv := newTestServer(t)
		require.True(t, load(t, srv, testutil.X64Add, 0x1000, "").Success)

		first, err := srv.DecompileFunction(ctx, connect.NewRequest(&decompv1.DecompileRequest{Address: 0x1000}))
		require.NoError(t, err)
		second, err := srv.DecompileFunction(ctx, connect.NewRequest(&decompv1.DecompileRequest{Address: 0x1000}))
		require.NoError(t, err)

		assert.Equal(t, first.Msg, second.Msg)
		assert.Equal(t, 2, srv.session.functions[0x1000].Analyses)
	})

	t.Run("address outside image", func(t *testing.T) {
		srv := newTestServer(t)
		require.True(t, load(t, srv, testutil.X64Add, 0x1000, "").Success)

		// Zero-filled memory decodes as ADD [rax], al until the limit.
		resp, err := srv.DecompileFunction(ctx, connect.NewRequest(&decompv1.DecompileRequest{Address: 0x9000}))
		require.NoError(t, err)
		require.True(t, resp.Msg.Success)
		assert.Len(t, resp.Msg.Blocks[0].Instructions, 200)
	})
}

// panicArch decodes every address as RET and panics when asked to render.
type panicArch struct{ spec arch.Spec }

func (a panicArch) Spec() arch.Spec { return a.spec }
func (a panicArch) DecodeOne(addr uint64) (arch.Instruction, error) {
	return arch.Instruction{Address: addr, Length: 1, Mnemonic: "RET"}, nil
}
func (a panicArch) RenderFunction(*arch.Function, *arch.BasicBlock) (arch.Source, error) {
	panic("analysis blew up")
}
func (a panicArch) ClearAnalysis(uint64) {}

func TestServer_DecompileFunction_RecoversPanic(t *testing.T) {
	factory := arch.FactoryFunc(func(spec arch.Spec, _ *memory.Image, _ arch.Options) (arch.Architecture, error) {
		return panicArch{spec: spec}, nil
	})
	srv := New(factory, Config{}, testutil.NewTestLogger(t))
	require.True(t, load(t, srv, []byte{0xc3}, 0, "").Success)

	resp, err := srv.DecompileFunction(context.Background(), connect.NewRequest(&decompv1.DecompileRequest{Address: 0}))
	require.NoError(t, err)
	assert.False(t, resp.Msg.Success)
	assert.Contains(t, resp.Msg.ErrorMessage, "analysis blew up")
	assert.True(t, srv.Loaded())
}

func TestServer_DisassembleRange(t *testing.T) {
	ctx := context.Background()

	t.Run("not loaded", func(t *testing.T) {
		srv := newTestServer(t)
		resp, err := srv.DisassembleRange(ctx, connect.NewRequest(&decompv1.DisassembleRequest{Start: 0, End: 16}))
		require.NoError(t, err)
		assert.False(t, resp.Msg.Success)
		assert.NotEmpty(t, resp.Msg.ErrorMessage)
		assert.Empty(t, resp.Msg.Instructions)
	})

	srv := newTestServer(t)
	require.True(t, load(t, srv, testutil.X64Pair, 0x1000, "").Success)

	t.Run("covers range", func(t *testing.T) {
		resp, err := srv.DisassembleRange(ctx, connect.NewRequest(&decompv1.DisassembleRequest{Start: 0x1000, End: 0x100a}))
		require.NoError(t, err)
		require.True(t, resp.Msg.Success)
		require.Len(t, resp.Msg.Instructions, 6)

		next := uint64(0x1000)
		for _, inst := range resp.Msg.Instructions {
			assert.Equal(t, next, inst.Address)
			next += uint64(inst.Length)
		}
		assert.Equal(t, uint64(0x100a), next)
	})

	t.Run("inverted range", func(t *testing.T) {
		resp, err := srv.DisassembleRange(ctx, connect.NewRequest(&decompv1.DisassembleRequest{Start: 0x1010, End: 0x1000}))
		require.NoError(t, err)
		assert.False(t, resp.Msg.Success)
		assert.Contains(t, resp.Msg.ErrorMessage, "invalid range")
	})

	t.Run("range too large", func(t *testing.T) {
		resp, err := srv.DisassembleRange(ctx, connect.NewRequest(&decompv1.DisassembleRequest{Start: 0, End: 1 << 40}))
		require.NoError(t, err)
		assert.False(t, resp.Msg.Success)
		assert.Contains(t, resp.Msg.ErrorMessage, "exceeds limit")
	})
}

func TestServer_DisassembleRange_InstructionCap(t *testing.T) {
	srv := New(arch.Builtin(), Config{MaxDisassembleInstructions: 3}, testutil.NewTestLogger(t))
	require.True(t, load(t, srv, testutil.X64Add, 0x1000, "").Success)

	resp, err := srv.DisassembleRange(context.Background(), connect.NewRequest(&decompv1.DisassembleRequest{Start: 0x1000, End: 0x100a}))
	require.NoError(t, err)
	require.True(t, resp.Msg.Success)
	assert.Len(t, resp.Msg.Instructions, 3)
}

func TestServer_DisassembleRange_BadBytes(t *testing.T) {
	factory := arch.FactoryFunc(func(spec arch.Spec, img *memory.Image, _ arch.Options) (arch.Architecture, error) {
		return undecodable{spec: spec}, nil
	})
	srv := New(factory, Config{}, testutil.NewTestLogger(t))
	require.True(t, load(t, srv, []byte{0xde, 0xad, 0xbe}, 0x10, "").Success)

	resp, err := srv.DisassembleRange(context.Background(), connect.NewRequest(&decompv1.DisassembleRequest{Start: 0x10, End: 0x13}))
	require.NoError(t, err)
	require.True(t, resp.Msg.Success)
	require.Len(t, resp.Msg.Instructions, 3)
	for i, inst := range resp.Msg.Instructions {
		assert.Equal(t, "(bad)", inst.Mnemonic)
		assert.Equal(t, uint32(1), inst.Length)
		assert.Equal(t, uint64(0x10+i), inst.Address)
	}
	assert.Equal(t, []byte{0xad}, resp.Msg.Instructions[1].RawBytes)
}

type undecodable struct{ spec arch.Spec }

func (u undecodable) Spec() arch.Spec { return u.spec }
func (u undecodable) DecodeOne(uint64) (arch.Instruction, error) {
	return arch.Instruction{}, arch.ErrDecode
}
func (u undecodable) RenderFunction(*arch.Function, *arch.BasicBlock) (arch.Source, error) {
	return arch.Source{}, arch.ErrDecode
}
func (u undecodable) ClearAnalysis(uint64) {}

func TestServer_OverHTTP(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := decompv1connect.NewDecompilerServiceClient(http.DefaultClient, ts.URL)
	ctx := context.Background()

	ping, err := client.Ping(ctx, connect.NewRequest(&decompv1.PingRequest{}))
	require.NoError(t, err)
	assert.True(t, ping.Msg.Alive)

	loaded, err := client.LoadBinary(ctx, connect.NewRequest(&decompv1.LoadBinaryRequest{
		BinaryContent: testutil.X64Add,
		BaseAddress:   0x1000,
	}))
	require.NoError(t, err)
	require.True(t, loaded.Msg.Success)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.DecompileFunction(ctx, connect.NewRequest(&decompv1.DecompileRequest{Address: 0x1000}))
			if assert.NoError(t, err) {
				assert.True(t, resp.Msg.Success)
				assert.Equal(t, "func_1000()", resp.Msg.Signature)
			}
		}()
	}
	wg.Wait()

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestServer_Listen(t *testing.T) {
	srv := newTestServer(t)
	hs, err := srv.Listen("127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- hs.Serve() }()

	client := decompv1connect.NewDecompilerServiceClient(http.DefaultClient, "http://"+hs.Addr())
	ping, err := client.Ping(context.Background(), connect.NewRequest(&decompv1.PingRequest{}))
	require.NoError(t, err)
	assert.True(t, ping.Msg.Alive)

	require.NoError(t, hs.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}

func TestServer_DefaultSpecDir(t *testing.T) {
	srv := New(arch.Builtin(), Config{SpecDir: "/nonexistent/specs"}, testutil.NewTestLogger(t))

	msg := load(t, srv, testutil.X64Add, 0x1000, "x86:LE:64:default")
	assert.False(t, msg.Success)
	assert.Contains(t, msg.ErrorMessage, "/nonexistent/specs")

	resp, err := srv.LoadBinary(context.Background(), connect.NewRequest(&decompv1.LoadBinaryRequest{
		BinaryContent: testutil.X64Add,
		BaseAddress:   0x1000,
		ArchSpec:      "x86:LE:64:default",
		SlaPath:       t.TempDir(),
	}))
	require.NoError(t, err)
	assert.True(t, resp.Msg.Success, resp.Msg.ErrorMessage)
}
