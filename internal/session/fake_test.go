package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/loupe-re/loupe/internal/client"
	"github.com/loupe-re/loupe/internal/errors"
)

// fakeEngine simulates an engine process that can be killed and restarted.
// Connections made to one process stop working once it is killed.
type fakeEngine struct {
	mu          sync.Mutex
	up          bool
	restartable bool
	epoch       int
	loaded      *client.LoadRequest
	loads       []client.LoadRequest
	decompiles  map[uint64]int
	connects    int
	exited      chan struct{}
	rejectLoads bool

	// gate, when set, blocks DecompileFunction until closed.
	gate chan struct{}

	// loadGate, when set, blocks LoadBinary until closed. loadEntered
	// receives once per blocked load.
	loadGate    chan struct{}
	loadEntered chan struct{}

	// decompileBases records the base address of the binary each
	// successful decompile ran against.
	decompileBases []uint64
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		up:          true,
		restartable: true,
		decompiles:  make(map[uint64]int),
		exited:      make(chan struct{}),
	}
}

// kill terminates the current process; its state is lost.
func (e *fakeEngine) kill() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.up {
		return
	}
	e.up = false
	e.loaded = nil
	e.epoch++
	close(e.exited)
}

func (e *fakeEngine) setRestartable(ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restartable = ok
}

func (e *fakeEngine) setRejectLoads(ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejectLoads = ok
}

func (e *fakeEngine) decompileCount(addr uint64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decompiles[addr]
}

func (e *fakeEngine) connectCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connects
}

func (e *fakeEngine) setLoadGate(gate chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadGate = gate
	e.loadEntered = make(chan struct{}, 1)
}

func (e *fakeEngine) bases() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]uint64(nil), e.decompileBases...)
}

func (e *fakeEngine) totalDecompiles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, count := range e.decompiles {
		n += count
	}
	return n
}

func (e *fakeEngine) loadHistory() []client.LoadRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]client.LoadRequest(nil), e.loads...)
}

// Connect implements Connector. It restarts a killed engine when allowed.
func (e *fakeEngine) Connect(ctx context.Context) (client.API, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connects++

	if !e.up {
		if !e.restartable {
			return nil, errors.New(errors.KindTransport, "connect", "connection refused")
		}
		e.up = true
		e.exited = make(chan struct{})
	}
	return &fakeConn{engine: e, epoch: e.epoch}, nil
}

// Exited implements ExitNotifier.
func (e *fakeEngine) Exited() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exited
}

type fakeConn struct {
	engine *fakeEngine
	epoch  int
}

// checkLocked fails when the process this connection was made to is gone.
func (c *fakeConn) checkLocked(op string) error {
	if !c.engine.up || c.engine.epoch != c.epoch {
		return errors.New(errors.KindTransport, op, "connection reset by peer")
	}
	return nil
}

func (c *fakeConn) Ping(ctx context.Context) (bool, error) {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	if err := c.checkLocked("ping"); err != nil {
		return false, err
	}
	return true, nil
}

func (c *fakeConn) LoadBinary(ctx context.Context, req *client.LoadRequest) error {
	c.engine.mu.Lock()
	gate, entered := c.engine.loadGate, c.engine.loadEntered
	c.engine.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	if err := c.checkLocked("load_binary"); err != nil {
		return err
	}
	c.engine.loaded = nil
	c.engine.loads = append(c.engine.loads, *req)
	if len(req.Content) == 0 {
		return errors.New(errors.KindLoad, "load_binary", "binary content is empty")
	}
	if c.engine.rejectLoads {
		return errors.New(errors.KindLoad, "load_binary", "unsupported language")
	}
	loaded := *req
	c.engine.loaded = &loaded
	return nil
}

func (c *fakeConn) DecompileFunction(ctx context.Context, address uint64) (*client.FunctionResult, error) {
	c.engine.mu.Lock()
	gate := c.engine.gate
	c.engine.mu.Unlock()
	if gate != nil {
		<-gate
	}

	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	if err := c.checkLocked("decompile"); err != nil {
		return nil, err
	}
	if c.engine.loaded == nil {
		res := &client.FunctionResult{Address: address, ErrorMessage: "binary not loaded"}
		return res, errors.New(errors.KindNotLoaded, "decompile", res.ErrorMessage)
	}
	c.engine.decompiles[address]++
	c.engine.decompileBases = append(c.engine.decompileBases, c.engine.loaded.BaseAddress)
	return &client.FunctionResult{
		Address:   address,
		Success:   true,
		Signature: fmt.Sprintf("func_%x()", address),
		Blocks:    []client.BasicBlock{{ID: address, StartAddr: address, EndAddr: address + 1}},
	}, nil
}

func (c *fakeConn) DisassembleRange(ctx context.Context, start, end uint64) ([]client.Instruction, error) {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	if err := c.checkLocked("disassemble"); err != nil {
		return nil, err
	}
	if c.engine.loaded == nil {
		return nil, errors.New(errors.KindNotLoaded, "disassemble", "binary not loaded")
	}
	return []client.Instruction{{Address: start, Length: uint32(end - start), Mnemonic: "NOP"}}, nil
}
