// Package session keeps a decompilation session alive across engine
// failures.
//
// A Manager owns the connection to the engine, the result cache and a copy
// of the last loaded binary. When a call fails with a transport error the
// Manager reconnects with backoff, replays the binary into the new engine,
// re-decompiles the function the user was last looking at, and retries the
// failed call once.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/loupe-re/loupe/internal/client"
	"github.com/loupe-re/loupe/internal/client/cache"
	"github.com/loupe-re/loupe/internal/errors"
	"github.com/loupe-re/loupe/internal/retry"
)

// Connector reaches a running engine, starting one if it is configured to.
type Connector interface {
	Connect(ctx context.Context) (client.API, error)
}

// ExitNotifier is implemented by connectors that supervise the engine
// process. Exited returns a channel closed when the current process exits,
// or nil when no process is supervised.
type ExitNotifier interface {
	Exited() <-chan struct{}
}

// Config configures a Manager.
type Config struct {
	Retry     retry.Config
	CacheSize int
}

// Manager is a fault-tolerant decompilation session.
type Manager struct {
	connector Connector
	cache     *cache.Cache
	retryCfg  retry.Config
	logger    zerolog.Logger

	// lifetime bounds recovery; it ends on Close.
	lifetime context.Context
	stop     context.CancelFunc

	stateMu     sync.RWMutex
	state       State
	api         client.API
	everOnline  bool
	closed      bool
	subscribers []chan StateChange

	// loadMu orders loads before later engine calls. LoadBinary and replay
	// hold it exclusively; decompile and disassemble RPCs hold it shared.
	loadMu sync.RWMutex

	binMu      sync.Mutex
	last       *Binary
	lastViewed *uint64

	recovery singleflight.Group
}

// New creates a Manager. It does not connect; call Connect or make any call.
func New(connector Connector, cfg Config, logger zerolog.Logger) (*Manager, error) {
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialBackoff == 0 {
		cfg.Retry = retry.DefaultConfig()
	}

	m := &Manager{
		connector: connector,
		retryCfg:  cfg.Retry,
		logger:    logger.With().Str("component", "session").Logger(),
		state:     StateDisconnected,
	}

	c, err := cache.New(cfg.CacheSize, logger, cache.WithBarrier(m.loadMu.RLocker()))
	if err != nil {
		return nil, err
	}
	m.cache = c
	m.lifetime, m.stop = context.WithCancel(context.Background())

	m.retryCfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		m.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Engine not reachable, retrying")
	}
	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// Subscribe returns a channel receiving every state change. Slow
// subscribers miss changes rather than block the session. The channel is
// closed by Close.
func (m *Manager) Subscribe() <-chan StateChange {
	ch := make(chan StateChange, 16)

	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.closed {
		close(ch)
		return ch
	}
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Binary returns the binary the session replays after a reconnect, or nil.
func (m *Manager) Binary() *Binary {
	m.binMu.Lock()
	defer m.binMu.Unlock()
	return m.last
}

// CacheStats returns the result cache counters.
func (m *Manager) CacheStats() cache.Stats {
	return m.cache.Stats()
}

// Generation returns the identity of the current engine session.
func (m *Manager) Generation() string {
	return m.cache.Generation()
}

// ClearCache drops every cached result without reloading.
func (m *Manager) ClearCache() {
	m.cache.Reset(m.cache.Generation())
}

// Connect establishes the initial engine connection.
func (m *Manager) Connect(ctx context.Context) error {
	_, err := m.ready(ctx)
	return err
}

// Reset leaves the Failed state and reconnects.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.transition(EventReset, nil); err != nil {
		return err
	}
	return m.Connect(ctx)
}

// Close stops recovery and closes subscriber channels.
func (m *Manager) Close() error {
	m.stop()

	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	return nil
}

// Ping checks the engine is alive, reconnecting if needed.
func (m *Manager) Ping(ctx context.Context) (bool, error) {
	var alive bool
	err := m.withRecovery(ctx, func(api client.API) error {
		var err error
		alive, err = api.Ping(ctx)
		return err
	})
	return alive, err
}

// LoadBinary loads bin into the engine, replacing any loaded binary, and
// starts a new cache generation.
func (m *Manager) LoadBinary(ctx context.Context, bin *Binary) error {
	if bin == nil {
		return errors.New(errors.KindInvalidArgument, "load_binary", "missing binary")
	}
	return m.withRecovery(ctx, func(api client.API) error {
		m.loadMu.Lock()
		defer m.loadMu.Unlock()
		return m.loadLocked(ctx, api, bin, false)
	})
}

// EnsureLoaded loads bin unless the engine already holds a binary with the
// same fingerprint.
func (m *Manager) EnsureLoaded(ctx context.Context, bin *Binary) error {
	if current := m.Binary(); current != nil && bin != nil && current.ID() == bin.ID() && m.State() == StateConnected {
		m.logger.Debug().Str("binary", bin.Path).Msg("Binary already loaded")
		return nil
	}
	return m.LoadBinary(ctx, bin)
}

// loadLocked sends bin to the engine. The caller holds loadMu exclusively.
func (m *Manager) loadLocked(ctx context.Context, api client.API, bin *Binary, replay bool) error {
	err := api.LoadBinary(ctx, bin.loadRequest())
	if errors.IsKind(err, errors.KindLoad) {
		// The engine discards its previous session before loading.
		m.setBinary(nil, false)
		m.cache.Reset(uuid.NewString())
		return err
	}
	if err != nil {
		return err
	}

	generation := uuid.NewString()
	m.cache.Reset(generation)
	m.setBinary(bin, replay)

	m.logger.Info().
		Str("binary", bin.Path).
		Int("size", len(bin.Data)).
		Str("base_address", fmt.Sprintf("%#x", bin.BaseAddress)).
		Str("arch_spec", bin.ArchSpec).
		Str("generation", generation).
		Bool("replay", replay).
		Msg("Binary loaded")
	return nil
}

func (m *Manager) setBinary(bin *Binary, keepViewed bool) {
	m.binMu.Lock()
	defer m.binMu.Unlock()
	m.last = bin
	if !keepViewed {
		m.lastViewed = nil
	}
}

// Decompile returns the function at address, from the cache when possible.
func (m *Manager) Decompile(ctx context.Context, address uint64) (*client.FunctionResult, error) {
	var result *client.FunctionResult
	err := m.withRecovery(ctx, func(api client.API) error {
		var err error
		result, err = m.cache.GetOrCompute(ctx, address, m.decompileFunc(api, address))
		return err
	})
	if err == nil {
		m.binMu.Lock()
		m.lastViewed = &address
		m.binMu.Unlock()
	}
	return result, err
}

func (m *Manager) decompileFunc(api client.API, address uint64) cache.ComputeFunc {
	// The cache holds loadMu shared around the call.
	return func(ctx context.Context) (*client.FunctionResult, error) {
		return api.DecompileFunction(ctx, address)
	}
}

// Disassemble returns a flat listing of [start, end).
func (m *Manager) Disassemble(ctx context.Context, start, end uint64) ([]client.Instruction, error) {
	var insts []client.Instruction
	err := m.withRecovery(ctx, func(api client.API) error {
		m.loadMu.RLock()
		defer m.loadMu.RUnlock()

		var err error
		insts, err = api.DisassembleRange(ctx, start, end)
		return err
	})
	return insts, err
}

// withRecovery runs call against the current engine. Losing the engine
// triggers recovery, after which call is retried once.
func (m *Manager) withRecovery(ctx context.Context, call func(api client.API) error) error {
	api, err := m.ready(ctx)
	if err != nil {
		return err
	}

	err = call(api)
	if !m.engineLost(err) || ctx.Err() != nil {
		return err
	}

	m.logger.Warn().Err(err).Msg("Engine call failed, recovering session")
	if rerr := m.recover(ctx, api, err); rerr != nil {
		return rerr
	}

	api, err = m.ready(ctx)
	if err != nil {
		return err
	}
	return call(api)
}

// engineLost reports whether err means the engine the session was using is
// gone. An engine that answers "not loaded" while the session holds a binary
// was restarted behind the same address.
func (m *Manager) engineLost(err error) bool {
	if errors.IsKind(err, errors.KindTransport) {
		return true
	}
	return errors.IsKind(err, errors.KindNotLoaded) && m.Binary() != nil
}

// ready returns the connected engine, recovering first when there is none.
func (m *Manager) ready(ctx context.Context) (client.API, error) {
	m.stateMu.RLock()
	state, api := m.state, m.api
	m.stateMu.RUnlock()

	switch state {
	case StateConnected:
		return api, nil
	case StateFailed:
		return nil, errors.New(errors.KindUnavailable, "session", "engine unavailable; reset the session to retry")
	}

	if err := m.recover(ctx, nil, nil); err != nil {
		return nil, err
	}

	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	if m.state != StateConnected {
		return nil, errors.New(errors.KindUnavailable, "session", fmt.Sprintf("engine %s", m.state))
	}
	return m.api, nil
}

// recover runs one recovery shared by every caller that observed failed.
// A caller whose ctx ends stops waiting; recovery continues until Close.
func (m *Manager) recover(ctx context.Context, failed client.API, cause error) error {
	ch := m.recovery.DoChan("recover", func() (any, error) {
		return nil, m.runRecovery(failed, cause)
	})

	select {
	case <-ctx.Done():
		return errors.Wrap(errors.KindTransport, "recover", ctx.Err())
	case r := <-ch:
		return r.Err
	}
}

func (m *Manager) runRecovery(failed client.API, cause error) error {
	ctx := m.lifetime

	m.stateMu.RLock()
	state, current := m.state, m.api
	m.stateMu.RUnlock()

	switch state {
	case StateConnected:
		if failed == nil || current != failed {
			// Another caller already recovered.
			return nil
		}
		if err := m.transition(EventCallFailed, cause); err != nil {
			return err
		}
	case StateFailed:
		return errors.New(errors.KindUnavailable, "recover", "engine unavailable; reset the session to retry")
	}

	m.setAPI(nil)

	var api client.API
	err := retry.Do(ctx, m.retryCfg, func(ctx context.Context, attempt int) error {
		a, err := m.connector.Connect(ctx)
		if err != nil {
			return err
		}
		alive, err := a.Ping(ctx)
		if err != nil {
			return err
		}
		if !alive {
			return errors.New(errors.KindTransport, "ping", "engine reported not alive")
		}
		api = a
		return nil
	}, nil)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(errors.KindTransport, "reconnect", err)
		}
		_ = m.transition(EventExhausted, err)
		return errors.Wrap(errors.KindUnavailable, "reconnect", err)
	}

	connected := EventReconnected
	m.stateMu.RLock()
	if !m.everOnline {
		connected = EventConnected
	}
	m.stateMu.RUnlock()
	if err := m.transition(connected, nil); err != nil {
		return err
	}

	bin := m.Binary()
	if bin == nil {
		m.setAPI(api)
		return m.transition(EventNothingToReplay, nil)
	}

	if err := m.transition(EventReplayNeeded, nil); err != nil {
		return err
	}

	m.loadMu.Lock()
	err = m.loadLocked(ctx, api, bin, true)
	m.loadMu.Unlock()
	if err != nil {
		if ctx.Err() != nil {
			_ = m.transition(EventInterrupted, err)
			return errors.Wrap(errors.KindTransport, "replay", err)
		}
		_ = m.transition(EventReplayFailed, err)
		return errors.Wrap(errors.KindUnavailable, "replay", err)
	}

	m.setAPI(api)
	m.refreshLastViewed(ctx, api)
	return m.transition(EventReplaySucceeded, nil)
}

// refreshLastViewed re-decompiles the function the user was looking at so
// it is cached again before the session reports Connected.
func (m *Manager) refreshLastViewed(ctx context.Context, api client.API) {
	m.binMu.Lock()
	viewed := m.lastViewed
	m.binMu.Unlock()
	if viewed == nil {
		return
	}

	address := *viewed
	if _, err := m.cache.GetOrCompute(ctx, address, m.decompileFunc(api, address)); err != nil {
		m.logger.Warn().
			Err(err).
			Str("address", fmt.Sprintf("%#x", address)).
			Msg("Failed to refresh last viewed function")
	}
}

func (m *Manager) setAPI(api client.API) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.api = api
}

// transition applies event and notifies subscribers.
func (m *Manager) transition(event Event, cause error) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	from := m.state
	to, err := Next(from, event)
	if err != nil {
		m.logger.Error().
			Str("state", from.String()).
			Str("event", event.String()).
			Msg("Rejected state transition")
		return err
	}
	m.state = to
	if to == StateConnected {
		m.everOnline = true
	}

	log := m.logger.Info()
	if cause != nil {
		log = m.logger.Warn().Err(cause)
	}
	log.Str("old_state", from.String()).
		Str("new_state", to.String()).
		Str("event", event.String()).
		Msg("Session state changed")

	change := StateChange{From: from, To: to, Event: event, Err: cause, At: time.Now()}
	for _, ch := range m.subscribers {
		select {
		case ch <- change:
		default:
			m.logger.Debug().Str("new_state", to.String()).Msg("Subscriber lagging, state change dropped")
		}
	}
	return nil
}
