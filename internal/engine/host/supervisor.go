package host

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/loupe-re/loupe/internal/client"
	"github.com/loupe-re/loupe/internal/constants"
	"github.com/loupe-re/loupe/internal/errors"
)

// Config configures a Supervisor.
type Config struct {
	// Address is the host:port the engine listens on.
	Address string
	// Spawn starts the engine when nothing is listening on Address.
	Spawn bool
	// BinaryPath overrides engine discovery.
	BinaryPath string
	// Args are appended to "serve --listen ADDR".
	Args []string
	// Env is appended to the current environment for the engine process.
	Env []string
	// StartTimeout bounds how long a spawned engine has to start listening.
	StartTimeout time.Duration
	// Timeouts are passed to the engine client.
	Timeouts client.Timeouts
}

// Supervisor connects to the engine, starting and watching it as needed.
// It implements session.Connector and session.ExitNotifier.
type Supervisor struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(cfg Config, logger zerolog.Logger) *Supervisor {
	if cfg.Address == "" {
		cfg.Address = net.JoinHostPort(constants.DefaultEngineHost, strconv.Itoa(constants.DefaultEnginePort))
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = constants.DefaultConnectTimeout
	}
	return &Supervisor{
		cfg:    cfg,
		logger: logger.With().Str("component", "engine-host").Logger(),
	}
}

// Endpoint returns the engine base URL.
func (s *Supervisor) Endpoint() string {
	return "http://" + s.cfg.Address
}

// Connect returns a client for the engine. When nothing listens on the
// configured address and Spawn is set, a new engine process is started.
func (s *Supervisor) Connect(ctx context.Context) (client.API, error) {
	if s.reachable(ctx) {
		s.forgetExited()
		return client.New(s.Endpoint(), s.cfg.Timeouts), nil
	}
	if !s.cfg.Spawn {
		return nil, errors.New(errors.KindTransport, "connect",
			fmt.Sprintf("no engine listening on %s", s.cfg.Address))
	}

	exited, err := s.spawn()
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, "spawn", err)
	}

	if err := s.waitListening(ctx, exited); err != nil {
		return nil, errors.Wrap(errors.KindTransport, "spawn", err)
	}
	return client.New(s.Endpoint(), s.cfg.Timeouts), nil
}

// Exited returns a channel closed when the supervised process exits, or nil
// when no process has been started.
func (s *Supervisor) Exited() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}

// forgetExited drops a dead process so that an engine started by someone
// else is not reported as exited.
func (s *Supervisor) forgetExited() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exited != nil && isClosed(s.exited) {
		s.cmd = nil
		s.exited = nil
	}
}

// PID returns the supervised process id, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

func (s *Supervisor) spawn() (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil && !isClosed(s.exited) {
		// Started but not listening yet, or wedged. Replace it.
		s.logger.Warn().Int("pid", s.cmd.Process.Pid).Msg("Killing unresponsive engine process")
		_ = s.cmd.Process.Kill()
		<-s.exited
	}

	path, err := Locate(s.cfg.BinaryPath)
	if err != nil {
		return nil, err
	}

	args := append([]string{"serve", "--listen", s.cfg.Address}, s.cfg.Args...)
	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Stdout = &logWriter{logger: s.logger, level: zerolog.InfoLevel}
	cmd.Stderr = &logWriter{logger: s.logger, level: zerolog.WarnLevel}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine process: %w", err)
	}

	exited := make(chan struct{})
	s.cmd = cmd
	s.exited = exited

	s.logger.Info().
		Str("binary_path", path).
		Int("pid", cmd.Process.Pid).
		Str("address", s.cfg.Address).
		Msg("Engine process started")

	go s.monitor(cmd, exited)

	return exited, nil
}

// monitor waits for cmd to exit and closes exited.
func (s *Supervisor) monitor(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()
	close(exited)

	if err != nil {
		s.logger.Error().Err(err).Int("pid", cmd.Process.Pid).Msg("Engine process exited unexpectedly")
		return
	}
	s.logger.Info().Int("pid", cmd.Process.Pid).Msg("Engine process exited")
}

func (s *Supervisor) waitListening(ctx context.Context, exited <-chan struct{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StartTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.reachable(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("engine did not start listening on %s: %w", s.cfg.Address, ctx.Err())
		case <-exited:
			return fmt.Errorf("engine process exited before listening on %s", s.cfg.Address)
		case <-ticker.C:
		}
	}
}

// Stop terminates the supervised process, if any, and waits for it.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	cmd, exited := s.cmd, s.exited
	s.mu.Unlock()

	if cmd == nil || isClosed(exited) {
		return nil
	}

	s.logger.Info().Int("pid", cmd.Process.Pid).Msg("Stopping engine process")
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill engine process: %w", err)
		}
		<-exited
		return nil
	}
}

func (s *Supervisor) reachable(ctx context.Context) bool {
	d := net.Dialer{Timeout: 250 * time.Millisecond}
	conn, err := d.DialContext(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return false
	}
	defer errors.DeferClose(s.logger, conn, "failed to close probe connection")
	return true
}

func isClosed(ch <-chan struct{}) bool {
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// logWriter adapts the engine's stdout/stderr to zerolog.
type logWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func (w *logWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if len(msg) == 0 {
		return 0, nil
	}
	if msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}
	w.logger.WithLevel(w.level).Str("source", "engine").Msg(msg)
	return len(p), nil
}
