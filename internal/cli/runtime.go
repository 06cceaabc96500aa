package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/loupe-re/loupe/internal/cli/helpers"
	"github.com/loupe-re/loupe/internal/client"
	"github.com/loupe-re/loupe/internal/config"
	"github.com/loupe-re/loupe/internal/engine/host"
	"github.com/loupe-re/loupe/internal/loader"
	"github.com/loupe-re/loupe/internal/logging"
	"github.com/loupe-re/loupe/internal/retry"
	"github.com/loupe-re/loupe/internal/session"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	engineAddr string
	enginePath string
	noSpawn    bool
	keepEngine bool
	logLevel   string
}

func (o *globalOptions) addFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.engineAddr, "engine", "", "Engine address host:port (default from config)")
	flags.StringVar(&o.enginePath, "engine-path", "", "Path to the loupe-engine executable")
	flags.BoolVar(&o.noSpawn, "no-spawn", false, "Only attach to a running engine, never start one")
	flags.BoolVar(&o.keepEngine, "keep-engine", false, "Leave a started engine running on exit")
	flags.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig loads the config file and environment, then applies flags.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		return nil, err
	}

	if o.engineAddr != "" {
		cfg.Engine.Address = o.engineAddr
	}
	if o.enginePath != "" {
		cfg.Engine.BinaryPath = o.enginePath
	}
	if o.noSpawn {
		cfg.Engine.Spawn = false
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (o *globalOptions) logger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
}

// engineRuntime bundles the objects a command needs to talk to the engine.
type engineRuntime struct {
	cfg        *config.Config
	logger     zerolog.Logger
	supervisor *host.Supervisor
	manager    *session.Manager
	keepEngine bool
}

// open builds the supervisor and session manager and connects.
func (o *globalOptions) open(ctx context.Context) (*engineRuntime, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return openRuntime(ctx, cfg, o.logger(cfg), o.keepEngine)
}

func openRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger, keepEngine bool) (*engineRuntime, error) {
	sup := host.NewSupervisor(hostConfig(cfg), logger)

	m, err := session.New(sup, sessionConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	rt := &engineRuntime{
		cfg:        cfg,
		logger:     logger,
		supervisor: sup,
		manager:    m,
		keepEngine: keepEngine,
	}

	if err := m.Connect(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to connect to engine at %s: %w", cfg.Engine.Address, err)
	}

	// Returns when the manager is closed.
	go m.RunHealthCheck(context.Background(), cfg.Session.HealthInterval)

	return rt, nil
}

// Close ends the session and stops the engine if this process started it.
func (r *engineRuntime) Close() {
	_ = r.manager.Close()

	if r.keepEngine {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Engine.StartTimeout)
	defer cancel()
	if err := r.supervisor.Stop(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to stop engine")
	}
}

// load reads path and loads it into the engine.
func (r *engineRuntime) load(ctx context.Context, path string, flags helpers.BinaryFlags) (*loader.Image, error) {
	img, err := loadImage(path, flags)
	if err != nil {
		return nil, err
	}

	if err := r.manager.LoadBinary(ctx, img.Binary(r.cfg.Engine.SpecDir)); err != nil {
		return nil, err
	}
	return img, nil
}

func loadImage(path string, flags helpers.BinaryFlags) (*loader.Image, error) {
	opts := loader.Options{ArchSpec: flags.Arch, Raw: flags.Raw}
	if flags.Base != "" {
		base, err := helpers.ParseAddress(flags.Base, nil)
		if err != nil {
			return nil, fmt.Errorf("--base: %w", err)
		}
		opts.BaseAddress = &base
	}
	return loader.Load(path, opts)
}

func hostConfig(cfg *config.Config) host.Config {
	return host.Config{
		Address:      cfg.Engine.Address,
		Spawn:        cfg.Engine.Spawn,
		BinaryPath:   cfg.Engine.BinaryPath,
		Args:         []string{"--block-limit", strconv.Itoa(cfg.Engine.BlockLimit)},
		StartTimeout: cfg.Engine.StartTimeout,
		Timeouts: client.Timeouts{
			Health:    cfg.Engine.HealthTimeout,
			RPC:       cfg.Engine.RPCTimeout,
			Decompile: cfg.Engine.DecompileTimeout,
		},
	}
}

func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Retry: retry.Config{
			MaxRetries:     cfg.Session.MaxRetries,
			InitialBackoff: cfg.Session.InitialBackoff,
			MaxBackoff:     cfg.Session.MaxBackoff,
			Jitter:         cfg.Session.Jitter,
		},
		CacheSize: cfg.Cache.Size,
	}
}
