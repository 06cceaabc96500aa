// Package status collects and prints the state of the loupe environment.
package status

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/loupe-re/loupe/internal/client"
	"github.com/loupe-re/loupe/internal/config"
	"github.com/loupe-re/loupe/internal/engine/host"
	"github.com/loupe-re/loupe/pkg/version"
)

// Info is a snapshot of the loupe environment.
type Info struct {
	ConfigPath      string       `json:"config_path"`
	Address         string       `json:"address"`
	Spawn           bool         `json:"spawn"`
	EnginePath      string       `json:"engine_path,omitempty"`
	EnginePathError string       `json:"engine_path_error,omitempty"`
	Running         bool         `json:"running"`
	Alive           bool         `json:"alive"`
	LatencyMicros   int64        `json:"latency_us,omitempty"`
	Process         *ProcessInfo `json:"process,omitempty"`
	Version         string       `json:"version"`
}

// ProcessInfo describes the engine process.
type ProcessInfo struct {
	PID           int32     `json:"pid"`
	RSSBytes      uint64    `json:"rss_bytes"`
	MemoryPercent float64   `json:"memory_percent"`
	CPUPercent    float64   `json:"cpu_percent"`
	Threads       int32     `json:"threads"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

// Provider gathers status information. It never starts an engine.
type Provider struct {
	cfg        *config.Config
	configPath string
	logger     zerolog.Logger
}

// NewProvider creates a new status provider.
func NewProvider(cfg *config.Config, configPath string, logger zerolog.Logger) *Provider {
	return &Provider{cfg: cfg, configPath: configPath, logger: logger}
}

// Collect probes the configured engine address.
func (p *Provider) Collect(ctx context.Context) *Info {
	info := &Info{
		ConfigPath: p.configPath,
		Address:    p.cfg.Engine.Address,
		Spawn:      p.cfg.Engine.Spawn,
		Version:    version.Version,
	}

	if path, err := host.Locate(p.cfg.Engine.BinaryPath); err != nil {
		info.EnginePathError = err.Error()
	} else {
		info.EnginePath = path
	}

	hostCfg := host.Config{
		Address:  p.cfg.Engine.Address,
		Spawn:    false,
		Timeouts: hostTimeouts(p.cfg),
	}
	sup := host.NewSupervisor(hostCfg, p.logger)

	api, err := sup.Connect(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Engine not reachable")
		return info
	}
	info.Running = true

	start := time.Now()
	alive, err := api.Ping(ctx)
	if err == nil && alive {
		info.Alive = true
		info.LatencyMicros = time.Since(start).Microseconds()
	}

	stats, err := sup.Stats(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Engine process stats unavailable")
		return info
	}
	info.Process = &ProcessInfo{
		PID:           stats.PID,
		RSSBytes:      stats.RSSBytes,
		MemoryPercent: stats.MemoryPercent,
		CPUPercent:    stats.CPUPercent,
		Threads:       stats.Threads,
		StartedAt:     stats.StartedAt,
		UptimeSeconds: int64(stats.Uptime().Seconds()),
	}
	return info
}

func hostTimeouts(cfg *config.Config) client.Timeouts {
	return client.Timeouts{
		Health:    cfg.Engine.HealthTimeout,
		RPC:       cfg.Engine.RPCTimeout,
		Decompile: cfg.Engine.DecompileTimeout,
	}
}
