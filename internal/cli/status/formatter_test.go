package status

import (
	"bytes"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{15*time.Minute + 30*time.Second, "15m 30s"},
		{5*time.Hour + 20*time.Minute, "5h 20m"},
		{51 * time.Hour, "2d 3h"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatUptime(tt.duration))
		})
	}
}

func TestOutputTable(t *testing.T) {
	running := &Info{
		ConfigPath:    "/home/me/.loupe/config.yaml",
		Address:       "127.0.0.1:50051",
		Spawn:         true,
		EnginePath:    "/usr/local/bin/loupe-engine",
		Running:       true,
		Alive:         true,
		LatencyMicros: 250,
		Version:       "dev",
		Process: &ProcessInfo{
			PID:           4242,
			RSSBytes:      48 << 20,
			MemoryPercent: 0.3,
			CPUPercent:    1.5,
			Threads:       12,
			StartedAt:     time.Now().Add(-90 * time.Second),
			UptimeSeconds: 90,
		},
	}

	tests := []struct {
		name     string
		info     *Info
		verbose  bool
		contains []string
		excludes []string
	}{
		{
			name: "running engine",
			info: running,
			contains: []string{
				"Engine:    127.0.0.1:50051 (start on demand)",
				"Binary:    /usr/local/bin/loupe-engine",
				"Status:    running (alive, ping 250µs)",
				"PID:       4242",
				"Uptime:    1m 30s",
				"48 MiB RSS",
			},
			excludes: []string{"Threads:"},
		},
		{
			name:     "running engine verbose",
			info:     running,
			verbose:  true,
			contains: []string{"CPU:       1.5%", "Threads:   12"},
		},
		{
			name: "not running, attach only",
			info: &Info{
				Address:         "127.0.0.1:6000",
				EnginePathError: "loupe-engine not found",
				Version:         "dev",
			},
			contains: []string{
				"(attach only)",
				"Binary:    not found\n",
				"Status:    not running",
				"loupe-engine serve --listen 127.0.0.1:6000",
			},
			excludes: []string{"PID:"},
		},
		{
			name: "not running, verbose shows lookup error",
			info: &Info{
				Address:         "127.0.0.1:6000",
				Spawn:           true,
				EnginePathError: "loupe-engine not found",
			},
			verbose:  true,
			contains: []string{"not found (loupe-engine not found)", "started by the next command"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, OutputTable(&buf, tt.info, tt.verbose))
			out := buf.String()
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, OutputJSON(&buf, &Info{Address: "127.0.0.1:50051", Running: true, Alive: true}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "127.0.0.1:50051", decoded["address"])
	assert.Equal(t, true, decoded["alive"])
	assert.NotContains(t, decoded, "process")
}
