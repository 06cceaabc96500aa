package status

import (
	"context"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupe-re/loupe/internal/config"
)

func TestProvider_CollectNotRunning(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	cfg := config.DefaultConfig()
	cfg.Engine.Address = addr
	cfg.Engine.BinaryPath = "/nonexistent/loupe-engine"

	info := NewProvider(cfg, "/tmp/config.yaml", zerolog.Nop()).Collect(context.Background())

	assert.Equal(t, "/tmp/config.yaml", info.ConfigPath)
	assert.Equal(t, addr, info.Address)
	assert.True(t, info.Spawn)
	assert.False(t, info.Running)
	assert.False(t, info.Alive)
	assert.Nil(t, info.Process)
	assert.Empty(t, info.EnginePath)
	assert.Contains(t, info.EnginePathError, "/nonexistent/loupe-engine")
	assert.Equal(t, "dev", info.Version)
}
