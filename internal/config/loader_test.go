package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupe-re/loupe/internal/constants"
)

func TestLoader_SaveAndLoad(t *testing.T) {
	loader := &Loader{homeDir: t.TempDir()}

	cfg := DefaultConfig()
	cfg.Engine.Address = "127.0.0.1:6000"
	cfg.Engine.Spawn = false
	cfg.Engine.SpecDir = "/opt/loupe/specs"
	cfg.Session.MaxRetries = 9
	cfg.Cache.Size = 128

	require.NoError(t, loader.Save(cfg))

	path := filepath.Join(loader.homeDir, constants.DefaultDir, constants.ConfigFile)
	assert.Equal(t, path, loader.ConfigPath())
	assert.FileExists(t, path)

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoader_LoadMissingFileReturnsDefaults(t *testing.T) {
	loader := &Loader{homeDir: t.TempDir()}

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoader_PartialFileKeepsDefaults(t *testing.T) {
	loader := &Loader{homeDir: t.TempDir()}
	path := loader.ConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  rpc_timeout: 3s\ncache:\n  size: 64\n"), 0o644))

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Engine.RPCTimeout)
	assert.Equal(t, 64, cfg.Cache.Size)
	assert.Equal(t, DefaultConfig().Engine.Address, cfg.Engine.Address)
	assert.True(t, cfg.Engine.Spawn)
	assert.Equal(t, constants.DefaultMaxRetries, cfg.Session.MaxRetries)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	loader := &Loader{homeDir: t.TempDir()}
	cfg := DefaultConfig()
	cfg.Engine.Address = "127.0.0.1:6000"
	require.NoError(t, loader.Save(cfg))

	t.Setenv("LOUPE_ENGINE_ADDRESS", "127.0.0.1:7000")

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", loaded.Engine.Address)
}

func TestLoader_InvalidYAML(t *testing.T) {
	loader := &Loader{homeDir: t.TempDir()}
	path := loader.ConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("engine: [not, a, map"), 0o644))

	_, err := loader.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestNewLoader_ConfigDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(constants.ConfigDirEnv, dir)

	loader := NewLoader()
	assert.Equal(t, filepath.Join(dir, constants.DefaultDir, constants.ConfigFile), loader.ConfigPath())
}
