package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte("server_port: 5000\nrender_distance: 16\n"), 0o644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5000, cfg.ServerPort)
	require.Equal(t, 16, cfg.RenderDistance)
	// untouched keys keep defaults
	require.Equal(t, int32(32), cfg.ChunkSize)
	require.Equal(t, int32(96), cfg.ChunkSizeY)
}

func TestValidateRejectsBadValues(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.ServerPort = -1 },
		func(c *Config) { c.ServerPort = 65535 },
		func(c *Config) { c.ChunkSize = -1 },
		func(c *Config) { c.RenderDistance = 0 },
		func(c *Config) { c.TickRate = 0 },
		func(c *Config) { c.MaxCachedMeshes = 0 },
	} {
		cfg := Default()
		mutate(&cfg)
		require.Error(t, cfg.Validate())
	}
}

func TestDatagramPort(t *testing.T) {
	cfg := Default()
	require.Equal(t, cfg.ServerPort+1, cfg.DatagramPort())

	cfg.ServerPort = 0
	require.Equal(t, 0, cfg.DatagramPort(), "ephemeral tcp port pairs with ephemeral udp port")
}
