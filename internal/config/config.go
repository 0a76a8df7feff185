package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config holds the process-wide settings shared by the server and client.
// It is read once at startup and passed by value through constructors;
// nothing mutates it afterwards.
//
// Server and client may ship divergent values, but ServerPort, ChunkSize and
// ChunkSizeY must match across endpoints or the wire format falls apart.
type Config struct {
	ServerPort         int   `yaml:"server_port"`
	ChunkSize          int32 `yaml:"chunk_size"`
	ChunkSizeY         int32 `yaml:"chunk_size_y"`
	RenderDistance     int   `yaml:"render_distance"`
	SimulationDistance int   `yaml:"simulation_distance"`
	Step               int   `yaml:"step"`
	WorldSeed          int64 `yaml:"world_seed"`

	TickRate        int `yaml:"tick_rate"`
	MaxCachedMeshes int `yaml:"max_cached_meshes"`

	// MetricsPort exposes prometheus metrics when non-zero.
	MetricsPort int `yaml:"metrics_port"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		ServerPort:         42069,
		ChunkSize:          32,
		ChunkSizeY:         96,
		RenderDistance:     8,
		SimulationDistance: 6,
		Step:               1,
		WorldSeed:          1337,
		TickRate:           60,
		MaxCachedMeshes:    4096,
	}
}

// Load overlays the yaml file at path over Default. A missing path is not an
// error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the system cannot work with.
func (c Config) Validate() error {
	// port 0 binds ephemeral ports on both channels
	if c.ServerPort < 0 || c.ServerPort > 65534 {
		return fmt.Errorf("server_port %d out of range (datagram channel needs port+1)", c.ServerPort)
	}
	if c.ChunkSize <= 0 || c.ChunkSizeY <= 0 {
		return fmt.Errorf("chunk dimensions must be positive, got %dx%d", c.ChunkSize, c.ChunkSizeY)
	}
	if c.RenderDistance < 1 {
		return fmt.Errorf("render_distance must be at least 1, got %d", c.RenderDistance)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("tick_rate must be positive, got %d", c.TickRate)
	}
	if c.MaxCachedMeshes < 1 {
		return fmt.Errorf("max_cached_meshes must be positive, got %d", c.MaxCachedMeshes)
	}
	return nil
}

// DatagramPort returns the UDP port paired with the reliable channel.
func (c Config) DatagramPort() int {
	if c.ServerPort == 0 {
		return 0
	}
	return c.ServerPort + 1
}
