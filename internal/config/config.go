// Package config loads daemon defaults from FSBROWSE_* environment variables.
// Command-line flags are applied on top by main.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, e.g. FSBROWSE_DB_PATH.
const Prefix = "FSBROWSE"

// Config holds all daemon configuration. The groups are embedded so their
// variables stay directly under Prefix (FSBROWSE_DB_PATH, not
// FSBROWSE_SNAPSHOT_DB_PATH).
type Config struct {
	ServerConfig
	BrowseConfig
	SnapshotConfig
	Verbose bool `envconfig:"VERBOSE" default:"false"`
}

// ServerConfig holds listener configuration.
type ServerConfig struct {
	SocketPath string `envconfig:"SOCKET_PATH" default:"/var/run/fsbrowse.sock"`
	Listen     string `envconfig:"LISTEN" default:""`
}

// BrowseConfig tunes the tree walker.
type BrowseConfig struct {
	Strict   bool `envconfig:"STRICT" default:"false"`
	Parallel bool `envconfig:"PARALLEL" default:"false"`
	Workers  int  `envconfig:"WORKERS" default:"0"`
}

// SnapshotConfig holds snapshot store configuration.
type SnapshotConfig struct {
	DBPath        string `envconfig:"DB_PATH" default:"/tmp/fsbrowse.db"`
	KeepSnapshots int    `envconfig:"KEEP_SNAPSHOTS" default:"10"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("failed to load config: %s_WORKERS must not be negative", Prefix)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ServerConfig: ServerConfig{
			SocketPath: "/var/run/fsbrowse.sock",
		},
		SnapshotConfig: SnapshotConfig{
			DBPath:        "/tmp/fsbrowse.db",
			KeepSnapshots: 10,
		},
	}
}

// LoadOrDefault is Load, except that an invalid environment yields Default
// together with the error so the caller can report it and carry on.
func LoadOrDefault() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return Default(), err
	}
	return cfg, nil
}
