// =============================================================================
// APPLICATION CONFIGURATION
// =============================================================================
//
// WHAT: The daemon's own settings, loaded from YAML with environment
// overrides applied in cmd/. The inference server pool lives in its own
// file (ServersFile) so operators can swap backends without touching the
// service config.
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// ListenAddr is the HTTP API listen address, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// ServersFile is the path to the YAML server pool file.
	ServersFile string `yaml:"servers_file"`

	// SweepInterval is the minimum gap between lazy reactivation sweeps
	// of inactive servers.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// MaxRetries bounds failover attempts per dispatched request.
	MaxRetries int `yaml:"max_retries"`

	// DefaultModel is used for jobs that do not pin a model.
	DefaultModel string `yaml:"default_model"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		ServersFile:     "ollama_servers.yaml",
		SweepInterval:   30 * time.Second,
		MaxRetries:      3,
		DefaultModel:    "gemma3",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
