// =============================================================================
// CLI CONFIGURATION - CONFIG FILE AND CONTEXT MANAGEMENT
// =============================================================================
//
// WHAT: Configuration for the pdfkm CLI:
//   - Multiple service contexts (like kubectl contexts)
//   - Config file (~/.pdfkm/config.yaml)
//   - Environment variable overrides (PDFKM_SERVER, PDFKM_CONTEXT)
//   - Command-line flag overrides
//
// PRECEDENCE (highest to lowest): flags, environment, config file, defaults.
//
// CONFIG FILE FORMAT (~/.pdfkm/config.yaml):
//
//   current-context: lab
//   contexts:
//     local:
//       server: http://localhost:8080
//     lab:
//       server: http://gpu-rack:8080
//       timeout: 120
//
// =============================================================================

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultServer is used when no context or flag names one.
const DefaultServer = "http://localhost:8080"

// Config represents the CLI configuration file.
type Config struct {
	// CurrentContext is the name of the active context.
	CurrentContext string `yaml:"current-context"`

	// Contexts maps context names to their configurations.
	Contexts map[string]*ContextConfig `yaml:"contexts"`
}

// ContextConfig contains configuration for a single service context.
type ContextConfig struct {
	// Server is the base URL of the extraction service.
	Server string `yaml:"server"`

	// Timeout in seconds (optional, default 30).
	Timeout int `yaml:"timeout,omitempty"`
}

// DefaultConfigDir returns the default config directory (~/.pdfkm).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pdfkm"
	}
	return filepath.Join(home, ".pdfkm")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// LoadConfig reads the CLI config file. A missing file yields an empty
// config, not an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{Contexts: map[string]*ContextConfig{}}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = map[string]*ContextConfig{}
	}
	return &cfg, nil
}

// Resolve determines the effective server URL and timeout, applying
// context selection, environment, and flag overrides in precedence order.
func (c *Config) Resolve(contextFlag, serverFlag string, timeoutFlag int) (server string, timeoutSec int, err error) {
	server = DefaultServer
	timeoutSec = 30

	name := c.CurrentContext
	if env := os.Getenv("PDFKM_CONTEXT"); env != "" {
		name = env
	}
	if contextFlag != "" {
		name = contextFlag
	}

	if name != "" {
		ctx, ok := c.Contexts[name]
		if !ok {
			return "", 0, fmt.Errorf("unknown context %q", name)
		}
		if ctx.Server != "" {
			server = ctx.Server
		}
		if ctx.Timeout > 0 {
			timeoutSec = ctx.Timeout
		}
	}

	if env := os.Getenv("PDFKM_SERVER"); env != "" {
		server = env
	}
	if serverFlag != "" {
		server = serverFlag
	}
	if timeoutFlag > 0 {
		timeoutSec = timeoutFlag
	}
	return server, timeoutSec, nil
}
