// =============================================================================
// CONFIG VALIDATION
// =============================================================================
//
// WHAT: Startup validation for the daemon config and the server pool.
//
// PATTERN: ACCUMULATE ERRORS
// All problems are collected and returned together so the operator can fix
// everything in one pass instead of one restart per mistake.
//
// =============================================================================

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidationError holds one or more configuration validation failures.
type ValidationError struct {
	Errors []string
}

// Error implements the error interface. Multiple failures format as a
// numbered list.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0])
	}

	var b strings.Builder
	b.WriteString("configuration validation failed:\n")
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err)
	}
	return b.String()
}

// Validate checks the daemon config. Returns nil if valid, or a
// *ValidationError with every problem found.
func (c Config) Validate() error {
	var errs []string

	if c.ListenAddr == "" {
		errs = append(errs, "listen_addr: must not be empty")
	} else if err := validateListenAddr(c.ListenAddr); err != nil {
		errs = append(errs, fmt.Sprintf("listen_addr: %v", err))
	}

	if c.ServersFile == "" {
		errs = append(errs, "servers_file: must not be empty")
	}

	if c.SweepInterval <= 0 {
		errs = append(errs, "sweep_interval: must be positive")
	} else if c.SweepInterval < time.Second {
		errs = append(errs, fmt.Sprintf("sweep_interval: %v is below 1s; probing that often defeats the lazy sweep", c.SweepInterval))
	}

	if c.MaxRetries <= 0 {
		errs = append(errs, "max_retries: must be at least 1")
	} else if c.MaxRetries > 20 {
		errs = append(errs, fmt.Sprintf("max_retries: %d is excessive; each retry can cost a full server timeout", c.MaxRetries))
	}

	if c.DefaultModel == "" {
		errs = append(errs, "default_model: must not be empty")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ServerEntry is the subset of a pool entry this package validates. It
// mirrors cluster.ServerConfig so the cluster package stays free of config
// imports.
type ServerEntry struct {
	Name       string
	URL        string
	Timeout    time.Duration
	MaxRetries int
	MaxErrors  int
}

// ValidatePool checks the server pool entries. Returns nil if valid, or a
// *ValidationError with every problem found.
func ValidatePool(servers []ServerEntry) error {
	var errs []string

	if len(servers) == 0 {
		errs = append(errs, "servers: pool must contain at least one server")
	}

	seen := make(map[string]int)
	for i, s := range servers {
		where := fmt.Sprintf("servers[%d]", i)

		if s.Name == "" {
			errs = append(errs, where+": name must not be empty")
		} else {
			if prev, dup := seen[s.Name]; dup {
				errs = append(errs, fmt.Sprintf("%s: name %q duplicates servers[%d]", where, s.Name, prev))
			}
			seen[s.Name] = i
		}

		if s.URL == "" {
			errs = append(errs, where+": url must not be empty")
		} else if err := validateServerURL(s.URL); err != nil {
			errs = append(errs, fmt.Sprintf("%s: url: %v", where, err))
		}

		if s.Timeout < 0 {
			errs = append(errs, where+": timeout must not be negative")
		}
		if s.MaxRetries < 0 {
			errs = append(errs, where+": max_retries must not be negative")
		}
		if s.MaxErrors < 0 {
			errs = append(errs, where+": max_errors must not be negative")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// validateListenAddr accepts ":port" and "host:port" forms.
func validateListenAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if port == "" {
		return fmt.Errorf("address %q has no port", addr)
	}
	_ = host // empty host means all interfaces
	return nil
}

// validateServerURL requires an absolute http(s) URL with a host.
func validateServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}
