// =============================================================================
// CLUSTER REGISTRY - THE ORDERED SERVER POOL
// =============================================================================
//
// WHAT: Owns the ordered list of inference servers, the round-robin cursor,
// and the lazy health-sweep schedule.
//
// The registry is built once at process start from a YAML pool file and
// injected into everything that needs it (API server, fan-out scheduler,
// CLI handlers). There is no package-level singleton.
//
// LOCKING:
//   One mutex per registry guards the server list, every server's mutable
//   health fields, and the cursor. The lock is never held across network
//   I/O: probes and dispatches read the immutable identity fields, do their
//   I/O, then re-acquire the lock to record the outcome. This keeps
//   concurrent fan-out workers from losing error-count updates while still
//   letting slow backends block only their own caller.
//
// SWEEP SCHEDULE:
//   A full sweep probes every server (used at startup and on demand). The
//   periodic path is cheaper: it reprobes only the currently inactive
//   servers, giving failed backends a way back into rotation. Healthy
//   servers are re-validated only when a live request fails on them.
//
// =============================================================================

package cluster

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Kineviz/pdf-km-server/internal/metrics"
)

// DefaultSweepInterval is how long the registry waits between lazy
// reactivation sweeps of inactive servers.
const DefaultSweepInterval = 30 * time.Second

// ServerConfig is one server entry in the pool file.
type ServerConfig struct {
	Name       string        `yaml:"name" json:"name"`
	URL        string        `yaml:"url" json:"url"`
	Model      string        `yaml:"model" json:"model"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
	MaxErrors  int           `yaml:"max_errors" json:"max_errors"`
}

// PoolFile is the on-disk shape of the server pool configuration.
type PoolFile struct {
	Servers []ServerConfig `yaml:"servers"`
}

// Options tunes registry behavior. The zero value gets defaults.
type Options struct {
	// SweepInterval is the minimum time between lazy reactivation sweeps.
	SweepInterval time.Duration

	// Prober overrides the default HTTP prober (used by tests).
	Prober Prober

	// Metrics receives cluster gauge/counter updates. May be nil.
	Metrics *metrics.ClusterMetrics

	// Logger for registry events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Cluster is the registry of inference servers plus their live health state.
type Cluster struct {
	// mu guards servers' mutable fields, the cursor, and lastSweep.
	mu sync.Mutex

	// servers in configuration order. The slice itself is immutable after
	// New; entries' health fields are not.
	servers []*Server

	// cursor advances by one per selection; taken modulo the active
	// subset size, so the cycle length tracks the live server count.
	cursor int

	// lastSweep is when the last reactivation sweep ran.
	lastSweep time.Time

	// sweepInterval is the minimum gap between lazy sweeps.
	sweepInterval time.Duration

	prober  Prober
	metrics *metrics.ClusterMetrics
	logger  *slog.Logger
}

// New builds a registry from server configs. Servers start active with a
// zero error count; run HealthCheckAll once at startup to get real state.
func New(configs []ServerConfig, opts Options) (*Cluster, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("server pool is empty")
	}

	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Prober == nil {
		opts.Prober = NewHTTPProber(opts.Logger)
	}

	c := &Cluster{
		servers:       make([]*Server, 0, len(configs)),
		sweepInterval: opts.SweepInterval,
		prober:        opts.Prober,
		metrics:       opts.Metrics,
		logger:        opts.Logger.With("component", "cluster"),
	}

	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if cfg.Name == "" || cfg.URL == "" {
			return nil, fmt.Errorf("server entry needs both name and url (got name=%q url=%q)", cfg.Name, cfg.URL)
		}
		if seen[cfg.Name] {
			return nil, fmt.Errorf("duplicate server name %q", cfg.Name)
		}
		seen[cfg.Name] = true

		s := &Server{
			Name:       cfg.Name,
			URL:        cfg.URL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			MaxErrors:  cfg.MaxErrors,
			Active:     true,
		}
		if s.Model == "" {
			s.Model = DefaultModel
		}
		if s.Timeout <= 0 {
			s.Timeout = DefaultTimeout
		}
		if s.MaxRetries <= 0 {
			s.MaxRetries = DefaultMaxRetries
		}
		if s.MaxErrors <= 0 {
			s.MaxErrors = DefaultMaxErrors
		}
		c.servers = append(c.servers, s)
	}

	c.logger.Info("cluster registry created", "servers", len(c.servers))
	c.metrics.SetServersTotal(len(c.servers))
	c.metrics.SetServersActive(len(c.servers))
	return c, nil
}

// LoadPoolFile reads a YAML server pool file.
func LoadPoolFile(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pool file: %w", err)
	}

	var pool PoolFile
	if err := yaml.Unmarshal(data, &pool); err != nil {
		return nil, fmt.Errorf("parse pool file %s: %w", path, err)
	}
	return pool.Servers, nil
}

// Size returns the total number of configured servers.
func (c *Cluster) Size() int {
	return len(c.servers)
}

// ActiveCount returns the number of servers currently in rotation.
func (c *Cluster) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCountLocked()
}

func (c *Cluster) activeCountLocked() int {
	n := 0
	for _, s := range c.servers {
		if s.Active {
			n++
		}
	}
	return n
}

// Status is the cluster-wide view served by the status API.
type Status struct {
	TotalServers  int            `json:"total_servers"`
	ActiveServers int            `json:"active_servers"`
	LastSweep     time.Time      `json:"last_health_check"`
	SweepInterval time.Duration  `json:"-"`
	SweepSeconds  float64        `json:"health_check_interval_seconds"`
	Servers       []ServerStatus `json:"servers"`
}

// Snapshot returns the current state of every server, in pool order.
// It does not trigger any probing; see ForceReconnect for that.
func (c *Cluster) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		TotalServers:  len(c.servers),
		ActiveServers: c.activeCountLocked(),
		LastSweep:     c.lastSweep,
		SweepInterval: c.sweepInterval,
		SweepSeconds:  c.sweepInterval.Seconds(),
		Servers:       make([]ServerStatus, 0, len(c.servers)),
	}
	for _, s := range c.servers {
		st.Servers = append(st.Servers, s.status())
	}
	return st
}

// =============================================================================
// HEALTH SWEEPS
// =============================================================================

// HealthCheckAll probes every server in the pool and returns how many are
// active afterward. Used at startup and for manual full sweeps.
func (c *Cluster) HealthCheckAll() int {
	c.logger.Info("starting health check of all servers")

	c.mu.Lock()
	targets := make([]*Server, len(c.servers))
	copy(targets, c.servers)
	c.mu.Unlock()

	for _, s := range targets {
		c.probeAndRecord(s)
	}

	c.mu.Lock()
	c.lastSweep = time.Now()
	active := c.activeCountLocked()
	total := len(c.servers)
	c.mu.Unlock()

	c.metrics.SetServersActive(active)
	c.logger.Info("health check complete", "active", active, "total", total)
	return active
}

// CheckInactive reprobes only the servers currently out of rotation and
// returns how many came back. This is the cheap reactivation path used by
// the lazy sweep and the manual reconnect trigger.
func (c *Cluster) CheckInactive() int {
	c.mu.Lock()
	var inactive []*Server
	for _, s := range c.servers {
		if !s.Active {
			inactive = append(inactive, s)
		}
	}
	c.lastSweep = time.Now()
	c.mu.Unlock()

	if len(inactive) == 0 {
		return 0
	}

	c.logger.Info("checking inactive servers for reconnection", "count", len(inactive))

	reactivated := 0
	for _, s := range inactive {
		if c.probeAndRecord(s) {
			reactivated++
		}
	}

	if reactivated > 0 {
		c.logger.Info("reactivated servers", "count", reactivated)
	}
	c.metrics.SetServersActive(c.ActiveCount())
	return reactivated
}

// ForceReconnect triggers an immediate reactivation sweep and returns the
// resulting cluster status. Exposed to the API and CLI.
func (c *Cluster) ForceReconnect() Status {
	c.logger.Info("manual reconnection check triggered")
	c.CheckInactive()
	return c.Snapshot()
}

// probeAndRecord runs one probe outside the lock and records the outcome
// on the server. Returns true when the probe succeeded.
func (c *Cluster) probeAndRecord(s *Server) bool {
	latency, err := c.prober.Probe(s.URL)

	c.mu.Lock()
	defer c.mu.Unlock()
	s.LastCheck = time.Now()

	if err != nil {
		s.markFailure(true)
		c.metrics.ObserveProbe(s.Name, 0, false)
		c.metrics.SetServerState(s.Name, s.Active, s.ErrorCount)
		c.logger.Warn("health check failed", "server", s.Name, "error", err)
		return false
	}

	if s.markSuccess(latency) {
		c.metrics.IncReactivations()
		c.logger.Info("server is back online", "server", s.Name, "response_time", latency)
	} else {
		c.logger.Debug("server is healthy", "server", s.Name, "response_time", latency)
	}
	c.metrics.ObserveProbe(s.Name, latency, true)
	c.metrics.SetServerState(s.Name, s.Active, s.ErrorCount)
	return true
}

// =============================================================================
// SELECTOR
// =============================================================================

// NextAvailable returns the next active server in round-robin order, or
// nil when the whole pool is down. If the sweep interval has elapsed it
// first runs a reactivation sweep over the inactive servers.
//
// The cursor is taken modulo the size of the *current* active subset, so
// the rotation adapts as servers drop out and return; fairness holds over
// any window in which the active set is stable.
func (c *Cluster) NextAvailable() *Server {
	c.maybeSweep()

	c.mu.Lock()
	defer c.mu.Unlock()

	active := make([]*Server, 0, len(c.servers))
	for _, s := range c.servers {
		if s.Active {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return nil
	}

	s := active[c.cursor%len(active)]
	c.cursor++
	return s
}

// maybeSweep runs CheckInactive when the sweep interval has elapsed.
func (c *Cluster) maybeSweep() {
	c.mu.Lock()
	due := time.Since(c.lastSweep) > c.sweepInterval
	c.mu.Unlock()

	if due {
		c.CheckInactive()
	}
}
