// =============================================================================
// SERVER RECORD - IDENTITY AND HEALTH STATE FOR ONE INFERENCE BACKEND
// =============================================================================
//
// WHAT: Mutable health/identity state for a single Ollama backend.
//
// Each server in the pool carries its own configuration (timeout, retry and
// error budgets) plus live health state that every probe and every dispatched
// request updates.
//
// STATE MACHINE:
//
//                 ┌──────────┐
//        ┌───────►│  ACTIVE  │◄──────────┐
//        │        └────┬─────┘           │
//        │             │ failed probe,   │ successful probe
//        │             │ or error count  │ or successful dispatch
//        │             │ hits MaxErrors  │
//        │             ▼                 │
//        │        ┌──────────┐           │
//        └────────┤ INACTIVE ├───────────┘
//                 └──────────┘
//
// THRESHOLD RULE:
//   ErrorCount is consecutive failures. Crossing MaxErrors flips the server
//   to inactive at that moment; any single success resets the count to zero
//   and marks the server active again.
//
// =============================================================================

package cluster

import (
	"time"
)

// Defaults applied to server entries that omit the field in config.
const (
	// DefaultModel is the model requested when a server entry names none.
	DefaultModel = "gemma3"

	// DefaultTimeout bounds one work request against a server.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the per-dispatch failover budget.
	DefaultMaxRetries = 3

	// DefaultMaxErrors is the consecutive-failure budget before a server
	// is taken out of rotation.
	DefaultMaxErrors = 5
)

// Server holds one backend's identity, configuration, and mutable health
// state. Health fields are guarded by the owning Cluster's mutex; callers
// outside this package read them through Cluster.Snapshot.
type Server struct {
	// Name uniquely identifies the server in the pool.
	Name string

	// URL is the base URL of the backend, e.g. "http://gpu-1:11434".
	URL string

	// Model is the model identifier sent with every work request.
	Model string

	// Timeout bounds a single work request to this server.
	Timeout time.Duration

	// MaxRetries is how many failover attempts a dispatch through this
	// pool may use.
	MaxRetries int

	// MaxErrors is how many consecutive failures this server tolerates
	// before it is deactivated.
	MaxErrors int

	// Active reports whether the server is in rotation.
	Active bool

	// ErrorCount is the number of consecutive failures since the last
	// success. Reset to zero by any successful probe or dispatch.
	ErrorCount int

	// LastCheck is when the server was last probed.
	LastCheck time.Time

	// ResponseTime is the duration of the last successful probe or request.
	ResponseTime time.Duration
}

// markSuccess records a successful probe or dispatch: latency captured,
// error budget restored, server back in rotation.
// Caller must hold the cluster mutex.
func (s *Server) markSuccess(latency time.Duration) (reactivated bool) {
	reactivated = !s.Active
	s.Active = true
	s.ErrorCount = 0
	s.ResponseTime = latency
	s.LastCheck = time.Now()
	return reactivated
}

// markFailure records one failed probe or dispatch and deactivates the
// server once ErrorCount reaches MaxErrors. Probes deactivate immediately
// regardless of the budget (immediate=true).
// Caller must hold the cluster mutex.
func (s *Server) markFailure(immediate bool) (deactivated bool) {
	s.ErrorCount++
	if immediate || s.ErrorCount >= s.MaxErrors {
		deactivated = s.Active
		s.Active = false
	}
	return deactivated
}

// ServerStatus is the read-only view of one server exposed to the status
// API and CLI.
type ServerStatus struct {
	Name            string        `json:"name"`
	URL             string        `json:"url"`
	Model           string        `json:"model"`
	Active          bool          `json:"is_active"`
	ErrorCount      int           `json:"error_count"`
	MaxErrors       int           `json:"max_errors"`
	ResponseTime    time.Duration `json:"-"`
	ResponseTimeSec float64       `json:"response_time_seconds"`
	LastCheck       time.Time     `json:"last_check"`
}

// status builds the read-only view. Caller must hold the cluster mutex.
func (s *Server) status() ServerStatus {
	return ServerStatus{
		Name:            s.Name,
		URL:             s.URL,
		Model:           s.Model,
		Active:          s.Active,
		ErrorCount:      s.ErrorCount,
		MaxErrors:       s.MaxErrors,
		ResponseTime:    s.ResponseTime,
		ResponseTimeSec: s.ResponseTime.Seconds(),
		LastCheck:       s.LastCheck,
	}
}
