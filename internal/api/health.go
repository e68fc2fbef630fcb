// =============================================================================
// LIVENESS AND READINESS PROBES
// =============================================================================
//
// WHAT: Orchestrator-friendly probe endpoints.
//
//   GET /healthz - liveness: the process is up and serving HTTP
//   GET /readyz  - readiness: initialization finished AND at least one
//                  inference server is active; a total outage returns 503
//                  so traffic drains to a replica with working backends
//
// =============================================================================

package api

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Kineviz/pdf-km-server/internal/cluster"
)

// HealthState tracks readiness for the probe endpoints.
type HealthState struct {
	ready   atomic.Bool
	started time.Time
	cluster *cluster.Cluster
}

// NewHealthState creates probe state bound to the cluster registry.
func NewHealthState(c *cluster.Cluster) *HealthState {
	return &HealthState{
		started: time.Now(),
		cluster: c,
	}
}

// SetReady flips the readiness flag.
func (h *HealthState) SetReady(ready bool) {
	h.ready.Store(ready)
}

// HandleLiveness answers the liveness probe. If this handler runs at all,
// the process is alive.
func (h *HealthState) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	})
}

// HandleReadiness answers the readiness probe.
func (h *HealthState) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeProbe(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not ready",
			"reason": "initializing",
		})
		return
	}

	active := h.cluster.ActiveCount()
	if active == 0 {
		writeProbe(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not ready",
			"reason": "no active inference servers",
		})
		return
	}

	writeProbe(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"active_servers": active,
	})
}

func writeProbe(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
