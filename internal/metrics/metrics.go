// =============================================================================
// PROMETHEUS METRICS - DISPATCHER AND EXTRACTION OBSERVABILITY
// =============================================================================
//
// WHAT: All time-series exposed at /metrics, grouped by subsystem:
//
//   CLUSTER (pdfkm_cluster_*)
//     servers_total               gauge     configured pool size
//     servers_active              gauge     servers currently in rotation
//     server_up{server}           gauge     1 active / 0 inactive, per server
//     server_errors{server}       gauge     consecutive error count
//     probe_duration_seconds      histogram successful probe latency
//     probes_total{server,result} counter   probes by outcome
//     dispatch_duration_seconds   histogram successful request latency
//     dispatches_total{server,status} counter requests by outcome
//     failovers_total             counter   attempts retried on another server
//     outages_total               counter   selections that found no server
//     reactivations_total         counter   inactive servers brought back
//
//   EXTRACTION (pdfkm_extract_*)
//     chunks_total{status}        counter   chunks by ok/empty outcome
//     observations_total          counter   observations extracted
//     batch_duration_seconds      histogram wall time per fan-out batch
//     batch_workers               gauge     worker pool size of last batch
//
// NAMING: {namespace}_{subsystem}_{name}_{unit}, namespace "pdfkm".
// Label cardinality is bounded: server names come from config (single
// digits), statuses from the fixed failure taxonomy.
//
// All update methods are nil-receiver safe so components can run without
// metrics wired (tests, CLI one-shots).
//
// =============================================================================

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdfkm"

// Metrics bundles every subsystem plus the registry they live in.
type Metrics struct {
	Registry *prometheus.Registry

	Cluster    *ClusterMetrics
	Extraction *ExtractionMetrics
}

// New creates a registry with Go runtime and process collectors plus all
// application metrics registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		Registry:   reg,
		Cluster:    newClusterMetrics(reg),
		Extraction: newExtractionMetrics(reg),
	}
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// =============================================================================
// CLUSTER METRICS
// =============================================================================

// ClusterMetrics covers the server pool, probing, and dispatch.
type ClusterMetrics struct {
	ServersTotal  prometheus.Gauge
	ServersActive prometheus.Gauge
	ServerUp      *prometheus.GaugeVec
	ServerErrors  *prometheus.GaugeVec

	ProbeDuration prometheus.Histogram
	ProbesTotal   *prometheus.CounterVec

	DispatchDuration prometheus.Histogram
	DispatchesTotal  *prometheus.CounterVec

	FailoversTotal     prometheus.Counter
	OutagesTotal       prometheus.Counter
	ReactivationsTotal prometheus.Counter
}

func newClusterMetrics(reg *prometheus.Registry) *ClusterMetrics {
	m := &ClusterMetrics{
		ServersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "servers_total",
			Help:      "Number of configured inference servers.",
		}),
		ServersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "servers_active",
			Help:      "Number of servers currently in rotation.",
		}),
		ServerUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "server_up",
			Help:      "Per-server active flag (1 active, 0 inactive).",
		}, []string{"server"}),
		ServerErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "server_errors",
			Help:      "Per-server consecutive error count.",
		}, []string{"server"}),
		ProbeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "probe_duration_seconds",
			Help:      "Latency of successful health probes.",
			Buckets:   prometheus.DefBuckets,
		}),
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "probes_total",
			Help:      "Health probes by server and result.",
		}, []string{"server", "result"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "dispatch_duration_seconds",
			Help:      "Latency of successful inference requests.",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		DispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "dispatches_total",
			Help:      "Inference requests by server and outcome.",
		}, []string{"server", "status"}),
		FailoversTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "failovers_total",
			Help:      "Dispatch attempts retried against another server.",
		}),
		OutagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "outages_total",
			Help:      "Selections that found no active server.",
		}),
		ReactivationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "reactivations_total",
			Help:      "Inactive servers brought back by a successful probe.",
		}),
	}

	reg.MustRegister(
		m.ServersTotal, m.ServersActive, m.ServerUp, m.ServerErrors,
		m.ProbeDuration, m.ProbesTotal,
		m.DispatchDuration, m.DispatchesTotal,
		m.FailoversTotal, m.OutagesTotal, m.ReactivationsTotal,
	)
	return m
}

// SetServersTotal records the configured pool size.
func (m *ClusterMetrics) SetServersTotal(n int) {
	if m == nil {
		return
	}
	m.ServersTotal.Set(float64(n))
}

// SetServersActive records the current active-subset size.
func (m *ClusterMetrics) SetServersActive(n int) {
	if m == nil {
		return
	}
	m.ServersActive.Set(float64(n))
}

// SetServerState records one server's active flag and error count.
func (m *ClusterMetrics) SetServerState(server string, active bool, errorCount int) {
	if m == nil {
		return
	}
	up := 0.0
	if active {
		up = 1.0
	}
	m.ServerUp.WithLabelValues(server).Set(up)
	m.ServerErrors.WithLabelValues(server).Set(float64(errorCount))
}

// ObserveProbe records one probe outcome.
func (m *ClusterMetrics) ObserveProbe(server string, latency time.Duration, ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
		m.ProbeDuration.Observe(latency.Seconds())
	}
	m.ProbesTotal.WithLabelValues(server, result).Inc()
}

// ObserveDispatch records one dispatch attempt outcome. Latency is only
// observed for successes.
func (m *ClusterMetrics) ObserveDispatch(server string, latency time.Duration, status string) {
	if m == nil {
		return
	}
	if status == "success" {
		m.DispatchDuration.Observe(latency.Seconds())
	}
	m.DispatchesTotal.WithLabelValues(server, status).Inc()
}

// IncFailovers counts one retried attempt.
func (m *ClusterMetrics) IncFailovers() {
	if m == nil {
		return
	}
	m.FailoversTotal.Inc()
}

// IncOutages counts one empty selection.
func (m *ClusterMetrics) IncOutages() {
	if m == nil {
		return
	}
	m.OutagesTotal.Inc()
}

// IncReactivations counts one server returning to rotation.
func (m *ClusterMetrics) IncReactivations() {
	if m == nil {
		return
	}
	m.ReactivationsTotal.Inc()
}

// =============================================================================
// EXTRACTION METRICS
// =============================================================================

// ExtractionMetrics covers the fan-out batch path.
type ExtractionMetrics struct {
	ChunksTotal       *prometheus.CounterVec
	ObservationsTotal prometheus.Counter
	BatchDuration     prometheus.Histogram
	BatchWorkers      prometheus.Gauge
}

func newExtractionMetrics(reg *prometheus.Registry) *ExtractionMetrics {
	m := &ExtractionMetrics{
		ChunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "chunks_total",
			Help:      "Chunks processed, by outcome (ok, empty).",
		}, []string{"status"}),
		ObservationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "observations_total",
			Help:      "Observations extracted across all batches.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of fan-out batches.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		BatchWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "batch_workers",
			Help:      "Worker pool size of the most recent batch.",
		}),
	}

	reg.MustRegister(m.ChunksTotal, m.ObservationsTotal, m.BatchDuration, m.BatchWorkers)
	return m
}

// ObserveChunk records one completed chunk.
func (m *ExtractionMetrics) ObserveChunk(observations int) {
	if m == nil {
		return
	}
	if observations > 0 {
		m.ChunksTotal.WithLabelValues("ok").Inc()
	} else {
		m.ChunksTotal.WithLabelValues("empty").Inc()
	}
	m.ObservationsTotal.Add(float64(observations))
}

// ObserveBatch records one completed fan-out batch.
func (m *ExtractionMetrics) ObserveBatch(workers int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BatchWorkers.Set(float64(workers))
	m.BatchDuration.Observe(elapsed.Seconds())
}
