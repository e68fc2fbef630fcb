// =============================================================================
// HTTP API SERVER - REST INTERFACE FOR THE EXTRACTION SERVICE
// =============================================================================
//
// WHAT: The HTTP surface callers and the web UI talk to. It submits
// documents as processing jobs, reports job progress, and exposes the
// inference cluster's health for display.
//
// ENDPOINT OVERVIEW:
//
//   JOBS
//   POST   /jobs                Submit a document for processing
//   GET    /jobs                List all jobs, newest first
//   GET    /jobs/{jobID}        Get one job's status and progress
//
//   CLUSTER
//   GET    /cluster/status      Server pool state (sweeps inactive first)
//   POST   /cluster/reconnect   Force a reconnection check of inactive servers
//
//   OPS
//   GET    /health              Overall health status
//   GET    /healthz             Liveness probe
//   GET    /readyz              Readiness probe (fails during total outage)
//   GET    /metrics             Prometheus metrics
//
// Job processing is asynchronous: POST /jobs returns 202 immediately and
// the pipeline runs in the background; clients poll GET /jobs/{id}.
//
// =============================================================================

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Kineviz/pdf-km-server/internal/cluster"
	"github.com/Kineviz/pdf-km-server/internal/pipeline"
)

// Server is the HTTP API server.
type Server struct {
	cluster    *cluster.Cluster
	runner     *pipeline.Runner
	metricsH   http.Handler
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger
	health     *HealthState

	// baseCtx parents every background job; canceled on Stop.
	baseCtx context.Context
	cancel  context.CancelFunc
	jobs    sync.WaitGroup

	defaultModel string
}

// ServerConfig holds API server configuration.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	DefaultModel string
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		DefaultModel: cluster.DefaultModel,
	}
}

// NewServer creates the API server. metricsHandler may be nil to disable
// the /metrics route.
func NewServer(c *cluster.Cluster, runner *pipeline.Runner, metricsHandler http.Handler, config ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if config.DefaultModel == "" {
		config.DefaultModel = cluster.DefaultModel
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	r := chi.NewRouter()

	s := &Server{
		cluster:      c,
		runner:       runner,
		metricsH:     metricsHandler,
		router:       r,
		logger:       logger.With("component", "api"),
		health:       NewHealthState(c),
		baseCtx:      baseCtx,
		cancel:       cancel,
		defaultModel: config.DefaultModel,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// registerRoutes sets up all API endpoints.
func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.health.HandleLiveness)
	s.router.Get("/readyz", s.health.HandleReadiness)
	if s.metricsH != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metricsH)
	}

	s.router.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.submitJob)
		r.Get("/", s.listJobs)
		r.Get("/{jobID}", s.getJob)
	})

	s.router.Route("/cluster", func(r chi.Router) {
		r.Get("/status", s.clusterStatus)
		r.Post("/reconnect", s.clusterReconnect)
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWrapper{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start).String(),
		)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	status int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// =============================================================================
// SERVER LIFECYCLE
// =============================================================================

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	s.health.SetReady(true)
	s.logger.Info("starting HTTP API server", "addr", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server and waits for background jobs.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	s.health.SetReady(false)
	s.cancel()

	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown deadline reached with jobs still running")
	}
	return err
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// =============================================================================
// JOB HANDLERS
// =============================================================================

// SubmitJobRequest is the request body for job submission. Text carries
// the document's extracted text; PDF conversion happens before this API.
type SubmitJobRequest struct {
	Document string `json:"document"`
	Text     string `json:"text"`
	Model    string `json:"model,omitempty"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Text == "" {
		s.errorResponse(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Document == "" {
		req.Document = "untitled"
	}
	if req.Model == "" {
		req.Model = s.defaultModel
	}

	id := pipeline.NewJobID()
	job := s.runner.Queue().Add(id, req.Document, req.Model)

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		if err := s.runner.Process(s.baseCtx, id, req.Text); err != nil {
			s.logger.Error("job processing failed", "job", id, "error", err)
		}
	}()

	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs": s.runner.Queue().All(),
	})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, ok := s.runner.Queue().Get(id)
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "job not found: "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// =============================================================================
// CLUSTER HANDLERS
// =============================================================================

func (s *Server) clusterStatus(w http.ResponseWriter, r *http.Request) {
	// Give inactive servers a chance to report back in before we show
	// their state, as the original status page does.
	s.cluster.CheckInactive()
	s.writeJSON(w, http.StatusOK, s.cluster.Snapshot())
}

func (s *Server) clusterReconnect(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cluster.ForceReconnect())
}

// =============================================================================
// HEALTH HANDLER
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.cluster.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"active_servers": st.ActiveServers,
		"total_servers":  st.TotalServers,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"error": msg})
}
