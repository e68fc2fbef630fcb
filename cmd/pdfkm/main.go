// =============================================================================
// PDFKM SERVER - MAIN ENTRY POINT
// =============================================================================
//
// Boots the extraction service:
//   - Load daemon config (file + PDFKM_* environment overrides)
//   - Load and validate the inference server pool
//   - Build the cluster registry, dispatcher, and pipeline
//   - Run an initial full health sweep
//   - Serve the HTTP API until SIGINT/SIGTERM
//
// ENVIRONMENT:
//   PDFKM_CONFIG        Path to the daemon config file (optional)
//   PDFKM_LISTEN        HTTP listen address (overrides config)
//   PDFKM_SERVERS_FILE  Path to the server pool YAML (overrides config)
//   PDFKM_DEFAULT_MODEL Default model for jobs that do not pin one
//
// =============================================================================

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kineviz/pdf-km-server/internal/api"
	"github.com/Kineviz/pdf-km-server/internal/cluster"
	"github.com/Kineviz/pdf-km-server/internal/config"
	"github.com/Kineviz/pdf-km-server/internal/extract"
	"github.com/Kineviz/pdf-km-server/internal/metrics"
	"github.com/Kineviz/pdf-km-server/internal/pipeline"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// -------------------------------------------------------------------------
	// STEP 1: Configuration
	// -------------------------------------------------------------------------
	cfg := config.Default()
	if path := os.Getenv("PDFKM_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if addr := os.Getenv("PDFKM_LISTEN"); addr != "" {
		cfg.ListenAddr = addr
	}
	if path := os.Getenv("PDFKM_SERVERS_FILE"); path != "" {
		cfg.ServersFile = path
	}
	if model := os.Getenv("PDFKM_DEFAULT_MODEL"); model != "" {
		cfg.DefaultModel = model
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	// -------------------------------------------------------------------------
	// STEP 2: Server pool
	// -------------------------------------------------------------------------
	servers, err := cluster.LoadPoolFile(cfg.ServersFile)
	if err != nil {
		return fmt.Errorf("load server pool: %w", err)
	}

	entries := make([]config.ServerEntry, len(servers))
	for i, s := range servers {
		entries[i] = config.ServerEntry{
			Name:       s.Name,
			URL:        s.URL,
			Timeout:    s.Timeout,
			MaxRetries: s.MaxRetries,
			MaxErrors:  s.MaxErrors,
		}
	}
	if err := config.ValidatePool(entries); err != nil {
		return err
	}

	// -------------------------------------------------------------------------
	// STEP 3: Cluster registry, dispatcher, pipeline
	// -------------------------------------------------------------------------
	m := metrics.New()

	pool, err := cluster.New(servers, cluster.Options{
		SweepInterval: cfg.SweepInterval,
		Metrics:       m.Cluster,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	dispatcher := cluster.NewDispatcher(pool, cluster.DispatcherOptions{
		MaxRetries: cfg.MaxRetries,
		Metrics:    m.Cluster,
		Logger:     logger,
	})

	scheduler := extract.NewScheduler(pool, dispatcher, m.Extraction, logger)
	runner := pipeline.NewRunner(pool, scheduler, pipeline.NewJobQueue(),
		pipeline.ParagraphChunker{}, nil, nil, logger)

	logger.Info("pdfkm server starting",
		"listen", cfg.ListenAddr,
		"servers", pool.Size(),
		"default_model", cfg.DefaultModel)

	// Initial sweep so the first job does not discover dead servers the
	// hard way.
	active := pool.HealthCheckAll()
	logger.Info("initial health sweep complete",
		"active", active,
		"total", pool.Size())

	// -------------------------------------------------------------------------
	// STEP 4: HTTP API
	// -------------------------------------------------------------------------
	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = cfg.ListenAddr
	serverCfg.DefaultModel = cfg.DefaultModel

	srv := api.NewServer(pool, runner, m.Handler(), serverCfg, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	// -------------------------------------------------------------------------
	// STEP 5: Wait for shutdown signal
	// -------------------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Stop(ctx)
}
