// =============================================================================
// PIPELINE RUNNER - DOCUMENT TO KNOWLEDGE GRAPH, STAGE BY STAGE
// =============================================================================
//
// WHAT: Drives one job through the processing stages, updating its queue
// entry as each completes:
//
//   stats ──► chunk ──► full health sweep ──► fan-out extraction ──► graph
//   (5%)      (10%)         (15%)                 (20% → 80%)        load
//                                                                  (85%) ──► vectorize (95%) ──► done
//
// Everything past extraction talks to external collaborators (graph store,
// embedding service) through narrow interfaces; deployments without them
// simply skip those stages.
//
// =============================================================================

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kineviz/pdf-km-server/internal/cluster"
	"github.com/Kineviz/pdf-km-server/internal/extract"
)

// TextExtractor converts an uploaded document into plain text. The
// production converter (PDF to markdown) runs out of process; tests and
// plain-text uploads use PassthroughExtractor.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// PassthroughExtractor treats the input as already-extracted text.
type PassthroughExtractor struct{}

// ExtractText implements TextExtractor by returning the path's contents
// unchanged. The path here is the raw text itself (API submissions carry
// text inline).
func (PassthroughExtractor) ExtractText(_ context.Context, text string) (string, error) {
	return text, nil
}

// GraphLoader persists index-tagged observations into the graph store and
// reports how many observations and distinct entities it loaded.
type GraphLoader interface {
	LoadObservations(ctx context.Context, jobID string, observations []extract.Observation) (obsCount, entityCount int, err error)
}

// Vectorizer embeds loaded observations for nearest-neighbor search and
// reports how many it embedded.
type Vectorizer interface {
	VectorizeObservations(ctx context.Context, jobID string, observations []extract.Observation) (int, error)
}

// Runner executes jobs against the inference cluster.
type Runner struct {
	cluster   *cluster.Cluster
	scheduler *extract.Scheduler
	queue     *JobQueue
	chunker   Chunker

	// graph and vectorizer are optional collaborators; nil skips the stage.
	graph      GraphLoader
	vectorizer Vectorizer

	logger *slog.Logger
}

// NewRunner wires a pipeline runner. chunker defaults to ParagraphChunker;
// graph and vectorizer may be nil.
func NewRunner(c *cluster.Cluster, s *extract.Scheduler, q *JobQueue, chunker Chunker, graph GraphLoader, vectorizer Vectorizer, logger *slog.Logger) *Runner {
	if chunker == nil {
		chunker = ParagraphChunker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cluster:    c,
		scheduler:  s,
		queue:      q,
		chunker:    chunker,
		graph:      graph,
		vectorizer: vectorizer,
		logger:     logger.With("component", "pipeline"),
	}
}

// Queue returns the job queue this runner reports into.
func (r *Runner) Queue() *JobQueue {
	return r.queue
}

// Process runs one job over already-extracted text. It never returns an
// error for per-chunk extraction failures (those degrade to empty results);
// only collaborator failures or a dead job ID fail the job.
func (r *Runner) Process(ctx context.Context, jobID, text string) error {
	started := time.Now()
	if ok := r.queue.Update(jobID, func(j *Job) {
		j.Status = JobProcessing
		j.StartedAt = &started
		j.Progress = 5
		j.Message = "Analyzing document"
	}); !ok {
		return fmt.Errorf("unknown job %q", jobID)
	}

	// Stage 1: document statistics and the runtime estimate.
	stats := CalculateStats(text)
	sizeMB := float64(len(text)) / (1024 * 1024)
	var model string
	if job, ok := r.queue.Get(jobID); ok {
		model = job.Model
	}
	estimate := EstimateProcessingSeconds(sizeMB, model)

	r.queue.Update(jobID, func(j *Job) {
		j.WordCount = stats.WordCount
		j.EstimatedPages = stats.EstimatedPages
		j.CharCount = stats.CharCount
		j.SentenceCount = stats.SentenceCount
		j.AvgWordsPerSentence = stats.AvgWordsPerSentence
		j.EstimatedSeconds = estimate
		j.Progress = 10
		j.Message = "Chunking document"
	})

	// Stage 2: chunking.
	chunks := r.chunker.Chunk(text)
	r.logger.Info("document chunked", "job", jobID, "chunks", len(chunks))
	r.queue.Update(jobID, func(j *Job) {
		j.ChunksCount = len(chunks)
		j.Progress = 15
		j.Message = "Checking inference servers"
	})

	// Stage 3: full health sweep so the batch starts with fresh state.
	active := r.cluster.HealthCheckAll()
	r.logger.Info("pre-batch health sweep", "job", jobID, "active", active)

	// Stage 4: fan-out extraction, 20% -> 80% of the progress bar.
	r.queue.Update(jobID, func(j *Job) {
		j.Progress = 20
		j.Message = "Extracting observations"
	})

	results := r.scheduler.RunBatch(ctx, chunks, model, func(done, total int) {
		r.queue.Update(jobID, func(j *Job) {
			j.ChunksProcessed = done
			j.Progress = 20 + (60*done)/total
			j.Message = fmt.Sprintf("Processed %d/%d chunks", done, total)
		})
	})

	observations := Flatten(results)
	r.queue.Update(jobID, func(j *Job) {
		j.ObservationsCount = len(observations)
		j.Progress = 80
		j.Message = "Loading observations into graph"
	})

	// Stage 5: graph load (optional collaborator).
	entities := countEntities(observations)
	if r.graph != nil {
		obsCount, entityCount, err := r.graph.LoadObservations(ctx, jobID, observations)
		if err != nil {
			return r.fail(jobID, started, fmt.Errorf("load graph: %w", err))
		}
		observationsLoaded := obsCount
		entities = entityCount
		r.queue.Update(jobID, func(j *Job) {
			j.ObservationsCount = observationsLoaded
			j.Progress = 85
			j.Message = "Vectorizing observations"
		})
	}

	// Stage 6: vectorization (optional collaborator).
	if r.vectorizer != nil {
		if _, err := r.vectorizer.VectorizeObservations(ctx, jobID, observations); err != nil {
			return r.fail(jobID, started, fmt.Errorf("vectorize: %w", err))
		}
		r.queue.Update(jobID, func(j *Job) {
			j.Progress = 95
		})
	}

	completed := time.Now()
	r.queue.Update(jobID, func(j *Job) {
		j.Status = JobCompleted
		j.Progress = 100
		j.Message = "Completed"
		j.CompletedAt = &completed
		j.EntitiesCount = entities
		j.ProcessingSeconds = completed.Sub(started).Seconds()
	})
	r.logger.Info("job completed",
		"job", jobID,
		"observations", len(observations),
		"elapsed", completed.Sub(started))
	return nil
}

// fail marks the job failed and returns the error unchanged.
func (r *Runner) fail(jobID string, started time.Time, err error) error {
	completed := time.Now()
	r.queue.Update(jobID, func(j *Job) {
		j.Status = JobFailed
		j.Message = err.Error()
		j.CompletedAt = &completed
		j.ProcessingSeconds = completed.Sub(started).Seconds()
	})
	r.logger.Error("job failed", "job", jobID, "error", err)
	return err
}

// Flatten concatenates batch results into one observation list, preserving
// chunk order.
func Flatten(results []extract.ChunkResult) []extract.Observation {
	var out []extract.Observation
	for _, res := range results {
		out = append(out, res.Observations...)
	}
	return out
}

// countEntities counts distinct entity labels across observations.
func countEntities(observations []extract.Observation) int {
	seen := make(map[string]bool)
	for _, o := range observations {
		for _, e := range o.Entities {
			seen[e.Label] = true
		}
	}
	return len(seen)
}
