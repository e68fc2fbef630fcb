// =============================================================================
// FAN-OUT SCHEDULER - BOUNDED-CONCURRENCY EXTRACTION OVER CHUNKS
// =============================================================================
//
// WHAT: Applies the retrying dispatcher to an ordered batch of independent
// chunks with a bounded worker pool, reporting progress as items complete.
//
// PIPELINE:
//
//   chunks ──► task channel ──► N workers ──► result channel ──► aggregator
//                                  │                                 │
//                                  └── Dispatch + parse, one         └── counts completions,
//                                      chunk at a time                   fires progress callback,
//                                                                        slots result by index
//
// SIZING: N = min(serverCount, chunkCount), never below 1. More workers
// than servers would only queue behind busy backends; more workers than
// chunks would sit idle.
//
// FAILURE ISOLATION: a chunk whose dispatch fails, or whose reply does not
// parse, logs and contributes an empty result; the batch always completes
// with exactly len(chunks) results, each tagged with its source index.
// Completion order is unspecified -- the index is how callers restore it.
//
// CANCELLATION: a canceled context makes unstarted chunks fail fast inside
// Dispatch (empty results); in-flight requests finish or hit their own
// timeout. The result count and progress-callback count still hold.
//
// =============================================================================

package extract

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Kineviz/pdf-km-server/internal/cluster"
	"github.com/Kineviz/pdf-km-server/internal/metrics"
)

// ChunkResult is the outcome for one chunk. Empty Observations means the
// chunk irrecoverably failed (or genuinely contained nothing).
type ChunkResult struct {
	// Index is the chunk's position in the submitted batch.
	Index int `json:"chunk_index"`

	// Observations extracted from the chunk, each tagged with Index.
	Observations []Observation `json:"observations"`
}

// ProgressFunc is called once per completed chunk with the running count.
// No ordering guarantee is made on which chunk completes when; it fires
// exactly len(chunks) times per batch.
type ProgressFunc func(done, total int)

// Scheduler fans a batch of chunks out across the server pool.
type Scheduler struct {
	cluster    *cluster.Cluster
	dispatcher *cluster.Dispatcher
	metrics    *metrics.ExtractionMetrics
	logger     *slog.Logger
}

// NewScheduler creates a fan-out scheduler over the given pool.
func NewScheduler(c *cluster.Cluster, d *cluster.Dispatcher, em *metrics.ExtractionMetrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cluster:    c,
		dispatcher: d,
		metrics:    em,
		logger:     logger.With("component", "fanout"),
	}
}

// task is one unit of work handed to a worker.
type task struct {
	index int
	text  string
}

// RunBatch processes every chunk and returns exactly len(chunks) results,
// where result[i] corresponds to chunks[i]. model optionally pins a model
// for the whole batch; empty means each server uses its configured one.
// progress may be nil.
func (s *Scheduler) RunBatch(ctx context.Context, chunks []string, model string, progress ProgressFunc) []ChunkResult {
	total := len(chunks)
	results := make([]ChunkResult, total)
	for i := range results {
		results[i] = ChunkResult{Index: i, Observations: []Observation{}}
	}
	if total == 0 {
		return results
	}

	workers := s.cluster.Size()
	if workers > total {
		workers = total
	}
	if workers < 1 {
		workers = 1
	}

	s.logger.Info("starting parallel extraction",
		"chunks", total,
		"workers", workers)
	start := time.Now()

	tasks := make(chan task)
	completions := make(chan ChunkResult)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				completions <- s.processChunk(ctx, t, model)
			}
		}()
	}

	// Feed every chunk; canceled contexts make the dispatch inside
	// processChunk fail fast, so the batch still drains completely.
	go func() {
		for i, text := range chunks {
			tasks <- task{index: i, text: text}
		}
		close(tasks)
		wg.Wait()
		close(completions)
	}()

	// Aggregate: count completions and fire the progress callback here,
	// on a single goroutine, so the sink needs no locking of its own.
	done := 0
	for res := range completions {
		results[res.Index] = res
		done++
		s.metrics.ObserveChunk(len(res.Observations))
		if progress != nil {
			progress(done, total)
		}
	}

	elapsed := time.Since(start)
	s.metrics.ObserveBatch(workers, elapsed)
	s.logger.Info("parallel extraction complete",
		"chunks", total,
		"elapsed", elapsed)
	return results
}

// processChunk dispatches one chunk and parses the reply. Every failure
// path returns an empty result; nothing escapes the batch.
func (s *Scheduler) processChunk(ctx context.Context, t task, model string) ChunkResult {
	empty := ChunkResult{Index: t.index, Observations: []Observation{}}

	content, err := s.dispatcher.Dispatch(ctx, ChunkRequest{Text: t.text, Model: model})
	if err != nil {
		s.logger.Error("chunk extraction failed",
			"chunk", t.index,
			"error", err)
		return empty
	}

	obs, err := ParseObservations(content)
	if err != nil {
		s.logger.Error("failed to parse observations",
			"chunk", t.index,
			"content_length", len(content),
			"error", err)
		return empty
	}

	for i := range obs {
		obs[i].ChunkIndex = t.index
		locate(&obs[i], t.text)
	}

	s.logger.Info("chunk extracted",
		"chunk", t.index,
		"observations", len(obs))
	return ChunkResult{Index: t.index, Observations: obs}
}

// locate records where the observation text sits inside its chunk, falling
// back to the whole chunk when the model paraphrased.
func locate(o *Observation, chunk string) {
	if pos := strings.Index(chunk, o.Observation); pos >= 0 {
		o.ChunkStartPos = pos
		o.ChunkEndPos = pos + len(o.Observation)
		return
	}
	o.ChunkStartPos = 0
	o.ChunkEndPos = len(chunk)
	o.PositionApproximate = true
}
