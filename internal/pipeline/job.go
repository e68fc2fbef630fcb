// =============================================================================
// JOB QUEUE - TRACKING DOCUMENT PROCESSING RUNS
// =============================================================================
//
// WHAT: In-memory registry of processing jobs. The API creates a job per
// submitted document, the pipeline runner updates it as stages complete,
// and the status endpoints read it back.
//
// LIFECYCLE:
//
//   queued ──► processing ──► completed
//                   │
//                   └───────► failed
//
// Jobs live for the process lifetime; there is no persistence (a restart
// simply forgets unfinished jobs, matching the original system).
//
// =============================================================================

package pipeline

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// JobStatus is a job's lifecycle state.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job tracks one document through the pipeline.
type Job struct {
	ID       string    `json:"id"`
	Document string    `json:"document"`
	Model    string    `json:"model"`
	Status   JobStatus `json:"status"`

	// Progress is 0-100; Message is the human-readable stage description.
	Progress int    `json:"progress"`
	Message  string `json:"message"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// EstimatedSeconds is the up-front processing time guess shown while
	// the job runs.
	EstimatedSeconds int `json:"estimated_time_seconds"`

	// Document statistics, filled once text extraction completes.
	WordCount           int     `json:"word_count"`
	EstimatedPages      float64 `json:"estimated_pages"`
	CharCount           int     `json:"char_count"`
	SentenceCount       int     `json:"sentence_count"`
	AvgWordsPerSentence float64 `json:"avg_words_per_sentence"`

	// Extraction progress counters.
	ChunksCount       int `json:"chunks_count"`
	ChunksProcessed   int `json:"chunks_processed"`
	ObservationsCount int `json:"observations_count"`
	EntitiesCount     int `json:"entities_count"`

	// ProcessingSeconds is the wall time of a finished run.
	ProcessingSeconds float64 `json:"processing_time_seconds"`
}

// JobQueue is a mutex-guarded job registry.
type JobQueue struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewJobQueue creates an empty queue.
func NewJobQueue() *JobQueue {
	return &JobQueue{jobs: make(map[string]*Job)}
}

// NewJobID returns a fresh random job identifier.
func NewJobID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to
		// a time-derived ID rather than panicking mid-upload.
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000000000")))[:32]
	}
	return hex.EncodeToString(buf)
}

// Add registers a new queued job and returns a copy of it.
func (q *JobQueue) Add(id, document, model string) Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := &Job{
		ID:        id,
		Document:  document,
		Model:     model,
		Status:    JobQueued,
		Message:   "Job queued",
		CreatedAt: time.Now(),
	}
	q.jobs[id] = job
	return *job
}

// Update applies fn to the job under the queue lock. Returns false when
// the job does not exist.
func (q *JobQueue) Update(id string, fn func(*Job)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return false
	}
	fn(job)
	return true
}

// Get returns a copy of the job, if present.
func (q *JobQueue) Get(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// All returns copies of every job, newest first.
func (q *JobQueue) All() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
