package pipeline

import (
	"testing"
	"time"
)

func TestNewJobID(t *testing.T) {
	a := NewJobID()
	b := NewJobID()
	if len(a) != 32 {
		t.Errorf("id length = %d, want 32", len(a))
	}
	if a == b {
		t.Error("consecutive ids should differ")
	}
}

func TestJobQueue_AddAndGet(t *testing.T) {
	q := NewJobQueue()
	id := NewJobID()

	added := q.Add(id, "report.pdf", "gemma3")
	if added.Status != JobQueued {
		t.Errorf("status = %s, want %s", added.Status, JobQueued)
	}
	if added.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	got, ok := q.Get(id)
	if !ok {
		t.Fatal("job not found after Add")
	}
	if got.Document != "report.pdf" || got.Model != "gemma3" {
		t.Errorf("job = %+v", got)
	}

	if _, ok := q.Get("missing"); ok {
		t.Error("Get returned a job for unknown id")
	}
}

func TestJobQueue_Update(t *testing.T) {
	q := NewJobQueue()
	id := NewJobID()
	q.Add(id, "doc", "")

	ok := q.Update(id, func(j *Job) {
		j.Status = JobProcessing
		j.Progress = 42
	})
	if !ok {
		t.Fatal("Update reported unknown job")
	}

	got, _ := q.Get(id)
	if got.Status != JobProcessing || got.Progress != 42 {
		t.Errorf("job = %+v after update", got)
	}

	if q.Update("missing", func(j *Job) {}) {
		t.Error("Update succeeded for unknown id")
	}
}

func TestJobQueue_GetReturnsCopy(t *testing.T) {
	q := NewJobQueue()
	id := NewJobID()
	q.Add(id, "doc", "")

	got, _ := q.Get(id)
	got.Progress = 99

	fresh, _ := q.Get(id)
	if fresh.Progress != 0 {
		t.Error("mutating a returned copy leaked into the queue")
	}
}

func TestJobQueue_AllNewestFirst(t *testing.T) {
	q := NewJobQueue()
	first := NewJobID()
	q.Add(first, "older", "")
	// CreatedAt resolution is fine-grained but not guaranteed distinct on
	// all platforms; force an ordering.
	q.Update(first, func(j *Job) { j.CreatedAt = j.CreatedAt.Add(-time.Second) })
	second := NewJobID()
	q.Add(second, "newer", "")

	jobs := q.All()
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs", len(jobs))
	}
	if jobs[0].Document != "newer" || jobs[1].Document != "older" {
		t.Errorf("order = %s, %s; want newest first", jobs[0].Document, jobs[1].Document)
	}
}
