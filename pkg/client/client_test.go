package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitJob(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var req SubmitJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Document != "report.pdf" || req.Text != "body text" {
			t.Errorf("request = %+v", req)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Job{ID: "abc123", Document: req.Document, Status: "queued"})
	}))
	defer ts.Close()

	c := New(Config{Address: ts.URL})
	job, err := c.SubmitJob(context.Background(), SubmitJobRequest{Document: "report.pdf", Text: "body text"})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if job.ID != "abc123" || job.Status != "queued" {
		t.Errorf("job = %+v", job)
	}
}

func TestGetJob_NotFoundBecomesAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "job not found: nope"})
	}))
	defer ts.Close()

	c := New(Config{Address: ts.URL})
	_, err := c.GetJob(context.Background(), "nope")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v (%T), want *APIError", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Message != "job not found: nope" {
		t.Errorf("message = %q, want the server's error field", apiErr.Message)
	}
}

func TestListJobs(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jobs": []Job{{ID: "a"}, {ID: "b"}},
		})
	}))
	defer ts.Close()

	jobs, err := New(Config{Address: ts.URL}).ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "a" {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestClusterStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cluster/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"total_servers": 2,
			"active_servers": 1,
			"servers": [
				{"name": "gpu-1", "is_active": true, "response_time_seconds": 0.25},
				{"name": "gpu-2", "is_active": false, "error_count": 5}
			]
		}`)
	}))
	defer ts.Close()

	st, err := New(Config{Address: ts.URL}).ClusterStatus(context.Background())
	if err != nil {
		t.Fatalf("ClusterStatus: %v", err)
	}
	if st.TotalServers != 2 || st.ActiveServers != 1 {
		t.Errorf("counts = %d/%d", st.ActiveServers, st.TotalServers)
	}
	if !st.Servers[0].Active || st.Servers[0].ResponseTimeSec != 0.25 {
		t.Errorf("servers[0] = %+v", st.Servers[0])
	}
	if st.Servers[1].ErrorCount != 5 {
		t.Errorf("servers[1] = %+v", st.Servers[1])
	}
}

func TestReconnect(t *testing.T) {
	var method string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		fmt.Fprint(w, `{"total_servers": 1, "active_servers": 1}`)
	}))
	defer ts.Close()

	if _, err := New(Config{Address: ts.URL}).Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if method != http.MethodPost {
		t.Errorf("method = %s, want POST", method)
	}
}

func TestHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer ts.Close()

	if err := New(Config{Address: ts.URL}).Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestHealth_ConnectionError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead := ts.URL
	ts.Close()

	if err := New(Config{Address: dead}).Health(context.Background()); err == nil {
		t.Fatal("expected error against a closed server")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{}`)
	}))
	defer ts.Close()

	c := New(Config{Address: ts.URL + "/"})
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestAPIError_NonJSONBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "plain text failure", http.StatusBadGateway)
	}))
	defer ts.Close()

	err := New(Config{Address: ts.URL}).Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v", err)
	}
	if apiErr.Message != "plain text failure" {
		t.Errorf("message = %q, want the raw body", apiErr.Message)
	}
}
