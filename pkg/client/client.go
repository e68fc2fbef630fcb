// =============================================================================
// PDF-KM GO CLIENT - HTTP CLIENT FOR THE EXTRACTION SERVICE
// =============================================================================
//
// WHAT: A thin typed wrapper over the service's REST API. The CLI uses it,
// and it is importable by any Go program that wants to submit documents or
// watch the cluster.
//
// USAGE:
//
//   c := client.New(client.Config{Address: "http://localhost:8080"})
//
//   job, err := c.SubmitJob(ctx, client.SubmitJobRequest{
//       Document: "report.pdf",
//       Text:     text,
//   })
//
//   status, err := c.ClusterStatus(ctx)
//
// =============================================================================

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds the client configuration.
type Config struct {
	// Address is the base URL of the service, e.g. "http://localhost:8080".
	Address string

	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration

	// HTTPClient overrides the transport (used by tests).
	HTTPClient *http.Client
}

// Client talks to the extraction service's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. Missing fields get defaults.
func New(cfg Config) *Client {
	if cfg.Address == "" {
		cfg.Address = "http://localhost:8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.Address, "/"),
		httpClient: httpClient,
	}
}

// =============================================================================
// API TYPES
// =============================================================================

// SubmitJobRequest submits one document's text for processing.
type SubmitJobRequest struct {
	Document string `json:"document"`
	Text     string `json:"text"`
	Model    string `json:"model,omitempty"`
}

// Job mirrors the service's job status payload.
type Job struct {
	ID                string     `json:"id"`
	Document          string     `json:"document"`
	Model             string     `json:"model"`
	Status            string     `json:"status"`
	Progress          int        `json:"progress"`
	Message           string     `json:"message"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	EstimatedSeconds  int        `json:"estimated_time_seconds"`
	WordCount         int        `json:"word_count"`
	EstimatedPages    float64    `json:"estimated_pages"`
	ChunksCount       int        `json:"chunks_count"`
	ChunksProcessed   int        `json:"chunks_processed"`
	ObservationsCount int        `json:"observations_count"`
	EntitiesCount     int        `json:"entities_count"`
	ProcessingSeconds float64    `json:"processing_time_seconds"`
}

// ServerStatus mirrors one server's health record.
type ServerStatus struct {
	Name            string    `json:"name"`
	URL             string    `json:"url"`
	Model           string    `json:"model"`
	Active          bool      `json:"is_active"`
	ErrorCount      int       `json:"error_count"`
	MaxErrors       int       `json:"max_errors"`
	ResponseTimeSec float64   `json:"response_time_seconds"`
	LastCheck       time.Time `json:"last_check"`
}

// ClusterStatus mirrors the cluster status payload.
type ClusterStatus struct {
	TotalServers  int            `json:"total_servers"`
	ActiveServers int            `json:"active_servers"`
	LastSweep     time.Time      `json:"last_health_check"`
	SweepSeconds  float64        `json:"health_check_interval_seconds"`
	Servers       []ServerStatus `json:"servers"`
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// SubmitJob submits a document and returns the queued job.
func (c *Client) SubmitJob(ctx context.Context, req SubmitJobRequest) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/jobs", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches one job's status.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs fetches all jobs, newest first.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	var resp struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// ClusterStatus fetches the server pool state.
func (c *Client) ClusterStatus(ctx context.Context) (*ClusterStatus, error) {
	var status ClusterStatus
	if err := c.do(ctx, http.MethodGet, "/cluster/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Reconnect triggers a reconnection check of inactive servers and returns
// the resulting pool state.
func (c *Client) Reconnect(ctx context.Context) (*ClusterStatus, error) {
	var status ClusterStatus
	if err := c.do(ctx, http.MethodPost, "/cluster/reconnect", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Health checks the service's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// do performs one JSON round trip.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
