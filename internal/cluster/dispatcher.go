// =============================================================================
// RETRYING DISPATCHER - ONE LOGICAL REQUEST WITH FAILOVER
// =============================================================================
//
// WHAT: Sends a single chat request to the pool, transparently retrying
// against different servers when one fails.
//
// ATTEMPT LOOP:
//
//   for attempt := 1..maxRetries {
//       server := registry.NextAvailable()    // rotation + lazy sweep
//       if server == nil -> Outage            // fail fast, keep the budget
//       POST {server.URL}/api/chat            // server's own timeout
//       success -> reset server errors, return content
//       failure -> count error, deactivate at MaxErrors, next attempt
//   }
//   -> ErrRetriesExhausted
//
// Attempts are not pinned: each one goes to whatever the selector judges
// next in rotation, which is how a request fails over. A success resets
// the server's error budget exactly like a successful probe does.
//
// =============================================================================

package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/Kineviz/pdf-km-server/internal/metrics"
)

// chatPath is the Ollama chat completion endpoint.
const chatPath = "/api/chat"

// Payload is one logical request body, rendered per server so each backend
// receives its own configured model identifier.
type Payload interface {
	Render(model string) ([]byte, error)
}

// chatResponse is the envelope Ollama wraps around a chat completion.
type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
}

// Dispatcher sends logical requests to the pool with retry and failover.
type Dispatcher struct {
	cluster    *Cluster
	httpClient *http.Client
	maxRetries int
	metrics    *metrics.ClusterMetrics
	logger     *slog.Logger
}

// DispatcherOptions tunes a Dispatcher. The zero value gets defaults.
type DispatcherOptions struct {
	// MaxRetries bounds failover attempts per logical request.
	MaxRetries int

	// HTTPClient overrides the transport (used by tests). Per-attempt
	// timeouts come from each server's config via context, so the client
	// itself carries no timeout.
	HTTPClient *http.Client

	// Metrics receives dispatch counters and latencies. May be nil.
	Metrics *metrics.ClusterMetrics

	// Logger for dispatch events. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(c *Cluster, opts DispatcherOptions) *Dispatcher {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		cluster:    c,
		httpClient: opts.HTTPClient,
		maxRetries: opts.MaxRetries,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With("component", "dispatcher"),
	}
}

// Dispatch sends one logical request, failing over between servers, and
// returns the reply content (the string in message.content).
//
// An outage fails immediately with a FailureOutage DispatchError wrapping
// ErrNoActiveServers: when no server is active there is nothing to wait
// for, so the remaining budget is not burned on timeouts. An exhausted
// budget fails with ErrRetriesExhausted.
func (d *Dispatcher) Dispatch(ctx context.Context, payload Payload) (string, error) {
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		server := d.cluster.NextAvailable()
		if server == nil {
			d.metrics.IncOutages()
			d.logger.Error("no available servers for request")
			return "", newDispatchError(FailureOutage, "", ErrNoActiveServers)
		}

		if attempt > 1 {
			d.metrics.IncFailovers()
		}
		d.logger.Info("sending request", "server", server.Name, "attempt", attempt)

		content, latency, err := d.send(ctx, server, payload)
		if err == nil {
			d.recordSuccess(server, latency)
			d.logger.Info("request successful",
				"server", server.Name,
				"response_time", latency)
			return content, nil
		}

		d.recordFailure(server, err)
	}

	d.logger.Error("all retry attempts failed", "attempts", d.maxRetries)
	return "", ErrRetriesExhausted
}

// send performs one attempt against one server.
func (d *Dispatcher) send(ctx context.Context, server *Server, payload Payload) (string, time.Duration, error) {
	body, err := payload.Render(server.Model)
	if err != nil {
		return "", 0, fmt.Errorf("render payload: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, server.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, server.URL+chatPath, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", 0, newDispatchError(classifyTransport(err), server.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, newDispatchError(FailureProtocol, server.Name,
			fmt.Errorf("server returned status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, newDispatchError(FailureProtocol, server.Name,
			fmt.Errorf("read response: %w", err))
	}
	latency := time.Since(start)

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return "", 0, newDispatchError(FailureMalformedOutput, server.Name,
			fmt.Errorf("decode chat envelope: %w", err))
	}

	return chat.Message.Content, latency, nil
}

// recordSuccess resets the server's error state under the registry lock.
func (d *Dispatcher) recordSuccess(server *Server, latency time.Duration) {
	d.cluster.mu.Lock()
	server.markSuccess(latency)
	d.cluster.mu.Unlock()
	d.metrics.ObserveDispatch(server.Name, latency, "success")
	d.metrics.SetServerState(server.Name, true, 0)
	d.metrics.SetServersActive(d.cluster.ActiveCount())
}

// recordFailure charges one error to the server, deactivating it when the
// consecutive-error budget runs out.
func (d *Dispatcher) recordFailure(server *Server, err error) {
	kind := FailureProtocol
	var de *DispatchError
	if errors.As(err, &de) {
		kind = de.Kind
	}

	d.cluster.mu.Lock()
	deactivated := server.markFailure(false)
	errCount := server.ErrorCount
	active := server.Active
	d.cluster.mu.Unlock()

	d.metrics.ObserveDispatch(server.Name, 0, string(kind))
	d.metrics.SetServerState(server.Name, active, errCount)
	d.logger.Warn("request failed",
		"server", server.Name,
		"kind", string(kind),
		"error_count", errCount,
		"error", err)

	if deactivated {
		d.metrics.SetServersActive(d.cluster.ActiveCount())
		d.logger.Warn("server marked inactive after repeated errors",
			"server", server.Name,
			"error_count", errCount)
	}
}

// classifyTransport separates "never reached the host" from "reached it
// but the exchange failed". Timeouts count as protocol failures: the
// connection was made and the server simply did not answer in time.
func classifyTransport(err error) FailureKind {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return FailureUnreachable
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return FailureProtocol
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureProtocol
	}
	return FailureProtocol
}
