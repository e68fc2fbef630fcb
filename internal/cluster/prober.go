// =============================================================================
// HEALTH PROBER - LIVENESS CHECKS AGAINST ONE BACKEND
// =============================================================================
//
// WHAT: Answers "is this server able to take work right now?" in two stages:
//
//   1. REACHABILITY: a short TCP dial to the server's host:port. If the
//      host is unreachable there is no point spending the protocol timeout.
//   2. PROTOCOL: GET {url}/api/tags with a bounded timeout. Ollama answers
//      200 on this endpoint whenever the daemon is up; any 2xx counts.
//
// The prober performs I/O only. It never mutates server state and never
// panics past its boundary; the registry records outcomes under its lock.
//
// =============================================================================

package cluster

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	// dialTimeout bounds the reachability stage.
	dialTimeout = 2 * time.Second

	// probeTimeout bounds the protocol stage.
	probeTimeout = 5 * time.Second

	// healthPath is Ollama's liveness endpoint.
	healthPath = "/api/tags"
)

// Prober checks one backend's liveness. Probe returns the observed latency
// of the protocol check on success, or an error describing which stage
// failed.
type Prober interface {
	Probe(baseURL string) (time.Duration, error)
}

// HTTPProber is the production Prober: TCP dial then HTTP GET.
type HTTPProber struct {
	client *http.Client
	dial   func(network, addr string, timeout time.Duration) (net.Conn, error)
	logger *slog.Logger
}

// NewHTTPProber creates a prober with the standard timeouts.
func NewHTTPProber(logger *slog.Logger) *HTTPProber {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProber{
		client: &http.Client{Timeout: probeTimeout},
		dial:   net.DialTimeout,
		logger: logger.With("component", "prober"),
	}
}

// Probe checks reachability and then the protocol endpoint.
func (p *HTTPProber) Probe(baseURL string) (time.Duration, error) {
	addr, err := hostPort(baseURL)
	if err != nil {
		return 0, fmt.Errorf("resolve server address: %w", err)
	}

	// Stage 1: reachability. A refused or timed-out dial means we skip
	// the protocol check entirely.
	conn, err := p.dial("tcp", addr, dialTimeout)
	if err != nil {
		return 0, fmt.Errorf("server unreachable at %s: %w", addr, err)
	}
	conn.Close()

	// Stage 2: protocol health endpoint.
	start := time.Now()
	resp, err := p.client.Get(baseURL + healthPath)
	if err != nil {
		return 0, fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}
	return latency, nil
}

// hostPort extracts a dialable host:port from a base URL, defaulting the
// port from the scheme when the URL names none.
func hostPort(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", baseURL)
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(host, port), nil
}
