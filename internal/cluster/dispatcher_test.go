package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// textPayload renders a minimal chat body carrying the model it was given,
// so tests can check per-server model injection.
type textPayload string

func (p textPayload) Render(model string) ([]byte, error) {
	return []byte(fmt.Sprintf(`{"model":%q,"prompt":%q}`, model, string(p))), nil
}

type failingPayload struct{}

func (failingPayload) Render(string) ([]byte, error) {
	return nil, errors.New("render boom")
}

// chatOK writes a well-formed Ollama chat envelope.
func chatOK(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q}}`, content)
}

// clusterWithBackends builds a registry whose servers point at the given
// base URLs, with sweeps quiesced like newTestCluster does.
func clusterWithBackends(t *testing.T, maxErrors int, urls ...string) *Cluster {
	t.Helper()
	configs := make([]ServerConfig, len(urls))
	for i, u := range urls {
		configs[i] = ServerConfig{
			Name:      fmt.Sprintf("s%d", i),
			URL:       u,
			MaxErrors: maxErrors,
		}
	}
	c, err := New(configs, Options{SweepInterval: time.Hour, Prober: &stubProber{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.mu.Lock()
	c.lastSweep = time.Now()
	c.mu.Unlock()
	return c
}

func TestDispatch_Success(t *testing.T) {
	var gotBody atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != chatPath {
			t.Errorf("path = %s, want %s", r.URL.Path, chatPath)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		buf, _ := io.ReadAll(r.Body)
		gotBody.Store(string(buf))
		chatOK(w, "reply text")
	}))
	defer ts.Close()

	c := clusterWithBackends(t, 0, ts.URL)
	d := NewDispatcher(c, DispatcherOptions{MaxRetries: 1})

	content, err := d.Dispatch(context.Background(), textPayload("hello"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if content != "reply text" {
		t.Errorf("content = %q, want %q", content, "reply text")
	}

	// The payload is rendered with the server's configured model.
	body, _ := gotBody.Load().(string)
	if want := fmt.Sprintf("%q", DefaultModel); !strings.Contains(body, want) {
		t.Errorf("request body %q missing model %s", body, want)
	}

	st := c.Snapshot()
	if st.Servers[0].ErrorCount != 0 {
		t.Errorf("error count = %d after success", st.Servers[0].ErrorCount)
	}
	if st.Servers[0].ResponseTime <= 0 {
		t.Error("response time not recorded")
	}
}

func TestDispatch_FailoverToNextServer(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatOK(w, "from the healthy one")
	}))
	defer good.Close()

	c := clusterWithBackends(t, 5, bad.URL, good.URL)
	d := NewDispatcher(c, DispatcherOptions{MaxRetries: 3})

	content, err := d.Dispatch(context.Background(), textPayload("x"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if content != "from the healthy one" {
		t.Errorf("content = %q", content)
	}

	st := c.Snapshot()
	if st.Servers[0].ErrorCount != 1 {
		t.Errorf("failed server error count = %d, want 1", st.Servers[0].ErrorCount)
	}
	if !st.Servers[0].Active {
		t.Error("one failure below the budget should not deactivate")
	}
}

func TestDispatch_DeactivatesAtErrorBudget(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := clusterWithBackends(t, 2, ts.URL)
	d := NewDispatcher(c, DispatcherOptions{MaxRetries: 5})

	_, err := d.Dispatch(context.Background(), textPayload("x"))
	if err == nil {
		t.Fatal("expected error")
	}

	// Two failures exhaust the budget; the third attempt finds an empty
	// pool and fails as an outage instead of burning the remaining budget.
	if got := hits.Load(); got != 2 {
		t.Errorf("server hit %d times, want 2", got)
	}
	var de *DispatchError
	if !errors.As(err, &de) || de.Kind != FailureOutage {
		t.Fatalf("error = %v, want outage DispatchError", err)
	}
	if !errors.Is(err, ErrNoActiveServers) {
		t.Error("outage error should wrap ErrNoActiveServers")
	}
	if c.ActiveCount() != 0 {
		t.Errorf("active = %d, want 0", c.ActiveCount())
	}
}

func TestDispatch_OutageFailsWithoutAttempts(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer ts.Close()

	c := clusterWithBackends(t, 5, ts.URL)
	setActive(c, "s0", false)
	d := NewDispatcher(c, DispatcherOptions{MaxRetries: 3})

	_, err := d.Dispatch(context.Background(), textPayload("x"))
	var de *DispatchError
	if !errors.As(err, &de) || de.Kind != FailureOutage {
		t.Fatalf("error = %v, want outage", err)
	}
	if hits.Load() != 0 {
		t.Errorf("inactive server was contacted %d times", hits.Load())
	}
}

func TestDispatch_RetriesExhausted(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	// Budget of 10 errors keeps the server in rotation for all 3 attempts.
	c := clusterWithBackends(t, 10, ts.URL)
	d := NewDispatcher(c, DispatcherOptions{MaxRetries: 3})

	_, err := d.Dispatch(context.Background(), textPayload("x"))
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}

	st := c.Snapshot()
	if st.Servers[0].ErrorCount != 3 {
		t.Errorf("error count = %d, want 3", st.Servers[0].ErrorCount)
	}
}

func TestDispatch_MalformedEnvelopeChargedToServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not json")
	}))
	defer ts.Close()

	c := clusterWithBackends(t, 10, ts.URL)
	d := NewDispatcher(c, DispatcherOptions{MaxRetries: 1})

	_, err := d.Dispatch(context.Background(), textPayload("x"))
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}
	if st := c.Snapshot(); st.Servers[0].ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", st.Servers[0].ErrorCount)
	}
}

func TestDispatch_SuccessResetsErrorCount(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		chatOK(w, "recovered")
	}))
	defer ts.Close()

	c := clusterWithBackends(t, 5, ts.URL)
	d := NewDispatcher(c, DispatcherOptions{MaxRetries: 2})

	content, err := d.Dispatch(context.Background(), textPayload("x"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if content != "recovered" {
		t.Errorf("content = %q", content)
	}
	if st := c.Snapshot(); st.Servers[0].ErrorCount != 0 {
		t.Errorf("error count = %d, want 0 after success", st.Servers[0].ErrorCount)
	}
}

func TestDispatch_ContextCanceled(t *testing.T) {
	c := clusterWithBackends(t, 5, "http://unused:11434")
	d := NewDispatcher(c, DispatcherOptions{MaxRetries: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, textPayload("x"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestDispatch_RenderFailureCountsAgainstServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should never be contacted when rendering fails")
	}))
	defer ts.Close()

	c := clusterWithBackends(t, 10, ts.URL)
	d := NewDispatcher(c, DispatcherOptions{MaxRetries: 2})

	_, err := d.Dispatch(context.Background(), failingPayload{})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}
}

func TestClassifyTransport(t *testing.T) {
	dialErr := &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}
	if kind := classifyTransport(dialErr); kind != FailureUnreachable {
		t.Errorf("dial error classified as %s, want %s", kind, FailureUnreachable)
	}

	timeoutErr := &url.Error{Op: "Post", URL: "http://x", Err: context.DeadlineExceeded}
	if kind := classifyTransport(timeoutErr); kind != FailureProtocol {
		t.Errorf("timeout classified as %s, want %s", kind, FailureProtocol)
	}

	if kind := classifyTransport(errors.New("something else")); kind != FailureProtocol {
		t.Errorf("unknown error classified as %s, want %s", kind, FailureProtocol)
	}
}

func TestDispatch_UnreachableServer(t *testing.T) {
	// A listener that is closed before use yields a connection-refused
	// dial error, the unreachable case.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := ts.URL
	ts.Close()

	c := clusterWithBackends(t, 10, deadURL)
	d := NewDispatcher(c, DispatcherOptions{MaxRetries: 1})

	_, err := d.Dispatch(context.Background(), textPayload("x"))
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}
	if st := c.Snapshot(); st.Servers[0].ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", st.Servers[0].ErrorCount)
	}
}
