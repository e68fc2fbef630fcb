package cluster

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPProber_Probe(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != healthPath {
			t.Errorf("path = %s, want %s", r.URL.Path, healthPath)
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer ts.Close()

	latency, err := NewHTTPProber(nil).Probe(ts.URL)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if latency <= 0 {
		t.Error("latency not measured")
	}
}

func TestHTTPProber_Non2xxFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	if _, err := NewHTTPProber(nil).Probe(ts.URL); err == nil {
		t.Fatal("expected error for 500 from health endpoint")
	}
}

func TestHTTPProber_UnreachableFailsAtDial(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := ts.URL
	ts.Close()

	_, err := NewHTTPProber(nil).Probe(deadURL)
	if err == nil {
		t.Fatal("expected error for closed listener")
	}
	if !strings.Contains(err.Error(), "unreachable") {
		t.Errorf("error = %v, want dial-stage failure", err)
	}
}

func TestHostPort(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://gpu-1:11434", "gpu-1:11434"},
		{"http://gpu-1", "gpu-1:80"},
		{"https://gpu-1", "gpu-1:443"},
		{"http://10.0.0.5:8080", "10.0.0.5:8080"},
	}
	for _, tt := range tests {
		got, err := hostPort(tt.url)
		if err != nil {
			t.Errorf("hostPort(%q): %v", tt.url, err)
			continue
		}
		if got != tt.want {
			t.Errorf("hostPort(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}

	if _, err := hostPort("not a url://"); err == nil {
		t.Error("expected error for malformed url")
	}
	if _, err := hostPort("/no-host"); err == nil {
		t.Error("expected error for url without host")
	}
}
