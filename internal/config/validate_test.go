package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidate_AccumulatesAllErrors(t *testing.T) {
	cfg := Config{
		ListenAddr:    "no-port-here",
		ServersFile:   "",
		SweepInterval: 0,
		MaxRetries:    0,
		DefaultModel:  "",
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T", err)
	}
	// Every broken field is reported in one pass.
	if len(verr.Errors) != 5 {
		t.Errorf("got %d errors, want 5: %v", len(verr.Errors), verr.Errors)
	}
	msg := err.Error()
	for _, field := range []string{"listen_addr", "servers_file", "sweep_interval", "max_retries", "default_model"} {
		if !strings.Contains(msg, field) {
			t.Errorf("message missing %s: %s", field, msg)
		}
	}
}

func TestValidate_SingleErrorFormat(t *testing.T) {
	cfg := Default()
	cfg.MaxRetries = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "\n") {
		t.Errorf("single failure should format on one line: %q", err.Error())
	}
}

func TestValidate_BoundsChecks(t *testing.T) {
	cfg := Default()
	cfg.SweepInterval = 100 * time.Millisecond
	cfg.MaxRetries = 50

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors for out-of-bounds values")
	}
	var verr *ValidationError
	errors.As(err, &verr)
	if len(verr.Errors) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(verr.Errors), verr.Errors)
	}
}

func TestValidatePool(t *testing.T) {
	valid := []ServerEntry{
		{Name: "gpu-1", URL: "http://gpu-1:11434"},
		{Name: "gpu-2", URL: "https://gpu-2"},
	}
	if err := ValidatePool(valid); err != nil {
		t.Fatalf("valid pool rejected: %v", err)
	}
}

func TestValidatePool_Empty(t *testing.T) {
	if err := ValidatePool(nil); err == nil {
		t.Fatal("expected error for empty pool")
	}
}

func TestValidatePool_AccumulatesPerEntry(t *testing.T) {
	servers := []ServerEntry{
		{Name: "", URL: "ftp://wrong-scheme"},
		{Name: "a", URL: "http://ok:11434", Timeout: -time.Second},
		{Name: "a", URL: ""},
	}

	err := ValidatePool(servers)
	if err == nil {
		t.Fatal("expected errors")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T", err)
	}

	msg := err.Error()
	for _, want := range []string{
		"servers[0]: name must not be empty",
		"scheme must be http or https",
		"servers[1]: timeout must not be negative",
		`name "a" duplicates servers[1]`,
		"servers[2]: url must not be empty",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}
