package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Worker.QueueSize != 100 {
		t.Errorf("QueueSize = %d, want 100", cfg.Worker.QueueSize)
	}
	if !cfg.Scraper.Headless {
		t.Error("Headless should default to true")
	}
	if got := cfg.Worker.PollDuration(); got != 500*time.Millisecond {
		t.Errorf("PollDuration = %v", got)
	}
	if got := cfg.Worker.JobTimeoutDuration(); got != 0 {
		t.Errorf("JobTimeoutDuration = %v, want 0", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
  token: secret
worker:
  queue_size: 10
  job_timeout: 5m
scraper:
  headless: false
transcriber:
  base_url: http://localhost:9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 || cfg.Server.Token != "secret" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Worker.QueueSize != 10 {
		t.Errorf("QueueSize = %d", cfg.Worker.QueueSize)
	}
	if got := cfg.Worker.JobTimeoutDuration(); got != 5*time.Minute {
		t.Errorf("JobTimeoutDuration = %v", got)
	}
	if cfg.Scraper.Headless {
		t.Error("Headless should be false")
	}
	if cfg.Transcriber.BaseURL != "http://localhost:9000" {
		t.Errorf("BaseURL = %q", cfg.Transcriber.BaseURL)
	}
	// Unset fields keep defaults.
	if cfg.Worker.PollInterval != "500ms" {
		t.Errorf("PollInterval = %q, want default", cfg.Worker.PollInterval)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")

	t.Setenv("VIGIL_PORT", "9090")
	t.Setenv("VIGIL_TOKEN", "env-token")
	t.Setenv("VIGIL_HEADLESS", "false")
	t.Setenv("VIGIL_JOB_TIMEOUT", "1h")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want env override", cfg.Server.Port)
	}
	if cfg.Server.Token != "env-token" {
		t.Errorf("Token = %q", cfg.Server.Token)
	}
	if cfg.Scraper.Headless {
		t.Error("Headless should be overridden to false")
	}
	if got := cfg.Worker.JobTimeoutDuration(); got != time.Hour {
		t.Errorf("JobTimeoutDuration = %v", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "server: ["},
		{"bad port", "server:\n  port: 0\n"},
		{"bad queue size", "worker:\n  queue_size: -1\n"},
		{"bad duration", "worker:\n  poll_interval: soon\n"},
	}
	for _, tt := range tests {
		path := writeConfig(t, tt.content)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}
