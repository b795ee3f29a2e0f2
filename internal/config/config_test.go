package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsZeroValue(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err != nil {
		t.Fatalf("Load returned error for missing file: %v", err)
	}
	if cfg.ListenAddress != "" || len(cfg.Accepters) != 0 {
		t.Fatalf("expected zero-value Config, got %+v", cfg)
	}
}

func TestLoadEmptyPathYieldsZeroValue(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if cfg.ListenAddress != "" {
		t.Fatalf("expected zero-value Config, got %+v", cfg)
	}
}

func TestLoadParsesAccepters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muxctl.yml")
	contents := []byte(`
listenAddress: ":9000"
logLevel: debug
accepters:
  - name: log
    inboundQueueCapacity: 128
  - name: control
`)
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("unable to write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("ListenAddress = %q, want %q", cfg.ListenAddress, ":9000")
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if len(cfg.Accepters) != 2 {
		t.Fatalf("len(Accepters) = %d, want 2", len(cfg.Accepters))
	}
	if cfg.Accepters[0].Name != "log" || cfg.Accepters[0].InboundQueueCapacity != 128 {
		t.Fatalf("unexpected first accepter: %+v", cfg.Accepters[0])
	}
	if cfg.Accepters[1].Name != "control" || cfg.Accepters[1].InboundQueueCapacity != 0 {
		t.Fatalf("unexpected second accepter: %+v", cfg.Accepters[1])
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muxctl.yml")
	if err := os.WriteFile(path, []byte("not: [valid"), 0o644); err != nil {
		t.Fatalf("unable to write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestLoadEnvironmentMissingFileIsNotAnError(t *testing.T) {
	if err := LoadEnvironment(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnvironment returned error for missing file: %v", err)
	}
}
