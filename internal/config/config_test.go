package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
bus:
  bootstrap_servers: "nats://localhost:4222"
  flow_source_topic: "flows.raw"
sink:
  flow_index: "flow_summary"
  index_strategy: "DAILY"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Windowing.FixedWindowSizeMs != 60_000 {
		t.Errorf("got %d, want default 60000", cfg.Windowing.FixedWindowSizeMs)
	}
	if cfg.Windowing.AllowedLatenessMs != 14_400_000 {
		t.Errorf("got %d, want default 14400000", cfg.Windowing.AllowedLatenessMs)
	}
	if cfg.TopK != 10 {
		t.Errorf("got %d, want default 10", cfg.TopK)
	}
	if cfg.MetricsAddr != ":9095" {
		t.Errorf("got %q, want default :9095", cfg.MetricsAddr)
	}
	if !cfg.Branches.Total || !cfg.Branches.TopApps || !cfg.Branches.TopHosts || !cfg.Branches.TopConversations {
		t.Errorf("got %+v, want all branches defaulted to enabled when the branches block is omitted", cfg.Branches)
	}
}

func TestLoadConfigRespectsExplicitBranchSubset(t *testing.T) {
	path := writeTempConfig(t, `
bus:
  bootstrap_servers: "nats://localhost:4222"
  flow_source_topic: "flows.raw"
sink:
  flow_index: "flow_summary"
  index_strategy: "DAILY"
branches:
  total: true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Branches.Total {
		t.Error("expected total branch to stay enabled")
	}
	if cfg.Branches.TopApps || cfg.Branches.TopHosts || cfg.Branches.TopConversations {
		t.Errorf("got %+v, want the other branches to stay disabled since at least one branch was explicitly set", cfg.Branches)
	}
}

func TestLoadConfigRejectsMissingRequiredFields(t *testing.T) {
	path := writeTempConfig(t, `
sink:
  flow_index: "flow_summary"
  index_strategy: "DAILY"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for missing bus.bootstrap_servers")
	}
}

func TestLoadConfigRejectsInvalidIndexStrategy(t *testing.T) {
	path := writeTempConfig(t, `
bus:
  bootstrap_servers: "nats://localhost:4222"
  flow_source_topic: "flows.raw"
sink:
  flow_index: "flow_summary"
  index_strategy: "WEEKLY"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for an invalid index strategy")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
