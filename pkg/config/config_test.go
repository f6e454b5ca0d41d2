package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigPassesValidation(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.HTTPAddr != ":8000" {
		t.Errorf("Server.HTTPAddr = %q, want :8000", cfg.Server.HTTPAddr)
	}
	if cfg.Cluster.DefaultNodesPerBackplane != 16 {
		t.Errorf("Cluster.DefaultNodesPerBackplane = %d, want 16", cfg.Cluster.DefaultNodesPerBackplane)
	}
	if cfg.Compiler.DefaultStrategy != "balanced" {
		t.Errorf("Compiler.DefaultStrategy = %q, want balanced", cfg.Compiler.DefaultStrategy)
	}
}

func TestConfigFromFilePartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster.yaml")
	yamlBody := "server:\n  httpAddr: \":9000\"\ncluster:\n  defaultNodesPerBackplane: 8\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := ConfigFromFile(path)
	if err != nil {
		t.Fatalf("ConfigFromFile: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9000" {
		t.Errorf("Server.HTTPAddr = %q, want :9000", cfg.Server.HTTPAddr)
	}
	if cfg.Cluster.DefaultNodesPerBackplane != 8 {
		t.Errorf("Cluster.DefaultNodesPerBackplane = %d, want 8", cfg.Cluster.DefaultNodesPerBackplane)
	}
	// Untouched fields retain their defaults.
	if cfg.Sim.DefaultTimestepUs != 1000 {
		t.Errorf("Sim.DefaultTimestepUs = %d, want 1000 (default)", cfg.Sim.DefaultTimestepUs)
	}
}

func TestConfigFromFileNotFound(t *testing.T) {
	if _, err := ConfigFromFile("/nonexistent/cluster.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestConfigFromFileInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("not: valid: yaml: at: all"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ConfigFromFile(path); err == nil {
		t.Fatal("expected a parse error for invalid YAML")
	}
}

func TestConfigFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("Z1_HTTP_ADDR", ":7000")
	t.Setenv("Z1_NODES_PER_BACKPLANE", "4")
	t.Setenv("Z1_BUS_LATENCY", "5ms")
	t.Setenv("Z1_COMPILER_STRATEGY", "layer_based")

	cfg := ConfigFromEnv(nil)
	if cfg.Server.HTTPAddr != ":7000" {
		t.Errorf("Server.HTTPAddr = %q, want :7000", cfg.Server.HTTPAddr)
	}
	if cfg.Cluster.DefaultNodesPerBackplane != 4 {
		t.Errorf("Cluster.DefaultNodesPerBackplane = %d, want 4", cfg.Cluster.DefaultNodesPerBackplane)
	}
	if cfg.Cluster.BusLatency != 5*time.Millisecond {
		t.Errorf("Cluster.BusLatency = %v, want 5ms", cfg.Cluster.BusLatency)
	}
	if cfg.Compiler.DefaultStrategy != "layer_based" {
		t.Errorf("Compiler.DefaultStrategy = %q, want layer_based", cfg.Compiler.DefaultStrategy)
	}
}

func TestConfigFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("Z1_NODES_PER_BACKPLANE", "not-a-number")

	cfg := ConfigFromEnv(nil)
	if cfg.Cluster.DefaultNodesPerBackplane != 16 {
		t.Errorf("Cluster.DefaultNodesPerBackplane = %d, want 16 (default retained)", cfg.Cluster.DefaultNodesPerBackplane)
	}
}

func TestLoadConfigDefaultsOnly(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.HTTPAddr != ":8000" {
		t.Errorf("Server.HTTPAddr = %q, want :8000", cfg.Server.HTTPAddr)
	}
}

func TestValidateRejectsEmptyHTTPAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty httpAddr")
	}
}

func TestValidateRejectsOversizedBackplane(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cluster.DefaultNodesPerBackplane = 17
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for nodesPerBackplane > 16")
	}
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compiler.DefaultStrategy = "round_robin"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown compiler strategy")
	}
}

func TestApplyCLIOverridesPartial(t *testing.T) {
	cfg := DefaultConfig()
	addr := ":9999"
	cfg.ApplyCLIOverrides(&CLIOverrides{HTTPAddr: &addr})

	if cfg.Server.HTTPAddr != ":9999" {
		t.Errorf("Server.HTTPAddr = %q, want :9999", cfg.Server.HTTPAddr)
	}
	if cfg.Cluster.DefaultNodesPerBackplane != 16 {
		t.Errorf("Cluster.DefaultNodesPerBackplane = %d, want 16 (untouched)", cfg.Cluster.DefaultNodesPerBackplane)
	}
}

func TestApplyCLIOverridesNil(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyCLIOverrides(nil)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate after nil overrides: %v", err)
	}
}
