package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Processing.NumCores <= 0 {
		t.Errorf("Expected positive core count, got %d", cfg.Processing.NumCores)
	}
	if cfg.Segmentation.ProtectedRadius != 200 {
		t.Errorf("Expected protected radius 200, got %v", cfg.Segmentation.ProtectedRadius)
	}
	if cfg.Segmentation.PruneDistance != 350 {
		t.Errorf("Expected prune distance 350, got %v", cfg.Segmentation.PruneDistance)
	}
	if cfg.Sweep.Axis != "y" || cfg.Sweep.Angles != 360 || cfg.Sweep.Step != 1 {
		t.Errorf("Expected 360 one-degree steps about y, got %+v", cfg.Sweep)
	}
	if cfg.Animation.FrameDurationMs != 100 || cfg.Animation.LoopCount != 0 {
		t.Errorf("Unexpected animation defaults %+v", cfg.Animation)
	}
	if cfg.Input.FetchURL != DefaultFetchURL {
		t.Errorf("Expected the PhysioNet fetch fallback, got %q", cfg.Input.FetchURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config must be valid: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Sweep.Angles != 360 {
		t.Errorf("Expected defaults for a missing file, got %+v", cfg.Sweep)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
processing:
  numCores: 2
sweep:
  axis: z
  angles: 36
  step: 10
animation:
  loopCount: 3
logging:
  level: debug
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Processing.NumCores != 2 {
		t.Errorf("Expected 2 cores, got %d", cfg.Processing.NumCores)
	}
	if cfg.Sweep.Axis != "z" || cfg.Sweep.Angles != 36 || cfg.Sweep.Step != 10 {
		t.Errorf("Sweep overrides not applied: %+v", cfg.Sweep)
	}
	if cfg.Animation.LoopCount != 3 {
		t.Errorf("Expected loop count 3, got %d", cfg.Animation.LoopCount)
	}
	// Untouched sections keep their defaults
	if cfg.Segmentation.PruneDistance != 350 {
		t.Errorf("Expected default prune distance, got %v", cfg.Segmentation.PruneDistance)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug logging, got %q", cfg.Logging.Level)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Animation.FrameDurationMs != 100 {
		t.Errorf("Expected saved defaults, got %+v", cfg.Animation)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad axis", func(c *Config) { c.Sweep.Axis = "w" }},
		{"no angles", func(c *Config) { c.Sweep.Angles = 0 }},
		{"zero duration", func(c *Config) { c.Animation.FrameDurationMs = 0 }},
		{"peak distance", func(c *Config) { c.Segmentation.MinPeakDistance = 0 }},
		{"log level", func(c *Config) { c.Logging.Level = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestIntermediaryPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Dir = "out"
	if got := cfg.IntermediaryPath(); got != filepath.Join("out", "intermediary_results") {
		t.Errorf("Unexpected relative intermediary path %q", got)
	}
	cfg.Output.IntermediaryDir = "/tmp/steps"
	if got := cfg.IntermediaryPath(); got != "/tmp/steps" {
		t.Errorf("Absolute intermediary path must be kept, got %q", got)
	}
}
