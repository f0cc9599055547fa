package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFile is written into the output directory after every run
const ManifestFile = "manifest.yaml"

// Manifest records what a run consumed and produced
type Manifest struct {
	RunID      string            `yaml:"runId"`
	StartedAt  time.Time         `yaml:"startedAt"`
	FinishedAt time.Time         `yaml:"finishedAt"`
	Input      string            `yaml:"input"`
	Size       [3]int            `yaml:"size"`
	Spacing    [3]float64        `yaml:"spacing"`
	PixelType  string            `yaml:"pixelType"`
	Frames     int               `yaml:"frames"`
	Outputs    map[string]string `yaml:"outputs"`
	Stages     []StageTiming     `yaml:"stages"`
}

// StageTiming is the wall time of one pipeline stage
type StageTiming struct {
	Name    string  `yaml:"name"`
	Seconds float64 `yaml:"seconds"`
}

// WriteManifest saves m as YAML to path
func WriteManifest(m *Manifest, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating manifest directory: %w", err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("error marshaling manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("error parsing manifest: %w", err)
	}
	return m, nil
}
