// Package config provides configuration loading and management for mramip.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"mramip/pkg/logging"
)

// DefaultFetchURL is the PhysioNet image collection used to fill an empty
// input directory
const DefaultFetchURL = "https://physionet.org/files/images/1.0.0/"

// Config represents the application configuration loaded from YAML
type Config struct {
	Processing   Processing     `yaml:"processing"`
	Input        Input          `yaml:"input"`
	Output       Output         `yaml:"output"`
	Segmentation Segmentation   `yaml:"segmentation"`
	Rotation     Rotation       `yaml:"rotation"`
	Sweep        Sweep          `yaml:"sweep"`
	Animation    Animation      `yaml:"animation"`
	Logging      logging.Config `yaml:"logging"`
}

// Processing parameters
type Processing struct {
	// NumCores specifies how many CPU cores to use for parallel processing
	NumCores int `yaml:"numCores"`
}

// Input describes where the source volume comes from
type Input struct {
	// File is a single DICOM or NIfTI file
	File string `yaml:"file"`

	// Dir is searched for *.dcm files when File is empty
	Dir string `yaml:"dir"`

	// Series stacks every DICOM file in Dir instead of reading the first one
	Series bool `yaml:"series"`

	// FetchURL is scraped into Dir when Dir holds no .dcm files; empty
	// disables fetching
	FetchURL string `yaml:"fetchURL"`

	// Extensions selects which scraped links are downloaded
	Extensions []string `yaml:"extensions"`
}

// Output parameters
type Output struct {
	// Dir receives every artifact of a run
	Dir string `yaml:"dir"`

	// SaveIntermediaryResults writes the masked slices as PNG images
	SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

	// IntermediaryDir is relative to Dir unless absolute
	IntermediaryDir string `yaml:"intermediaryDir"`

	// MetricsFile, when set, receives the run metrics in Prometheus text format
	MetricsFile string `yaml:"metricsFile"`
}

// Segmentation parameters for background removal
type Segmentation struct {
	// ProtectedRadius is the radius in pixels of the two disks exempt from the
	// background penalty
	ProtectedRadius float64 `yaml:"protectedRadius"`

	// PruneDistance is the largest allowed distance in pixels between a
	// component centroid and the slice center
	PruneDistance float64 `yaml:"pruneDistance"`

	// MinPeakDistance is the minimum separation of watershed seeds
	MinPeakDistance int `yaml:"minPeakDistance"`

	// Separate runs the watershed separation step
	Separate bool `yaml:"separate"`
}

// Rotation parameters
type Rotation struct {
	// Background fills samples that fall outside the input volume
	Background float64 `yaml:"background"`

	// OutputSpacing is the isotropic spacing of rotated volumes; 0 uses the
	// smallest input spacing
	OutputSpacing float64 `yaml:"outputSpacing"`
}

// Sweep parameters for the rotational MIP
type Sweep struct {
	// Axis is x, y or z
	Axis string `yaml:"axis"`

	// Angles is the number of projections
	Angles int `yaml:"angles"`

	// Step is the rotation between consecutive projections in degrees
	Step float64 `yaml:"step"`

	// Window is the MIP look-back in slices; 0 uses the input width
	Window int `yaml:"window"`
}

// Animation parameters
type Animation struct {
	// FrameDurationMs is the display time of each frame
	FrameDurationMs int `yaml:"frameDurationMs"`

	// LoopCount is the number of repetitions; 0 loops forever
	LoopCount int `yaml:"loopCount"`

	// Width resizes frames before encoding; 0 keeps the projection size
	Width int `yaml:"width"`

	// SavePNGFrames additionally writes every frame as a PNG image
	SavePNGFrames bool `yaml:"savePNGFrames"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Input.FetchURL = DefaultFetchURL
	cfg.Input.Extensions = []string{".dcm", ".gif"}

	cfg.Output.Dir = "output"
	cfg.Output.IntermediaryDir = "intermediary_results"

	cfg.Segmentation.ProtectedRadius = 200
	cfg.Segmentation.PruneDistance = 350
	cfg.Segmentation.MinPeakDistance = 1
	cfg.Segmentation.Separate = true

	cfg.Sweep.Axis = "y"
	cfg.Sweep.Angles = 360
	cfg.Sweep.Step = 1

	cfg.Animation.FrameDurationMs = 100

	cfg.Logging.Level = "info"
	cfg.Logging.MaxSize = 100
	cfg.Logging.MaxAge = 28

	return cfg
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Processing.NumCores < 0 {
		return fmt.Errorf("processing.numCores must not be negative")
	}
	if c.Segmentation.ProtectedRadius < 0 {
		return fmt.Errorf("segmentation.protectedRadius must not be negative")
	}
	if c.Segmentation.PruneDistance < 0 {
		return fmt.Errorf("segmentation.pruneDistance must not be negative")
	}
	if c.Segmentation.MinPeakDistance < 1 {
		return fmt.Errorf("segmentation.minPeakDistance must be at least 1")
	}
	if c.Rotation.OutputSpacing < 0 {
		return fmt.Errorf("rotation.outputSpacing must not be negative")
	}
	switch strings.ToLower(c.Sweep.Axis) {
	case "x", "y", "z":
	default:
		return fmt.Errorf("sweep.axis must be x, y or z, got %q", c.Sweep.Axis)
	}
	if c.Sweep.Angles < 1 {
		return fmt.Errorf("sweep.angles must be at least 1")
	}
	if c.Sweep.Window < 0 {
		return fmt.Errorf("sweep.window must not be negative")
	}
	if c.Animation.FrameDurationMs <= 0 {
		return fmt.Errorf("animation.frameDurationMs must be positive")
	}
	if c.Animation.LoopCount < 0 {
		return fmt.Errorf("animation.loopCount must not be negative")
	}
	if c.Animation.Width < 0 {
		return fmt.Errorf("animation.width must not be negative")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// IntermediaryPath resolves the intermediary directory against the output directory
func (c *Config) IntermediaryPath() string {
	if filepath.IsAbs(c.Output.IntermediaryDir) {
		return c.Output.IntermediaryDir
	}
	return filepath.Join(c.Output.Dir, c.Output.IntermediaryDir)
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
