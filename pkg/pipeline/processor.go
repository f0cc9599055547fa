// Package pipeline runs the complete rotating MIP workflow: it resolves and
// loads the input volume, removes the background, renders the rotational
// sweep and writes the volumes, the animation and a run manifest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"mramip/internal/models"
	"mramip/pkg/animation"
	"mramip/pkg/config"
	"mramip/pkg/fetch"
	"mramip/pkg/logging"
	"mramip/pkg/metrics"
	"mramip/pkg/segmentation"
	"mramip/pkg/sweep"
	"mramip/pkg/visualization"
	"mramip/pkg/volumeio"
)

// Output file names inside the output directory
const (
	ExampleFile       = "example.nii.gz"
	MaskedFile        = "masked_image.nii.gz"
	RotationalMIPFile = "rotational_mip.nii.gz"
	AnimationFile     = "rotating_mip.gif"
)

// Params holds the pipeline parameters
type Params struct {
	// InputFile is a DICOM or NIfTI file, used when InputDir is empty
	InputFile string

	// InputDir is searched for .dcm files and receives fetched files. It
	// takes precedence over InputFile.
	InputDir string

	// Series reads every .dcm file of InputDir as one volume
	Series bool

	// FetchURL is scraped into InputDir when it holds no .dcm files
	FetchURL string

	// Extensions selects the fetched links
	Extensions []string

	// OutputDir receives every artifact of the run
	OutputDir string

	// NumCores bounds the parallel work; 0 uses all CPUs
	NumCores int

	// SaveIntermediaryResults writes the input and masked slices as PNG
	SaveIntermediaryResults bool

	// IntermediaryDir is where intermediary results go
	IntermediaryDir string

	// SavePNGFrames writes every animation frame as PNG next to the GIF
	SavePNGFrames bool

	// MetricsFile receives the run metrics when set
	MetricsFile string

	Segmentation segmentation.Params
	Sweep        sweep.Config

	FrameDuration  time.Duration
	LoopCount      int
	AnimationWidth int
}

// ParamsFromConfig maps a loaded configuration onto pipeline parameters
func ParamsFromConfig(cfg *config.Config) (*Params, error) {
	axis, err := sweep.ParseAxis(cfg.Sweep.Axis)
	if err != nil {
		return nil, err
	}
	return &Params{
		InputFile:               cfg.Input.File,
		InputDir:                cfg.Input.Dir,
		Series:                  cfg.Input.Series,
		FetchURL:                cfg.Input.FetchURL,
		Extensions:              cfg.Input.Extensions,
		OutputDir:               cfg.Output.Dir,
		NumCores:                cfg.Processing.NumCores,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.IntermediaryPath(),
		SavePNGFrames:           cfg.Animation.SavePNGFrames,
		MetricsFile:             cfg.Output.MetricsFile,
		Segmentation: segmentation.Params{
			ProtectedRadius: cfg.Segmentation.ProtectedRadius,
			PruneDistance:   cfg.Segmentation.PruneDistance,
			MinPeakDistance: cfg.Segmentation.MinPeakDistance,
			Separate:        cfg.Segmentation.Separate,
		},
		Sweep: sweep.Config{
			Axis:          axis,
			Angles:        cfg.Sweep.Angles,
			Step:          cfg.Sweep.Step,
			Window:        cfg.Sweep.Window,
			Background:    cfg.Rotation.Background,
			OutputSpacing: cfg.Rotation.OutputSpacing,
			Workers:       cfg.Processing.NumCores,
		},
		FrameDuration:  time.Duration(cfg.Animation.FrameDurationMs) * time.Millisecond,
		LoopCount:      cfg.Animation.LoopCount,
		AnimationWidth: cfg.Animation.Width,
	}, nil
}

// Outputs lists the files written by a run
type Outputs struct {
	Example       string
	Masked        string
	RotationalMIP string
	Animation     string
	Manifest      string

	// FramesDir is set when PNG frames were written
	FramesDir string
}

// Result describes a finished run
type Result struct {
	RunID   string
	Input   string
	Frames  int
	Outputs Outputs
	Elapsed time.Duration
}

// Processor runs the pipeline. A processor is not safe for concurrent runs.
type Processor struct {
	params   *Params
	logger   *slog.Logger
	recorder *metrics.Recorder
	fetcher  *fetch.Fetcher
	observer sweep.Observer

	stages []StageTiming
}

// NewProcessor creates a processor for params. Metrics are recorded into a
// fresh recorder unless SetRecorder replaces it.
func NewProcessor(params *Params, logger *slog.Logger) *Processor {
	logger = logging.OrNop(logger)
	return &Processor{
		params:   params,
		logger:   logger,
		recorder: metrics.NewRecorder(),
		fetcher:  fetch.NewFetcher(params.Extensions, logger),
	}
}

// SetObserver installs a callback told about every rendered frame
func (p *Processor) SetObserver(o sweep.Observer) {
	p.observer = o
}

// SetRecorder replaces the metrics recorder; nil disables metrics
func (p *Processor) SetRecorder(r *metrics.Recorder) {
	p.recorder = r
}

// SetFetcher replaces the fetcher used for FetchURL
func (p *Processor) SetFetcher(f *fetch.Fetcher) {
	p.fetcher = f
}

// Recorder returns the metrics recorder
func (p *Processor) Recorder() *metrics.Recorder {
	return p.recorder
}

// Process runs the complete rotating MIP pipeline. The steps are:
// 1. Resolving the input volume (directory, file or fetched files)
// 2. Loading the volume and saving it as example.nii.gz
// 3. Removing the background slice by slice into masked_image.nii.gz
// 4. Rendering the rotational sweep into rotational_mip.nii.gz
// 5. Encoding the frames as rotating_mip.gif
// 6. Writing the run manifest
//
// The run outcome is recorded in the metrics, and the metrics file is
// written even when a step fails.
//
// Parameters:
//   - ctx: Cancels masking and the sweep between slices and angles
//
// Returns:
//   - The run id, the resolved input and the written files
//   - An error wrapping the first failing step
func (p *Processor) Process(ctx context.Context) (*Result, error) {
	result, err := p.process(ctx)
	p.recorder.RunFinished(err)
	if p.params.MetricsFile != "" {
		if werr := p.recorder.WriteTextfile(p.params.MetricsFile); werr != nil {
			p.logger.Warn("failed to write metrics", "path", p.params.MetricsFile, "error", werr)
		}
	}
	return result, err
}

func (p *Processor) process(ctx context.Context) (*Result, error) {
	p.stages = nil
	started := time.Now()
	result := &Result{RunID: uuid.New().String()}
	logger := p.logger.With("run", result.RunID)

	if p.params.OutputDir == "" {
		return nil, fmt.Errorf("output directory is not set")
	}
	if err := os.MkdirAll(p.params.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if p.params.SaveIntermediaryResults {
		if err := os.MkdirAll(p.params.IntermediaryDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create intermediary directory: %w", err)
		}
	}

	// Step 1: Find the input
	fmt.Println("Step 1: Resolving input volume...")
	var input string
	err := p.stage("resolve", func() error {
		var err error
		input, err = p.ResolveInput(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	result.Input = input
	logger.Info("resolved input", "path", input)

	// Step 2: Load and persist the input
	fmt.Println("Step 2: Loading input volume...")
	var volume *models.Volume
	err = p.stage("load", func() error {
		var err error
		volume, err = volumeio.Open(input)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load input volume: %w", err)
	}
	fmt.Printf("Loaded volume %dx%dx%d (%s), spacing %.3gx%.3gx%.3g\n",
		volume.Width, volume.Height, volume.Depth, volume.PixelType,
		volume.Spacing[0], volume.Spacing[1], volume.Spacing[2])

	result.Outputs.Example = filepath.Join(p.params.OutputDir, ExampleFile)
	if err := p.stage("save_input", func() error {
		return volumeio.Save(result.Outputs.Example, volume)
	}); err != nil {
		return nil, fmt.Errorf("failed to save input volume: %w", err)
	}
	if p.params.SaveIntermediaryResults {
		fmt.Println("Saving input slices...")
		p.saveIntermediarySlices("01_input_slices", volume)
	}

	// Step 3: Remove the background slice by slice
	fmt.Println("Step 3: Removing background...")
	masker := segmentation.NewMasker(p.params.Segmentation, p.params.NumCores, logger)
	masker.OnSlice = func(_, foreground int) {
		p.recorder.SliceMasked(foreground)
	}
	var masked *models.Volume
	err = p.stage("mask", func() error {
		var err error
		masked, err = masker.Mask(ctx, volume)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mask volume: %w", err)
	}

	result.Outputs.Masked = filepath.Join(p.params.OutputDir, MaskedFile)
	if err := p.stage("save_masked", func() error {
		return volumeio.Save(result.Outputs.Masked, masked)
	}); err != nil {
		return nil, fmt.Errorf("failed to save masked volume: %w", err)
	}
	if p.params.SaveIntermediaryResults {
		fmt.Println("Saving masked slices...")
		p.saveIntermediarySlices("02_masked_slices", masked)
	}

	// Step 4: Rotational sweep
	fmt.Printf("Step 4: Rendering %d rotational projections...\n", p.params.Sweep.Angles)
	orchestrator := sweep.NewOrchestrator(p.params.Sweep, logger)
	orchestrator.Observer = func(done, total int, f *models.Frame) {
		p.recorder.FrameRendered()
		if p.observer != nil {
			p.observer(done, total, f)
		}
	}
	var stack *models.AngleStack
	err = p.stage("sweep", func() error {
		var err error
		stack, err = orchestrator.Run(ctx, masked)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render rotational sweep: %w", err)
	}
	result.Frames = stack.Len()

	result.Outputs.RotationalMIP = filepath.Join(p.params.OutputDir, RotationalMIPFile)
	if err := p.stage("save_sweep", func() error {
		return volumeio.Save(result.Outputs.RotationalMIP, stack.Volume(models.PixelFloat64))
	}); err != nil {
		return nil, fmt.Errorf("failed to save rotational MIP: %w", err)
	}

	// Step 5: Animation
	fmt.Println("Step 5: Encoding animation...")
	encoder := animation.NewEncoder(p.params.FrameDuration, logger)
	encoder.LoopCount = p.params.LoopCount
	encoder.Width = p.params.AnimationWidth

	result.Outputs.Animation = filepath.Join(p.params.OutputDir, AnimationFile)
	if err := p.stage("animate", func() error {
		return encoder.Encode(stack.Frames, animation.GIFSink{Path: result.Outputs.Animation})
	}); err != nil {
		return nil, fmt.Errorf("failed to encode animation: %w", err)
	}
	if p.params.SavePNGFrames {
		dir := filepath.Join(p.params.OutputDir, "frames")
		if err := encoder.Encode(stack.Frames, animation.PNGSequenceSink{Dir: dir}); err != nil {
			fmt.Printf("Warning: Failed to save PNG frames: %v\n", err)
		} else {
			result.Outputs.FramesDir = dir
		}
	}

	// Step 6: Manifest
	fmt.Println("Step 6: Writing run manifest...")
	result.Elapsed = time.Since(started)
	result.Outputs.Manifest = filepath.Join(p.params.OutputDir, ManifestFile)
	manifest := &Manifest{
		RunID:      result.RunID,
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
		Input:      input,
		Size:       volume.Size(),
		Spacing:    volume.Spacing,
		PixelType:  volume.PixelType.String(),
		Frames:     result.Frames,
		Outputs:    result.Outputs.files(),
		Stages:     p.stages,
	}
	if err := WriteManifest(manifest, result.Outputs.Manifest); err != nil {
		return nil, err
	}

	logger.Info("pipeline finished", "frames", result.Frames, "elapsed", result.Elapsed.String())
	return result, nil
}

// ResolveInput finds the source volume. A configured input directory wins:
// its first .dcm file by name is used, or the directory itself in series
// mode. A directory without .dcm files is filled from FetchURL and searched
// again. Without a directory the explicit input file is used.
//
// Returns:
//   - the path to open with volumeio.Open
//   - an error wrapping ErrInputMissing when no input can be found
func (p *Processor) ResolveInput(ctx context.Context) (string, error) {
	if dir := p.params.InputDir; dir != "" {
		path, err := p.fromDir(dir)
		if err == nil || !errors.Is(err, ErrInputMissing) || p.params.FetchURL == "" {
			return path, err
		}

		fmt.Printf("No DICOM files found in %s. Fetching from %s...\n", dir, p.params.FetchURL)
		files, err := p.fetcher.Fetch(ctx, p.params.FetchURL, dir)
		if err != nil {
			return "", fmt.Errorf("failed to fetch input: %w", err)
		}
		p.logger.Info("fetched input files", "count", len(files), "dir", dir)
		return p.fromDir(dir)
	}

	if p.params.InputFile != "" {
		if _, err := os.Stat(p.params.InputFile); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInputMissing, err)
		}
		return p.params.InputFile, nil
	}
	return "", fmt.Errorf("%w: neither an input file nor an input directory is set", ErrInputMissing)
}

func (p *Processor) fromDir(dir string) (string, error) {
	files, err := volumeio.ListDICOM(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %v", ErrInputMissing, err)
		}
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: no .dcm files in %s", ErrInputMissing, dir)
	}
	if p.params.Series {
		return dir, nil
	}
	return files[0], nil
}

// stage times fn and records it under name
func (p *Processor) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	p.stages = append(p.stages, StageTiming{Name: name, Seconds: d.Seconds()})
	p.recorder.ObserveStage(name, d)
	return err
}

// saveIntermediarySlices writes the axial slices of v as PNG images. Failures
// are reported and do not stop the run.
func (p *Processor) saveIntermediarySlices(stageName string, v *models.Volume) {
	dir := filepath.Join(p.params.IntermediaryDir, stageName)
	n, err := visualization.NewViewer(v).SaveSliceSequence("z", dir)
	if err != nil {
		fmt.Printf("Warning: Failed to save %s after %d slices: %v\n", stageName, n, err)
		return
	}
	p.logger.Debug("saved intermediary slices", "stage", stageName, "count", n)
}

func (o Outputs) files() map[string]string {
	files := map[string]string{
		"example":       o.Example,
		"masked":        o.Masked,
		"rotationalMIP": o.RotationalMIP,
		"animation":     o.Animation,
	}
	if o.FramesDir != "" {
		files["frames"] = o.FramesDir
	}
	return files
}
