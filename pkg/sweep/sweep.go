// Package sweep produces a rotational MIP: the volume is rotated step by
// step about one axis and each rotation is projected to a frame.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mramip/internal/models"
	"mramip/pkg/logging"
	"mramip/pkg/parallel"
	"mramip/pkg/projection"
	"mramip/pkg/rotation"
)

// Axis selects the rotation axis of a sweep
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// ParseAxis maps "x", "y" or "z" to an Axis
func ParseAxis(name string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	default:
		return 0, fmt.Errorf("unknown rotation axis %q", name)
	}
}

// Angles returns the Euler angles for a rotation of degrees about a
func (a Axis) Angles(degrees float64) rotation.Angles {
	switch a {
	case AxisX:
		return rotation.Angles{X: degrees}
	case AxisZ:
		return rotation.Angles{Z: degrees}
	default:
		return rotation.Angles{Y: degrees}
	}
}

// Config describes a sweep
type Config struct {
	Axis Axis

	// Angles is the number of frames
	Angles int

	// Step is the rotation between frames in degrees
	Step float64

	// Window is the MIP look-back in slices; 0 uses the input width
	Window int

	// Background fills rotated samples outside the input
	Background float64

	// OutputSpacing for the rotated volumes; 0 uses the smallest input spacing
	OutputSpacing float64

	// Workers bounds the number of angles rendered at once; 0 uses all CPUs
	Workers int
}

// DefaultConfig returns a full turn in one-degree steps about y
func DefaultConfig() Config {
	return Config{
		Axis:   AxisY,
		Angles: 360,
		Step:   1,
	}
}

// Observer is told about every finished frame. Calls are serialized but
// arrive in completion order, not angle order.
type Observer func(done, total int, frame *models.Frame)

// Orchestrator runs sweeps
type Orchestrator struct {
	Config   Config
	Logger   *slog.Logger
	Observer Observer
}

// NewOrchestrator creates an orchestrator for cfg
func NewOrchestrator(cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{Config: cfg, Logger: logging.OrNop(logger)}
}

// Run renders the sweep of v. Frame i shows v rotated by i*Step degrees
// about the configured axis, projected over the last Window+1 slices and
// fitted to the height and width of v.
//
// Angles are rendered in parallel on up to Workers goroutines. The observer
// sees frames in completion order while the returned stack is ordered by
// angle. The first failing angle cancels the others.
//
// Parameters:
//   - ctx: Cancels the sweep between angles
//   - v: The masked volume; it is read concurrently and must not change
//
// Returns:
//   - The frames of the sweep
//   - An error if v is invalid or any angle fails, e.g. with
//     projection.ErrInvalidTargetSize
func (o *Orchestrator) Run(ctx context.Context, v *models.Volume) (*models.AngleStack, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input volume: %w", err)
	}
	cfg := o.Config
	if cfg.Angles < 1 {
		return nil, fmt.Errorf("sweep needs at least one angle, got %d", cfg.Angles)
	}
	window := cfg.Window
	if window == 0 {
		window = v.Size()[0]
	}
	logger := logging.OrNop(o.Logger)
	logger.Info("starting rotational sweep",
		"axis", cfg.Axis.String(), "angles", cfg.Angles, "step", cfg.Step, "window", window)

	opts := rotation.Options{OutputSpacing: cfg.OutputSpacing, Background: cfg.Background}
	start := time.Now()

	var mu sync.Mutex
	done := 0

	frames, err := parallel.Map(ctx, cfg.Angles, cfg.Workers, func(ctx context.Context, i int) (models.Frame, error) {
		angle := float64(i) * cfg.Step
		f, err := RenderAngle(v, cfg.Axis.Angles(angle), opts, window)
		if err != nil {
			return models.Frame{}, fmt.Errorf("angle %v: %w", angle, err)
		}
		f.Angle = angle
		f.Index = i

		mu.Lock()
		done++
		if o.Observer != nil {
			o.Observer(done, cfg.Angles, &f)
		}
		mu.Unlock()
		return f, nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("rotational sweep finished", "frames", len(frames), "elapsed", time.Since(start).String())
	return &models.AngleStack{Frames: frames}, nil
}

// RenderAngle rotates v, projects it over window slices and fits the
// projection to the height and width of v.
func RenderAngle(v *models.Volume, a rotation.Angles, opts rotation.Options, window int) (models.Frame, error) {
	rotated, err := rotation.Rotate(v, a, opts)
	if err != nil {
		return models.Frame{}, err
	}
	f, err := projection.Project(rotated, window)
	if err != nil {
		return models.Frame{}, err
	}
	return projection.Normalize(f, v.Height, v.Width)
}
