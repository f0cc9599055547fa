package segmentation

import (
	"context"
	"fmt"
	"log/slog"

	"mramip/internal/models"
	"mramip/pkg/logging"
	"mramip/pkg/parallel"
)

// Params holds the background removal parameters
type Params struct {
	// ProtectedRadius is the radius of the disks exempt from the penalty
	ProtectedRadius float64

	// PruneDistance is the largest allowed centroid distance from the center
	PruneDistance float64

	// MinPeakDistance is the minimum spacing of watershed seeds
	MinPeakDistance int

	// Separate runs the watershed separation. Its labels never reach the
	// output; disabling it only saves the work.
	Separate bool
}

// DefaultParams returns the parameters tuned for head-and-neck MRA slices
func DefaultParams() Params {
	return Params{
		ProtectedRadius: 200,
		PruneDistance:   350,
		MinPeakDistance: 1,
		Separate:        true,
	}
}

// Masker removes background from a volume slice by slice
type Masker struct {
	Params Params

	// Workers bounds the number of slices processed at once; 0 uses all CPUs
	Workers int

	Logger *slog.Logger

	// OnSlice, when set, is called after each slice with its foreground
	// pixel count. It may be called from several goroutines at once.
	OnSlice func(z, foreground int)
}

// NewMasker creates a masker with the given parameters
func NewMasker(params Params, workers int, logger *slog.Logger) *Masker {
	return &Masker{
		Params:  params,
		Workers: workers,
		Logger:  logging.OrNop(logger),
	}
}

// MaskSlice computes the foreground mask of one slice
func (m *Masker) MaskSlice(s *models.Slice) *models.Mask {
	mask := SuppressBackground(s, m.Params.ProtectedRadius)
	mask = PruneComponents(mask, m.Params.PruneDistance)
	if m.Params.Separate {
		_, mask = SeparateComponents(mask, m.Params.MinPeakDistance)
	}
	return mask
}

// Mask returns a new volume in which every slice has been multiplied by its
// foreground mask. Shape and physical metadata are preserved; the input is
// not modified.
func (m *Masker) Mask(ctx context.Context, v *models.Volume) (*models.Volume, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input volume: %w", err)
	}
	logger := logging.OrNop(m.Logger)

	slices, err := parallel.Map(ctx, v.Depth, m.Workers, func(ctx context.Context, z int) (*models.Slice, error) {
		s := v.Slice(z)
		mask := m.MaskSlice(s)
		fg := mask.Count()
		if fg == 0 {
			logger.Debug("slice has no foreground", "slice", z)
		}
		if m.OnSlice != nil {
			m.OnSlice(z, fg)
		}
		return mask.Apply(s, v.PixelType), nil
	})
	if err != nil {
		return nil, fmt.Errorf("masking slices: %w", err)
	}

	out := v.Like()
	for z, s := range slices {
		if err := out.SetSlice(z, s); err != nil {
			return nil, err
		}
	}

	logger.Info("masked volume", "slices", v.Depth, "width", v.Width, "height", v.Height)
	return out, nil
}
