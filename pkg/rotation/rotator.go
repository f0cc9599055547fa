package rotation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"mramip/internal/models"
)

// Options controls the resampling grid of a rotation
type Options struct {
	// OutputSpacing is the isotropic output spacing; 0 uses the smallest
	// input spacing
	OutputSpacing float64

	// Background fills samples that map outside the input volume
	Background float64
}

// Grid describes the output lattice of a rotation
type Grid struct {
	Size    [3]int
	Origin  [3]float64
	Spacing float64
}

// cornerIndexes returns the 8 extreme voxel indexes of v
func cornerIndexes(v *models.Volume) [8][3]float64 {
	size := v.Size()
	var corners [8][3]float64
	for k := 0; k < 8; k++ {
		for axis := 0; axis < 3; axis++ {
			if k&(1<<axis) != 0 {
				corners[k][axis] = float64(size[axis] - 1)
			}
		}
	}
	return corners
}

// OutputGrid computes the axis-aligned lattice that holds the transformed
// corners of v. Origin is the minimum corner and each size is the rounded
// extent in spacing units, at least 1.
func OutputGrid(v *models.Volume, t *Transform, spacing float64) Grid {
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, idx := range cornerIndexes(v) {
		p := t.Apply(v.ContinuousIndexToPhysicalPoint(idx))
		for axis := 0; axis < 3; axis++ {
			lo[axis] = math.Min(lo[axis], p[axis])
			hi[axis] = math.Max(hi[axis], p[axis])
		}
	}

	g := Grid{Origin: lo, Spacing: spacing}
	for axis := 0; axis < 3; axis++ {
		n := int((hi[axis]-lo[axis])/spacing + 0.5)
		if n < 1 {
			n = 1
		}
		g.Size[axis] = n
	}
	return g
}

// Rotate resamples v under the rotation a about its physical center.
//
// The output grid is axis aligned with identity direction. Its origin is the
// minimum of the rotated corners, so the whole rotated volume fits. Each
// output voxel is mapped back through the inverse rotation, trilinearly
// interpolated in the input and cast to the input pixel type. Points outside
// the input get the background value.
//
// Parameters:
//   - v: The volume to rotate; it is not modified
//   - a: Euler angles in degrees, composed as Rz * Rx * Ry
//   - opts: Output spacing and background value
//
// Returns:
//   - A new volume with isotropic spacing
//   - An error if v is invalid, the spacing is negative or the direction
//     matrix is singular
func Rotate(v *models.Volume, a Angles, opts Options) (*models.Volume, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input volume: %w", err)
	}

	spacing := opts.OutputSpacing
	if spacing < 0 {
		return nil, fmt.Errorf("output spacing must not be negative, got %v", spacing)
	}
	if spacing == 0 {
		spacing = math.Min(v.Spacing[0], math.Min(v.Spacing[1], v.Spacing[2]))
	}

	// Physical point to continuous input index: D^-1 (q - origin) / spacing
	var dirInv mat.Dense
	if err := dirInv.Inverse(mat.NewDense(3, 3, v.Direction[:])); err != nil {
		return nil, fmt.Errorf("input direction is not invertible: %w", err)
	}
	toIndex := toArray(&dirInv)

	forward := NewTransform(a, v.PhysicalCenter())
	grid := OutputGrid(v, forward, spacing)
	inverse := forward.Inverse()
	rot := toArray(inverse.Matrix)
	c := inverse.Center

	out := models.NewVolume(grid.Size[0], grid.Size[1], grid.Size[2], v.PixelType)
	out.Origin = grid.Origin
	out.Spacing = [3]float64{spacing, spacing, spacing}

	s := newSampler(v, opts.Background)
	i := 0
	for z := 0; z < grid.Size[2]; z++ {
		pz := grid.Origin[2] + float64(z)*spacing - c[2]
		for y := 0; y < grid.Size[1]; y++ {
			py := grid.Origin[1] + float64(y)*spacing - c[1]
			for x := 0; x < grid.Size[0]; x++ {
				px := grid.Origin[0] + float64(x)*spacing - c[0]

				// Input physical point
				qx := rot[0]*px + rot[1]*py + rot[2]*pz + c[0] - v.Origin[0]
				qy := rot[3]*px + rot[4]*py + rot[5]*pz + c[1] - v.Origin[1]
				qz := rot[6]*px + rot[7]*py + rot[8]*pz + c[2] - v.Origin[2]

				ci := [3]float64{
					(toIndex[0]*qx + toIndex[1]*qy + toIndex[2]*qz) / v.Spacing[0],
					(toIndex[3]*qx + toIndex[4]*qy + toIndex[5]*qz) / v.Spacing[1],
					(toIndex[6]*qx + toIndex[7]*qy + toIndex[8]*qz) / v.Spacing[2],
				}
				out.Data[i] = v.PixelType.Cast(s.sample(ci))
				i++
			}
		}
	}
	return out, nil
}

// sampler interpolates a volume at continuous indexes
type sampler struct {
	v          *models.Volume
	size       [3]int
	background float64
}

func newSampler(v *models.Volume, background float64) *sampler {
	return &sampler{v: v, size: v.Size(), background: background}
}

// sample returns the trilinear interpolation at continuous index ci, or the
// background when ci lies outside [-0.5, size-0.5) on any axis. Neighbors
// beyond the last voxel are clamped.
func (s *sampler) sample(ci [3]float64) float64 {
	var lo, hi [3]int
	var frac [3]float64
	for axis := 0; axis < 3; axis++ {
		n := s.size[axis]
		if !(ci[axis] >= -0.5 && ci[axis] < float64(n)-0.5) {
			return s.background
		}
		f := math.Floor(ci[axis])
		frac[axis] = ci[axis] - f
		lo[axis] = clamp(int(f), n)
		hi[axis] = clamp(int(f)+1, n)
	}

	v := s.v
	c000 := v.At(lo[0], lo[1], lo[2])
	c100 := v.At(hi[0], lo[1], lo[2])
	c010 := v.At(lo[0], hi[1], lo[2])
	c110 := v.At(hi[0], hi[1], lo[2])
	c001 := v.At(lo[0], lo[1], hi[2])
	c101 := v.At(hi[0], lo[1], hi[2])
	c011 := v.At(lo[0], hi[1], hi[2])
	c111 := v.At(hi[0], hi[1], hi[2])

	fx, fy, fz := frac[0], frac[1], frac[2]
	c00 := c000 + fx*(c100-c000)
	c10 := c010 + fx*(c110-c010)
	c01 := c001 + fx*(c101-c001)
	c11 := c011 + fx*(c111-c011)
	c0 := c00 + fy*(c10-c00)
	c1 := c01 + fy*(c11-c01)
	return c0 + fz*(c1-c0)
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
