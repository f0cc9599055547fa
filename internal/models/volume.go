package models

import (
	"fmt"
	"math"
)

// PixelType is the scalar type a volume was read with. Intensities are held
// as float64 in memory; the type decides how resampled values are stored back.
type PixelType int

const (
	PixelFloat64 PixelType = iota
	PixelFloat32
	PixelUint8
	PixelInt16
	PixelUint16
	PixelInt32
)

// String returns the lower-case type name
func (p PixelType) String() string {
	switch p {
	case PixelFloat64:
		return "float64"
	case PixelFloat32:
		return "float32"
	case PixelUint8:
		return "uint8"
	case PixelInt16:
		return "int16"
	case PixelUint16:
		return "uint16"
	case PixelInt32:
		return "int32"
	default:
		return fmt.Sprintf("PixelType(%d)", int(p))
	}
}

// IsInteger reports whether values of this type are whole numbers
func (p PixelType) IsInteger() bool {
	switch p {
	case PixelUint8, PixelInt16, PixelUint16, PixelInt32:
		return true
	}
	return false
}

// Range returns the representable range of the type
func (p PixelType) Range() (lo, hi float64) {
	switch p {
	case PixelUint8:
		return 0, math.MaxUint8
	case PixelInt16:
		return math.MinInt16, math.MaxInt16
	case PixelUint16:
		return 0, math.MaxUint16
	case PixelInt32:
		return math.MinInt32, math.MaxInt32
	case PixelFloat32:
		return -math.MaxFloat32, math.MaxFloat32
	default:
		return -math.MaxFloat64, math.MaxFloat64
	}
}

// Cast converts v to a value representable by the type. Integer types are
// clamped to their range and truncated toward zero.
func (p PixelType) Cast(v float64) float64 {
	if math.IsNaN(v) {
		if p.IsInteger() {
			return 0
		}
		return v
	}
	lo, hi := p.Range()
	if v < lo {
		v = lo
	} else if v > hi {
		v = hi
	}
	switch {
	case p.IsInteger():
		return math.Trunc(v)
	case p == PixelFloat32:
		return float64(float32(v))
	default:
		return v
	}
}

// Volume is a 3D scalar image with its physical metadata.
//
// Data is stored in row-major order with x varying fastest, so the voxel at
// (x, y, z) lives at z*Width*Height + y*Width + x. Spacing, Origin and the
// Direction columns are given in (x, y, z) order.
type Volume struct {
	Data []float64

	Width  int
	Height int
	Depth  int

	// Spacing is the physical size of each voxel in mm
	Spacing [3]float64

	// Origin is the physical position of voxel (0, 0, 0)
	Origin [3]float64

	// Direction is the row-major 3x3 direction cosine matrix. Column i is
	// the physical direction of index axis i.
	Direction [9]float64

	PixelType PixelType
}

// IdentityDirection returns the row-major 3x3 identity matrix
func IdentityDirection() [9]float64 {
	return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// NewVolume allocates a zero volume with unit spacing, zero origin and
// identity direction.
func NewVolume(width, height, depth int, pixelType PixelType) *Volume {
	return &Volume{
		Data:      make([]float64, width*height*depth),
		Width:     width,
		Height:    height,
		Depth:     depth,
		Spacing:   [3]float64{1, 1, 1},
		Direction: IdentityDirection(),
		PixelType: pixelType,
	}
}

// Size returns the extent per index axis in (x, y, z) order
func (v *Volume) Size() [3]int {
	return [3]int{v.Width, v.Height, v.Depth}
}

// Index returns the offset of voxel (x, y, z) in Data
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Validate checks that the data length and metadata agree with the shape
func (v *Volume) Validate() error {
	if v.Width <= 0 || v.Height <= 0 || v.Depth <= 0 {
		return fmt.Errorf("invalid volume size %dx%dx%d", v.Width, v.Height, v.Depth)
	}
	if want := v.Width * v.Height * v.Depth; len(v.Data) != want {
		return fmt.Errorf("volume data has %d voxels, size %dx%dx%d needs %d",
			len(v.Data), v.Width, v.Height, v.Depth, want)
	}
	for i, s := range v.Spacing {
		if !(s > 0) {
			return fmt.Errorf("invalid spacing %v on axis %d", s, i)
		}
	}
	return nil
}

// Like returns a zero volume with the same shape and metadata
func (v *Volume) Like() *Volume {
	out := *v
	out.Data = make([]float64, len(v.Data))
	return &out
}

// Clone returns a deep copy
func (v *Volume) Clone() *Volume {
	out := *v
	out.Data = append([]float64(nil), v.Data...)
	return &out
}

// Slice copies the z-th plane out of the volume
func (v *Volume) Slice(z int) *Slice {
	n := v.Width * v.Height
	s := NewSlice(v.Height, v.Width)
	copy(s.Data, v.Data[z*n:(z+1)*n])
	return s
}

// SetSlice writes s into the z-th plane
func (v *Volume) SetSlice(z int, s *Slice) error {
	if s.Rows != v.Height || s.Cols != v.Width {
		return fmt.Errorf("slice %dx%d does not fit volume plane %dx%d", s.Rows, s.Cols, v.Height, v.Width)
	}
	n := v.Width * v.Height
	copy(v.Data[z*n:(z+1)*n], s.Data)
	return nil
}

// ContinuousIndexToPhysicalPoint maps a continuous (x, y, z) index to a
// physical point: origin + Direction * diag(spacing) * index.
func (v *Volume) ContinuousIndexToPhysicalPoint(index [3]float64) [3]float64 {
	var p [3]float64
	for r := 0; r < 3; r++ {
		p[r] = v.Origin[r]
		for c := 0; c < 3; c++ {
			p[r] += v.Direction[r*3+c] * v.Spacing[c] * index[c]
		}
	}
	return p
}

// PhysicalCenter returns the physical point at continuous index (size-1)/2
func (v *Volume) PhysicalCenter() [3]float64 {
	size := v.Size()
	var idx [3]float64
	for i, n := range size {
		idx[i] = float64(n-1) / 2
	}
	return v.ContinuousIndexToPhysicalPoint(idx)
}

// MinMax returns the smallest and largest intensity
func (v *Volume) MinMax() (lo, hi float64) {
	return minMax(v.Data)
}

func minMax(data []float64) (lo, hi float64) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi = data[0], data[0]
	for _, d := range data[1:] {
		if d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	return lo, hi
}
