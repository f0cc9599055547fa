package models

// Slice is a single 2D plane of intensities in row-major order
type Slice struct {
	Data []float64
	Rows int
	Cols int
}

// NewSlice allocates a zero slice
func NewSlice(rows, cols int) *Slice {
	return &Slice{
		Data: make([]float64, rows*cols),
		Rows: rows,
		Cols: cols,
	}
}

func (s *Slice) At(r, c int) float64 {
	return s.Data[r*s.Cols+c]
}

func (s *Slice) Set(r, c int, value float64) {
	s.Data[r*s.Cols+c] = value
}

// MinMax returns the smallest and largest intensity
func (s *Slice) MinMax() (lo, hi float64) {
	return minMax(s.Data)
}

// Clone returns a deep copy
func (s *Slice) Clone() *Slice {
	return &Slice{
		Data: append([]float64(nil), s.Data...),
		Rows: s.Rows,
		Cols: s.Cols,
	}
}

// Mask is a binary image with the same layout as a Slice
type Mask struct {
	Data []bool
	Rows int
	Cols int
}

// NewMask allocates an all-false mask
func NewMask(rows, cols int) *Mask {
	return &Mask{
		Data: make([]bool, rows*cols),
		Rows: rows,
		Cols: cols,
	}
}

func (m *Mask) At(r, c int) bool {
	return m.Data[r*m.Cols+c]
}

func (m *Mask) Set(r, c int, value bool) {
	m.Data[r*m.Cols+c] = value
}

// Count returns the number of true pixels
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Data {
		if b {
			n++
		}
	}
	return n
}

// Clone returns a deep copy
func (m *Mask) Clone() *Mask {
	return &Mask{
		Data: append([]bool(nil), m.Data...),
		Rows: m.Rows,
		Cols: m.Cols,
	}
}

// Apply multiplies the slice by the mask, storing values as pixelType
func (m *Mask) Apply(s *Slice, pixelType PixelType) *Slice {
	out := NewSlice(s.Rows, s.Cols)
	for i, keep := range m.Data {
		if keep {
			out.Data[i] = pixelType.Cast(s.Data[i])
		}
	}
	return out
}
