package models

// Frame is a 2D projection produced at one angle of a rotational sweep
type Frame struct {
	Slice

	// Origin, Spacing and Direction are the in-plane metadata inherited from
	// the projected volume. Direction is row-major 2x2.
	Origin    [2]float64
	Spacing   [2]float64
	Direction [4]float64

	// Angle is the rotation in degrees the frame was produced at
	Angle float64

	// Index is the position of the frame in its sweep
	Index int
}

// AngleStack holds the frames of a sweep in playback order
type AngleStack struct {
	Frames []Frame
}

// Len returns the number of frames
func (s *AngleStack) Len() int {
	return len(s.Frames)
}

// Volume stacks the frames along z. All frames must share a shape; the
// result has unit spacing, zero origin and identity direction.
func (s *AngleStack) Volume(pixelType PixelType) *Volume {
	if len(s.Frames) == 0 {
		return NewVolume(0, 0, 0, pixelType)
	}
	rows, cols := s.Frames[0].Rows, s.Frames[0].Cols
	v := NewVolume(cols, rows, len(s.Frames), pixelType)
	n := rows * cols
	for z, f := range s.Frames {
		copy(v.Data[z*n:(z+1)*n], f.Data)
	}
	return v
}
