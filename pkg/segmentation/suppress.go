package segmentation

import (
	"mramip/internal/models"
)

// ProtectedCenters returns the two locations, in (row, col) pixels, around
// which vessel signal is expected: the middle row at a third of the width,
// and the bottom row at half the width.
func ProtectedCenters(rows, cols int) [2][2]int {
	return [2][2]int{
		{rows / 2, cols / 3},
		{rows - 1, cols / 2},
	}
}

// penaltySurface returns the background penalty for a slice: zero inside
// the protected disks and rising with the squared normalized distance from
// them up to the slice maximum.
func penaltySurface(rows, cols int, radius, peak float64) []float64 {
	centers := ProtectedCenters(rows, cols)
	r2 := radius * radius
	protected := func(i int) bool {
		r, c := i/cols, i%cols
		for _, ctr := range centers {
			dr := float64(r - ctr[0])
			dc := float64(c - ctr[1])
			if dr*dr+dc*dc <= r2 {
				return true
			}
		}
		return false
	}

	dist := DistanceTransform(rows, cols, protected)

	var maxDist float64
	for _, d := range dist {
		if d > maxDist {
			maxDist = d
		}
	}
	// The whole slice lies inside the protected disks
	if maxDist == 0 {
		return make([]float64, len(dist))
	}

	for i, d := range dist {
		n := d / maxDist
		dist[i] = n * n * peak
	}
	return dist
}

// SuppressBackground marks the foreground of a slice. The slice is first
// darkened away from the protected disks, then split with an Otsu threshold.
// A slice without intensity spread after the penalty yields an empty mask.
func SuppressBackground(s *models.Slice, radius float64) *models.Mask {
	mask := models.NewMask(s.Rows, s.Cols)
	if len(s.Data) == 0 {
		return mask
	}

	_, peak := s.MinMax()
	penalty := penaltySurface(s.Rows, s.Cols, radius, peak)

	adjusted := make([]float64, len(s.Data))
	for i, v := range s.Data {
		a := v - penalty[i]
		if a < 0 {
			a = 0
		}
		adjusted[i] = a
	}

	threshold, ok := OtsuThreshold(adjusted)
	if !ok {
		return mask
	}
	for i, a := range adjusted {
		mask.Data[i] = a > threshold
	}
	return mask
}
