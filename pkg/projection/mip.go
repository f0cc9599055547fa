// Package projection turns volumes into 2D maximum intensity projections and
// fits the projections to a common frame shape.
package projection

import (
	"fmt"

	"mramip/internal/models"
)

// Project returns the maximum intensity projection over the last window+1
// slices of v: for every in-plane pixel the largest value along z in
// [max(0, depth-1-window), depth-1]. The frame inherits the in-plane
// origin, spacing and direction of v.
func Project(v *models.Volume, window int) (models.Frame, error) {
	if v.Depth <= 0 || v.Width <= 0 || v.Height <= 0 {
		return models.Frame{}, fmt.Errorf("cannot project a %dx%dx%d volume", v.Width, v.Height, v.Depth)
	}
	if window < 0 {
		return models.Frame{}, fmt.Errorf("projection window must not be negative, got %d", window)
	}

	last := v.Depth - 1
	first := last - window
	if first < 0 {
		first = 0
	}

	n := v.Width * v.Height
	out := models.NewSlice(v.Height, v.Width)
	copy(out.Data, v.Data[first*n:(first+1)*n])
	for z := first + 1; z <= last; z++ {
		plane := v.Data[z*n : (z+1)*n]
		for i, val := range plane {
			if val > out.Data[i] {
				out.Data[i] = val
			}
		}
	}

	return models.Frame{
		Slice:     *out,
		Origin:    [2]float64{v.Origin[0], v.Origin[1]},
		Spacing:   [2]float64{v.Spacing[0], v.Spacing[1]},
		Direction: [4]float64{v.Direction[0], v.Direction[1], v.Direction[3], v.Direction[4]},
	}, nil
}
