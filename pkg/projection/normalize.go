package projection

import (
	"fmt"

	"mramip/internal/models"
)

// Normalize fits f to rows x cols. Missing rows are added at the top. Missing
// columns are split between the sides with the odd one on the left; surplus
// columns are cut from the right. Padding is zero. A frame taller than rows
// cannot be fitted and yields ErrInvalidTargetSize.
func Normalize(f models.Frame, rows, cols int) (models.Frame, error) {
	if rows <= 0 || cols <= 0 {
		return models.Frame{}, fmt.Errorf("%w: %dx%d", ErrInvalidTargetSize, rows, cols)
	}
	dh := rows - f.Rows
	dw := cols - f.Cols
	if dh < 0 {
		return models.Frame{}, fmt.Errorf("%w: frame has %d rows, target %d", ErrInvalidTargetSize, f.Rows, rows)
	}
	if dh == 0 && dw == 0 {
		return f, nil
	}

	left, keep := 0, f.Cols
	if dw >= 0 {
		left = dw/2 + dw%2
	} else {
		keep = cols
	}

	out := models.NewSlice(rows, cols)
	for r := 0; r < f.Rows; r++ {
		src := f.Data[r*f.Cols : r*f.Cols+keep]
		dst := out.Data[(r+dh)*cols+left:]
		copy(dst[:keep], src)
	}

	f.Slice = *out
	return f, nil
}
