package segmentation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// otsuBins is the histogram resolution used for automatic thresholding
const otsuBins = 256

// OtsuThreshold returns the threshold that maximizes the between-class
// variance of a 256-bin histogram spanning [min, max] of values. NaNs are
// ignored. ok is false when the values have no spread, in which case no
// threshold separates foreground from background.
func OtsuThreshold(values []float64) (threshold float64, ok bool) {
	x := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			x = append(x, v)
		}
	}
	if len(x) == 0 {
		return 0, false
	}

	lo, hi := floats.Min(x), floats.Max(x)
	if lo == hi {
		return lo, false
	}

	dividers := make([]float64, otsuBins+1)
	floats.Span(dividers, lo, hi)
	// The top divider is exclusive; nudge it so hi lands in the last bin.
	dividers[otsuBins] = math.Nextafter(hi, math.Inf(1))

	sort.Float64s(x)
	hist := stat.Histogram(nil, dividers, x, nil)

	width := (hi - lo) / otsuBins
	centers := make([]float64, otsuBins)
	for i := range centers {
		centers[i] = lo + (float64(i)+0.5)*width
	}

	// Class weights and means for a split after bin i
	weight1 := make([]float64, otsuBins)
	mean1 := make([]float64, otsuBins)
	var w, m float64
	for i := 0; i < otsuBins; i++ {
		w += hist[i]
		m += hist[i] * centers[i]
		weight1[i] = w
		mean1[i] = m / w
	}
	weight2 := make([]float64, otsuBins)
	mean2 := make([]float64, otsuBins)
	w, m = 0, 0
	for i := otsuBins - 1; i >= 0; i-- {
		w += hist[i]
		m += hist[i] * centers[i]
		weight2[i] = w
		mean2[i] = m / w
	}

	best := -1.0
	idx := 0
	for i := 0; i < otsuBins-1; i++ {
		d := mean1[i] - mean2[i+1]
		variance := weight1[i] * weight2[i+1] * d * d
		if variance > best {
			best = variance
			idx = i
		}
	}
	return centers[idx], true
}
