package segmentation

import (
	"math"

	"mramip/internal/models"
)

// PruneComponents clears, in place, every 4-connected component whose
// centroid lies farther than maxDistance pixels from the slice center.
// Components at or within maxDistance are left untouched.
func PruneComponents(m *models.Mask, maxDistance float64) *models.Mask {
	labels := LabelComponents(m)
	if labels.Count == 0 {
		return m
	}

	centerRow := float64(m.Rows) / 2
	centerCol := float64(m.Cols) / 2

	remove := make([]bool, labels.Count+1)
	for k, c := range labels.Centroids() {
		if math.Hypot(c[0]-centerRow, c[1]-centerCol) > maxDistance {
			remove[k+1] = true
		}
	}

	for i, id := range labels.Data {
		if remove[id] {
			m.Data[i] = false
		}
	}
	return m
}
