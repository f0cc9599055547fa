package segmentation

import (
	"container/heap"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"mramip/internal/models"
)

// SeparateComponents splits touching regions of a mask with a
// distance-transform watershed. It returns the basin labels together with
// the input mask, which is passed through unchanged.
func SeparateComponents(m *models.Mask, minDistance int) (*Labels, *models.Mask) {
	dist := DistanceTransform(m.Rows, m.Cols, func(i int) bool { return !m.Data[i] })
	markers := LabelComponents(PeakLocalMax(dist, m, minDistance))
	return Watershed(dist, markers, m), m
}

// PeakLocalMax returns the local maxima of dist inside the mask. A peak
// equals the maximum of its (2*minDistance+1)^2 neighborhood, is strictly
// above the smallest value of dist, and lies at least minDistance pixels
// from the image border. Peaks closer than minDistance (Chebyshev) to a
// stronger accepted peak are dropped.
func PeakLocalMax(dist []float64, m *models.Mask, minDistance int) *models.Mask {
	rows, cols := m.Rows, m.Cols
	peaks := models.NewMask(rows, cols)
	if len(dist) == 0 {
		return peaks
	}

	floor := math.Inf(1)
	for _, d := range dist {
		if d < floor {
			floor = d
		}
	}

	var candidates []peakPoint
	for r := minDistance; r < rows-minDistance; r++ {
		for c := minDistance; c < cols-minDistance; c++ {
			i := r*cols + c
			if !m.Data[i] || !(dist[i] > floor) {
				continue
			}
			if isWindowMax(dist, m, r, c, minDistance) {
				candidates = append(candidates, peakPoint{Row: r, Col: c, Value: dist[i]})
			}
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Value > candidates[b].Value
	})

	var accepted kdtree.Tree
	limit := float64(minDistance * minDistance)
	for _, p := range candidates {
		if _, d := accepted.Nearest(p); d < limit {
			continue
		}
		accepted.Insert(p, false)
		peaks.Set(p.Row, p.Col, true)
	}
	return peaks
}

// isWindowMax reports whether no masked pixel within radius of (r, c)
// exceeds it.
func isWindowMax(dist []float64, m *models.Mask, r, c, radius int) bool {
	v := dist[r*m.Cols+c]
	for rr := r - radius; rr <= r+radius; rr++ {
		if rr < 0 || rr >= m.Rows {
			continue
		}
		for cc := c - radius; cc <= c+radius; cc++ {
			if cc < 0 || cc >= m.Cols {
				continue
			}
			j := rr*m.Cols + cc
			if m.Data[j] && dist[j] > v {
				return false
			}
		}
	}
	return true
}

// peakPoint is a candidate seed for the kd-tree. Distances are squared
// Chebyshev distances so that axis-plane pruning stays valid.
type peakPoint struct {
	Row, Col int
	Value    float64
}

// Compare implements the kdtree.Comparable interface
func (p peakPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(peakPoint)
	switch d {
	case 0:
		return float64(p.Row - q.Row)
	case 1:
		return float64(p.Col - q.Col)
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p peakPoint) Dims() int { return 2 }

// Distance returns the squared Chebyshev distance between two points
func (p peakPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(peakPoint)
	dr := math.Abs(float64(p.Row - q.Row))
	dc := math.Abs(float64(p.Col - q.Col))
	d := math.Max(dr, dc)
	return d * d
}

// Watershed floods the negated distance map from the markers, restricted to
// the mask, using the 4-neighborhood. Pixels are claimed in order of
// increasing -dist, ties broken by the order they were queued. Mask pixels
// no marker reaches stay 0.
func Watershed(dist []float64, markers *Labels, m *models.Mask) *Labels {
	out := &Labels{
		Data:  make([]int, len(markers.Data)),
		Rows:  markers.Rows,
		Cols:  markers.Cols,
		Count: markers.Count,
	}

	q := &floodQueue{}
	age := 0
	for i, id := range markers.Data {
		if id == 0 || !m.Data[i] {
			continue
		}
		out.Data[i] = id
		heap.Push(q, floodItem{value: -dist[i], age: age, index: i})
		age++
	}

	for q.Len() > 0 {
		item := heap.Pop(q).(floodItem)
		r, c := item.index/out.Cols, item.index%out.Cols
		for _, n := range neighbors4(r, c, out.Rows, out.Cols) {
			if n < 0 || out.Data[n] != 0 || !m.Data[n] {
				continue
			}
			out.Data[n] = out.Data[item.index]
			heap.Push(q, floodItem{value: -dist[n], age: age, index: n})
			age++
		}
	}
	return out
}

type floodItem struct {
	value float64
	age   int
	index int
}

// floodQueue is a min-heap of flood items ordered by value, then age
type floodQueue []floodItem

func (q floodQueue) Len() int { return len(q) }

func (q floodQueue) Less(i, j int) bool {
	if q[i].value != q[j].value {
		return q[i].value < q[j].value
	}
	return q[i].age < q[j].age
}

func (q floodQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *floodQueue) Push(x any) { *q = append(*q, x.(floodItem)) }

func (q *floodQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
