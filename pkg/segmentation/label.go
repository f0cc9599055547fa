package segmentation

import (
	"mramip/internal/models"
)

// Labels assigns a component id to every pixel; 0 is background and ids
// run from 1 to Count in raster order of each component's first pixel.
type Labels struct {
	Data  []int
	Rows  int
	Cols  int
	Count int
}

// LabelComponents labels the 4-connected components of a mask
func LabelComponents(m *models.Mask) *Labels {
	l := &Labels{
		Data: make([]int, len(m.Data)),
		Rows: m.Rows,
		Cols: m.Cols,
	}

	queue := make([]int, 0, 64)
	for start, on := range m.Data {
		if !on || l.Data[start] != 0 {
			continue
		}
		l.Count++
		id := l.Count
		l.Data[start] = id
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			r, c := i/m.Cols, i%m.Cols
			for _, n := range neighbors4(r, c, m.Rows, m.Cols) {
				if n >= 0 && m.Data[n] && l.Data[n] == 0 {
					l.Data[n] = id
					queue = append(queue, n)
				}
			}
		}
	}
	return l
}

// neighbors4 returns the flat indices of the 4-neighborhood of (r, c),
// with -1 for positions outside the grid.
func neighbors4(r, c, rows, cols int) [4]int {
	n := [4]int{-1, -1, -1, -1}
	if r > 0 {
		n[0] = (r-1)*cols + c
	}
	if r < rows-1 {
		n[1] = (r+1)*cols + c
	}
	if c > 0 {
		n[2] = r*cols + c - 1
	}
	if c < cols-1 {
		n[3] = r*cols + c + 1
	}
	return n
}

// Sizes returns the pixel count of each component, indexed by id-1
func (l *Labels) Sizes() []int {
	sizes := make([]int, l.Count)
	for _, id := range l.Data {
		if id > 0 {
			sizes[id-1]++
		}
	}
	return sizes
}

// Centroids returns the mean (row, col) of each component, indexed by id-1
func (l *Labels) Centroids() [][2]float64 {
	sums := make([][2]float64, l.Count)
	sizes := make([]float64, l.Count)
	for i, id := range l.Data {
		if id == 0 {
			continue
		}
		sums[id-1][0] += float64(i / l.Cols)
		sums[id-1][1] += float64(i % l.Cols)
		sizes[id-1]++
	}
	for k := range sums {
		sums[k][0] /= sizes[k]
		sums[k][1] /= sizes[k]
	}
	return sums
}

// At returns the label of (r, c)
func (l *Labels) At(r, c int) int {
	return l.Data[r*l.Cols+c]
}
