package segmentation

import "math"

// edtInf stands in for an infinite squared distance inside the 1D passes
const edtInf = 1e20

// DistanceTransform returns, for every pixel of a rows x cols grid, the
// exact Euclidean distance in pixels to the nearest site. Pixels that are
// sites get 0. With no site at all every distance is +Inf.
//
// This is the separable lower-envelope algorithm of Felzenszwalb and
// Huttenlocher: a squared-distance pass down each column followed by one
// along each row.
func DistanceTransform(rows, cols int, site func(i int) bool) []float64 {
	f := make([]float64, rows*cols)
	found := false
	for i := range f {
		if site(i) {
			found = true
		} else {
			f[i] = edtInf
		}
	}
	if !found {
		for i := range f {
			f[i] = math.Inf(1)
		}
		return f
	}

	n := rows
	if cols > n {
		n = cols
	}
	line := make([]float64, n)
	out := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			line[r] = f[r*cols+c]
		}
		squaredDistance1D(line[:rows], out[:rows], v, z)
		for r := 0; r < rows; r++ {
			f[r*cols+c] = out[r]
		}
	}

	for r := 0; r < rows; r++ {
		row := f[r*cols : (r+1)*cols]
		squaredDistance1D(row, out[:cols], v, z)
		copy(row, out[:cols])
	}

	for i, d := range f {
		f[i] = math.Sqrt(d)
	}
	return f
}

// squaredDistance1D computes d[q] = min_p (q-p)^2 + f[p]. v and z are
// scratch buffers of at least len(f) and len(f)+1 elements.
func squaredDistance1D(f, d []float64, v []int, z []float64) {
	n := len(f)
	if n == 0 {
		return
	}
	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)
	for q := 1; q < n; q++ {
		s := intersection(f, q, v[k])
		for s <= z[k] {
			k--
			s = intersection(f, q, v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}

	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
}

// intersection returns the abscissa where the parabolas rooted at q and p meet
func intersection(f []float64, q, p int) float64 {
	fq := f[q] + float64(q*q)
	fp := f[p] + float64(p*p)
	return (fq - fp) / float64(2*q-2*p)
}
