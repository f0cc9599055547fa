// Package rotation resamples volumes under rigid rotations about their
// physical center.
package rotation

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Angles are Euler angles in degrees about the physical x, y and z axes
type Angles struct {
	X float64
	Y float64
	Z float64
}

// EulerMatrix returns the 3x3 rotation Rz * Rx * Ry for the given angles.
// This is the default composition order of an ITK Euler3DTransform.
func EulerMatrix(a Angles) *mat.Dense {
	ax := a.X * math.Pi / 180
	ay := a.Y * math.Pi / 180
	az := a.Z * math.Pi / 180

	cx, sx := math.Cos(ax), math.Sin(ax)
	cy, sy := math.Cos(ay), math.Sin(ay)
	cz, sz := math.Cos(az), math.Sin(az)

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cx, -sx,
		0, sx, cx,
	})
	ry := mat.NewDense(3, 3, []float64{
		cy, 0, sy,
		0, 1, 0,
		-sy, 0, cy,
	})
	rz := mat.NewDense(3, 3, []float64{
		cz, -sz, 0,
		sz, cz, 0,
		0, 0, 1,
	})

	var zx, r mat.Dense
	zx.Mul(rz, rx)
	r.Mul(&zx, ry)
	return &r
}

// Transform is a rotation about a fixed center: p' = R(p - c) + c
type Transform struct {
	Matrix *mat.Dense
	Center [3]float64
}

// NewTransform creates the rotation for angles about center
func NewTransform(a Angles, center [3]float64) *Transform {
	return &Transform{Matrix: EulerMatrix(a), Center: center}
}

// Apply maps a physical point through the transform
func (t *Transform) Apply(p [3]float64) [3]float64 {
	d := mat.NewVecDense(3, []float64{
		p[0] - t.Center[0],
		p[1] - t.Center[1],
		p[2] - t.Center[2],
	})
	var out mat.VecDense
	out.MulVec(t.Matrix, d)
	return [3]float64{
		out.AtVec(0) + t.Center[0],
		out.AtVec(1) + t.Center[1],
		out.AtVec(2) + t.Center[2],
	}
}

// Inverse returns the opposite rotation about the same center. Rotations are
// orthonormal, so the inverse matrix is the transpose.
func (t *Transform) Inverse() *Transform {
	inv := mat.DenseCopyOf(t.Matrix.T())
	return &Transform{Matrix: inv, Center: t.Center}
}

// toArray flattens a 3x3 matrix in row-major order for the inner loops
func toArray(m mat.Matrix) [9]float64 {
	var a [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			a[r*3+c] = m.At(r, c)
		}
	}
	return a
}
