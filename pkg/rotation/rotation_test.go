package rotation

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"mramip/internal/models"
)

// newRampVolume creates a volume whose value encodes its index
func newRampVolume(w, h, d int) *models.Volume {
	v := models.NewVolume(w, h, d, models.PixelFloat64)
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v.Set(x, y, z, float64(x+10*y+100*z))
			}
		}
	}
	return v
}

func TestEulerMatrixIsRotation(t *testing.T) {
	r := EulerMatrix(Angles{X: 17, Y: -40, Z: 123})

	var rrt mat.Dense
	rrt.Mul(r, r.T())
	if !mat.EqualApprox(&rrt, mat.NewDiagDense(3, []float64{1, 1, 1}), 1e-12) {
		t.Errorf("Expected R*R^T = I, got\n%v", mat.Formatted(&rrt))
	}
	if det := mat.Det(r); math.Abs(det-1) > 1e-12 {
		t.Errorf("Expected determinant 1, got %v", det)
	}
}

func TestEulerMatrixAboutY(t *testing.T) {
	r := EulerMatrix(Angles{Y: 90})
	want := mat.NewDense(3, 3, []float64{
		0, 0, 1,
		0, 1, 0,
		-1, 0, 0,
	})
	if !mat.EqualApprox(r, want, 1e-12) {
		t.Errorf("Unexpected rotation about y:\n%v", mat.Formatted(r))
	}
}

func TestTransformInverse(t *testing.T) {
	tr := NewTransform(Angles{X: 10, Y: 20, Z: 30}, [3]float64{1, 2, 3})
	p := [3]float64{4, -5, 6}
	back := tr.Inverse().Apply(tr.Apply(p))
	for i := range p {
		if math.Abs(back[i]-p[i]) > 1e-12 {
			t.Errorf("Axis %d: expected %v, got %v", i, p[i], back[i])
		}
	}
	if c := tr.Apply(tr.Center); c != tr.Center {
		t.Errorf("Center must be fixed, got %v", c)
	}
}

func TestRotateIdentity(t *testing.T) {
	v := newRampVolume(6, 5, 4)
	v.Origin = [3]float64{3, -2, 1}

	out, err := Rotate(v, Angles{}, Options{})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	// The corner extents are size-1 voxels apart
	if out.Width != 5 || out.Height != 4 || out.Depth != 3 {
		t.Fatalf("Expected 5x4x3 output, got %dx%dx%d", out.Width, out.Height, out.Depth)
	}
	if out.Origin != v.Origin {
		t.Errorf("Expected origin %v, got %v", v.Origin, out.Origin)
	}
	if out.Direction != models.IdentityDirection() {
		t.Errorf("Expected identity direction, got %v", out.Direction)
	}
	for z := 0; z < out.Depth; z++ {
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				if got, want := out.At(x, y, z), v.At(x, y, z); math.Abs(got-want) > 1e-9 {
					t.Fatalf("(%d,%d,%d): expected %v, got %v", x, y, z, want, got)
				}
			}
		}
	}
}

func TestRotateSwapsExtents(t *testing.T) {
	v := models.NewVolume(10, 20, 30, models.PixelInt16)

	out, err := Rotate(v, Angles{Y: 90}, Options{})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if out.Width != 29 || out.Height != 19 || out.Depth != 9 {
		t.Errorf("Expected 29x19x9 output, got %dx%dx%d", out.Width, out.Height, out.Depth)
	}
	if out.PixelType != models.PixelInt16 {
		t.Errorf("Expected pixel type to be kept, got %s", out.PixelType)
	}
}

func TestRotateMovesVoxel(t *testing.T) {
	v := models.NewVolume(11, 11, 11, models.PixelFloat64)
	v.Set(8, 5, 5, 100)

	out, err := Rotate(v, Angles{Z: 90}, Options{})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	// (+3, 0, 0) from the center turns into (0, +3, 0)
	if got := out.At(5, 8, 5); math.Abs(got-100) > 1e-6 {
		t.Errorf("Expected the bright voxel at (5,8,5), got %v", got)
	}
	if got := out.At(8, 5, 5); math.Abs(got) > 1e-6 {
		t.Errorf("Expected the original position to be empty, got %v", got)
	}
}

func TestRotateBackground(t *testing.T) {
	v := models.NewVolume(9, 9, 3, models.PixelFloat32)
	for i := range v.Data {
		v.Data[i] = 5
	}

	out, err := Rotate(v, Angles{Z: 45}, Options{Background: -1})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if got := out.At(0, 0, 1); got != -1 {
		t.Errorf("Expected background in the rotated corner, got %v", got)
	}
	cx, cy := out.Width/2, out.Height/2
	if got := out.At(cx, cy, 1); math.Abs(got-5) > 1e-6 {
		t.Errorf("Expected input value at the center, got %v", got)
	}
}

func TestRotateContainsCorners(t *testing.T) {
	v := models.NewVolume(7, 9, 5, models.PixelUint8)
	v.Spacing = [3]float64{0.5, 0.75, 2}
	tr := NewTransform(Angles{X: 30, Y: 200, Z: -15}, v.PhysicalCenter())

	g := OutputGrid(v, tr, 0.5)
	for _, idx := range cornerIndexes(v) {
		p := tr.Apply(v.ContinuousIndexToPhysicalPoint(idx))
		for axis := 0; axis < 3; axis++ {
			lo := g.Origin[axis]
			hi := lo + float64(g.Size[axis])*g.Spacing
			if p[axis] < lo-1e-9 || p[axis] > hi+g.Spacing {
				t.Errorf("Corner %v axis %d at %v outside [%v, %v]", idx, axis, p[axis], lo, hi)
			}
		}
	}
}

func TestRotateOutputSpacing(t *testing.T) {
	v := models.NewVolume(5, 5, 5, models.PixelFloat64)
	v.Spacing = [3]float64{2, 1, 3}

	out, err := Rotate(v, Angles{}, Options{})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if out.Spacing != [3]float64{1, 1, 1} {
		t.Errorf("Expected the smallest input spacing, got %v", out.Spacing)
	}
	if out.Width != 8 || out.Height != 4 || out.Depth != 12 {
		t.Errorf("Expected 8x4x12 output, got %dx%dx%d", out.Width, out.Height, out.Depth)
	}

	out, err = Rotate(v, Angles{}, Options{OutputSpacing: 4})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if out.Width != 2 || out.Height != 1 || out.Depth != 3 {
		t.Errorf("Expected 2x1x3 output, got %dx%dx%d", out.Width, out.Height, out.Depth)
	}
}

func TestRotateErrors(t *testing.T) {
	v := models.NewVolume(2, 2, 2, models.PixelFloat64)
	v.Direction = [9]float64{}
	if _, err := Rotate(v, Angles{}, Options{}); err == nil {
		t.Error("Expected error for a singular direction")
	}

	if _, err := Rotate(models.NewVolume(0, 2, 2, models.PixelFloat64), Angles{}, Options{}); err == nil {
		t.Error("Expected error for an empty volume")
	}

	if _, err := Rotate(models.NewVolume(2, 2, 2, models.PixelFloat64), Angles{}, Options{OutputSpacing: -1}); err == nil {
		t.Error("Expected error for negative spacing")
	}
}
