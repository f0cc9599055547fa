package projection

import (
	"errors"
	"testing"

	"mramip/internal/models"
)

func TestProjectWindow(t *testing.T) {
	v := models.NewVolume(2, 1, 4, models.PixelFloat64)
	// Column 0 peaks early, column 1 late
	v.Set(0, 0, 0, 9)
	v.Set(0, 0, 3, 1)
	v.Set(1, 0, 1, 2)
	v.Set(1, 0, 3, 4)

	tests := []struct {
		window int
		want   [2]float64
	}{
		{0, [2]float64{1, 4}},
		{1, [2]float64{1, 4}},
		{2, [2]float64{1, 4}},
		{3, [2]float64{9, 4}},
		{100, [2]float64{9, 4}},
	}

	for _, tt := range tests {
		f, err := Project(v, tt.window)
		if err != nil {
			t.Fatalf("window %d: Project failed: %v", tt.window, err)
		}
		if f.Rows != 1 || f.Cols != 2 {
			t.Fatalf("window %d: expected 1x2 frame, got %dx%d", tt.window, f.Rows, f.Cols)
		}
		got := [2]float64{f.At(0, 0), f.At(0, 1)}
		if got != tt.want {
			t.Errorf("window %d: expected %v, got %v", tt.window, tt.want, got)
		}
	}
}

func TestProjectDominatesSlices(t *testing.T) {
	v := models.NewVolume(3, 3, 5, models.PixelFloat64)
	for i := range v.Data {
		v.Data[i] = float64((i * 7) % 11)
	}
	f, err := Project(v, v.Depth)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < 3; y++ {
			for x := 0; x < 3; x++ {
				if v.At(x, y, z) > f.At(y, x) {
					t.Fatalf("Frame below slice %d at (%d,%d)", z, x, y)
				}
			}
		}
	}
}

func TestProjectMetadata(t *testing.T) {
	v := models.NewVolume(2, 2, 2, models.PixelFloat64)
	v.Origin = [3]float64{1, 2, 3}
	v.Spacing = [3]float64{0.5, 0.25, 4}
	v.Direction = [9]float64{0, 1, 0, -1, 0, 0, 0, 0, 1}

	f, err := Project(v, 0)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	if f.Origin != [2]float64{1, 2} || f.Spacing != [2]float64{0.5, 0.25} {
		t.Errorf("Unexpected frame geometry origin=%v spacing=%v", f.Origin, f.Spacing)
	}
	if f.Direction != [4]float64{0, 1, -1, 0} {
		t.Errorf("Unexpected frame direction %v", f.Direction)
	}
}

func TestProjectErrors(t *testing.T) {
	if _, err := Project(&models.Volume{Width: 2, Height: 2}, 1); err == nil {
		t.Error("Expected error for a zero-depth volume")
	}
	if _, err := Project(models.NewVolume(1, 1, 1, models.PixelUint8), -1); err == nil {
		t.Error("Expected error for a negative window")
	}
}

func frameOf(rows, cols int, values ...float64) models.Frame {
	s := models.NewSlice(rows, cols)
	copy(s.Data, values)
	return models.Frame{Slice: *s, Angle: 30, Index: 3}
}

func TestNormalizePads(t *testing.T) {
	f := frameOf(2, 2, 1, 2, 3, 4)

	out, err := Normalize(f, 3, 5)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := []float64{
		0, 0, 0, 0, 0,
		0, 0, 1, 2, 0,
		0, 0, 3, 4, 0,
	}
	if out.Rows != 3 || out.Cols != 5 {
		t.Fatalf("Expected 3x5 frame, got %dx%d", out.Rows, out.Cols)
	}
	for i := range want {
		if out.Data[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, out.Data)
		}
	}
	if out.Angle != 30 || out.Index != 3 {
		t.Error("Frame metadata must be kept")
	}
}

func TestNormalizeCrops(t *testing.T) {
	f := frameOf(2, 4, 1, 2, 3, 4, 5, 6, 7, 8)

	out, err := Normalize(f, 2, 3)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := []float64{1, 2, 3, 5, 6, 7}
	for i := range want {
		if out.Data[i] != want[i] {
			t.Fatalf("Expected the first columns %v, got %v", want, out.Data)
		}
	}
}

func TestNormalizeSameSize(t *testing.T) {
	f := frameOf(2, 2, 1, 2, 3, 4)
	out, err := Normalize(f, 2, 2)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for i := range f.Data {
		if out.Data[i] != f.Data[i] {
			t.Fatal("Same-size frame must be unchanged")
		}
	}
}

func TestNormalizeInvalidTarget(t *testing.T) {
	f := frameOf(4, 2)
	tests := []struct {
		name       string
		rows, cols int
	}{
		{"taller frame", 3, 2},
		{"zero rows", 0, 2},
		{"negative cols", 4, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Normalize(f, tt.rows, tt.cols); !errors.Is(err, ErrInvalidTargetSize) {
				t.Errorf("Expected ErrInvalidTargetSize, got %v", err)
			}
		})
	}
}
