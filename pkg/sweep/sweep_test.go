package sweep

import (
	"context"
	"errors"
	"math"
	"testing"

	"mramip/internal/models"
	"mramip/pkg/projection"
	"mramip/pkg/rotation"
)

// newCubeVolume creates a 50x50x10 volume of zeros with a bright 5x5x5 cube
// at its center
func newCubeVolume() *models.Volume {
	v := models.NewVolume(50, 50, 10, models.PixelFloat64)
	for z := 2; z < 7; z++ {
		for y := 22; y < 27; y++ {
			for x := 22; x < 27; x++ {
				v.Set(x, y, z, 100)
			}
		}
	}
	return v
}

// brightCentroid returns the mean (row, col) of pixels above half the maximum
func brightCentroid(f models.Frame) (row, col float64, n int) {
	_, hi := f.MinMax()
	for r := 0; r < f.Rows; r++ {
		for c := 0; c < f.Cols; c++ {
			if f.At(r, c) > hi/2 {
				row += float64(r)
				col += float64(c)
				n++
			}
		}
	}
	if n > 0 {
		row /= float64(n)
		col /= float64(n)
	}
	return row, col, n
}

func TestCubeFootprint(t *testing.T) {
	v := newCubeVolume()

	for _, angle := range []float64{0, 90, 180, 270} {
		f, err := RenderAngle(v, AxisY.Angles(angle), rotation.Options{}, v.Size()[0])
		if err != nil {
			t.Fatalf("angle %v: RenderAngle failed: %v", angle, err)
		}
		if f.Rows != 50 || f.Cols != 50 {
			t.Fatalf("angle %v: expected 50x50 frame, got %dx%d", angle, f.Rows, f.Cols)
		}

		row, col, n := brightCentroid(f)
		if n == 0 {
			t.Fatalf("angle %v: cube not visible", angle)
		}
		if math.Abs(row-25) > 3 || math.Abs(col-25) > 3 {
			t.Errorf("angle %v: footprint centered at (%.1f, %.1f), expected near (25, 25)", angle, row, col)
		}
		if n < 16 || n > 49 {
			t.Errorf("angle %v: expected a footprint of about 5x5 pixels, got %d", angle, n)
		}
	}
}

func TestRunOrderAndObserver(t *testing.T) {
	v := models.NewVolume(6, 5, 4, models.PixelFloat64)
	for i := range v.Data {
		v.Data[i] = float64(i % 7)
	}

	cfg := DefaultConfig()
	cfg.Angles = 12
	cfg.Step = 30
	cfg.Workers = 4

	seen := make(map[int]bool)
	o := NewOrchestrator(cfg, nil)
	o.Observer = func(done, total int, f *models.Frame) {
		if total != 12 {
			t.Errorf("Expected total 12, got %d", total)
		}
		if seen[done] {
			t.Errorf("Progress %d reported twice", done)
		}
		seen[done] = true
	}

	stack, err := o.Run(context.Background(), v)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stack.Len() != 12 || len(seen) != 12 {
		t.Fatalf("Expected 12 frames and 12 progress calls, got %d and %d", stack.Len(), len(seen))
	}
	for i, f := range stack.Frames {
		if f.Index != i || f.Angle != float64(i)*30 {
			t.Errorf("Frame %d: unexpected index %d angle %v", i, f.Index, f.Angle)
		}
		if f.Rows != 5 || f.Cols != 6 {
			t.Errorf("Frame %d: expected 5x6, got %dx%d", i, f.Rows, f.Cols)
		}
	}

	stacked := stack.Volume(v.PixelType)
	if stacked.Width != 6 || stacked.Height != 5 || stacked.Depth != 12 {
		t.Errorf("Unexpected stack volume %dx%dx%d", stacked.Width, stacked.Height, stacked.Depth)
	}
}

func TestRunFullTurn(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping full 360 degree sweep in short mode")
	}

	v := newCubeVolume()
	stack, err := NewOrchestrator(DefaultConfig(), nil).Run(context.Background(), v)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stack.Len() != 360 {
		t.Fatalf("Expected 360 frames, got %d", stack.Len())
	}
	for i, f := range stack.Frames {
		if f.Angle != float64(i) {
			t.Fatalf("Frame %d has angle %v", i, f.Angle)
		}
		if f.Rows != 50 || f.Cols != 50 {
			t.Fatalf("Frame %d: expected 50x50, got %dx%d", i, f.Rows, f.Cols)
		}
		if _, _, n := brightCentroid(f); n == 0 {
			t.Fatalf("Frame %d: cube not visible", i)
		}
	}
}

func TestRunInvalidTargetSize(t *testing.T) {
	// Halving the spacing doubles the rotated height beyond the input height
	v := models.NewVolume(4, 4, 4, models.PixelFloat64)
	v.Spacing = [3]float64{0.5, 1, 1}

	cfg := DefaultConfig()
	cfg.Angles = 3
	_, err := NewOrchestrator(cfg, nil).Run(context.Background(), v)
	if !errors.Is(err, projection.ErrInvalidTargetSize) {
		t.Errorf("Expected ErrInvalidTargetSize, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOrchestrator(DefaultConfig(), nil).Run(ctx, newCubeVolume())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestParseAxis(t *testing.T) {
	tests := []struct {
		name string
		want Axis
	}{
		{"x", AxisX},
		{"Y", AxisY},
		{" z ", AxisZ},
	}
	for _, tt := range tests {
		got, err := ParseAxis(tt.name)
		if err != nil || got != tt.want {
			t.Errorf("ParseAxis(%q) = %v, %v", tt.name, got, err)
		}
	}
	if _, err := ParseAxis("w"); err == nil {
		t.Error("Expected error for unknown axis")
	}

	if a := AxisZ.Angles(12); a != (rotation.Angles{Z: 12}) {
		t.Errorf("Unexpected angles %+v", a)
	}
}
