// Package visualization exports volume slices as images for inspection.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"mramip/internal/models"
)

// Viewer renders planes of a volume as 16-bit gray images. Intensities are
// windowed to the volume range, so every slice shares one gray scale.
type Viewer struct {
	volume *models.Volume

	// lo and hi bound the intensity window
	lo float64
	hi float64
}

// NewViewer creates a viewer for v
func NewViewer(v *models.Volume) *Viewer {
	lo, hi := v.MinMax()
	return &Viewer{volume: v, lo: lo, hi: hi}
}

// SetWindow overrides the intensity range mapped to black and white
func (v *Viewer) SetWindow(lo, hi float64) {
	v.lo, v.hi = lo, hi
}

func (v *Viewer) gray(value float64) color.Gray16 {
	span := v.hi - v.lo
	if !(span > 0) {
		return color.Gray16{}
	}
	n := (value - v.lo) / span
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, n*65535)))}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	vol := v.volume
	var img *image.Gray16

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= vol.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetGray16(z, y, v.gray(vol.At(position, y, z)))
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= vol.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, z, v.gray(vol.At(x, position, z)))
			}
		}

	case "z", "Z":
		// XY plane
		if position >= vol.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, y, v.gray(vol.At(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// ExtractRegion copies a subregion of the volume. The region keeps the
// spacing and direction of the volume and is placed at its physical
// position.
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) (*models.Volume, error) {
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	vol := v.volume
	if startX+sizeX > vol.Width || startY+sizeY > vol.Height || startZ+sizeZ > vol.Depth {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := models.NewVolume(sizeX, sizeY, sizeZ, vol.PixelType)
	region.Spacing = vol.Spacing
	region.Direction = vol.Direction
	region.Origin = vol.ContinuousIndexToPhysicalPoint([3]float64{float64(startX), float64(startY), float64(startZ)})

	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			src := vol.Index(startX, startY+y, startZ+z)
			dst := region.Index(0, y, z)
			copy(region.Data[dst:dst+sizeX], vol.Data[src:src+sizeX])
		}
	}
	return region, nil
}

// SaveSlice saves an extracted slice; the format follows the file extension
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	return imaging.Save(img, filename)
}

// SaveSliceSequence extracts and saves every slice along the specified axis
// as slice_<axis>_NNN.png and returns the number written
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) (int, error) {
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.volume.Width
	case "y", "Y":
		maxPos = v.volume.Height
	case "z", "Z":
		maxPos = v.volume.Depth
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}

	return maxPos, nil
}
