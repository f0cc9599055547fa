// Package animation turns a stack of projection frames into an animated
// loop. Frames are quantized to 8-bit gray and handed to a Sink.
package animation

import (
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"

	"mramip/internal/models"
	"mramip/pkg/logging"
)

// Sink stores an ordered sequence of frames
type Sink interface {
	WriteFrames(frames []*image.Gray, frameDuration time.Duration, loopCount int) error
}

// Encoder quantizes frames and writes them to a sink
type Encoder struct {
	// FrameDuration is the display time of each frame
	FrameDuration time.Duration

	// LoopCount is the number of repetitions; 0 loops forever
	LoopCount int

	// Width resizes frames, keeping the aspect ratio; 0 keeps the frame size
	Width int

	Logger *slog.Logger
}

// NewEncoder creates an encoder showing each frame for frameDuration and
// looping forever
func NewEncoder(frameDuration time.Duration, logger *slog.Logger) *Encoder {
	return &Encoder{FrameDuration: frameDuration, Logger: logging.OrNop(logger)}
}

// Encode quantizes frames in order and writes them to sink
func (e *Encoder) Encode(frames []models.Frame, sink Sink) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to encode")
	}
	if e.FrameDuration <= 0 {
		return fmt.Errorf("frame duration must be positive, got %v", e.FrameDuration)
	}
	logger := logging.OrNop(e.Logger)

	images := make([]*image.Gray, len(frames))
	for i := range frames {
		img := Quantize(&frames[i])
		if e.Width > 0 && e.Width != img.Bounds().Dx() {
			img = toGray(imaging.Resize(img, e.Width, 0, imaging.Lanczos))
		}
		images[i] = img
	}

	if err := sink.WriteFrames(images, e.FrameDuration, e.LoopCount); err != nil {
		return fmt.Errorf("error writing frames: %w", err)
	}
	logger.Info("encoded animation", "frames", len(images), "frameDuration", e.FrameDuration.String())
	return nil
}

// Quantize rescales a frame linearly from [min, max] to [0, 255], truncating
// to 8 bits. A constant frame maps to black.
func Quantize(f *models.Frame) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Cols, f.Rows))
	lo, hi := f.MinMax()
	span := hi - lo
	if !(span > 0) {
		return img
	}
	for i, v := range f.Data {
		q := (v - lo) / span * 255
		if q < 0 {
			q = 0
		} else if q > 255 {
			q = 255
		}
		img.Pix[i] = uint8(q)
	}
	return img
}

// toGray copies the red channel of a gray-valued NRGBA image
func toGray(src *image.NRGBA) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < b.Dx(); x++ {
			dst.Pix[y*dst.Stride+x] = row[x*4]
		}
	}
	return dst
}
