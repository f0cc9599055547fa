package animation

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
)

// grayPalette maps palette index i to gray level i
var grayPalette = func() color.Palette {
	p := make(color.Palette, 256)
	for i := range p {
		p[i] = color.Gray{Y: uint8(i)}
	}
	return p
}()

// GIFSink writes an animated GIF
type GIFSink struct {
	Path string
}

// WriteFrames encodes the frames as one GIF. Delays are rounded to the
// format's 10ms resolution.
func (s GIFSink) WriteFrames(frames []*image.Gray, frameDuration time.Duration, loopCount int) error {
	delay := int((frameDuration + 5*time.Millisecond) / (10 * time.Millisecond))
	if delay < 1 {
		delay = 1
	}

	anim := &gif.GIF{LoopCount: loopCount}
	for _, f := range frames {
		p := image.NewPaletted(f.Bounds(), grayPalette)
		copy(p.Pix, f.Pix)
		anim.Image = append(anim.Image, p)
		anim.Delay = append(anim.Delay, delay)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	out, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("error creating GIF file: %w", err)
	}
	if err := gif.EncodeAll(out, anim); err != nil {
		out.Close()
		return fmt.Errorf("error encoding GIF: %w", err)
	}
	return out.Close()
}

// PNGSequenceSink writes every frame as frame_NNN.png into Dir. Duration and
// loop count are not representable and are ignored.
type PNGSequenceSink struct {
	Dir string
}

func (s PNGSequenceSink) WriteFrames(frames []*image.Gray, _ time.Duration, _ int) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("error creating frame directory: %w", err)
	}
	for i, f := range frames {
		path := filepath.Join(s.Dir, fmt.Sprintf("frame_%03d.png", i))
		if err := imaging.Save(f, path); err != nil {
			return fmt.Errorf("error saving frame %d: %w", i, err)
		}
	}
	return nil
}
