package volumeio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"mramip/internal/models"
)

// DICOMReader reads native (uncompressed) DICOM pixel data. A single file
// may hold several frames, which become the slices of the volume.
type DICOMReader struct {
	// Series reads every .dcm file of a directory and stacks them along the
	// slice normal. Without it a directory yields its first file by name.
	Series bool
}

// dicomImage is one parsed DICOM file
type dicomImage struct {
	rows, cols int
	frames     [][]float64

	pixelSpacing [2]float64 // row, column
	sliceSpacing float64
	position     [3]float64
	orientation  [6]float64
	pixelType    models.PixelType
}

// ReadVolume implements Source
func (r DICOMReader) ReadVolume(path string) (*models.Volume, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error reading DICOM input: %w", err)
	}
	if !info.IsDir() {
		img, err := readDICOMFile(path)
		if err != nil {
			return nil, err
		}
		return img.volume(), nil
	}

	files, err := ListDICOM(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no DICOM files in %s", path)
	}
	if !r.Series {
		img, err := readDICOMFile(files[0])
		if err != nil {
			return nil, err
		}
		return img.volume(), nil
	}
	return readDICOMSeries(files)
}

// ListDICOM returns the .dcm files of dir sorted by name
func ListDICOM(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && IsDICOM(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func readDICOMFile(path string) (*dicomImage, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("error parsing DICOM file %s: %w", path, err)
	}

	img := &dicomImage{
		pixelSpacing: [2]float64{1, 1},
		orientation:  [6]float64{1, 0, 0, 0, 1, 0},
	}
	if img.rows, err = intTag(ds, tag.Rows); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if img.cols, err = intTag(ds, tag.Columns); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if ps := floatTags(ds, tag.PixelSpacing); len(ps) >= 2 {
		img.pixelSpacing = [2]float64{ps[0], ps[1]}
	}
	if s := floatTags(ds, tag.SpacingBetweenSlices); len(s) > 0 && s[0] > 0 {
		img.sliceSpacing = s[0]
	} else if s := floatTags(ds, tag.SliceThickness); len(s) > 0 && s[0] > 0 {
		img.sliceSpacing = s[0]
	}
	if p := floatTags(ds, tag.ImagePositionPatient); len(p) >= 3 {
		copy(img.position[:], p)
	}
	if o := floatTags(ds, tag.ImageOrientationPatient); len(o) >= 6 {
		copy(img.orientation[:], o)
	}

	slope, intercept := 1.0, 0.0
	if s := floatTags(ds, tag.RescaleSlope); len(s) > 0 && s[0] != 0 {
		slope = s[0]
	}
	if s := floatTags(ds, tag.RescaleIntercept); len(s) > 0 {
		intercept = s[0]
	}
	signed := false
	if pr, err := intTag(ds, tag.PixelRepresentation); err == nil {
		signed = pr == 1
	}
	bits := 16
	if b, err := intTag(ds, tag.BitsAllocated); err == nil {
		bits = b
	}
	img.pixelType = dicomPixelType(bits, signed, slope, intercept)

	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("%s: no pixel data: %w", path, err)
	}
	pixels := dicom.MustGetPixelDataInfo(el.Value)
	for i, fr := range pixels.Frames {
		if fr.Encapsulated {
			return nil, fmt.Errorf("%s: %w", path, ErrEncapsulatedPixelData)
		}
		samples, err := nativeSamples(fr.NativeData, signed)
		if err != nil {
			return nil, fmt.Errorf("%s frame %d: %w", path, i, err)
		}
		if len(samples) != img.rows*img.cols {
			return nil, fmt.Errorf("%s frame %d: %d samples for %dx%d pixels", path, i, len(samples), img.rows, img.cols)
		}
		for j, s := range samples {
			samples[j] = s*slope + intercept
		}
		img.frames = append(img.frames, samples)
	}
	if len(img.frames) == 0 {
		return nil, fmt.Errorf("%s: pixel data holds no frames", path)
	}
	return img, nil
}

// nativeSamples converts a native frame to float64 samples. Unsigned
// buffers are reinterpreted when the pixel representation is signed.
func nativeSamples(nd frame.INativeFrame, signed bool) ([]float64, error) {
	if nd == nil {
		return nil, fmt.Errorf("missing native frame data")
	}

	var out []float64
	switch f := nd.(type) {
	case *frame.NativeFrame[uint8]:
		out = make([]float64, len(f.RawData))
		for i, v := range f.RawData {
			if signed {
				out[i] = float64(int8(v))
			} else {
				out[i] = float64(v)
			}
		}
	case *frame.NativeFrame[uint16]:
		out = make([]float64, len(f.RawData))
		for i, v := range f.RawData {
			if signed {
				out[i] = float64(int16(v))
			} else {
				out[i] = float64(v)
			}
		}
	case *frame.NativeFrame[int16]:
		out = make([]float64, len(f.RawData))
		for i, v := range f.RawData {
			out[i] = float64(v)
		}
	case *frame.NativeFrame[uint32]:
		out = make([]float64, len(f.RawData))
		for i, v := range f.RawData {
			if signed {
				out[i] = float64(int32(v))
			} else {
				out[i] = float64(v)
			}
		}
	case *frame.NativeFrame[int32]:
		out = make([]float64, len(f.RawData))
		for i, v := range f.RawData {
			out[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("%w: native frame type %T", ErrUnsupportedFormat, nd)
	}
	return out, nil
}

// dicomPixelType picks the smallest pixel type holding the rescaled values
func dicomPixelType(bits int, signed bool, slope, intercept float64) models.PixelType {
	if slope != 1 || intercept != math.Trunc(intercept) {
		return models.PixelFloat32
	}
	if intercept != 0 {
		// Integer rescale may leave the stored range
		if bits <= 16 {
			return models.PixelInt32
		}
		return models.PixelFloat64
	}
	switch {
	case bits <= 8 && !signed:
		return models.PixelUint8
	case bits <= 16 && signed:
		return models.PixelInt16
	case bits <= 16:
		return models.PixelUint16
	case signed:
		return models.PixelInt32
	default:
		return models.PixelFloat64
	}
}

// normal returns the slice normal, the cross product of the row and
// column direction cosines
func (img *dicomImage) normal() [3]float64 {
	r, c := img.orientation[:3], img.orientation[3:]
	return [3]float64{
		r[1]*c[2] - r[2]*c[1],
		r[2]*c[0] - r[0]*c[2],
		r[0]*c[1] - r[1]*c[0],
	}
}

func (img *dicomImage) direction() [9]float64 {
	r, c, n := img.orientation[:3], img.orientation[3:], img.normal()
	return [9]float64{
		r[0], c[0], n[0],
		r[1], c[1], n[1],
		r[2], c[2], n[2],
	}
}

// volume turns the frames of one file into a volume
func (img *dicomImage) volume() *models.Volume {
	v := assemble(img, img.frames)
	if img.sliceSpacing > 0 {
		v.Spacing[2] = img.sliceSpacing
	}
	return v
}

func assemble(ref *dicomImage, frames [][]float64) *models.Volume {
	v := models.NewVolume(ref.cols, ref.rows, len(frames), ref.pixelType)
	n := ref.rows * ref.cols
	for z, f := range frames {
		copy(v.Data[z*n:(z+1)*n], f)
	}
	// PixelSpacing is row spacing first, which is the y step
	v.Spacing = [3]float64{ref.pixelSpacing[1], ref.pixelSpacing[0], 1}
	v.Origin = ref.position
	v.Direction = ref.direction()
	return v
}

// readDICOMSeries stacks single files ordered by their position along the
// slice normal
func readDICOMSeries(files []string) (*models.Volume, error) {
	images := make([]*dicomImage, 0, len(files))
	for _, path := range files {
		img, err := readDICOMFile(path)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	ref := images[0]
	for i, img := range images[1:] {
		if img.rows != ref.rows || img.cols != ref.cols {
			return nil, fmt.Errorf("series image %s is %dx%d, expected %dx%d",
				files[i+1], img.rows, img.cols, ref.rows, ref.cols)
		}
	}

	n := ref.normal()
	along := func(img *dicomImage) float64 {
		return img.position[0]*n[0] + img.position[1]*n[1] + img.position[2]*n[2]
	}
	sort.SliceStable(images, func(a, b int) bool {
		return along(images[a]) < along(images[b])
	})

	var frames [][]float64
	for _, img := range images {
		frames = append(frames, img.frames...)
	}

	first := images[0]
	v := assemble(first, frames)
	v.PixelType = widest(images)
	switch {
	case len(images) > 1 && along(images[1]) > along(first):
		v.Spacing[2] = along(images[1]) - along(first)
	case first.sliceSpacing > 0:
		v.Spacing[2] = first.sliceSpacing
	}
	return v, nil
}

// widest returns a pixel type able to hold every image of the series
func widest(images []*dicomImage) models.PixelType {
	p := images[0].pixelType
	for _, img := range images[1:] {
		if img.pixelType != p {
			return models.PixelFloat32
		}
	}
	return p
}

func intTag(ds dicom.Dataset, t tag.Tag) (int, error) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, fmt.Errorf("missing tag %v: %w", t, err)
	}
	switch el.Value.ValueType() {
	case dicom.Ints:
		vals := dicom.MustGetInts(el.Value)
		if len(vals) == 0 {
			return 0, fmt.Errorf("empty tag %v", t)
		}
		return vals[0], nil
	case dicom.Strings:
		vals := dicom.MustGetStrings(el.Value)
		if len(vals) == 0 {
			return 0, fmt.Errorf("empty tag %v", t)
		}
		return strconv.Atoi(strings.TrimSpace(vals[0]))
	default:
		return 0, fmt.Errorf("tag %v is not an integer", t)
	}
}

// floatTags returns the decimal values of a string or float tag, or nil
// when the tag is absent or malformed
func floatTags(ds dicom.Dataset, t tag.Tag) []float64 {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return nil
	}
	switch el.Value.ValueType() {
	case dicom.Strings:
		var out []float64
		for _, s := range dicom.MustGetStrings(el.Value) {
			for _, part := range strings.Split(s, `\`) {
				f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
				if err != nil {
					return nil
				}
				out = append(out, f)
			}
		}
		return out
	case dicom.Floats:
		return dicom.MustGetFloats(el.Value)
	case dicom.Ints:
		var out []float64
		for _, i := range dicom.MustGetInts(el.Value) {
			out = append(out, float64(i))
		}
		return out
	default:
		return nil
	}
}
