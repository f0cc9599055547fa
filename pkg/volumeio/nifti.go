package volumeio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"mramip/internal/models"
)

// NIfTI-1 datatype codes
const (
	niftiUint8   = 2
	niftiInt16   = 4
	niftiInt32   = 8
	niftiFloat32 = 16
	niftiFloat64 = 64
	niftiInt8    = 256
	niftiUint16  = 512
	niftiUint32  = 768
)

const (
	niftiHeaderSize = 348
	niftiVoxOffset  = 352

	// xyzt_units: millimeters and seconds
	niftiUnits = 2 | 8
)

// niftiHeader is the on-disk NIfTI-1 header
type niftiHeader struct {
	SizeofHdr     int32
	DataType      [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// NIfTI reads and writes single-file NIfTI-1 volumes. Paths ending in .gz
// are gzip compressed. Volumes are kept in LPS physical space; the RAS
// coordinates of the file are converted on the way in and out.
type NIfTI struct {
	// Description is stored in the descrip field of written headers
	Description string
}

// ReadVolume implements Source
func (n NIfTI) ReadVolume(path string) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening NIfTI file: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("error opening gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading NIfTI file: %w", err)
	}
	return decodeNIfTI(data)
}

// WriteVolume implements Sink
func (n NIfTI) WriteVolume(path string, v *models.Volume) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid volume: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating NIfTI file: %w", err)
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}
	bw := bufio.NewWriter(w)

	err = encodeNIfTI(bw, v, n.Description)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil && gz != nil {
		err = gz.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("error writing NIfTI file: %w", err)
	}
	return nil
}

// lpsToRAS flips the first two physical axes; the map is its own inverse
var lpsToRAS = mat.NewDiagDense(3, []float64{-1, -1, 1})

func encodeNIfTI(w io.Writer, v *models.Volume, description string) error {
	datatype, bitpix, err := niftiDatatype(v.PixelType)
	if err != nil {
		return err
	}
	for axis, n := range v.Size() {
		if n > math.MaxInt16 {
			return fmt.Errorf("%w: axis %d has %d voxels, NIfTI-1 holds at most %d",
				ErrUnsupportedFormat, axis, n, math.MaxInt16)
		}
	}

	h := niftiHeader{
		SizeofHdr: niftiHeaderSize,
		Regular:   'r',
		Dim:       [8]int16{3, int16(v.Width), int16(v.Height), int16(v.Depth), 1, 1, 1, 1},
		Datatype:  datatype,
		Bitpix:    bitpix,
		Pixdim:    [8]float32{1, float32(v.Spacing[0]), float32(v.Spacing[1]), float32(v.Spacing[2])},
		VoxOffset: niftiVoxOffset,
		SclSlope:  1,
		XYZTUnits: niftiUnits,
		SformCode: 1,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	copy(h.Descrip[:len(h.Descrip)-1], description)

	// sform: RAS = F * D * diag(spacing) * index + F * origin
	var dir, affine mat.Dense
	dir.Mul(lpsToRAS, mat.NewDense(3, 3, v.Direction[:]))
	affine.Mul(&dir, mat.NewDiagDense(3, v.Spacing[:]))
	var offset mat.VecDense
	offset.MulVec(lpsToRAS, mat.NewVecDense(3, v.Origin[:]))

	rows := [3]*[4]float32{&h.SrowX, &h.SrowY, &h.SrowZ}
	for r, row := range rows {
		for c := 0; c < 3; c++ {
			row[c] = float32(affine.At(r, c))
		}
		row[3] = float32(offset.AtVec(r))
	}

	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return err
	}
	// Empty extension block
	if _, err := w.Write(make([]byte, niftiVoxOffset-niftiHeaderSize)); err != nil {
		return err
	}
	return writeSamples(w, v.Data, datatype)
}

func decodeNIfTI(data []byte) (*models.Volume, error) {
	if len(data) < niftiHeaderSize {
		return nil, fmt.Errorf("%w: NIfTI header truncated", ErrUnsupportedFormat)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if binary.LittleEndian.Uint32(data) != niftiHeaderSize {
		if binary.BigEndian.Uint32(data) != niftiHeaderSize {
			return nil, fmt.Errorf("%w: not a NIfTI-1 header", ErrUnsupportedFormat)
		}
		order = binary.BigEndian
	}

	var h niftiHeader
	if err := binary.Read(bytes.NewReader(data[:niftiHeaderSize]), order, &h); err != nil {
		return nil, fmt.Errorf("error decoding NIfTI header: %w", err)
	}
	if string(h.Magic[:3]) != "n+1" {
		return nil, fmt.Errorf("%w: NIfTI magic %q, only single files are read", ErrUnsupportedFormat, h.Magic[:3])
	}

	ndim := int(h.Dim[0])
	if ndim < 2 || ndim > 7 {
		return nil, fmt.Errorf("%w: %d dimensions", ErrUnsupportedFormat, ndim)
	}
	size := [3]int{1, 1, 1}
	for i := 1; i <= ndim; i++ {
		if h.Dim[i] < 1 {
			return nil, fmt.Errorf("%w: dim[%d]=%d", ErrUnsupportedFormat, i, h.Dim[i])
		}
		if i <= 3 {
			size[i-1] = int(h.Dim[i])
		} else if h.Dim[i] > 1 {
			return nil, fmt.Errorf("%w: only 3D volumes are read, dim[%d]=%d", ErrUnsupportedFormat, i, h.Dim[i])
		}
	}

	pixelType, err := niftiPixelType(h.Datatype)
	if err != nil {
		return nil, err
	}

	offset := int(h.VoxOffset)
	if offset < niftiHeaderSize {
		offset = niftiVoxOffset
	}
	if offset > len(data) {
		return nil, fmt.Errorf("NIfTI voxel offset %d beyond end of file", offset)
	}
	// Each axis is below 2^15, so the product cannot overflow
	voxels := size[0] * size[1] * size[2]
	if need := voxels * bytesPerSample(h.Datatype); need > len(data)-offset {
		return nil, fmt.Errorf("NIfTI data truncated: %d bytes for %d voxels", len(data)-offset, voxels)
	}

	v := models.NewVolume(size[0], size[1], size[2], pixelType)
	if err := readSamples(data[offset:], v.Data, h.Datatype, order); err != nil {
		return nil, err
	}

	slope, inter := float64(h.SclSlope), float64(h.SclInter)
	if slope != 0 && !(slope == 1 && inter == 0) {
		for i, x := range v.Data {
			v.Data[i] = x*slope + inter
		}
		v.PixelType = models.PixelFloat32
	}

	niftiGeometry(&h, v)
	return v, nil
}

// niftiGeometry fills spacing, origin and direction of v from the header,
// preferring the sform over the qform over bare pixdim.
func niftiGeometry(h *niftiHeader, v *models.Volume) {
	var affine *mat.Dense
	var origin [3]float64

	switch {
	case h.SformCode > 0:
		affine = mat.NewDense(3, 3, nil)
		rows := [3][4]float32{h.SrowX, h.SrowY, h.SrowZ}
		for r, row := range rows {
			for c := 0; c < 3; c++ {
				affine.Set(r, c, float64(row[c]))
			}
			origin[r] = float64(row[3])
		}

	case h.QformCode > 0:
		b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
		a := 1 - (b*b + c*c + d*d)
		if a < 1e-7 {
			a = 0
		} else {
			a = math.Sqrt(a)
		}
		qfac := float64(h.Pixdim[0])
		if qfac == 0 {
			qfac = 1
		}
		rot := mat.NewDense(3, 3, []float64{
			a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c),
			2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b),
			2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - c*c - b*b,
		})
		scale := mat.NewDiagDense(3, []float64{
			math.Abs(float64(h.Pixdim[1])),
			math.Abs(float64(h.Pixdim[2])),
			math.Abs(float64(h.Pixdim[3])) * qfac,
		})
		affine = &mat.Dense{}
		affine.Mul(rot, scale)
		origin = [3]float64{float64(h.QoffsetX), float64(h.QoffsetY), float64(h.QoffsetZ)}

	default:
		affine = mat.NewDense(3, 3, nil)
		for i := 0; i < 3; i++ {
			affine.Set(i, i, pixdimOrOne(h.Pixdim[i+1]))
		}
	}

	// Back to LPS
	var lps mat.Dense
	lps.Mul(lpsToRAS, affine)
	origin[0], origin[1] = -origin[0], -origin[1]

	col := make([]float64, 3)
	for c := 0; c < 3; c++ {
		mat.Col(col, c, &lps)
		sp := floats.Norm(col, 2)
		if sp == 0 {
			sp = pixdimOrOne(h.Pixdim[c+1])
			col[c] = 1
		} else {
			floats.Scale(1/sp, col)
		}
		v.Spacing[c] = sp
		for r := 0; r < 3; r++ {
			v.Direction[r*3+c] = col[r]
		}
	}
	v.Origin = origin
}

func pixdimOrOne(p float32) float64 {
	if p <= 0 || math.IsNaN(float64(p)) {
		return 1
	}
	return float64(p)
}

func niftiDatatype(p models.PixelType) (code, bitpix int16, err error) {
	switch p {
	case models.PixelUint8:
		return niftiUint8, 8, nil
	case models.PixelInt16:
		return niftiInt16, 16, nil
	case models.PixelUint16:
		return niftiUint16, 16, nil
	case models.PixelInt32:
		return niftiInt32, 32, nil
	case models.PixelFloat32:
		return niftiFloat32, 32, nil
	case models.PixelFloat64:
		return niftiFloat64, 64, nil
	default:
		return 0, 0, fmt.Errorf("%w: pixel type %s", ErrUnsupportedFormat, p)
	}
}

func niftiPixelType(code int16) (models.PixelType, error) {
	switch code {
	case niftiUint8:
		return models.PixelUint8, nil
	case niftiInt8, niftiInt16:
		return models.PixelInt16, nil
	case niftiUint16:
		return models.PixelUint16, nil
	case niftiInt32:
		return models.PixelInt32, nil
	case niftiUint32, niftiFloat64:
		return models.PixelFloat64, nil
	case niftiFloat32:
		return models.PixelFloat32, nil
	default:
		return 0, fmt.Errorf("%w: NIfTI datatype %d", ErrUnsupportedFormat, code)
	}
}

func bytesPerSample(code int16) int {
	switch code {
	case niftiUint8, niftiInt8:
		return 1
	case niftiInt16, niftiUint16:
		return 2
	case niftiInt32, niftiUint32, niftiFloat32:
		return 4
	default:
		return 8
	}
}

func writeSamples(w io.Writer, data []float64, code int16) error {
	size := bytesPerSample(code)
	buf := make([]byte, size*len(data))
	le := binary.LittleEndian
	for i, x := range data {
		b := buf[i*size:]
		switch code {
		case niftiUint8:
			b[0] = uint8(x)
		case niftiInt16:
			le.PutUint16(b, uint16(int16(x)))
		case niftiUint16:
			le.PutUint16(b, uint16(x))
		case niftiInt32:
			le.PutUint32(b, uint32(int32(x)))
		case niftiFloat32:
			le.PutUint32(b, math.Float32bits(float32(x)))
		case niftiFloat64:
			le.PutUint64(b, math.Float64bits(x))
		}
	}
	_, err := w.Write(buf)
	return err
}

func readSamples(src []byte, dst []float64, code int16, order binary.ByteOrder) error {
	size := bytesPerSample(code)
	if len(src) < size*len(dst) {
		return fmt.Errorf("NIfTI data truncated: %d bytes for %d voxels", len(src), len(dst))
	}
	for i := range dst {
		b := src[i*size:]
		switch code {
		case niftiUint8:
			dst[i] = float64(b[0])
		case niftiInt8:
			dst[i] = float64(int8(b[0]))
		case niftiInt16:
			dst[i] = float64(int16(order.Uint16(b)))
		case niftiUint16:
			dst[i] = float64(order.Uint16(b))
		case niftiInt32:
			dst[i] = float64(int32(order.Uint32(b)))
		case niftiUint32:
			dst[i] = float64(order.Uint32(b))
		case niftiFloat32:
			dst[i] = float64(math.Float32frombits(order.Uint32(b)))
		case niftiFloat64:
			dst[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return nil
}
