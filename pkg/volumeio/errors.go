package volumeio

import "errors"

var (
	// ErrUnsupportedFormat is returned for files no reader or writer handles
	ErrUnsupportedFormat = errors.New("unsupported volume format")

	// ErrEncapsulatedPixelData is returned for DICOM files with compressed
	// pixel data
	ErrEncapsulatedPixelData = errors.New("encapsulated DICOM pixel data is not supported")
)
