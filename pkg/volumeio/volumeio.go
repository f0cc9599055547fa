// Package volumeio reads and writes 3D volumes. DICOM files, DICOM series
// directories and NIfTI-1 files (optionally gzipped) can be read; volumes
// are written as NIfTI-1.
package volumeio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mramip/internal/models"
)

// Source reads a volume from a path
type Source interface {
	ReadVolume(path string) (*models.Volume, error)
}

// Sink writes a volume to a path
type Sink interface {
	WriteVolume(path string, v *models.Volume) error
}

// IsNIfTI reports whether path names a NIfTI file
func IsNIfTI(path string) bool {
	p := strings.ToLower(path)
	return strings.HasSuffix(p, ".nii") || strings.HasSuffix(p, ".nii.gz")
}

// IsDICOM reports whether path names a DICOM file
func IsDICOM(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".dcm")
}

// SourceFor picks the reader for path. Directories are read as DICOM
// series.
func SourceFor(path string) (Source, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return DICOMReader{Series: true}, nil
	}
	switch {
	case IsNIfTI(path):
		return NIfTI{}, nil
	case IsDICOM(path):
		return DICOMReader{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// SinkFor picks the writer for path
func SinkFor(path string) (Sink, error) {
	if IsNIfTI(path) {
		return NIfTI{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Open reads the volume at path with the reader matching its type
func Open(path string) (*models.Volume, error) {
	src, err := SourceFor(path)
	if err != nil {
		return nil, err
	}
	return src.ReadVolume(path)
}

// Save writes v to path with the writer matching its extension
func Save(path string, v *models.Volume) error {
	sink, err := SinkFor(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating output directory: %w", err)
		}
	}
	return sink.WriteVolume(path, v)
}
