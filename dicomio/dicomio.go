/*
	Package dicomio reads and writes DICOM Segmentation files and source image
	headers, converting between DICOM datasets and the codec's seg.Dataset.
*/
package dicomio

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/suyashkumar/dicom"

	"github.com/janelia-flyem/dicomseg/seg"
)

// Read parses a DICOM SEG stream of the given size.
func Read(r io.Reader, size int64) (*seg.Dataset, error) {
	dataset, err := dicom.Parse(r, size, nil, dicom.SkipProcessingPixelDataValue())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", seg.ErrInvalidDataset, err)
	}
	return FromDICOM(dataset)
}

// ReadBytes parses an in-memory DICOM SEG.
func ReadBytes(data []byte) (*seg.Dataset, error) {
	return Read(bytes.NewReader(data), int64(len(data)))
}

// ReadFile parses a DICOM SEG file.
func ReadFile(path string) (*seg.Dataset, error) {
	timedLog := seg.NewTimeLog()
	dataset, err := dicom.ParseFile(path, nil, dicom.SkipProcessingPixelDataValue())
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", seg.ErrInvalidDataset, path, err)
	}
	ds, err := FromDICOM(dataset)
	if err != nil {
		return nil, err
	}
	timedLog.Debugf("read %s: %d frames, %d segments", path, ds.NumberOfFrames, len(ds.Segments))
	return ds, nil
}

// Write writes the segmentation as a DICOM Part 10 stream.
func Write(w io.Writer, ds *seg.Dataset) error {
	dataset, err := ToDICOM(ds)
	if err != nil {
		return err
	}
	return dicom.Write(w, dataset, dicom.SkipVRVerification())
}

// WriteFile writes the segmentation to a file, replacing any existing file.
func WriteFile(path string, ds *seg.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, ds); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	seg.Infof("Wrote %d frame segmentation (%s) to %s\n", ds.NumberOfFrames, ds.Encoding(), path)
	return nil
}
