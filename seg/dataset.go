package seg

import (
	"fmt"
)

const (
	// SegmentationStorageUID is the SOP Class UID of the DICOM Segmentation IOD.
	SegmentationStorageUID = "1.2.840.10008.5.1.4.1.1.66.4"

	ImplicitVRLittleEndianUID = "1.2.840.10008.1.2"
	ExplicitVRLittleEndianUID = "1.2.840.10008.1.2.1"

	// RLELosslessUID selects the run-length encoded pixel data path.  All other
	// transfer syntaxes are assumed to carry native (bit-packed) pixel data.
	RLELosslessUID = "1.2.840.10008.1.2.5"
)

// SegmentationType is the value of the SEG SegmentationType attribute.
type SegmentationType string

const (
	Binary     SegmentationType = "BINARY"
	Fractional SegmentationType = "FRACTIONAL"
)

// PixelEncoding couples a transfer syntax with the bit allocation it requires.
// The two always change together; see Dataset.SetEncoding.
type PixelEncoding struct {
	TransferSyntaxUID string
	BitsAllocated     int
}

var (
	// BitPackedEncoding is the native 1 bit per voxel encoding mandated for BINARY SEG.
	BitPackedEncoding = PixelEncoding{ExplicitVRLittleEndianUID, 1}

	// RLEEncoding is the DICOM RLE Lossless encoding of 8-bit frames.
	RLEEncoding = PixelEncoding{RLELosslessUID, 8}
)

// IsRLE returns true if the encoding uses the RLE Lossless transfer syntax.
func (e PixelEncoding) IsRLE() bool {
	return e.TransferSyntaxUID == RLELosslessUID
}

// Check returns an error if the transfer syntax and bit allocation cannot be combined.
func (e PixelEncoding) Check() error {
	switch {
	case e.IsRLE() && e.BitsAllocated == 1:
		return ErrRLEBitPacked
	case e.BitsAllocated != 1 && e.BitsAllocated != 8:
		return fmt.Errorf("%w: unsupported bits allocated %d", ErrInvalidDataset, e.BitsAllocated)
	}
	return nil
}

func (e PixelEncoding) String() string {
	if e.IsRLE() {
		return fmt.Sprintf("RLE lossless, %d bits", e.BitsAllocated)
	}
	return fmt.Sprintf("native %s, %d bits", e.TransferSyntaxUID, e.BitsAllocated)
}

// Segment describes one entry of the SegmentSequence.
type Segment struct {
	Number        uint16
	Label         string
	Description   string
	AlgorithmType string

	// DisplayColor is the RecommendedDisplayCIELabValue, scaled to 0..65535.
	DisplayColor [3]uint16
}

// ImageRef references a source image, and optionally one frame of a multi-frame image.
type ImageRef struct {
	SOPClassUID    string
	SOPInstanceUID string

	// FrameNumber is 1-indexed as in DICOM frame lists.  Zero means no frame was given.
	FrameNumber int
}

// FrameGroup holds the functional group attributes of a SEG frame.  The same type
// represents the shared functional group, where unset fields mean "not shared".
type FrameGroup struct {
	// ReferencedSegmentNumber is zero if absent.
	ReferencedSegmentNumber uint16

	// Orientation is nil if the frame uses the shared orientation.
	Orientation *Orientation

	// Position is the ImagePositionPatient of the frame's top left voxel, if given.
	Position *[3]float64

	// SourceImages come from the DerivationImageSequence's SourceImageSequence.
	SourceImages []ImageRef
}

// Dataset is the subset of a DICOM Segmentation object used by the codec.
type Dataset struct {
	SOPInstanceUID              string
	SOPClassUID                 string
	StudyInstanceUID            string
	SeriesInstanceUID           string
	SeriesDescription           string
	SeriesNumber                int
	ContentLabel                string
	FrameOfReferenceUID         string
	ReferencedSeriesInstanceUID string

	Rows           int
	Columns        int
	NumberOfFrames int
	BitsAllocated  int

	SegmentationType       SegmentationType
	MaximumFractionalValue int
	TransferSyntaxUID      string

	Segments []Segment

	// Shared holds SharedFunctionalGroupsSequence attributes.
	Shared         FrameGroup
	PixelSpacing   [2]float64
	SliceThickness float64

	// PerFrame holds PerFrameFunctionalGroupsSequence entries, one per frame.
	PerFrame []FrameGroup

	// SourceImages is the top-level SourceImageSequence.  When present, entry i
	// references the source image of frame i.
	SourceImages []ImageRef

	// PixelData holds native pixel data.  Fragments holds one encapsulated
	// fragment per frame when the transfer syntax is RLE.
	PixelData []byte
	Fragments [][]byte
}

// Encoding returns the pixel encoding declared by the dataset.
func (ds *Dataset) Encoding() PixelEncoding {
	return PixelEncoding{ds.TransferSyntaxUID, ds.BitsAllocated}
}

// SetEncoding changes the transfer syntax and bit allocation together.  Pixel data
// must be replaced by the caller after switching encodings.
func (ds *Dataset) SetEncoding(e PixelEncoding) error {
	if err := e.Check(); err != nil {
		return err
	}
	ds.TransferSyntaxUID = e.TransferSyntaxUID
	ds.BitsAllocated = e.BitsAllocated
	return nil
}

// Segment returns the segment with the given number.
func (ds *Dataset) Segment(number uint16) (Segment, bool) {
	for _, s := range ds.Segments {
		if s.Number == number {
			return s, true
		}
	}
	return Segment{}, false
}

// SegmentNumber returns the referenced segment of a frame, falling back to the
// shared functional group.  Zero means no segment is referenced.
func (ds *Dataset) SegmentNumber(frame int) uint16 {
	if frame >= 0 && frame < len(ds.PerFrame) && ds.PerFrame[frame].ReferencedSegmentNumber != 0 {
		return ds.PerFrame[frame].ReferencedSegmentNumber
	}
	return ds.Shared.ReferencedSegmentNumber
}

// FrameOrientation returns the orientation of a frame, preferring the shared
// orientation as the SEG IOD does.
func (ds *Dataset) FrameOrientation(frame int) (Orientation, bool) {
	if ds.Shared.Orientation != nil {
		return *ds.Shared.Orientation, true
	}
	if frame >= 0 && frame < len(ds.PerFrame) && ds.PerFrame[frame].Orientation != nil {
		return *ds.PerFrame[frame].Orientation, true
	}
	return Orientation{}, false
}

// FrameSize returns the number of voxels in one frame.
func (ds *Dataset) FrameSize() int {
	return ds.Rows * ds.Columns
}

// Validate checks the structural invariants of the dataset before any processing.
// Errors identify the offending frame or segment.
func (ds *Dataset) Validate() error {
	if ds.Rows <= 0 || ds.Columns <= 0 {
		return fmt.Errorf("%w: bad dimensions %d x %d", ErrInvalidDataset, ds.Rows, ds.Columns)
	}
	if ds.NumberOfFrames != len(ds.PerFrame) {
		return fmt.Errorf("%w: NumberOfFrames is %d but there are %d per-frame functional groups",
			ErrInvalidDataset, ds.NumberOfFrames, len(ds.PerFrame))
	}
	if len(ds.SourceImages) != 0 && len(ds.SourceImages) != ds.NumberOfFrames {
		return fmt.Errorf("%w: SourceImageSequence has %d items for %d frames",
			ErrInvalidDataset, len(ds.SourceImages), ds.NumberOfFrames)
	}
	if len(ds.Segments) == 0 {
		return fmt.Errorf("%w: empty SegmentSequence", ErrInvalidDataset)
	}
	numbers := make(map[uint16]struct{}, len(ds.Segments))
	for _, s := range ds.Segments {
		if s.Number == 0 {
			return segmentErrorf(0, "segment numbers must start at 1")
		}
		if _, dup := numbers[s.Number]; dup {
			return segmentErrorf(s.Number, "duplicate segment number")
		}
		numbers[s.Number] = struct{}{}
	}
	for i := range ds.PerFrame {
		n := ds.SegmentNumber(i)
		if n == 0 {
			return frameErrorf(i, "no referenced segment number")
		}
		if _, found := numbers[n]; !found {
			return frameErrorf(i, "referenced segment %d is not in the SegmentSequence", n)
		}
		if _, ok := ds.FrameOrientation(i); !ok {
			return frameErrorf(i, "no image orientation")
		}
	}
	switch ds.SegmentationType {
	case Binary:
	case Fractional:
		if ds.MaximumFractionalValue <= 0 || ds.MaximumFractionalValue > 255 {
			return fmt.Errorf("%w: bad MaximumFractionalValue %d", ErrInvalidDataset, ds.MaximumFractionalValue)
		}
	default:
		return fmt.Errorf("%w: unknown SegmentationType %q", ErrInvalidDataset, ds.SegmentationType)
	}
	enc := ds.Encoding()
	if err := enc.Check(); err != nil {
		return err
	}
	if ds.SegmentationType == Fractional && enc.BitsAllocated != 8 {
		return fmt.Errorf("%w: FRACTIONAL segmentation requires 8 bits allocated", ErrInvalidDataset)
	}
	numVoxels := ds.FrameSize() * ds.NumberOfFrames
	switch {
	case enc.IsRLE():
		if len(ds.Fragments) != ds.NumberOfFrames {
			return fmt.Errorf("%w: %d RLE fragments for %d frames", ErrInvalidDataset, len(ds.Fragments), ds.NumberOfFrames)
		}
	case enc.BitsAllocated == 1:
		if need := (numVoxels + 7) / 8; len(ds.PixelData) < need {
			return fmt.Errorf("%w: bit-packed pixel data has %d bytes, need %d", ErrInvalidDataset, len(ds.PixelData), need)
		}
	default:
		if len(ds.PixelData) < numVoxels {
			return fmt.Errorf("%w: pixel data has %d bytes, need %d", ErrInvalidDataset, len(ds.PixelData), numVoxels)
		}
	}
	return nil
}
