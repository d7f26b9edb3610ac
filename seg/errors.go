package seg

import (
	"errors"
	"fmt"
)

// Fatal conditions.  A decode or encode that hits one of these returns no partial result.
var (
	ErrInvalidDataset   = errors.New("invalid segmentation dataset")
	ErrPerpendicular    = errors.New("segmentation is perpendicular to the source volume, which is not supported")
	ErrOblique          = errors.New("segmentation is oblique to the source volume, which is not supported")
	ErrFrameOutOfPlane  = errors.New("segmentation frame is out of plane with respect to the first frame")
	ErrFractional       = errors.New("fractional segmentation with non-binary values is not supported")
	ErrRLEBitPacked     = errors.New("RLE transfer syntax cannot be combined with 1-bit allocation")
	ErrGeometryMismatch = errors.New("segmentation rows/columns differ from the source image")
	ErrNoSourceSlices   = errors.New("no source slices supplied")
	ErrCanceled         = errors.New("segmentation processing canceled")
)

// FrameError identifies the SEG frame (0-indexed) that caused an error.
type FrameError struct {
	Frame int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Frame, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// SegmentError identifies the segment number that caused an error.
type SegmentError struct {
	Segment uint16
	Err     error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Segment, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// frameErrorf returns an ErrInvalidDataset-wrapping error for a given frame.
func frameErrorf(frame int, format string, args ...interface{}) error {
	return &FrameError{
		Frame: frame,
		Err:   fmt.Errorf("%w: %s", ErrInvalidDataset, fmt.Sprintf(format, args...)),
	}
}

func segmentErrorf(segment uint16, format string, args ...interface{}) error {
	return &SegmentError{
		Segment: segment,
		Err:     fmt.Errorf("%w: %s", ErrInvalidDataset, fmt.Sprintf(format, args...)),
	}
}
