package packing

import (
	"fmt"

	"github.com/janelia-flyem/dicomseg/seg"
)

// Binarize maps voxels of an 8-bit frame to 0 or 1.  If max is non-zero, every
// voxel must be either 0 or max; any other value is a true fractional value and
// returns ErrFractional.  If max is zero, any non-zero voxel is set.
func Binarize(voxels []byte, max byte) ([]byte, error) {
	if err := checkBinary(voxels, max); err != nil {
		return nil, err
	}
	out := make([]byte, len(voxels))
	for i, v := range voxels {
		if v != 0 {
			out[i] = 1
		}
	}
	return out, nil
}

func checkBinary(voxels []byte, max byte) error {
	if max == 0 {
		return nil
	}
	for i, v := range voxels {
		if v != 0 && v != max {
			return fmt.Errorf("%w: voxel %d has value %d, maximum is %d", seg.ErrFractional, i, v, max)
		}
	}
	return nil
}

// frameSource returns the raw voxels of one frame.
type frameSource interface {
	frame(i int) ([]byte, error)
	chunks() int
}

type chunkedSource struct {
	buf       *Chunked
	frameSize int
}

func (s chunkedSource) frame(i int) ([]byte, error) {
	return s.buf.Read(i*s.frameSize, s.frameSize)
}

func (s chunkedSource) chunks() int {
	return s.buf.NumChunks()
}

type rleSource struct {
	fragments  [][]byte
	rows, cols int
}

func (s rleSource) frame(i int) ([]byte, error) {
	if i >= len(s.fragments) {
		return nil, fmt.Errorf("no RLE fragment for frame %d", i)
	}
	return DecodeRLE(s.fragments[i], s.rows, s.cols)
}

func (s rleSource) chunks() int {
	return len(s.fragments)
}

// FrameReader returns the binary mask of each frame of a SEG, one byte per voxel
// with values 0 or 1.  The decoding strategy is chosen once from the dataset's
// encoding.  Frame is safe for concurrent use.
type FrameReader struct {
	src       frameSource
	numFrames int
	frameSize int

	// binarize is set for 8-bit data, with fractionalMax the value meaning "set".
	binarize      bool
	fractionalMax byte
	strategy      string
}

// NewFrameReader returns a reader over the pixel data of ds.  Bit-packed and native
// pixel data are unpacked in chunks of at most maxChunkBytes voxels.
func NewFrameReader(ds *seg.Dataset, maxChunkBytes int) (*FrameReader, error) {
	if maxChunkBytes <= 0 {
		maxChunkBytes = DefaultMaxBytesPerChunk
	}
	enc := ds.Encoding()
	if err := enc.Check(); err != nil {
		return nil, err
	}
	r := &FrameReader{
		numFrames: ds.NumberOfFrames,
		frameSize: ds.FrameSize(),
	}
	if enc.BitsAllocated == 8 {
		r.binarize = true
		if ds.SegmentationType == seg.Fractional {
			r.fractionalMax = byte(ds.MaximumFractionalValue)
		}
	}
	switch {
	case enc.IsRLE():
		if len(ds.Fragments) < ds.NumberOfFrames {
			return nil, fmt.Errorf("%w: %d RLE fragments for %d frames", seg.ErrInvalidDataset, len(ds.Fragments), ds.NumberOfFrames)
		}
		r.src = rleSource{ds.Fragments, ds.Rows, ds.Columns}
		r.strategy = "rle"
	case enc.BitsAllocated == 1:
		if need := (r.numFrames*r.frameSize + 7) / 8; len(ds.PixelData) < need {
			return nil, fmt.Errorf("%w: bit-packed pixel data has %d bytes, need %d", seg.ErrInvalidDataset, len(ds.PixelData), need)
		}
		r.src = chunkedSource{UnpackChunked(ds.PixelData, maxChunkBytes), r.frameSize}
		r.strategy = "bit-packed"
	default:
		if need := r.numFrames * r.frameSize; len(ds.PixelData) < need {
			return nil, fmt.Errorf("%w: pixel data has %d bytes, need %d", seg.ErrInvalidDataset, len(ds.PixelData), need)
		}
		r.src = chunkedSource{SplitChunked(ds.PixelData, maxChunkBytes), r.frameSize}
		r.strategy = "native"
	}
	seg.Debugf("Reading %d frames of %s pixel data in %d chunks\n", r.numFrames, r.strategy, r.src.chunks())
	return r, nil
}

// NumFrames returns the number of frames.
func (r *FrameReader) NumFrames() int {
	return r.numFrames
}

// Strategy names the decoding strategy: "bit-packed", "native" or "rle".
func (r *FrameReader) Strategy() string {
	return r.strategy
}

// CheckFractional reads every frame of a FRACTIONAL segmentation and returns
// ErrFractional, wrapped in a FrameError, for the first frame holding a value
// other than 0 or the maximum.  Other segmentations return nil without reading.
func (r *FrameReader) CheckFractional() error {
	if !r.binarize || r.fractionalMax == 0 {
		return nil
	}
	for i := 0; i < r.numFrames; i++ {
		voxels, err := r.src.frame(i)
		if err != nil {
			return &seg.FrameError{Frame: i, Err: err}
		}
		if err := checkBinary(voxels, r.fractionalMax); err != nil {
			return &seg.FrameError{Frame: i, Err: err}
		}
	}
	return nil
}

// Frame returns the mask of frame i.  The returned slice may share memory with
// the reader and must not be modified.
func (r *FrameReader) Frame(i int) ([]byte, error) {
	if i < 0 || i >= r.numFrames {
		return nil, fmt.Errorf("frame %d out of range [0,%d)", i, r.numFrames)
	}
	voxels, err := r.src.frame(i)
	if err != nil {
		return nil, &seg.FrameError{Frame: i, Err: err}
	}
	if !r.binarize {
		return voxels, nil
	}
	mask, err := Binarize(voxels, r.fractionalMax)
	if err != nil {
		return nil, &seg.FrameError{Frame: i, Err: err}
	}
	return mask, nil
}
