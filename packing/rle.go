package packing

import (
	"encoding/binary"
	"fmt"

	"github.com/janelia-flyem/dicomseg/seg"
)

// DICOM RLE Lossless stores each frame as a 64-byte header followed by up to 15
// PackBits-compressed segments.  Segmentation frames are 8 bits per voxel with a
// single sample, so exactly one segment is used.
const (
	rleHeaderSize  = 64
	rleMaxSegments = 15
	rleMaxRun      = 128
)

// DecodeRLE decodes one RLE fragment into rows*cols voxels.
func DecodeRLE(fragment []byte, rows, cols int) ([]byte, error) {
	if len(fragment) < rleHeaderSize {
		return nil, fmt.Errorf("RLE fragment has %d bytes, less than its %d byte header", len(fragment), rleHeaderSize)
	}
	numSegments := binary.LittleEndian.Uint32(fragment[0:4])
	if numSegments == 0 || numSegments > rleMaxSegments {
		return nil, fmt.Errorf("bad RLE header: %d segments", numSegments)
	}
	if numSegments != 1 {
		return nil, fmt.Errorf("RLE fragment has %d segments, only single-sample 8-bit frames are supported", numSegments)
	}
	start := int(binary.LittleEndian.Uint32(fragment[4:8]))
	end := len(fragment)
	if next := int(binary.LittleEndian.Uint32(fragment[8:12])); next != 0 && next < end {
		end = next
	}
	if start < rleHeaderSize || start > end {
		return nil, fmt.Errorf("bad RLE segment offset %d in %d byte fragment", start, len(fragment))
	}
	frame := make([]byte, rows*cols)
	n, err := unpackBits(fragment[start:end], frame)
	if err != nil {
		return nil, err
	}
	if n != len(frame) {
		return nil, fmt.Errorf("RLE segment decoded to %d bytes, expected %d", n, len(frame))
	}
	return frame, nil
}

// unpackBits decompresses PackBits data into out, returning the bytes written.
// Output beyond len(out), such as padding, is dropped.
func unpackBits(src, out []byte) (int, error) {
	var pos int
	for i := 0; i < len(src) && pos < len(out); {
		n := int(int8(src[i]))
		i++
		switch {
		case n >= 0:
			count := n + 1
			if i+count > len(src) {
				return pos, fmt.Errorf("RLE literal run of %d bytes overruns segment", count)
			}
			pos += copy(out[pos:], src[i:i+count])
			i += count
		case n > -128:
			if i >= len(src) {
				return pos, fmt.Errorf("RLE replicate run missing its byte")
			}
			b := src[i]
			i++
			for count := -n + 1; count > 0 && pos < len(out); count-- {
				out[pos] = b
				pos++
			}
		}
	}
	return pos, nil
}

// EncodeRLE compresses a rows*cols frame of 8-bit voxels into one RLE fragment.
// Each row is compressed separately.
func EncodeRLE(frame []byte, rows, cols int) ([]byte, error) {
	if len(frame) != rows*cols {
		return nil, fmt.Errorf("frame has %d bytes, expected %d x %d", len(frame), rows, cols)
	}
	out := make([]byte, rleHeaderSize, rleHeaderSize+len(frame)/2)
	binary.LittleEndian.PutUint32(out[0:4], 1)
	binary.LittleEndian.PutUint32(out[4:8], rleHeaderSize)
	for r := 0; r < rows; r++ {
		out = packBits(out, frame[r*cols:(r+1)*cols])
	}
	if len(out)%2 != 0 {
		out = append(out, 0)
	}
	return out, nil
}

// packBits appends the PackBits encoding of row to dst.
func packBits(dst, row []byte) []byte {
	for i := 0; i < len(row); {
		run := 1
		for i+run < len(row) && run < rleMaxRun && row[i+run] == row[i] {
			run++
		}
		if run >= 2 {
			dst = append(dst, byte(int8(1-run)), row[i])
			i += run
			continue
		}
		// literal run stops before the next repeated pair
		lit := 1
		for i+lit < len(row) && lit < rleMaxRun {
			if i+lit+1 < len(row) && row[i+lit] == row[i+lit+1] {
				break
			}
			lit++
		}
		dst = append(dst, byte(lit-1))
		dst = append(dst, row[i:i+lit]...)
		i += lit
	}
	return dst
}

// DecodeRLEFrames decodes every fragment of an RLE SEG.  RLE is only defined for
// 8-bit allocation.
func DecodeRLEFrames(fragments [][]byte, rows, cols, bitsAllocated int) ([][]byte, error) {
	if bitsAllocated == 1 {
		return nil, seg.ErrRLEBitPacked
	}
	frames := make([][]byte, len(fragments))
	for i, fragment := range fragments {
		frame, err := DecodeRLE(fragment, rows, cols)
		if err != nil {
			return nil, &seg.FrameError{Frame: i, Err: err}
		}
		frames[i] = frame
	}
	return frames, nil
}

// EncodeRLEFrames compresses each frame into its own RLE fragment.
func EncodeRLEFrames(frames [][]byte, rows, cols, bitsAllocated int) ([][]byte, error) {
	if bitsAllocated == 1 {
		return nil, seg.ErrRLEBitPacked
	}
	fragments := make([][]byte, len(frames))
	for i, frame := range frames {
		fragment, err := EncodeRLE(frame, rows, cols)
		if err != nil {
			return nil, &seg.FrameError{Frame: i, Err: err}
		}
		fragments[i] = fragment
	}
	return fragments, nil
}
