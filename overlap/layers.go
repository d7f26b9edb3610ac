/*
	Package overlap detects segments that claim the same voxel and splits them into
	labelmap layers that are each free of overlap.
*/
package overlap

import (
	"fmt"

	"github.com/janelia-flyem/dicomseg/seg"
)

// FrameRef places one SEG frame: its segment and the source slice it overlays.
type FrameRef struct {
	Frame   int
	Segment uint16
	Slice   int
}

func (ref FrameRef) String() string {
	return fmt.Sprintf("frame %d (segment %d, slice %d)", ref.Frame, ref.Segment, ref.Slice)
}

// MaskLoader returns the canonically oriented mask of a frame, one byte per voxel
// of a slice.  Non-zero voxels are set.
type MaskLoader func(frame int) ([]byte, error)

// Layers is a stack of labelmaps sharing the same geometry.  Layers are allocated
// on first write and a new layer is only added when asked for.
type Layers struct {
	Rows    int
	Columns int
	Slices  int

	Labelmaps       []*seg.Labelmap
	SegmentsOnFrame []seg.SegmentsOnFrame
}

// NewLayers returns an empty stack of layers.
func NewLayers(rows, cols, slices int) *Layers {
	return &Layers{Rows: rows, Columns: cols, Slices: slices}
}

// SliceSize returns the number of voxels in one slice.
func (l *Layers) SliceSize() int {
	return l.Rows * l.Columns
}

// Len returns the number of allocated layers.
func (l *Layers) Len() int {
	return len(l.Labelmaps)
}

// Layer returns layer m, allocating it and any layers below it.
func (l *Layers) Layer(m int) *seg.Labelmap {
	for len(l.Labelmaps) <= m {
		seg.Debugf("Allocating labelmap layer %d (%d x %d x %d)\n", len(l.Labelmaps), l.Columns, l.Rows, l.Slices)
		l.Labelmaps = append(l.Labelmaps, seg.NewLabelmap(l.Rows, l.Columns, l.Slices))
		l.SegmentsOnFrame = append(l.SegmentsOnFrame, make(seg.SegmentsOnFrame))
	}
	return l.Labelmaps[m]
}

// WriteFrame writes the set voxels of a mask into layer m, overwriting whatever
// was there.  It returns the number of voxels written.
func (l *Layers) WriteFrame(m int, ref FrameRef, mask []byte) (int, error) {
	if err := l.check(ref, mask); err != nil {
		return 0, err
	}
	voxels := l.Layer(m).Slice(ref.Slice)
	var n int
	for i, v := range mask {
		if v != 0 {
			voxels[i] = ref.Segment
			n++
		}
	}
	if n > 0 {
		l.SegmentsOnFrame[m].Add(ref.Slice, ref.Segment)
	}
	return n, nil
}

func (l *Layers) check(ref FrameRef, mask []byte) error {
	if ref.Slice < 0 || ref.Slice >= l.Slices {
		return fmt.Errorf("%s outside of %d slices", ref, l.Slices)
	}
	if len(mask) != l.SliceSize() {
		return fmt.Errorf("%s has %d voxels, slices have %d", ref, len(mask), l.SliceSize())
	}
	return nil
}
