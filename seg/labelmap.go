package seg

import (
	"fmt"
	"sort"
)

// Labelmap is a dense voxel array where each voxel holds the number of the segment
// occupying it, or 0 if empty.  Voxel (x, y, z) is at Data[z*Rows*Columns + y*Columns + x].
type Labelmap struct {
	Rows    int
	Columns int
	Slices  int
	Data    []uint16
}

// NewLabelmap allocates an empty labelmap.
func NewLabelmap(rows, cols, slices int) *Labelmap {
	return &Labelmap{
		Rows:    rows,
		Columns: cols,
		Slices:  slices,
		Data:    make([]uint16, rows*cols*slices),
	}
}

// SliceSize returns the number of voxels in one slice.
func (l *Labelmap) SliceSize() int {
	return l.Rows * l.Columns
}

// Slice returns the voxels of slice z.  The returned slice shares the labelmap buffer.
func (l *Labelmap) Slice(z int) []uint16 {
	n := l.SliceSize()
	return l.Data[z*n : (z+1)*n]
}

func (l *Labelmap) index(x, y, z int) int {
	return (z*l.Rows+y)*l.Columns + x
}

// At returns the label at voxel (x, y, z).
func (l *Labelmap) At(x, y, z int) uint16 {
	return l.Data[l.index(x, y, z)]
}

// Set assigns a label to voxel (x, y, z).
func (l *Labelmap) Set(x, y, z int, label uint16) {
	l.Data[l.index(x, y, z)] = label
}

// Clone returns a deep copy.
func (l *Labelmap) Clone() *Labelmap {
	dup := *l
	dup.Data = make([]uint16, len(l.Data))
	copy(dup.Data, l.Data)
	return &dup
}

// SameShape returns an error if the two labelmaps have different dimensions.
func (l *Labelmap) SameShape(l2 *Labelmap) error {
	if l.Rows != l2.Rows || l.Columns != l2.Columns || l.Slices != l2.Slices {
		return fmt.Errorf("%w: labelmap %dx%dx%d vs %dx%dx%d", ErrGeometryMismatch,
			l.Columns, l.Rows, l.Slices, l2.Columns, l2.Rows, l2.Slices)
	}
	return nil
}

// SegmentsOnFrame maps a slice index to the sorted set of segment numbers present
// on that slice of one labelmap.
type SegmentsOnFrame map[int][]uint16

// Add records a segment on a slice.  It returns false if it was already present.
func (s SegmentsOnFrame) Add(slice int, segment uint16) bool {
	segs := s[slice]
	i := sort.Search(len(segs), func(i int) bool { return segs[i] >= segment })
	if i < len(segs) && segs[i] == segment {
		return false
	}
	segs = append(segs, 0)
	copy(segs[i+1:], segs[i:])
	segs[i] = segment
	s[slice] = segs
	return true
}

// Remove deletes a segment from a slice.
func (s SegmentsOnFrame) Remove(slice int, segment uint16) {
	segs := s[slice]
	i := sort.Search(len(segs), func(i int) bool { return segs[i] >= segment })
	if i == len(segs) || segs[i] != segment {
		return
	}
	segs = append(segs[:i], segs[i+1:]...)
	if len(segs) == 0 {
		delete(s, slice)
	} else {
		s[slice] = segs
	}
}

// Has returns true if the segment is present on the slice.
func (s SegmentsOnFrame) Has(slice int, segment uint16) bool {
	segs := s[slice]
	i := sort.Search(len(segs), func(i int) bool { return segs[i] >= segment })
	return i < len(segs) && segs[i] == segment
}

// SortedSlices returns the slice indices with at least one segment, in ascending order.
func (s SegmentsOnFrame) SortedSlices() []int {
	slices := make([]int, 0, len(s))
	for z := range s {
		slices = append(slices, z)
	}
	sort.Ints(slices)
	return slices
}

// ComputeSegmentsOnFrame scans a labelmap to build its SegmentsOnFrame.
func ComputeSegmentsOnFrame(l *Labelmap) SegmentsOnFrame {
	s := make(SegmentsOnFrame)
	for z := 0; z < l.Slices; z++ {
		var last uint16
		for _, v := range l.Slice(z) {
			if v != 0 && v != last {
				s.Add(z, v)
				last = v
			}
		}
	}
	return s
}
