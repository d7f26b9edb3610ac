package overlap

import (
	"context"
	"fmt"
	"sort"

	"github.com/janelia-flyem/dicomseg/seg"
)

func canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", seg.ErrCanceled, err)
	}
	return nil
}

// bySlice groups frame references by slice, in ascending slice order.
func bySlice(refs []FrameRef) [][]FrameRef {
	groups := make(map[int][]FrameRef)
	for _, ref := range refs {
		groups[ref.Slice] = append(groups[ref.Slice], ref)
	}
	slices := make([]int, 0, len(groups))
	for z := range groups {
		slices = append(slices, z)
	}
	sort.Ints(slices)
	out := make([][]FrameRef, len(slices))
	for i, z := range slices {
		out[i] = groups[z]
	}
	return out
}

// Detect returns true if two different segments set the same voxel of the same
// slice.  It stops at the first collision.
func Detect(ctx context.Context, refs []FrameRef, sliceSize int, load MaskLoader) (bool, error) {
	owner := make([]uint16, sliceSize)
	for _, group := range bySlice(refs) {
		if err := canceled(ctx); err != nil {
			return false, err
		}
		if len(group) > 1 {
			for i := range owner {
				owner[i] = 0
			}
			for _, ref := range group {
				mask, err := load(ref.Frame)
				if err != nil {
					return false, err
				}
				if len(mask) != sliceSize {
					return false, fmt.Errorf("%s has %d voxels, slices have %d", ref, len(mask), sliceSize)
				}
				for i, v := range mask {
					if v == 0 {
						continue
					}
					switch owner[i] {
					case 0:
						owner[i] = ref.Segment
					case ref.Segment:
					default:
						seg.Debugf("Segments %d and %d overlap on slice %d\n", owner[i], ref.Segment, ref.Slice)
						return true, nil
					}
				}
			}
		}
	}
	return false, nil
}

// bySegment groups frame references by segment in ascending segment order,
// keeping frame order within a segment.
func bySegment(refs []FrameRef) [][]FrameRef {
	sorted := make([]FrameRef, len(refs))
	copy(sorted, refs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Segment < sorted[j].Segment })

	var groups [][]FrameRef
	for i, ref := range sorted {
		if i == 0 || ref.Segment != sorted[i-1].Segment {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], ref)
	}
	return groups
}

// Split writes all frames into layers so that no layer holds two different
// segments at the same voxel.  Segments are written in ascending order starting at
// layer 0.  If any voxel of a segment collides with a different segment, that
// segment's writes are rolled back and the whole segment is retried from its first
// frame on the next layer.  Each segment therefore lands in a single layer.
// After each segment, done is called with the number of frames written so far; a
// non-nil error from done stops the split.
func Split(ctx context.Context, refs []FrameRef, layers *Layers, load MaskLoader, done func(frames int) error) error {
	sliceSize := layers.SliceSize()
	var written int
	for _, group := range bySegment(refs) {
		segment := group[0].Segment
		for m := 0; ; m++ {
			if err := canceled(ctx); err != nil {
				return err
			}
			ok, err := writeSegment(layers, m, group, sliceSize, load)
			if err != nil {
				return err
			}
			if ok {
				if m > 0 {
					seg.Debugf("Segment %d overlaps lower layers, written to layer %d\n", segment, m)
				}
				break
			}
		}
		written += len(group)
		if done != nil {
			if err := done(written); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeSegment attempts to write all frames of one segment into layer m.  On
// collision every voxel written by the attempt is cleared and false is returned.
func writeSegment(layers *Layers, m int, group []FrameRef, sliceSize int, load MaskLoader) (bool, error) {
	lm := layers.Layer(m)
	segment := group[0].Segment
	// voxels written by this attempt, all previously empty
	var written []int
	rollback := func() {
		for _, i := range written {
			lm.Data[i] = 0
		}
	}
	touched := make([]int, 0, len(group))
	for _, ref := range group {
		mask, err := load(ref.Frame)
		if err != nil {
			rollback()
			return false, err
		}
		if err := layers.check(ref, mask); err != nil {
			rollback()
			return false, err
		}
		base := ref.Slice * sliceSize
		var set bool
		for i, v := range mask {
			if v == 0 {
				continue
			}
			set = true
			switch lm.Data[base+i] {
			case 0:
				lm.Data[base+i] = segment
				written = append(written, base+i)
			case segment:
			default:
				rollback()
				return false, nil
			}
		}
		if set {
			touched = append(touched, ref.Slice)
		}
	}
	for _, z := range touched {
		layers.SegmentsOnFrame[m].Add(z, segment)
	}
	return true, nil
}
