package overlap

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/janelia-flyem/dicomseg/seg"
)

// 3x3 slices
const sliceSize = 9

func loader(masks map[int][]byte) MaskLoader {
	return func(frame int) ([]byte, error) {
		mask, found := masks[frame]
		if !found {
			return nil, errors.New("no such frame")
		}
		return mask, nil
	}
}

func TestDetect(t *testing.T) {
	masks := map[int][]byte{
		0: {1, 1, 0, 0, 0, 0, 0, 0, 0},
		1: {0, 0, 1, 1, 0, 0, 0, 0, 0},
		2: {0, 1, 0, 0, 0, 0, 0, 0, 0},
		3: {1, 0, 0, 0, 0, 0, 0, 0, 0},
	}
	tests := []struct {
		name     string
		refs     []FrameRef
		overlaps bool
	}{
		{"disjoint", []FrameRef{{0, 1, 0}, {1, 2, 0}}, false},
		{"shared voxel", []FrameRef{{0, 1, 0}, {1, 2, 0}, {2, 3, 0}}, true},
		{"different slices", []FrameRef{{0, 1, 0}, {2, 2, 1}}, false},
		{"same segment twice", []FrameRef{{0, 1, 0}, {3, 1, 0}}, false},
	}
	for _, tc := range tests {
		got, err := Detect(context.Background(), tc.refs, sliceSize, loader(masks))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.overlaps {
			t.Errorf("%s: expected overlap %t, got %t", tc.name, tc.overlaps, got)
		}
	}
	if _, err := Detect(context.Background(), []FrameRef{{0, 1, 0}, {9, 2, 0}}, sliceSize, loader(masks)); err == nil {
		t.Errorf("expected loader error")
	}
}

func TestSplitLayers(t *testing.T) {
	masks := map[int][]byte{
		0: {1, 1, 0, 0, 0, 0, 0, 0, 0}, // segment 1, slice 0
		1: {0, 1, 1, 0, 0, 0, 0, 0, 0}, // segment 2, slice 0 overlaps segment 1
		2: {0, 0, 0, 0, 0, 0, 1, 1, 1}, // segment 3, slice 0 disjoint
		3: {1, 0, 0, 0, 0, 0, 0, 0, 0}, // segment 2, slice 1
		4: {0, 1, 0, 0, 0, 0, 0, 0, 0}, // segment 1, slice 0 again
	}
	refs := []FrameRef{{2, 3, 0}, {1, 2, 0}, {3, 2, 1}, {0, 1, 0}, {4, 1, 0}}
	layers := NewLayers(3, 3, 2)
	var calls []int
	err := Split(context.Background(), refs, layers, loader(masks), func(n int) error {
		calls = append(calls, n)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if layers.Len() != 2 {
		t.Fatalf("expected 2 layers, got %d", layers.Len())
	}
	if len(calls) != 3 || calls[2] != len(refs) {
		t.Errorf("unexpected progress calls %v", calls)
	}
	l0, l1 := layers.Labelmaps[0], layers.Labelmaps[1]
	if l0.At(1, 0, 0) != 1 || l0.At(0, 0, 0) != 1 || l0.At(2, 0, 0) != 0 {
		t.Errorf("layer 0 slice 0 got %v", l0.Slice(0))
	}
	if l0.At(0, 2, 0) != 3 {
		t.Errorf("segment 3 should fall back to layer 0, got %v", l0.Slice(0))
	}
	if l1.At(1, 0, 0) != 2 || l1.At(2, 0, 0) != 2 || l1.At(0, 0, 1) != 2 {
		t.Errorf("segment 2 should be entirely in layer 1, got %v", l1.Data)
	}
	for _, v := range l0.Data {
		if v == 2 {
			t.Fatalf("segment 2 left in layer 0 after rollback: %v", l0.Data)
		}
	}
	if !layers.SegmentsOnFrame[0].Has(0, 1) || !layers.SegmentsOnFrame[0].Has(0, 3) ||
		layers.SegmentsOnFrame[0].Has(0, 2) || !layers.SegmentsOnFrame[1].Has(1, 2) {
		t.Errorf("bad segments on frame: %v", layers.SegmentsOnFrame)
	}
}

// The union of all layers must equal the voxels set by every frame.
func TestSplitUnion(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	const slices = 4
	masks := make(map[int][]byte)
	var refs []FrameRef
	for frame := 0; frame < 24; frame++ {
		mask := make([]byte, sliceSize)
		for i := range mask {
			if r.Intn(4) == 0 {
				mask[i] = 1
			}
		}
		masks[frame] = mask
		refs = append(refs, FrameRef{frame, uint16(frame%5 + 1), r.Intn(slices)})
	}
	overlaps, err := Detect(context.Background(), refs, sliceSize, loader(masks))
	if err != nil {
		t.Fatal(err)
	}
	if !overlaps {
		t.Fatalf("expected random masks to overlap")
	}
	layers := NewLayers(3, 3, slices)
	if err := Split(context.Background(), refs, layers, loader(masks), nil); err != nil {
		t.Fatal(err)
	}

	expected := make(map[[2]int]map[uint16]bool)
	for _, ref := range refs {
		for i, v := range masks[ref.Frame] {
			if v != 0 {
				key := [2]int{ref.Slice, i}
				if expected[key] == nil {
					expected[key] = make(map[uint16]bool)
				}
				expected[key][ref.Segment] = true
			}
		}
	}
	got := make(map[[2]int]map[uint16]bool)
	layerOf := make(map[uint16]int)
	for m, lm := range layers.Labelmaps {
		for z := 0; z < slices; z++ {
			for i, v := range lm.Slice(z) {
				if v == 0 {
					continue
				}
				if prev, found := layerOf[v]; found && prev != m {
					t.Errorf("segment %d in layers %d and %d", v, prev, m)
				}
				layerOf[v] = m
				key := [2]int{z, i}
				if got[key] == nil {
					got[key] = make(map[uint16]bool)
				}
				if got[key][v] {
					t.Errorf("segment %d written twice at slice %d voxel %d", v, z, i)
				}
				got[key][v] = true
			}
		}
	}
	if len(got) != len(expected) {
		t.Fatalf("union has %d voxels, expected %d", len(got), len(expected))
	}
	for key, segs := range expected {
		for s := range segs {
			if !got[key][s] {
				t.Errorf("segment %d missing at slice %d voxel %d", s, key[0], key[1])
			}
		}
	}
}

func TestSplitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	masks := map[int][]byte{0: make([]byte, sliceSize)}
	err := Split(ctx, []FrameRef{{0, 1, 0}}, NewLayers(3, 3, 1), loader(masks), nil)
	if !errors.Is(err, seg.ErrCanceled) {
		t.Errorf("expected ErrCanceled, got %v", err)
	}
	if _, err := Detect(ctx, []FrameRef{{0, 1, 0}}, sliceSize, loader(masks)); !errors.Is(err, seg.ErrCanceled) {
		t.Errorf("expected ErrCanceled, got %v", err)
	}
}

func TestWriteFrame(t *testing.T) {
	layers := NewLayers(3, 3, 2)
	n, err := layers.WriteFrame(0, FrameRef{0, 4, 1}, []byte{0, 1, 1, 0, 0, 0, 0, 0, 1})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || layers.Labelmaps[0].At(2, 2, 1) != 4 || !layers.SegmentsOnFrame[0].Has(1, 4) {
		t.Errorf("bad write of %d voxels: %v", n, layers.Labelmaps[0].Data)
	}
	if _, err := layers.WriteFrame(0, FrameRef{1, 4, 2}, make([]byte, 9)); err == nil {
		t.Errorf("expected error for slice out of range")
	}
	if _, err := layers.WriteFrame(0, FrameRef{1, 4, 0}, make([]byte, 4)); err == nil {
		t.Errorf("expected error for bad mask size")
	}
}
