package sourcemap

import (
	"testing"

	"github.com/janelia-flyem/dicomseg/seg"
)

var axial = seg.Orientation{1, 0, 0, 0, 1, 0}

func position(z float64) *[3]float64 {
	return &[3]float64{-10, -20, z}
}

func volume(n int) []*seg.SliceMetadata {
	slices := make([]*seg.SliceMetadata, n)
	for z := range slices {
		slices[z] = &seg.SliceMetadata{
			SOPInstanceUID:      "1.2.3." + string(rune('a'+z)),
			SeriesInstanceUID:   "1.2.3",
			FrameOfReferenceUID: "1.2.9",
			Rows:                2,
			Columns:             2,
			Orientation:         axial,
			Position:            position(2.5 * float64(z)),
		}
	}
	return slices
}

func TestExplicitReferences(t *testing.T) {
	slices := volume(4)
	ds := &seg.Dataset{
		NumberOfFrames: 3,
		PerFrame: []seg.FrameGroup{
			{SourceImages: []seg.ImageRef{{SOPInstanceUID: "unknown"}, {SOPInstanceUID: "1.2.3.c"}}},
			{},
			{},
		},
		SourceImages: []seg.ImageRef{{}, {SOPInstanceUID: "1.2.3.b", FrameNumber: 1}, {SOPInstanceUID: "missing"}},
	}
	m := New(ds, slices, 0)
	if z, found := m.Resolve(0); !found || z != 2 {
		t.Errorf("frame 0: expected slice 2, got %d, %t", z, found)
	}
	if z, found := m.Resolve(1); !found || z != 1 {
		t.Errorf("frame 1: expected slice 1, got %d, %t", z, found)
	}
	if _, found := m.Resolve(2); found {
		t.Errorf("frame 2 should not resolve")
	}

	ds.Shared.SourceImages = []seg.ImageRef{{SOPInstanceUID: "1.2.3.d"}}
	if z, found := m.Resolve(2); !found || z != 3 {
		t.Errorf("frame 2: expected shared reference to slice 3, got %d, %t", z, found)
	}
}

func TestMultiFrameSource(t *testing.T) {
	slices := volume(3)
	for z, meta := range slices {
		meta.SOPInstanceUID = "1.2.3.multi"
		meta.FrameNumber = z + 1
	}
	ds := &seg.Dataset{
		NumberOfFrames: 2,
		PerFrame: []seg.FrameGroup{
			{SourceImages: []seg.ImageRef{{SOPInstanceUID: "1.2.3.multi", FrameNumber: 3}}},
			{SourceImages: []seg.ImageRef{{SOPInstanceUID: "1.2.3.multi", FrameNumber: 1}}},
		},
	}
	m := New(ds, slices, 0)
	if z, found := m.Resolve(0); !found || z != 2 {
		t.Errorf("expected frame 3 to be slice 2, got %d, %t", z, found)
	}
	if z, found := m.Resolve(1); !found || z != 0 {
		t.Errorf("expected frame 1 to be slice 0, got %d, %t", z, found)
	}
}

func TestGeometricMatch(t *testing.T) {
	slices := volume(4)
	ds := &seg.Dataset{
		NumberOfFrames:              3,
		FrameOfReferenceUID:         "1.2.9",
		ReferencedSeriesInstanceUID: "1.2.3",
		PerFrame: []seg.FrameGroup{
			{Position: &[3]float64{-10, -20, 5.0004}},
			{Position: &[3]float64{-10, -20, 6}},
			{},
		},
	}
	m := New(ds, slices, 0)
	if z, found := m.Resolve(0); !found || z != 2 {
		t.Errorf("expected slice 2, got %d, %t", z, found)
	}
	if _, found := m.Resolve(1); found {
		t.Errorf("position between slices should not resolve")
	}
	if _, found := m.Resolve(2); found {
		t.Errorf("frame without position should not resolve")
	}

	ds.FrameOfReferenceUID = "other"
	if _, found := New(ds, slices, 0).Resolve(0); found {
		t.Errorf("slices in another frame of reference should not match")
	}
	ds.FrameOfReferenceUID = "1.2.9"
	ds.ReferencedSeriesInstanceUID = "other"
	if _, found := New(ds, slices, 0).Resolve(0); found {
		t.Errorf("slices of another series should not match")
	}
}
