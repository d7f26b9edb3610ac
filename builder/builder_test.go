package builder

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/janelia-flyem/dicomseg/labelmap"
	"github.com/janelia-flyem/dicomseg/seg"
)

var axial = seg.Orientation{1, 0, 0, 0, 1, 0}

func source(slices, rows, cols int) (*seg.SourceVolume, seg.MapProvider, []*seg.SliceMetadata) {
	src := new(seg.SourceVolume)
	provider := make(seg.MapProvider)
	var metas []*seg.SliceMetadata
	for z := 0; z < slices; z++ {
		id := seg.SliceID(fmt.Sprintf("ct/%d", z))
		meta := &seg.SliceMetadata{
			SOPInstanceUID:      fmt.Sprintf("1.2.40.0.%d", z),
			SOPClassUID:         "1.2.840.10008.5.1.4.1.1.2",
			SeriesInstanceUID:   "1.2.40.1",
			FrameOfReferenceUID: "1.2.40.2",
			Rows:                rows,
			Columns:             cols,
			Orientation:         axial,
			Position:            &[3]float64{-50, -50, 3 * float64(z)},
			PixelSpacing:        [2]float64{1, 1},
		}
		src.Slices = append(src.Slices, id)
		provider[id] = meta
		metas = append(metas, meta)
	}
	return src, provider, metas
}

var segments = []seg.Segment{
	{Number: 1, Label: "kidney", AlgorithmType: "MANUAL"},
	{Number: 2, Label: "cyst", AlgorithmType: "MANUAL"},
}

func testLabelmaps() []*seg.Labelmap {
	l0 := seg.NewLabelmap(4, 5, 3)
	l0.Set(0, 0, 0, 1)
	l0.Set(4, 3, 2, 1)
	l0.Set(1, 1, 1, 2)
	l0.Set(2, 1, 1, 2)
	l1 := seg.NewLabelmap(4, 5, 3)
	l1.Set(0, 0, 0, 2) // overlaps segment 1
	return []*seg.Labelmap{l0, l1}
}

func TestBuildFrameOrder(t *testing.T) {
	_, _, metas := source(3, 4, 5)
	ds, warnings, err := Build(Input{Labelmaps: testLabelmaps(), Segments: segments, Source: metas}, Options{SeriesNumber: 300})
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings %v", warnings)
	}
	type occurrence struct {
		segment uint16
		uid     string
	}
	expected := []occurrence{{1, "1.2.40.0.0"}, {1, "1.2.40.0.2"}, {2, "1.2.40.0.0"}, {2, "1.2.40.0.1"}}
	if ds.NumberOfFrames != len(expected) {
		t.Fatalf("expected %d frames, got %d", len(expected), ds.NumberOfFrames)
	}
	for i, e := range expected {
		group := ds.PerFrame[i]
		if group.ReferencedSegmentNumber != e.segment || group.SourceImages[0].SOPInstanceUID != e.uid {
			t.Errorf("frame %d: expected segment %d on %s, got %d on %s", i, e.segment, e.uid,
				group.ReferencedSegmentNumber, group.SourceImages[0].SOPInstanceUID)
		}
	}
	if !strings.HasPrefix(ds.SOPInstanceUID, "2.25.") || ds.SOPInstanceUID == ds.SeriesInstanceUID {
		t.Errorf("bad UIDs %s, %s", ds.SOPInstanceUID, ds.SeriesInstanceUID)
	}
	if ds.Encoding() != seg.BitPackedEncoding || len(ds.PixelData) != (4*20+7)/8 {
		t.Errorf("expected %d bytes of bit-packed data, got %d (%s)", (4*20+7)/8, len(ds.PixelData), ds.Encoding())
	}
	if ds.SliceThickness != 3 || ds.SeriesNumber != 300 || ds.FrameOfReferenceUID != "1.2.40.2" {
		t.Errorf("bad dataset attributes %+v", ds)
	}
}

func roundTrip(t *testing.T, opts Options) {
	src, provider, metas := source(3, 4, 5)
	labelmaps := testLabelmaps()
	ds, _, err := Build(Input{Labelmaps: labelmaps, Segments: segments, Source: metas}, opts)
	if err != nil {
		t.Fatal(err)
	}
	d, err := labelmap.NewDecoder("", labelmap.Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	result, err := d.Decode(context.Background(), ds, src, provider)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Overlapping || len(result.Labelmaps) != 2 {
		t.Fatalf("expected 2 decoded layers, got %d", len(result.Labelmaps))
	}
	// segment 2 moves entirely to the second layer on decode
	got0, got1 := result.Labelmaps[0], result.Labelmaps[1]
	for i := range got0.Data {
		union := map[uint16]bool{}
		for _, lm := range labelmaps {
			if v := lm.Data[i]; v != 0 {
				union[v] = true
			}
		}
		decoded := map[uint16]bool{}
		for _, v := range []uint16{got0.Data[i], got1.Data[i]} {
			if v != 0 {
				decoded[v] = true
			}
		}
		if !reflect.DeepEqual(union, decoded) {
			t.Fatalf("voxel %d: built %v, decoded %v", i, union, decoded)
		}
	}
	if c := result.Centroids[1]; c.Count != 2 || c.Voxel != (seg.Point3d{2, 1, 1}) {
		t.Errorf("bad segment 1 centroid %v (%d voxels)", c.Voxel, c.Count)
	}
}

func TestBuildRoundTrip(t *testing.T) {
	roundTrip(t, Options{})
}

func TestBuildRLE(t *testing.T) {
	_, _, metas := source(3, 4, 5)
	ds, _, err := Build(Input{Labelmaps: testLabelmaps(), Segments: segments, Source: metas}, Options{RLE: true})
	if err != nil {
		t.Fatal(err)
	}
	if ds.Encoding() != seg.RLEEncoding || len(ds.Fragments) != ds.NumberOfFrames || ds.PixelData != nil {
		t.Errorf("expected RLE fragments, got %s with %d fragments", ds.Encoding(), len(ds.Fragments))
	}
	roundTrip(t, Options{RLE: true})
}

func TestBuildWarnings(t *testing.T) {
	_, _, metas := source(3, 4, 5)
	labelmaps := testLabelmaps()
	labelmaps[0].Set(3, 3, 2, 7)
	described := append([]seg.Segment{}, segments...)
	described = append(described, seg.Segment{Number: 5, Label: "empty"})
	ds, warnings, err := Build(Input{Labelmaps: labelmaps, Segments: described, Source: metas}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 2 || warnings[0].Segment != 7 || warnings[1].Segment != 5 {
		t.Errorf("expected warnings for segments 7 and 5, got %v", warnings)
	}
	if len(ds.Segments) != 2 {
		t.Errorf("expected only described segments with voxels, got %v", ds.Segments)
	}
	for _, group := range ds.PerFrame {
		if group.ReferencedSegmentNumber == 7 {
			t.Errorf("undescribed segment should not be encoded")
		}
	}
}

func TestBuildErrors(t *testing.T) {
	_, _, metas := source(3, 4, 5)
	if _, _, err := Build(Input{Segments: segments, Source: metas}, Options{}); !errors.Is(err, seg.ErrInvalidDataset) {
		t.Errorf("expected error without labelmaps, got %v", err)
	}
	if _, _, err := Build(Input{Labelmaps: testLabelmaps(), Segments: segments, Source: metas[:2]}, Options{}); !errors.Is(err, seg.ErrGeometryMismatch) {
		t.Errorf("expected slice count mismatch, got %v", err)
	}
	_, _, wide := source(3, 4, 6)
	if _, _, err := Build(Input{Labelmaps: testLabelmaps(), Segments: segments, Source: wide}, Options{}); !errors.Is(err, seg.ErrGeometryMismatch) {
		t.Errorf("expected geometry mismatch, got %v", err)
	}
	empty := []*seg.Labelmap{seg.NewLabelmap(4, 5, 3)}
	if _, _, err := Build(Input{Labelmaps: empty, Segments: segments, Source: metas}, Options{}); !errors.Is(err, seg.ErrInvalidDataset) {
		t.Errorf("expected error for empty labelmaps, got %v", err)
	}

	badSlice := make(seg.SegmentsOnFrame)
	badSlice.Add(7, 1)
	in := Input{
		Labelmaps:       testLabelmaps()[:1],
		SegmentsOnFrame: []seg.SegmentsOnFrame{badSlice},
		Segments:        segments,
		Source:          metas,
	}
	if _, _, err := Build(in, Options{}); !errors.Is(err, seg.ErrInvalidDataset) {
		t.Errorf("expected error for out of range slice in segments-on-frame, got %v", err)
	}
	in.SegmentsOnFrame = []seg.SegmentsOnFrame{{0: {1}}, {0: {2}}}
	if _, _, err := Build(in, Options{}); !errors.Is(err, seg.ErrInvalidDataset) {
		t.Errorf("expected error for more indices than labelmaps, got %v", err)
	}
}
