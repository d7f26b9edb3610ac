/*
	Package builder encodes labelmaps as a DICOM segmentation dataset.
*/
package builder

import (
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/janelia-flyem/dicomseg/packing"
	"github.com/janelia-flyem/dicomseg/seg"
)

// Input is one or more labelmaps over a source volume.
type Input struct {
	// Labelmaps share the geometry of the source volume: Source[z] is slice z.
	Labelmaps []*seg.Labelmap

	// SegmentsOnFrame[m] indexes Labelmaps[m].  If nil it is computed.
	SegmentsOnFrame []seg.SegmentsOnFrame

	// Segments describes each segment number used in the labelmaps.
	Segments []seg.Segment

	Source []*seg.SliceMetadata

	// StudyInstanceUID of the source study, if known.
	StudyInstanceUID string
}

// Options control the produced dataset.
type Options struct {
	// RLE selects RLE Lossless 8-bit frames instead of bit-packed frames.
	RLE bool

	SeriesNumber      int
	SeriesDescription string
	ContentLabel      string
}

// NewUID returns a DICOM UID derived from a random UUID, as in PS3.5 Annex B.2.
func NewUID() string {
	u := uuid.New()
	return "2.25." + new(big.Int).SetBytes(u[:]).String()
}

// frame is one (segment, slice) occurrence.
type frame struct {
	segment uint16
	slice   int
	mask    []byte
}

// Build creates a segmentation dataset with one frame for every slice on which a
// segment has voxels.  Frames are ordered by segment and then by slice and are
// numbered from 1.  Segments found in the labelmaps without a description in
// Input.Segments are skipped with a warning.
func Build(in Input, opts Options) (*seg.Dataset, []seg.Warning, error) {
	if err := checkInput(in); err != nil {
		return nil, nil, err
	}
	sof := in.SegmentsOnFrame
	if len(sof) != len(in.Labelmaps) {
		sof = make([]seg.SegmentsOnFrame, len(in.Labelmaps))
		for m, lm := range in.Labelmaps {
			sof[m] = seg.ComputeSegmentsOnFrame(lm)
		}
	}
	ref := in.Source[0]
	ds := &seg.Dataset{
		SOPClassUID:                 seg.SegmentationStorageUID,
		SOPInstanceUID:              NewUID(),
		StudyInstanceUID:            in.StudyInstanceUID,
		SeriesInstanceUID:           NewUID(),
		SeriesDescription:           opts.SeriesDescription,
		SeriesNumber:                opts.SeriesNumber,
		ContentLabel:                opts.ContentLabel,
		FrameOfReferenceUID:         ref.FrameOfReferenceUID,
		ReferencedSeriesInstanceUID: ref.SeriesInstanceUID,
		Rows:                        ref.Rows,
		Columns:                     ref.Columns,
		SegmentationType:            seg.Binary,
		PixelSpacing:                ref.PixelSpacing,
	}
	if ds.ContentLabel == "" {
		ds.ContentLabel = "SEGMENTATION"
	}
	orientation := ref.Orientation
	ds.Shared.Orientation = &orientation
	if err := ds.SetEncoding(seg.BitPackedEncoding); err != nil {
		return nil, nil, err
	}

	frames, warnings := collectFrames(in, sof)
	if len(frames) == 0 {
		return nil, warnings, fmt.Errorf("%w: labelmaps contain no described segments", seg.ErrInvalidDataset)
	}
	present := make(map[uint16]bool)
	for _, f := range frames {
		present[f.segment] = true
		src := in.Source[f.slice]
		group := seg.FrameGroup{
			ReferencedSegmentNumber: f.segment,
			SourceImages: []seg.ImageRef{{
				SOPClassUID:    src.SOPClassUID,
				SOPInstanceUID: src.SOPInstanceUID,
				FrameNumber:    src.FrameNumber,
			}},
		}
		if src.Position != nil {
			pos := *src.Position
			group.Position = &pos
		}
		ds.PerFrame = append(ds.PerFrame, group)
	}
	ds.NumberOfFrames = len(frames)
	for _, s := range in.Segments {
		if present[s.Number] {
			ds.Segments = append(ds.Segments, s)
		} else {
			warnings = append(warnings, seg.Warnf(-1, s.Number, "segment %q has no voxels and is omitted", s.Label))
		}
	}
	if len(in.Source) > 1 && in.Source[0].Position != nil && in.Source[1].Position != nil {
		ds.SliceThickness = spacing(in.Source[0], in.Source[1])
	}

	if opts.RLE {
		if err := ds.SetEncoding(seg.RLEEncoding); err != nil {
			return nil, nil, err
		}
		masks := make([][]byte, len(frames))
		for i, f := range frames {
			masks[i] = f.mask
		}
		fragments, err := packing.EncodeRLEFrames(masks, ds.Rows, ds.Columns, ds.BitsAllocated)
		if err != nil {
			return nil, nil, err
		}
		ds.Fragments = fragments
	} else {
		voxels := make([]byte, 0, len(frames)*ds.FrameSize())
		for _, f := range frames {
			voxels = append(voxels, f.mask...)
		}
		ds.PixelData = packing.Pack(voxels)
	}
	if err := ds.Validate(); err != nil {
		return nil, nil, err
	}
	seg.Infof("Built segmentation %s: %d segments in %d frames, %s\n", ds.SOPInstanceUID,
		len(ds.Segments), ds.NumberOfFrames, ds.Encoding())
	return ds, warnings, nil
}

func checkInput(in Input) error {
	if len(in.Labelmaps) == 0 {
		return fmt.Errorf("%w: no labelmaps", seg.ErrInvalidDataset)
	}
	if len(in.Source) == 0 {
		return seg.ErrNoSourceSlices
	}
	first := in.Labelmaps[0]
	for _, lm := range in.Labelmaps[1:] {
		if err := first.SameShape(lm); err != nil {
			return err
		}
	}
	if first.Slices != len(in.Source) {
		return fmt.Errorf("%w: labelmaps have %d slices, source volume has %d", seg.ErrGeometryMismatch, first.Slices, len(in.Source))
	}
	for z, src := range in.Source {
		if src.Rows != first.Rows || src.Columns != first.Columns {
			return fmt.Errorf("%w: source slice %d is %d x %d, labelmaps are %d x %d", seg.ErrGeometryMismatch,
				z, src.Rows, src.Columns, first.Rows, first.Columns)
		}
	}
	if len(in.SegmentsOnFrame) > len(in.Labelmaps) {
		return fmt.Errorf("%w: %d segments-on-frame indices for %d labelmaps", seg.ErrInvalidDataset,
			len(in.SegmentsOnFrame), len(in.Labelmaps))
	}
	for m, sof := range in.SegmentsOnFrame {
		for z := range sof {
			if z < 0 || z >= first.Slices {
				return fmt.Errorf("%w: segments-on-frame index of labelmap %d lists slice %d, labelmaps have %d slices",
					seg.ErrInvalidDataset, m, z, first.Slices)
			}
		}
	}
	return nil
}

// collectFrames gathers the (segment, slice) masks in segment-then-slice order.
// A segment present on a slice in several labelmaps yields one combined frame.
func collectFrames(in Input, sof []seg.SegmentsOnFrame) ([]frame, []seg.Warning) {
	described := make(map[uint16]bool, len(in.Segments))
	for _, s := range in.Segments {
		described[s.Number] = true
	}
	occurrences := make(map[uint16]map[int][]int) // segment -> slice -> layers
	for m, s := range sof {
		for z, segments := range s {
			for _, segment := range segments {
				if occurrences[segment] == nil {
					occurrences[segment] = make(map[int][]int)
				}
				occurrences[segment][z] = append(occurrences[segment][z], m)
			}
		}
	}
	numbers := make([]int, 0, len(occurrences))
	for segment := range occurrences {
		numbers = append(numbers, int(segment))
	}
	sort.Ints(numbers)

	var warnings []seg.Warning
	var frames []frame
	sliceSize := in.Labelmaps[0].SliceSize()
	for _, n := range numbers {
		segment := uint16(n)
		if !described[segment] {
			warnings = append(warnings, seg.Warnf(-1, segment, "no segment description, segment skipped"))
			continue
		}
		slices := make([]int, 0, len(occurrences[segment]))
		for z := range occurrences[segment] {
			slices = append(slices, z)
		}
		sort.Ints(slices)
		for _, z := range slices {
			mask := make([]byte, sliceSize)
			var set bool
			for _, m := range occurrences[segment][z] {
				for i, v := range in.Labelmaps[m].Slice(z) {
					if v == segment {
						mask[i] = 1
						set = true
					}
				}
			}
			if set {
				frames = append(frames, frame{segment, z, mask})
			}
		}
	}
	return frames, warnings
}

// spacing returns the distance between two slices along the slice normal.
func spacing(a, b *seg.SliceMetadata) float64 {
	d := r3.Sub(seg.Vec(*b.Position), seg.Vec(*a.Position))
	return math.Abs(r3.Dot(d, r3.Unit(a.Orientation.Normal())))
}
