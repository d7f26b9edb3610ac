package dicomio

import (
	"fmt"
	"sort"

	"github.com/suyashkumar/dicom"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/janelia-flyem/dicomseg/seg"
)

// SlicesFromDICOM returns the geometry of every frame of a source image.  Single
// frame images give one slice; enhanced multi-frame images give one slice per frame,
// with FrameNumber set.
func SlicesFromDICOM(dataset dicom.Dataset) ([]*seg.SliceMetadata, error) {
	top := item(dataset.Elements)
	base := seg.SliceMetadata{
		SOPInstanceUID:      top.str(tagSOPInstanceUID),
		SOPClassUID:         top.str(tagSOPClassUID),
		SeriesInstanceUID:   top.str(tagSeriesInstanceUID),
		FrameOfReferenceUID: top.str(tagFrameOfReferenceUID),
	}
	rows, _, err := top.integer(tagRows)
	if err != nil {
		return nil, err
	}
	cols, _, err := top.integer(tagColumns)
	if err != nil {
		return nil, err
	}
	base.Rows, base.Columns = rows, cols

	shared := top.first(tagSharedFunctionalGroupsSequence)
	perFrame := top.items(tagPerFrameFunctionalGroupsSequence)
	if len(perFrame) == 0 {
		meta := base
		if err := readPlane(&meta, top, shared); err != nil {
			return nil, err
		}
		return []*seg.SliceMetadata{&meta}, nil
	}
	slices := make([]*seg.SliceMetadata, len(perFrame))
	for i, fg := range perFrame {
		meta := base
		meta.FrameNumber = i + 1
		if err := readPlane(&meta, fg, shared); err != nil {
			return nil, &seg.FrameError{Frame: i, Err: err}
		}
		slices[i] = &meta
	}
	return slices, nil
}

// readPlane fills orientation, position and spacing, looking first at the
// attributes themselves and then at the functional group macros.
func readPlane(meta *seg.SliceMetadata, it, shared item) error {
	lookup := []item{it}
	for _, group := range []item{it, shared} {
		if group == nil {
			continue
		}
		lookup = append(lookup,
			group.first(tagPlaneOrientationSequence),
			group.first(tagPlanePositionSequence),
			group.first(tagPixelMeasuresSequence))
	}
	var haveOrientation bool
	for _, src := range lookup {
		if src == nil {
			continue
		}
		if vals, err := src.floats(tagImageOrientationPatient); err != nil {
			return err
		} else if len(vals) == 6 && !haveOrientation {
			meta.Orientation, _ = seg.OrientationFromSlice(vals)
			haveOrientation = true
		}
		if vals, err := src.floats(tagImagePositionPatient); err != nil {
			return err
		} else if len(vals) == 3 && meta.Position == nil {
			meta.Position = &[3]float64{vals[0], vals[1], vals[2]}
		}
		if vals, err := src.floats(tagPixelSpacing); err != nil {
			return err
		} else if len(vals) == 2 && meta.PixelSpacing == [2]float64{} {
			meta.PixelSpacing = [2]float64{vals[0], vals[1]}
		}
	}
	if !haveOrientation {
		return fmt.Errorf("source image %s has no image orientation", meta.SOPInstanceUID)
	}
	return nil
}

// ReadSliceMetadata reads the geometry of a source image file, skipping its pixel data.
func ReadSliceMetadata(path string) ([]*seg.SliceMetadata, error) {
	dataset, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("parsing source image %s: %w", path, err)
	}
	slices, err := SlicesFromDICOM(dataset)
	if err != nil {
		return nil, fmt.Errorf("source image %s: %w", path, err)
	}
	return slices, nil
}

// NewFileProvider reads the headers of the given source image files and returns a
// provider for them together with a volume ordered along the slice normal.  Slice
// handles are file paths, suffixed with "#<frame>" for frames of multi-frame images.
func NewFileProvider(paths []string) (seg.MapProvider, *seg.SourceVolume, error) {
	provider := make(seg.MapProvider)
	type entry struct {
		id  seg.SliceID
		pos float64
	}
	var entries []entry
	var normal r3.Vec
	for _, path := range paths {
		slices, err := ReadSliceMetadata(path)
		if err != nil {
			return nil, nil, err
		}
		for _, meta := range slices {
			id := seg.SliceID(path)
			if meta.FrameNumber > 0 {
				id = seg.SliceID(fmt.Sprintf("%s#%d", path, meta.FrameNumber))
			}
			if len(entries) == 0 {
				normal = meta.Orientation.Normal()
			}
			var pos float64
			if meta.Position != nil {
				pos = r3.Dot(seg.Vec(*meta.Position), normal)
			}
			provider[id] = meta
			entries = append(entries, entry{id, pos})
		}
	}
	if len(entries) == 0 {
		return nil, nil, seg.ErrNoSourceSlices
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })
	vol := &seg.SourceVolume{Slices: make([]seg.SliceID, len(entries))}
	for i, e := range entries {
		vol.Slices[i] = e.id
	}
	seg.Debugf("loaded %d source slices from %d files\n", len(entries), len(paths))
	return provider, vol, nil
}
