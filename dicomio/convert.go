package dicomio

import (
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/janelia-flyem/dicomseg/seg"
)

// FromDICOM extracts the segmentation attributes from a parsed DICOM dataset.  Pixel
// data must have been parsed without processing so native data stays bit-packed.
func FromDICOM(dataset dicom.Dataset) (*seg.Dataset, error) {
	top := item(dataset.Elements)
	ds := &seg.Dataset{
		SOPInstanceUID:      top.str(tagSOPInstanceUID),
		SOPClassUID:         top.str(tagSOPClassUID),
		StudyInstanceUID:    top.str(tagStudyInstanceUID),
		SeriesInstanceUID:   top.str(tagSeriesInstanceUID),
		SeriesDescription:   top.str(tagSeriesDescription),
		ContentLabel:        top.str(tagContentLabel),
		FrameOfReferenceUID: top.str(tagFrameOfReferenceUID),
		SegmentationType:    seg.SegmentationType(top.str(tagSegmentationType)),
		TransferSyntaxUID:   top.str(tagTransferSyntaxUID),
	}
	if ds.SOPInstanceUID == "" {
		ds.SOPInstanceUID = top.str(tagMediaStorageSOPInstanceUID)
	}
	if ds.TransferSyntaxUID == "" {
		ds.TransferSyntaxUID = seg.ImplicitVRLittleEndianUID
	}
	if ref := top.first(tagReferencedSeriesSequence); ref != nil {
		ds.ReferencedSeriesInstanceUID = ref.str(tagSeriesInstanceUID)
	}

	var err error
	ints := func(t tag.Tag) int {
		if err != nil {
			return 0
		}
		var v int
		v, _, err = top.integer(t)
		return v
	}
	ds.SeriesNumber = ints(tagSeriesNumber)
	ds.Rows = ints(tagRows)
	ds.Columns = ints(tagColumns)
	ds.NumberOfFrames = ints(tagNumberOfFrames)
	ds.BitsAllocated = ints(tagBitsAllocated)
	ds.MaximumFractionalValue = ints(tagMaximumFractionalValue)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", seg.ErrInvalidDataset, err)
	}
	if ds.NumberOfFrames == 0 {
		ds.NumberOfFrames = 1
	}

	if ds.Segments, err = readSegments(top); err != nil {
		return nil, err
	}

	if shared := top.first(tagSharedFunctionalGroupsSequence); shared != nil {
		if ds.Shared, err = readFrameGroup(shared); err != nil {
			return nil, fmt.Errorf("%w: shared functional group: %v", seg.ErrInvalidDataset, err)
		}
		if measures := shared.first(tagPixelMeasuresSequence); measures != nil {
			spacing, err := measures.floats(tagPixelSpacing)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", seg.ErrInvalidDataset, err)
			}
			if len(spacing) == 2 {
				ds.PixelSpacing = [2]float64{spacing[0], spacing[1]}
			}
			if thick, _ := measures.floats(tagSliceThickness); len(thick) > 0 {
				ds.SliceThickness = thick[0]
			}
		}
	}
	perFrame := top.items(tagPerFrameFunctionalGroupsSequence)
	ds.PerFrame = make([]seg.FrameGroup, len(perFrame))
	for i, fg := range perFrame {
		if ds.PerFrame[i], err = readFrameGroup(fg); err != nil {
			return nil, &seg.FrameError{Frame: i, Err: fmt.Errorf("%w: %v", seg.ErrInvalidDataset, err)}
		}
	}

	topSources := top.items(tagSourceImageSequence)
	if len(topSources) == ds.NumberOfFrames {
		ds.SourceImages = make([]seg.ImageRef, len(topSources))
		for i, src := range topSources {
			if ds.SourceImages[i], err = readImageRef(src); err != nil {
				return nil, fmt.Errorf("%w: %v", seg.ErrInvalidDataset, err)
			}
		}
	} else if len(topSources) != 0 {
		seg.Debugf("ignoring top-level SourceImageSequence of %d items for %d frames\n", len(topSources), ds.NumberOfFrames)
	}

	if err := readPixelData(top, ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func readSegments(top item) ([]seg.Segment, error) {
	seq := top.items(tagSegmentSequence)
	segments := make([]seg.Segment, 0, len(seq))
	for i, it := range seq {
		number, found, err := it.integer(tagSegmentNumber)
		if err != nil {
			return nil, fmt.Errorf("%w: segment item %d: %v", seg.ErrInvalidDataset, i, err)
		}
		if !found || number <= 0 || number > 0xFFFF {
			return nil, fmt.Errorf("%w: segment item %d has no valid SegmentNumber", seg.ErrInvalidDataset, i)
		}
		s := seg.Segment{
			Number:        uint16(number),
			Label:         it.str(tagSegmentLabel),
			Description:   it.str(tagSegmentDescription),
			AlgorithmType: it.str(tagSegmentAlgorithmType),
		}
		if lab, _ := it.ints(tagRecommendedDisplayCIELab); len(lab) == 3 {
			s.DisplayColor = [3]uint16{uint16(lab[0]), uint16(lab[1]), uint16(lab[2])}
		}
		segments = append(segments, s)
	}
	return segments, nil
}

func readFrameGroup(fg item) (seg.FrameGroup, error) {
	var group seg.FrameGroup
	if ident := fg.first(tagSegmentIdentificationSequence); ident != nil {
		number, _, err := ident.integer(tagReferencedSegmentNumber)
		if err != nil {
			return group, err
		}
		group.ReferencedSegmentNumber = uint16(number)
	}
	if plane := fg.first(tagPlaneOrientationSequence); plane != nil {
		vals, err := plane.floats(tagImageOrientationPatient)
		if err != nil {
			return group, err
		}
		if len(vals) != 0 {
			orient, err := seg.OrientationFromSlice(vals)
			if err != nil {
				return group, err
			}
			group.Orientation = &orient
		}
	}
	if plane := fg.first(tagPlanePositionSequence); plane != nil {
		vals, err := plane.floats(tagImagePositionPatient)
		if err != nil {
			return group, err
		}
		if len(vals) == 3 {
			group.Position = &[3]float64{vals[0], vals[1], vals[2]}
		}
	}
	for _, deriv := range fg.items(tagDerivationImageSequence) {
		for _, src := range deriv.items(tagSourceImageSequence) {
			ref, err := readImageRef(src)
			if err != nil {
				return group, err
			}
			group.SourceImages = append(group.SourceImages, ref)
		}
	}
	return group, nil
}

func readImageRef(it item) (seg.ImageRef, error) {
	ref := seg.ImageRef{
		SOPClassUID:    it.str(tagReferencedSOPClassUID),
		SOPInstanceUID: it.str(tagReferencedSOPInstanceUID),
	}
	frameNum, _, err := it.integer(tagReferencedFrameNumber)
	if err != nil {
		return ref, err
	}
	ref.FrameNumber = frameNum
	return ref, nil
}

func readPixelData(top item, ds *seg.Dataset) error {
	el := top.find(tagPixelData)
	if el == nil || el.Value == nil || el.Value.ValueType() != dicom.PixelData {
		return fmt.Errorf("%w: no pixel data", seg.ErrInvalidDataset)
	}
	info := dicom.MustGetPixelDataInfo(el.Value)
	switch {
	case info.IntentionallySkipped:
		return fmt.Errorf("%w: pixel data was skipped while parsing", seg.ErrInvalidDataset)
	case info.IsEncapsulated:
		ds.Fragments = make([][]byte, 0, len(info.Frames))
		for _, f := range info.Frames {
			if f == nil || !f.Encapsulated {
				continue
			}
			ds.Fragments = append(ds.Fragments, f.EncapsulatedData.Data)
		}
	case info.IntentionallyUnprocessed:
		ds.PixelData = info.UnprocessedValueData
	default:
		return fmt.Errorf("%w: native pixel data must be parsed unprocessed", seg.ErrInvalidDataset)
	}
	return nil
}

// ToDICOM builds a DICOM dataset for the segmentation, ready to be written.
func ToDICOM(ds *seg.Dataset) (dicom.Dataset, error) {
	if err := ds.Validate(); err != nil {
		return dicom.Dataset{}, err
	}
	sopClass := ds.SOPClassUID
	if sopClass == "" {
		sopClass = seg.SegmentationStorageUID
	}

	var b builder
	b.str(tagMediaStorageSOPClassUID, sopClass)
	b.str(tagMediaStorageSOPInstanceUID, ds.SOPInstanceUID)
	b.str(tagTransferSyntaxUID, ds.TransferSyntaxUID)

	b.str(tagSOPClassUID, sopClass)
	b.str(tagSOPInstanceUID, ds.SOPInstanceUID)
	b.str(tagModality, "SEG")
	b.str(tagSeriesDescription, ds.SeriesDescription)
	if ds.ReferencedSeriesInstanceUID != "" {
		ref, err := newItem(func(ib *builder) {
			ib.str(tagSeriesInstanceUID, ds.ReferencedSeriesInstanceUID)
		})
		if err != nil {
			return dicom.Dataset{}, err
		}
		b.sequence(tagReferencedSeriesSequence, ref)
	}
	if len(ds.SourceImages) != 0 {
		refs := make([][]*dicom.Element, len(ds.SourceImages))
		for i, ref := range ds.SourceImages {
			var err error
			if refs[i], err = imageRefItem(ref); err != nil {
				return dicom.Dataset{}, err
			}
		}
		b.sequence(tagSourceImageSequence, refs...)
	}
	b.str(tagStudyInstanceUID, ds.StudyInstanceUID)
	b.str(tagSeriesInstanceUID, ds.SeriesInstanceUID)
	if ds.SeriesNumber != 0 {
		b.str(tagSeriesNumber, formatIS(ds.SeriesNumber))
	}
	b.str(tagFrameOfReferenceUID, ds.FrameOfReferenceUID)

	bits := ds.BitsAllocated
	b.uint(tagSamplesPerPixel, 1)
	b.str(tagPhotometricInterpretation, "MONOCHROME2")
	b.str(tagNumberOfFrames, formatIS(ds.NumberOfFrames))
	b.uint(tagRows, ds.Rows)
	b.uint(tagColumns, ds.Columns)
	b.uint(tagBitsAllocated, bits)
	b.uint(tagBitsStored, bits)
	b.uint(tagHighBit, bits-1)
	b.uint(tagPixelRepresentation, 0)
	b.str(tagLossyImageCompression, "00")

	b.str(tagSegmentationType, string(ds.SegmentationType))
	if ds.SegmentationType == seg.Fractional {
		b.uint(tagMaximumFractionalValue, ds.MaximumFractionalValue)
	}
	segItems := make([][]*dicom.Element, len(ds.Segments))
	for i, s := range ds.Segments {
		var err error
		s := s
		segItems[i], err = newItem(func(ib *builder) {
			ib.uint(tagSegmentNumber, int(s.Number))
			ib.str(tagSegmentLabel, s.Label)
			ib.str(tagSegmentDescription, s.Description)
			algo := s.AlgorithmType
			if algo == "" {
				algo = "MANUAL"
			}
			ib.str(tagSegmentAlgorithmType, algo)
			if s.DisplayColor != [3]uint16{} {
				ib.uint(tagRecommendedDisplayCIELab, int(s.DisplayColor[0]), int(s.DisplayColor[1]), int(s.DisplayColor[2]))
			}
		})
		if err != nil {
			return dicom.Dataset{}, err
		}
	}
	b.sequence(tagSegmentSequence, segItems...)
	b.str(tagContentLabel, ds.ContentLabel)

	shared, err := newItem(func(ib *builder) {
		addFrameGroup(ib, ds.Shared)
		if ds.PixelSpacing != [2]float64{} || ds.SliceThickness != 0 {
			measures, err := newItem(func(mb *builder) {
				if ds.PixelSpacing != [2]float64{} {
					mb.decimals(tagPixelSpacing, ds.PixelSpacing[0], ds.PixelSpacing[1])
				}
				if ds.SliceThickness != 0 {
					mb.decimals(tagSliceThickness, ds.SliceThickness)
				}
			})
			if err != nil {
				ib.err = err
				return
			}
			ib.sequence(tagPixelMeasuresSequence, measures)
		}
	})
	if err != nil {
		return dicom.Dataset{}, err
	}
	b.sequence(tagSharedFunctionalGroupsSequence, shared)

	perFrame := make([][]*dicom.Element, len(ds.PerFrame))
	for i, fg := range ds.PerFrame {
		fg := fg
		if perFrame[i], err = newItem(func(ib *builder) { addFrameGroup(ib, fg) }); err != nil {
			return dicom.Dataset{}, &seg.FrameError{Frame: i, Err: err}
		}
	}
	b.sequence(tagPerFrameFunctionalGroupsSequence, perFrame...)

	if pixels := b.add(tagPixelData, pixelDataInfo(ds)); pixels != nil && ds.Encoding().IsRLE() {
		pixels.ValueLength = tag.VLUndefinedLength
	}

	elems, err := b.done()
	if err != nil {
		return dicom.Dataset{}, err
	}
	return dicom.Dataset{Elements: elems}, nil
}

func pixelDataInfo(ds *seg.Dataset) dicom.PixelDataInfo {
	if ds.Encoding().IsRLE() {
		frames := make([]*frame.Frame, len(ds.Fragments))
		for i, fragment := range ds.Fragments {
			frames[i] = &frame.Frame{
				Encapsulated:     true,
				EncapsulatedData: frame.EncapsulatedFrame{Data: fragment},
			}
		}
		return dicom.PixelDataInfo{IsEncapsulated: true, Frames: frames}
	}
	data := ds.PixelData
	if len(data)%2 == 1 {
		data = append(data[:len(data):len(data)], 0)
	}
	return dicom.PixelDataInfo{IntentionallyUnprocessed: true, UnprocessedValueData: data}
}

func newItem(fill func(*builder)) ([]*dicom.Element, error) {
	var ib builder
	fill(&ib)
	return ib.done()
}

func imageRefItem(ref seg.ImageRef) ([]*dicom.Element, error) {
	return newItem(func(ib *builder) {
		ib.str(tagReferencedSOPClassUID, ref.SOPClassUID)
		ib.str(tagReferencedSOPInstanceUID, ref.SOPInstanceUID)
		if ref.FrameNumber > 0 {
			ib.str(tagReferencedFrameNumber, formatIS(ref.FrameNumber))
		}
	})
}

func addFrameGroup(b *builder, fg seg.FrameGroup) {
	if len(fg.SourceImages) != 0 {
		refs := make([][]*dicom.Element, len(fg.SourceImages))
		for i, ref := range fg.SourceImages {
			var err error
			if refs[i], err = imageRefItem(ref); err != nil {
				b.err = err
				return
			}
		}
		deriv, err := newItem(func(db *builder) { db.sequence(tagSourceImageSequence, refs...) })
		if err != nil {
			b.err = err
			return
		}
		b.sequence(tagDerivationImageSequence, deriv)
	}
	if fg.Position != nil {
		pos, err := newItem(func(pb *builder) { pb.decimals(tagImagePositionPatient, fg.Position[:]...) })
		if err != nil {
			b.err = err
			return
		}
		b.sequence(tagPlanePositionSequence, pos)
	}
	if fg.Orientation != nil {
		orient, err := newItem(func(ob *builder) { ob.decimals(tagImageOrientationPatient, fg.Orientation[:]...) })
		if err != nil {
			b.err = err
			return
		}
		b.sequence(tagPlaneOrientationSequence, orient)
	}
	if fg.ReferencedSegmentNumber != 0 {
		ident, err := newItem(func(sb *builder) { sb.uint(tagReferencedSegmentNumber, int(fg.ReferencedSegmentNumber)) })
		if err != nil {
			b.err = err
			return
		}
		b.sequence(tagSegmentIdentificationSequence, ident)
	}
}
