package dicomio

import (
	"bytes"
	"errors"
	"testing"

	. "github.com/janelia-flyem/go/gocheck"
	"github.com/suyashkumar/dicom"

	"github.com/janelia-flyem/dicomseg/packing"
	"github.com/janelia-flyem/dicomseg/seg"
)

func Test(t *testing.T) { TestingT(t) }

type IOSuite struct{}

var _ = Suite(&IOSuite{})

var axial = seg.Orientation{1, 0, 0, 0, 1, 0}

func testSegmentation() *seg.Dataset {
	masks := [][]byte{
		{1, 1, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0},
		{0, 0, 0, 0, 1, 1, 1, 0, 0, 0, 0, 1},
		{1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0},
	}
	var flat []byte
	for _, m := range masks {
		flat = append(flat, m...)
	}
	ds := &seg.Dataset{
		SOPInstanceUID:              "2.25.100",
		StudyInstanceUID:            "2.25.1",
		SeriesInstanceUID:           "2.25.2",
		SeriesDescription:           "organs",
		SeriesNumber:                300,
		ContentLabel:                "SEGMENTATION",
		FrameOfReferenceUID:         "2.25.3",
		ReferencedSeriesInstanceUID: "2.25.4",
		Rows:                        3,
		Columns:                     4,
		NumberOfFrames:              3,
		SegmentationType:            seg.Binary,
		Segments: []seg.Segment{
			{Number: 1, Label: "liver", AlgorithmType: "MANUAL", DisplayColor: [3]uint16{1000, 2000, 3000}},
			{Number: 2, Label: "spleen", Description: "manual outline"},
		},
		Shared:         seg.FrameGroup{Orientation: &axial},
		PixelSpacing:   [2]float64{0.5, 0.75},
		SliceThickness: 2.5,
		PerFrame: []seg.FrameGroup{
			{
				ReferencedSegmentNumber: 1,
				Position:                &[3]float64{-10.5, 20, 0},
				SourceImages:            []seg.ImageRef{{SOPClassUID: "1.2.3", SOPInstanceUID: "2.25.10"}},
			},
			{
				ReferencedSegmentNumber: 1,
				Position:                &[3]float64{-10.5, 20, 2.5},
				SourceImages:            []seg.ImageRef{{SOPClassUID: "1.2.3", SOPInstanceUID: "2.25.11", FrameNumber: 2}},
			},
			{
				ReferencedSegmentNumber: 2,
				Position:                &[3]float64{-10.5, 20, 2.5},
			},
		},
	}
	ds.SetEncoding(seg.BitPackedEncoding)
	ds.PixelData = packing.Pack(flat)
	return ds
}

func checkSame(c *C, got, want *seg.Dataset) {
	c.Check(got.SOPInstanceUID, Equals, want.SOPInstanceUID)
	c.Check(got.SOPClassUID, Equals, seg.SegmentationStorageUID)
	c.Check(got.StudyInstanceUID, Equals, want.StudyInstanceUID)
	c.Check(got.SeriesInstanceUID, Equals, want.SeriesInstanceUID)
	c.Check(got.SeriesDescription, Equals, want.SeriesDescription)
	c.Check(got.SeriesNumber, Equals, want.SeriesNumber)
	c.Check(got.ContentLabel, Equals, want.ContentLabel)
	c.Check(got.FrameOfReferenceUID, Equals, want.FrameOfReferenceUID)
	c.Check(got.ReferencedSeriesInstanceUID, Equals, want.ReferencedSeriesInstanceUID)
	c.Check(got.Rows, Equals, want.Rows)
	c.Check(got.Columns, Equals, want.Columns)
	c.Check(got.NumberOfFrames, Equals, want.NumberOfFrames)
	c.Check(got.Encoding(), Equals, want.Encoding())
	c.Check(got.SegmentationType, Equals, want.SegmentationType)
	c.Check(got.Segments[0].Label, Equals, "liver")
	c.Check(got.Segments[0].DisplayColor, Equals, [3]uint16{1000, 2000, 3000})
	c.Check(got.Segments[1].Description, Equals, "manual outline")
	c.Check(got.Segments[1].AlgorithmType, Equals, "MANUAL")
	c.Check(got.PixelSpacing, Equals, want.PixelSpacing)
	c.Check(got.SliceThickness, Equals, want.SliceThickness)
	c.Assert(got.Shared.Orientation, NotNil)
	c.Check(*got.Shared.Orientation, Equals, axial)
	c.Assert(got.PerFrame, HasLen, 3)
	for i := range want.PerFrame {
		c.Check(got.SegmentNumber(i), Equals, want.SegmentNumber(i))
		c.Assert(got.PerFrame[i].Position, NotNil)
		c.Check(*got.PerFrame[i].Position, Equals, *want.PerFrame[i].Position)
	}
	c.Check(got.PerFrame[0].SourceImages, DeepEquals, want.PerFrame[0].SourceImages)
	c.Check(got.PerFrame[1].SourceImages, DeepEquals, want.PerFrame[1].SourceImages)
	c.Check(got.PerFrame[2].SourceImages, HasLen, 0)
	c.Check(got.Validate(), IsNil)
}

func (s *IOSuite) TestConvert(c *C) {
	want := testSegmentation()
	dataset, err := ToDICOM(want)
	c.Assert(err, IsNil)
	got, err := FromDICOM(dataset)
	c.Assert(err, IsNil)
	checkSame(c, got, want)
	c.Check(got.PixelData, DeepEquals, append(want.PixelData, 0))
}

func (s *IOSuite) TestWriteRead(c *C) {
	want := testSegmentation()
	var buf bytes.Buffer
	c.Assert(Write(&buf, want), IsNil)

	got, err := ReadBytes(buf.Bytes())
	c.Assert(err, IsNil)
	checkSame(c, got, want)

	reader, err := packing.NewFrameReader(got, 0)
	c.Assert(err, IsNil)
	mask, err := reader.Frame(2)
	c.Assert(err, IsNil)
	c.Check(mask, DeepEquals, []byte{1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0})
}

func (s *IOSuite) TestConvertRLE(c *C) {
	want := testSegmentation()
	reader, err := packing.NewFrameReader(want, 0)
	c.Assert(err, IsNil)
	frames := make([][]byte, want.NumberOfFrames)
	for i := range frames {
		frames[i], err = reader.Frame(i)
		c.Assert(err, IsNil)
	}
	c.Assert(want.SetEncoding(seg.RLEEncoding), IsNil)
	want.PixelData = nil
	want.Fragments, err = packing.EncodeRLEFrames(frames, want.Rows, want.Columns, 8)
	c.Assert(err, IsNil)

	dataset, err := ToDICOM(want)
	c.Assert(err, IsNil)
	got, err := FromDICOM(dataset)
	c.Assert(err, IsNil)
	c.Check(got.Encoding().IsRLE(), Equals, true)
	c.Check(got.Fragments, DeepEquals, want.Fragments)

	reader, err = packing.NewFrameReader(got, 0)
	c.Assert(err, IsNil)
	c.Check(reader.Strategy(), Equals, "rle")
	mask, err := reader.Frame(1)
	c.Assert(err, IsNil)
	c.Check(mask, DeepEquals, frames[1])
}

func (s *IOSuite) TestInvalid(c *C) {
	ds := testSegmentation()
	ds.Segments = nil
	_, err := ToDICOM(ds)
	c.Check(errors.Is(err, seg.ErrInvalidDataset), Equals, true)

	_, err = FromDICOM(dicom.Dataset{})
	c.Check(errors.Is(err, seg.ErrInvalidDataset), Equals, true)
}

func (s *IOSuite) TestSlicesFromDICOM(c *C) {
	var b builder
	b.str(tagSOPInstanceUID, "2.25.50")
	b.str(tagSeriesInstanceUID, "2.25.51")
	b.str(tagFrameOfReferenceUID, "2.25.3")
	b.uint(tagRows, 3)
	b.uint(tagColumns, 4)
	b.decimals(tagImageOrientationPatient, 1, 0, 0, 0, 1, 0)
	b.decimals(tagImagePositionPatient, -10.5, 20, 5)
	b.decimals(tagPixelSpacing, 0.5, 0.75)
	elems, err := b.done()
	c.Assert(err, IsNil)

	slices, err := SlicesFromDICOM(dicom.Dataset{Elements: elems})
	c.Assert(err, IsNil)
	c.Assert(slices, HasLen, 1)
	meta := slices[0]
	c.Check(meta.SOPInstanceUID, Equals, "2.25.50")
	c.Check(meta.FrameNumber, Equals, 0)
	c.Check(meta.Rows, Equals, 3)
	c.Check(meta.Columns, Equals, 4)
	c.Check(meta.Orientation, Equals, axial)
	c.Assert(meta.Position, NotNil)
	c.Check(*meta.Position, Equals, [3]float64{-10.5, 20, 5})
	c.Check(meta.PixelSpacing, Equals, [2]float64{0.5, 0.75})
}

func (s *IOSuite) TestSlicesFromMultiframe(c *C) {
	orient, err := newItem(func(ib *builder) { ib.decimals(tagImageOrientationPatient, 1, 0, 0, 0, 1, 0) })
	c.Assert(err, IsNil)
	shared, err := newItem(func(ib *builder) { ib.sequence(tagPlaneOrientationSequence, orient) })
	c.Assert(err, IsNil)
	var perFrame [][]*dicom.Element
	for z := 0; z < 3; z++ {
		pos, err := newItem(func(ib *builder) { ib.decimals(tagImagePositionPatient, 0, 0, float64(2*z)) })
		c.Assert(err, IsNil)
		fg, err := newItem(func(ib *builder) { ib.sequence(tagPlanePositionSequence, pos) })
		c.Assert(err, IsNil)
		perFrame = append(perFrame, fg)
	}
	var b builder
	b.str(tagSOPInstanceUID, "2.25.60")
	b.uint(tagRows, 3)
	b.uint(tagColumns, 4)
	b.sequence(tagSharedFunctionalGroupsSequence, shared)
	b.sequence(tagPerFrameFunctionalGroupsSequence, perFrame...)
	elems, err := b.done()
	c.Assert(err, IsNil)

	slices, err := SlicesFromDICOM(dicom.Dataset{Elements: elems})
	c.Assert(err, IsNil)
	c.Assert(slices, HasLen, 3)
	for z, meta := range slices {
		c.Check(meta.FrameNumber, Equals, z+1)
		c.Check(meta.Orientation, Equals, axial)
		c.Check(*meta.Position, Equals, [3]float64{0, 0, float64(2 * z)})
	}
}

func (s *IOSuite) TestFormatDS(c *C) {
	c.Check(formatDS(2.5), Equals, "2.5")
	c.Check(formatDS(-10.5), Equals, "-10.5")
	c.Check(len(formatDS(-123.45678901234567)) <= 16, Equals, true)
}
