package seg

import (
	"bytes"
	"errors"
	"testing"

	. "github.com/janelia-flyem/go/gocheck"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

type DataSuite struct{}

var _ = Suite(&DataSuite{})

var axial = Orientation{1, 0, 0, 0, 1, 0}

func validDataset() *Dataset {
	return &Dataset{
		Rows:              4,
		Columns:           4,
		NumberOfFrames:    2,
		BitsAllocated:     1,
		SegmentationType:  Binary,
		TransferSyntaxUID: ExplicitVRLittleEndianUID,
		Segments: []Segment{
			{Number: 1, Label: "liver"},
			{Number: 2, Label: "spleen"},
		},
		Shared: FrameGroup{Orientation: &axial},
		PerFrame: []FrameGroup{
			{ReferencedSegmentNumber: 1},
			{ReferencedSegmentNumber: 2},
		},
		PixelData: make([]byte, 4),
	}
}

func (s *DataSuite) TestValidate(c *C) {
	ds := validDataset()
	c.Assert(ds.Validate(), IsNil)

	ds.NumberOfFrames = 3
	c.Assert(errors.Is(ds.Validate(), ErrInvalidDataset), Equals, true)

	ds = validDataset()
	ds.PerFrame[1].ReferencedSegmentNumber = 7
	err := ds.Validate()
	var ferr *FrameError
	c.Assert(errors.As(err, &ferr), Equals, true)
	c.Assert(ferr.Frame, Equals, 1)
	c.Assert(errors.Is(err, ErrInvalidDataset), Equals, true)

	ds = validDataset()
	ds.Segments = append(ds.Segments, Segment{Number: 2})
	var serr *SegmentError
	c.Assert(errors.As(ds.Validate(), &serr), Equals, true)
	c.Assert(serr.Segment, Equals, uint16(2))

	ds = validDataset()
	ds.PixelData = ds.PixelData[:3]
	c.Assert(errors.Is(ds.Validate(), ErrInvalidDataset), Equals, true)

	ds = validDataset()
	ds.TransferSyntaxUID = RLELosslessUID
	c.Assert(errors.Is(ds.Validate(), ErrRLEBitPacked), Equals, true)
}

func (s *DataSuite) TestSharedSegmentNumber(c *C) {
	ds := validDataset()
	ds.Shared.ReferencedSegmentNumber = 2
	ds.PerFrame[0].ReferencedSegmentNumber = 0
	c.Assert(ds.SegmentNumber(0), Equals, uint16(2))
	c.Assert(ds.SegmentNumber(1), Equals, uint16(2))
	c.Assert(ds.Validate(), IsNil)
}

func (s *DataSuite) TestSetEncoding(c *C) {
	ds := validDataset()
	c.Assert(ds.SetEncoding(RLEEncoding), IsNil)
	c.Assert(ds.TransferSyntaxUID, Equals, RLELosslessUID)
	c.Assert(ds.BitsAllocated, Equals, 8)

	err := ds.SetEncoding(PixelEncoding{RLELosslessUID, 1})
	c.Assert(errors.Is(err, ErrRLEBitPacked), Equals, true)
	c.Assert(ds.Encoding(), Equals, RLEEncoding)
}

func (s *DataSuite) TestSegmentsOnFrame(c *C) {
	sof := make(SegmentsOnFrame)
	c.Assert(sof.Add(3, 5), Equals, true)
	c.Assert(sof.Add(3, 2), Equals, true)
	c.Assert(sof.Add(3, 5), Equals, false)
	c.Assert(sof.Add(1, 9), Equals, true)
	c.Assert(sof[3], DeepEquals, []uint16{2, 5})
	c.Assert(sof.Has(3, 2), Equals, true)
	c.Assert(sof.Has(2, 2), Equals, false)
	c.Assert(sof.SortedSlices(), DeepEquals, []int{1, 3})

	sof.Remove(1, 9)
	_, found := sof[1]
	c.Assert(found, Equals, false)
}

func (s *DataSuite) TestLabelmap(c *C) {
	l := NewLabelmap(2, 3, 2)
	l.Set(2, 1, 1, 7)
	c.Assert(l.At(2, 1, 1), Equals, uint16(7))
	c.Assert(l.Data[1*6+1*3+2], Equals, uint16(7))
	c.Assert(l.Slice(1)[5], Equals, uint16(7))

	dup := l.Clone()
	dup.Set(0, 0, 0, 3)
	c.Assert(l.At(0, 0, 0), Equals, uint16(0))
	c.Assert(l.SameShape(dup), IsNil)

	sof := ComputeSegmentsOnFrame(dup)
	c.Assert(sof[0], DeepEquals, []uint16{3})
	c.Assert(sof[1], DeepEquals, []uint16{7})
}

func (s *DataSuite) TestResolveSources(c *C) {
	provider := MapProvider{
		"a": {Rows: 4, Columns: 4},
		"b": {Rows: 4, Columns: 4},
		"c": {Rows: 4, Columns: 5},
	}
	vol := &SourceVolume{Slices: []SliceID{"a", "b"}}
	metas, err := vol.Resolve(provider)
	c.Assert(err, IsNil)
	c.Assert(metas, HasLen, 2)

	vol.Slices = append(vol.Slices, "c")
	_, err = vol.Resolve(provider)
	c.Assert(errors.Is(err, ErrGeometryMismatch), Equals, true)

	vol.Slices = []SliceID{"missing"}
	_, err = vol.Resolve(provider)
	c.Assert(err, NotNil)

	_, err = (&SourceVolume{}).Resolve(provider)
	c.Assert(err, Equals, ErrNoSourceSlices)
}

func (s *DataSuite) TestSerialize(c *C) {
	data := bytes.Repeat([]byte("labelmap voxels "), 1000)
	for _, compress := range []Compression{Uncompressed, Snappy, Zstd} {
		for _, checksum := range []Checksum{NoChecksum, CRC32} {
			ser, err := SerializeData(data, compress, checksum)
			c.Assert(err, IsNil)
			got, gotCompress, err := DeserializeData(ser, true)
			c.Assert(err, IsNil)
			c.Assert(gotCompress, Equals, compress)
			c.Assert(bytes.Equal(got, data), Equals, true)
		}
	}

	ser, err := SerializeData(data, Snappy, CRC32)
	c.Assert(err, IsNil)
	ser[len(ser)-1] ^= 0xff
	_, _, err = DeserializeData(ser, true)
	c.Assert(err, ErrorMatches, "Bad checksum.*")
}

func (s *DataSuite) TestOrientation(c *C) {
	n := axial.Normal()
	c.Assert(n.Z, Equals, 1.0)
	_, err := OrientationFromSlice([]float64{1, 0, 0})
	c.Assert(err, NotNil)
	c.Assert(ParseLogMode("warning"), Equals, WarningMode)
	c.Assert(ParseLogMode("bogus"), Equals, InfoMode)
}
