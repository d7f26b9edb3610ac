package labelmap

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/DmitriyVTitov/size"
	"github.com/tinylib/msgp/msgp"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/janelia-flyem/dicomseg/seg"
)

// Centroid is the mean voxel position of a segment, floored to voxel coordinates.
type Centroid struct {
	Voxel seg.Point3d

	// World is the patient coordinate of Voxel.  It is only valid if HasWorld is
	// true, which requires the position of the centroid's slice.
	World    r3.Vec
	HasWorld bool

	// Count is the number of voxels of the segment.
	Count int64
}

// Result is the output of a decode.
type Result struct {
	// Labelmaps holds one labelmap, or more if segments overlap.  Segments never
	// overlap within a labelmap.
	Labelmaps []*seg.Labelmap

	// SegmentsOnFrame[m] lists the segments present on each slice of Labelmaps[m].
	SegmentsOnFrame []seg.SegmentsOnFrame

	Segments []seg.Segment

	// Centroids has an entry for every segment with at least one voxel.
	Centroids map[uint16]Centroid

	Overlapping bool
	Warnings    []seg.Warning
}

// LayersOf returns the indices of the labelmaps holding a segment on a slice.
func (r *Result) LayersOf(slice int, segment uint16) []int {
	var layers []int
	for m, s := range r.SegmentsOnFrame {
		if s.Has(slice, segment) {
			layers = append(layers, m)
		}
	}
	return layers
}

// Size returns the approximate memory used by the result.
func (r *Result) Size() int {
	return size.Of(r)
}

type centroidSum struct {
	x, y, z int64
	count   int64
}

// computeCentroids averages the voxel coordinates of each segment over all labelmaps.
func computeCentroids(labelmaps []*seg.Labelmap, slices []*seg.SliceMetadata) map[uint16]Centroid {
	sums := make(map[uint16]*centroidSum)
	for _, lm := range labelmaps {
		for z := 0; z < lm.Slices; z++ {
			voxels := lm.Slice(z)
			for i, v := range voxels {
				if v == 0 {
					continue
				}
				sum, found := sums[v]
				if !found {
					sum = new(centroidSum)
					sums[v] = sum
				}
				sum.x += int64(i % lm.Columns)
				sum.y += int64(i / lm.Columns)
				sum.z += int64(z)
				sum.count++
			}
		}
	}
	centroids := make(map[uint16]Centroid, len(sums))
	for segment, sum := range sums {
		c := Centroid{
			Voxel: seg.Point3d{int32(sum.x / sum.count), int32(sum.y / sum.count), int32(sum.z / sum.count)},
			Count: sum.count,
		}
		if z := int(c.Voxel[2]); z < len(slices) && slices[z].Position != nil {
			c.World = worldPosition(slices[z], c.Voxel)
			c.HasWorld = true
		}
		centroids[segment] = c
	}
	return centroids
}

// worldPosition converts voxel (x, y) of a slice to patient coordinates.
func worldPosition(meta *seg.SliceMetadata, p seg.Point3d) r3.Vec {
	o := meta.Orientation
	pos := seg.Vec(*meta.Position)
	pos = r3.Add(pos, r3.Scale(float64(p[0])*meta.PixelSpacing[1], o.Row()))
	return r3.Add(pos, r3.Scale(float64(p[1])*meta.PixelSpacing[0], o.Col()))
}

// --- msgpack encoding of results for caching ---

const resultFields = 6

// MarshalBinary implements encoding.BinaryMarshaler.
func (r *Result) MarshalBinary() ([]byte, error) {
	return r.MarshalMsg(nil)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *Result) UnmarshalBinary(data []byte) error {
	_, err := r.UnmarshalMsg(data)
	return err
}

// MarshalMsg implements msgp.Marshaler
func (r *Result) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.AppendArrayHeader(b, resultFields)

	o = msgp.AppendArrayHeader(o, uint32(len(r.Labelmaps)))
	for _, lm := range r.Labelmaps {
		o = msgp.AppendArrayHeader(o, 4)
		o = msgp.AppendInt(o, lm.Rows)
		o = msgp.AppendInt(o, lm.Columns)
		o = msgp.AppendInt(o, lm.Slices)
		buf := make([]byte, 2*len(lm.Data))
		for i, v := range lm.Data {
			binary.LittleEndian.PutUint16(buf[2*i:], v)
		}
		o = msgp.AppendBytes(o, buf)
	}

	o = msgp.AppendArrayHeader(o, uint32(len(r.SegmentsOnFrame)))
	for _, s := range r.SegmentsOnFrame {
		o = msgp.AppendMapHeader(o, uint32(len(s)))
		for _, z := range s.SortedSlices() {
			o = msgp.AppendInt(o, z)
			o = msgp.AppendArrayHeader(o, uint32(len(s[z])))
			for _, segment := range s[z] {
				o = msgp.AppendUint16(o, segment)
			}
		}
	}

	o = msgp.AppendArrayHeader(o, uint32(len(r.Segments)))
	for _, s := range r.Segments {
		o = msgp.AppendArrayHeader(o, 7)
		o = msgp.AppendUint16(o, s.Number)
		o = msgp.AppendString(o, s.Label)
		o = msgp.AppendString(o, s.Description)
		o = msgp.AppendString(o, s.AlgorithmType)
		for _, c := range s.DisplayColor {
			o = msgp.AppendUint16(o, c)
		}
	}

	numbers := make([]int, 0, len(r.Centroids))
	for n := range r.Centroids {
		numbers = append(numbers, int(n))
	}
	sort.Ints(numbers)
	o = msgp.AppendMapHeader(o, uint32(len(numbers)))
	for _, n := range numbers {
		c := r.Centroids[uint16(n)]
		o = msgp.AppendUint16(o, uint16(n))
		o = msgp.AppendArrayHeader(o, 8)
		for _, v := range c.Voxel {
			o = msgp.AppendInt32(o, v)
		}
		o = msgp.AppendFloat64(o, c.World.X)
		o = msgp.AppendFloat64(o, c.World.Y)
		o = msgp.AppendFloat64(o, c.World.Z)
		o = msgp.AppendBool(o, c.HasWorld)
		o = msgp.AppendInt64(o, c.Count)
	}

	o = msgp.AppendBool(o, r.Overlapping)

	o = msgp.AppendArrayHeader(o, uint32(len(r.Warnings)))
	for _, w := range r.Warnings {
		o = msgp.AppendArrayHeader(o, 3)
		o = msgp.AppendInt(o, w.Frame)
		o = msgp.AppendUint16(o, w.Segment)
		o = msgp.AppendString(o, w.Message)
	}
	return
}

func readArrayHeader(bts []byte, wanted uint32) ([]byte, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	if sz != wanted {
		return bts, msgp.ArrayError{Wanted: wanted, Got: sz}
	}
	return bts, nil
}

// UnmarshalMsg implements msgp.Unmarshaler
func (r *Result) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var sz uint32
	if bts, err = readArrayHeader(bts, resultFields); err != nil {
		return
	}

	if sz, bts, err = msgp.ReadArrayHeaderBytes(bts); err != nil {
		return
	}
	r.Labelmaps = make([]*seg.Labelmap, sz)
	for i := range r.Labelmaps {
		lm := new(seg.Labelmap)
		if bts, err = readArrayHeader(bts, 4); err != nil {
			return
		}
		if lm.Rows, bts, err = msgp.ReadIntBytes(bts); err != nil {
			return
		}
		if lm.Columns, bts, err = msgp.ReadIntBytes(bts); err != nil {
			return
		}
		if lm.Slices, bts, err = msgp.ReadIntBytes(bts); err != nil {
			return
		}
		var buf []byte
		if buf, bts, err = msgp.ReadBytesZC(bts); err != nil {
			return
		}
		if len(buf) != 2*lm.Rows*lm.Columns*lm.Slices {
			err = fmt.Errorf("labelmap %d has %d bytes, expected %d x %d x %d voxels", i, len(buf), lm.Columns, lm.Rows, lm.Slices)
			return
		}
		lm.Data = make([]uint16, len(buf)/2)
		for v := range lm.Data {
			lm.Data[v] = binary.LittleEndian.Uint16(buf[2*v:])
		}
		r.Labelmaps[i] = lm
	}

	if sz, bts, err = msgp.ReadArrayHeaderBytes(bts); err != nil {
		return
	}
	r.SegmentsOnFrame = make([]seg.SegmentsOnFrame, sz)
	for i := range r.SegmentsOnFrame {
		var nslices uint32
		if nslices, bts, err = msgp.ReadMapHeaderBytes(bts); err != nil {
			return
		}
		s := make(seg.SegmentsOnFrame, nslices)
		for ; nslices > 0; nslices-- {
			var z int
			if z, bts, err = msgp.ReadIntBytes(bts); err != nil {
				return
			}
			var nsegs uint32
			if nsegs, bts, err = msgp.ReadArrayHeaderBytes(bts); err != nil {
				return
			}
			segs := make([]uint16, nsegs)
			for k := range segs {
				if segs[k], bts, err = msgp.ReadUint16Bytes(bts); err != nil {
					return
				}
			}
			s[z] = segs
		}
		r.SegmentsOnFrame[i] = s
	}

	if sz, bts, err = msgp.ReadArrayHeaderBytes(bts); err != nil {
		return
	}
	r.Segments = make([]seg.Segment, sz)
	for i := range r.Segments {
		s := &r.Segments[i]
		if bts, err = readArrayHeader(bts, 7); err != nil {
			return
		}
		if s.Number, bts, err = msgp.ReadUint16Bytes(bts); err != nil {
			return
		}
		if s.Label, bts, err = msgp.ReadStringBytes(bts); err != nil {
			return
		}
		if s.Description, bts, err = msgp.ReadStringBytes(bts); err != nil {
			return
		}
		if s.AlgorithmType, bts, err = msgp.ReadStringBytes(bts); err != nil {
			return
		}
		for k := range s.DisplayColor {
			if s.DisplayColor[k], bts, err = msgp.ReadUint16Bytes(bts); err != nil {
				return
			}
		}
	}

	if sz, bts, err = msgp.ReadMapHeaderBytes(bts); err != nil {
		return
	}
	r.Centroids = make(map[uint16]Centroid, sz)
	for ; sz > 0; sz-- {
		var n uint16
		if n, bts, err = msgp.ReadUint16Bytes(bts); err != nil {
			return
		}
		var c Centroid
		if bts, err = readArrayHeader(bts, 8); err != nil {
			return
		}
		for k := range c.Voxel {
			if c.Voxel[k], bts, err = msgp.ReadInt32Bytes(bts); err != nil {
				return
			}
		}
		if c.World.X, bts, err = msgp.ReadFloat64Bytes(bts); err != nil {
			return
		}
		if c.World.Y, bts, err = msgp.ReadFloat64Bytes(bts); err != nil {
			return
		}
		if c.World.Z, bts, err = msgp.ReadFloat64Bytes(bts); err != nil {
			return
		}
		if c.HasWorld, bts, err = msgp.ReadBoolBytes(bts); err != nil {
			return
		}
		if c.Count, bts, err = msgp.ReadInt64Bytes(bts); err != nil {
			return
		}
		r.Centroids[n] = c
	}

	if r.Overlapping, bts, err = msgp.ReadBoolBytes(bts); err != nil {
		return
	}

	if sz, bts, err = msgp.ReadArrayHeaderBytes(bts); err != nil {
		return
	}
	r.Warnings = make([]seg.Warning, sz)
	for i := range r.Warnings {
		w := &r.Warnings[i]
		if bts, err = readArrayHeader(bts, 3); err != nil {
			return
		}
		if w.Frame, bts, err = msgp.ReadIntBytes(bts); err != nil {
			return
		}
		if w.Segment, bts, err = msgp.ReadUint16Bytes(bts); err != nil {
			return
		}
		if w.Message, bts, err = msgp.ReadStringBytes(bts); err != nil {
			return
		}
	}
	o = bts
	return
}
