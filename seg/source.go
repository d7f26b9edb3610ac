package seg

import "fmt"

// SliceID is an opaque handle for one slice of a source volume, e.g., an image URL or
// a file path.  The codec never interprets it; it is only passed to a MetadataProvider.
type SliceID string

// SliceMetadata is the geometry and identity of a source slice.
type SliceMetadata struct {
	SOPInstanceUID      string
	SOPClassUID         string
	SeriesInstanceUID   string
	FrameOfReferenceUID string

	// FrameNumber is the 1-indexed frame within a multi-frame image, or 0.
	FrameNumber int

	Rows    int
	Columns int

	Orientation Orientation

	// Position is the ImagePositionPatient of the top left voxel, if known.
	Position *[3]float64

	// PixelSpacing is (row spacing, column spacing) in mm.
	PixelSpacing [2]float64
}

// MetadataProvider resolves slice handles to metadata.  It is supplied by the host;
// the codec never reads metadata from a network or disk itself.
type MetadataProvider interface {
	SliceMetadata(id SliceID) (*SliceMetadata, bool)
}

// MapProvider is a MetadataProvider backed by a map.
type MapProvider map[SliceID]*SliceMetadata

func (m MapProvider) SliceMetadata(id SliceID) (*SliceMetadata, bool) {
	meta, found := m[id]
	return meta, found
}

// SourceVolume is an ordered stack of source slices.  Slice index z of a labelmap
// corresponds to Slices[z].
type SourceVolume struct {
	Slices []SliceID
}

// Resolve looks up the metadata for every slice and checks that all slices share
// the same rows and columns.
func (v *SourceVolume) Resolve(provider MetadataProvider) ([]*SliceMetadata, error) {
	if v == nil || len(v.Slices) == 0 {
		return nil, ErrNoSourceSlices
	}
	metas := make([]*SliceMetadata, len(v.Slices))
	for z, id := range v.Slices {
		meta, found := provider.SliceMetadata(id)
		if !found || meta == nil {
			return nil, fmt.Errorf("no metadata for source slice %d (%s)", z, id)
		}
		if z > 0 && (meta.Rows != metas[0].Rows || meta.Columns != metas[0].Columns) {
			return nil, fmt.Errorf("%w: source slice %d is %d x %d, slice 0 is %d x %d", ErrGeometryMismatch,
				z, meta.Rows, meta.Columns, metas[0].Rows, metas[0].Columns)
		}
		metas[z] = meta
	}
	return metas, nil
}
