/*
	Package sourcemap finds the source slice that each SEG frame overlays.
*/
package sourcemap

import (
	"math"

	"github.com/janelia-flyem/dicomseg/geom"
	"github.com/janelia-flyem/dicomseg/seg"
)

// instanceKey identifies a source image frame.  Frame is zero-indexed, or -1 for
// a single-frame image.
type instanceKey struct {
	uid   string
	frame int
}

// Mapper resolves SEG frames to slice indices of a source volume.
type Mapper struct {
	ds     *seg.Dataset
	slices []*seg.SliceMetadata
	tol    float64

	byInstance map[instanceKey]int

	// candidates are the slices eligible for geometric matching.
	candidates []int
}

// New returns a Mapper over the ordered source slices.  Positions are matched
// componentwise within tol.
func New(ds *seg.Dataset, slices []*seg.SliceMetadata, tol float64) *Mapper {
	if tol <= 0 {
		tol = geom.DefaultTolerance
	}
	m := &Mapper{
		ds:         ds,
		slices:     slices,
		tol:        tol,
		byInstance: make(map[instanceKey]int, len(slices)),
	}
	for z, meta := range slices {
		key := instanceKey{meta.SOPInstanceUID, meta.FrameNumber - 1}
		if _, dup := m.byInstance[key]; !dup {
			m.byInstance[key] = z
		}
		if meta.Position == nil {
			continue
		}
		if ds.FrameOfReferenceUID != "" && meta.FrameOfReferenceUID != ds.FrameOfReferenceUID {
			continue
		}
		if ds.ReferencedSeriesInstanceUID != "" && meta.SeriesInstanceUID != ds.ReferencedSeriesInstanceUID {
			continue
		}
		m.candidates = append(m.candidates, z)
	}
	return m
}

// Resolve returns the slice index for a SEG frame (0-indexed).  Explicit source
// image references are tried first: the top-level SourceImageSequence, then the
// frame's derivation image references, then the shared ones.  If none resolves,
// the frame's position is matched against the source slices.  Resolve returns
// false if the frame's source is not in the volume.
func (m *Mapper) Resolve(frame int) (int, bool) {
	ds := m.ds
	if frame < len(ds.SourceImages) {
		if z, found := m.lookup(ds.SourceImages[frame]); found {
			return z, true
		}
	}
	if frame < len(ds.PerFrame) {
		for _, ref := range ds.PerFrame[frame].SourceImages {
			if z, found := m.lookup(ref); found {
				return z, true
			}
		}
	}
	for _, ref := range ds.Shared.SourceImages {
		if z, found := m.lookup(ref); found {
			return z, true
		}
	}
	return m.matchPosition(frame)
}

func (m *Mapper) lookup(ref seg.ImageRef) (int, bool) {
	if ref.SOPInstanceUID == "" {
		return 0, false
	}
	if z, found := m.byInstance[instanceKey{ref.SOPInstanceUID, ref.FrameNumber - 1}]; found {
		return z, true
	}
	// A frame number of 1 may reference a single-frame image and vice versa.
	switch ref.FrameNumber {
	case 0:
		z, found := m.byInstance[instanceKey{ref.SOPInstanceUID, 0}]
		return z, found
	case 1:
		z, found := m.byInstance[instanceKey{ref.SOPInstanceUID, -1}]
		return z, found
	}
	return 0, false
}

func (m *Mapper) matchPosition(frame int) (int, bool) {
	var pos *[3]float64
	if frame < len(m.ds.PerFrame) {
		pos = m.ds.PerFrame[frame].Position
	}
	if pos == nil {
		pos = m.ds.Shared.Position
	}
	if pos == nil {
		return 0, false
	}
	for _, z := range m.candidates {
		if m.samePosition(*pos, *m.slices[z].Position) {
			return z, true
		}
	}
	return 0, false
}

func (m *Mapper) samePosition(a, b [3]float64) bool {
	for i := 0; i < 3; i++ {
		if math.Abs(a[i]-b[i]) >= m.tol {
			return false
		}
	}
	return true
}
