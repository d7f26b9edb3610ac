// Package geom classifies the orientation of segmentation frames relative to a source
// volume and realigns frame pixels that were stored flipped or rotated in-plane.
package geom

import (
	"fmt"
	"math"

	"github.com/janelia-flyem/dicomseg/seg"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultTolerance is the per-component tolerance used to compare direction cosines.
const DefaultTolerance = 1e-3

// Transform is an in-plane flip and/or rotation relating a frame's orientation to a
// reference orientation.  Flip names follow the direction cosine they negate: FlipH
// negates the column cosines and FlipV negates the row cosines.
type Transform uint8

const (
	Identity Transform = iota
	FlipH
	FlipV
	Rot90
	Rot90FlipH
	Rot90FlipV
	Rot180
	Rot270
	numTransforms
)

var transformNames = [numTransforms]string{
	"identity", "h-flip", "v-flip", "rot90", "rot90+h-flip", "rot90+v-flip", "rot180", "rot270",
}

func (t Transform) String() string {
	if t < numTransforms {
		return transformNames[t]
	}
	return fmt.Sprintf("transform(%d)", uint8(t))
}

// Rotated returns true if the transform swaps the rows and columns of a frame.
func (t Transform) Rotated() bool {
	switch t {
	case Rot90, Rot90FlipH, Rot90FlipV, Rot270:
		return true
	}
	return false
}

func flipH(o seg.Orientation) seg.Orientation {
	return seg.Orientation{o[0], o[1], o[2], -o[3], -o[4], -o[5]}
}

func flipV(o seg.Orientation) seg.Orientation {
	return seg.Orientation{-o[0], -o[1], -o[2], o[3], o[4], o[5]}
}

// rotateAround applies Rodrigues' rotation of v by theta about the unit vector k.
func rotateAround(v, k r3.Vec, theta float64) r3.Vec {
	cos, sin := math.Cos(theta), math.Sin(theta)
	rot := r3.Scale(cos, v)
	rot = r3.Add(rot, r3.Scale(sin, r3.Cross(k, v)))
	return r3.Add(rot, r3.Scale(r3.Dot(k, v)*(1-cos), k))
}

// rotateInPlane rotates both direction cosines about the plane normal.
func rotateInPlane(o seg.Orientation, theta float64) seg.Orientation {
	k := r3.Unit(o.Normal())
	return seg.NewOrientation(rotateAround(o.Row(), k, theta), rotateAround(o.Col(), k, theta))
}

// Candidates returns the 8 orientations reachable from ref by in-plane flips and
// rotations, indexed by Transform.
func Candidates(ref seg.Orientation) [8]seg.Orientation {
	var cands [8]seg.Orientation
	cands[Identity] = ref
	cands[FlipH] = flipH(ref)
	cands[FlipV] = flipV(ref)
	rot90 := rotateInPlane(ref, math.Pi/2)
	cands[Rot90] = rot90
	cands[Rot90FlipH] = flipH(rot90)
	cands[Rot90FlipV] = flipV(rot90)
	cands[Rot180] = rotateInPlane(ref, math.Pi)
	cands[Rot270] = rotateInPlane(ref, 1.5*math.Pi)
	return cands
}

// Equal compares all six components within the tolerance.
func Equal(a, b seg.Orientation, tolerance float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) >= tolerance {
			return false
		}
	}
	return true
}

// Match returns the transform whose candidate orientation equals o within tolerance.
func Match(o seg.Orientation, cands [8]seg.Orientation, tolerance float64) (Transform, bool) {
	for t, cand := range cands {
		if Equal(o, cand, tolerance) {
			return Transform(t), true
		}
	}
	return Identity, false
}

// IsPerpendicular returns true if the row cosines and the column cosines of a and b
// are each either parallel or orthogonal.
func IsPerpendicular(a, b seg.Orientation, tolerance float64) bool {
	dotRow := math.Abs(r3.Dot(a.Row(), b.Row()))
	dotCol := math.Abs(r3.Dot(a.Col(), b.Col()))
	aligned := func(d float64) bool {
		return d < tolerance || math.Abs(d-1) < tolerance
	}
	return aligned(dotRow) && aligned(dotCol)
}

// Classification describes how a segmentation plane relates to the source volume.
type Classification uint8

const (
	Planar Classification = iota
	Perpendicular
	Oblique
)

func (c Classification) String() string {
	switch c {
	case Planar:
		return "Planar"
	case Perpendicular:
		return "Perpendicular"
	default:
		return "Oblique"
	}
}

// Err returns nil for Planar and the matching sentinel error otherwise.
func (c Classification) Err() error {
	switch c {
	case Planar:
		return nil
	case Perpendicular:
		return seg.ErrPerpendicular
	default:
		return seg.ErrOblique
	}
}

// Classify determines whether a segmentation with orientation o and a rows x cols
// pixel grid lies in the plane of a source volume with orientation ref.  sourceDims
// holds the source volume extents (rows, columns, number of slices); a perpendicular
// segmentation only counts as Perpendicular if its grid fits those extents.
func Classify(o, ref seg.Orientation, rows, cols int, sourceDims []int, tolerance float64) Classification {
	if _, ok := Match(o, Candidates(ref), tolerance); ok {
		return Planar
	}
	if IsPerpendicular(o, ref, tolerance) && contains(sourceDims, rows) && contains(sourceDims, cols) {
		return Perpendicular
	}
	return Oblique
}

func contains(dims []int, n int) bool {
	for _, d := range dims {
		if d == n {
			return true
		}
	}
	return false
}
