package seg

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Orientation holds the six direction cosines of an image plane: the row direction
// (the direction of increasing column index) followed by the column direction (the
// direction of increasing row index), as in DICOM ImageOrientationPatient.
// Orientations are values; derive new ones rather than modifying them.
type Orientation [6]float64

// NewOrientation returns an Orientation from a row and a column direction.
func NewOrientation(row, col r3.Vec) Orientation {
	return Orientation{row.X, row.Y, row.Z, col.X, col.Y, col.Z}
}

// OrientationFromSlice converts a parsed ImageOrientationPatient value.
func OrientationFromSlice(v []float64) (Orientation, error) {
	var o Orientation
	if len(v) != 6 {
		return o, fmt.Errorf("image orientation requires 6 values, got %d", len(v))
	}
	copy(o[:], v)
	return o, nil
}

// Row returns the row direction cosines.
func (o Orientation) Row() r3.Vec {
	return r3.Vec{X: o[0], Y: o[1], Z: o[2]}
}

// Col returns the column direction cosines.
func (o Orientation) Col() r3.Vec {
	return r3.Vec{X: o[3], Y: o[4], Z: o[5]}
}

// Normal returns row x column, the direction in which slices are stacked.
func (o Orientation) Normal() r3.Vec {
	return r3.Cross(o.Row(), o.Col())
}

func (o Orientation) String() string {
	return fmt.Sprintf("[%.4g,%.4g,%.4g,%.4g,%.4g,%.4g]", o[0], o[1], o[2], o[3], o[4], o[5])
}

// Point3d is an ordered list of three 32-bit signed integers, used for voxel coordinates.
type Point3d [3]int32

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// Vec converts a 3 float position to a vector.
func Vec(p [3]float64) r3.Vec {
	return r3.Vec{X: p[0], Y: p[1], Z: p[2]}
}
