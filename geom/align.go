package geom

// canonicalIndex maps frame voxel (fr, fc) of a frame stored with transform t to the
// (r, c) voxel of the canonical rows x cols grid.
func canonicalIndex(t Transform, fr, fc, rows, cols int) (r, c int) {
	switch t {
	case FlipH:
		return rows - 1 - fr, fc
	case FlipV:
		return fr, cols - 1 - fc
	case Rot180:
		return rows - 1 - fr, cols - 1 - fc
	case Rot90:
		return fc, cols - 1 - fr
	case Rot90FlipH:
		return fc, fr
	case Rot90FlipV:
		return rows - 1 - fc, cols - 1 - fr
	case Rot270:
		return rows - 1 - fc, fr
	default:
		return fr, fc
	}
}

// AlignedSize returns the canonical grid size of a frameRows x frameCols frame.
func AlignedSize(t Transform, frameRows, frameCols int) (rows, cols int) {
	if t.Rotated() {
		return frameCols, frameRows
	}
	return frameRows, frameCols
}

// Align undoes transform t on a frame of frameRows x frameCols voxels, returning the
// voxels in canonical orientation along with the canonical rows and columns.  For the
// identity transform the input is returned unchanged.
func Align(frame []byte, frameRows, frameCols int, t Transform) (out []byte, rows, cols int) {
	rows, cols = AlignedSize(t, frameRows, frameCols)
	if t == Identity {
		return frame, rows, cols
	}
	out = make([]byte, len(frame))
	for fr := 0; fr < frameRows; fr++ {
		src := frame[fr*frameCols : (fr+1)*frameCols]
		for fc, v := range src {
			if v == 0 {
				continue
			}
			r, c := canonicalIndex(t, fr, fc, rows, cols)
			out[r*cols+c] = v
		}
	}
	return out, rows, cols
}

// Orient is the inverse of Align: it lays out a canonical rows x cols image as a
// frame stored with transform t.
func Orient(canonical []byte, rows, cols int, t Transform) (frame []byte, frameRows, frameCols int) {
	frameRows, frameCols = AlignedSize(t, rows, cols)
	if t == Identity {
		return canonical, frameRows, frameCols
	}
	frame = make([]byte, len(canonical))
	for fr := 0; fr < frameRows; fr++ {
		for fc := 0; fc < frameCols; fc++ {
			r, c := canonicalIndex(t, fr, fc, rows, cols)
			frame[fr*frameCols+fc] = canonical[r*cols+c]
		}
	}
	return frame, frameRows, frameCols
}
