/*
	Package packing converts SEG pixel data between its stored forms (1 bit per voxel,
	native 8-bit, and DICOM RLE Lossless) and unpacked voxel arrays holding one byte per
	voxel.  Large buffers can be unpacked in byte-budgeted chunks.
*/
package packing

// DICOM packs 1-bit pixel data little-endian: the first voxel is the least
// significant bit of the first byte.

// UnpackN unpacks the first n voxels of bit-packed data into one byte per voxel,
// each 0 or 1.
func UnpackN(packed []byte, n int) []byte {
	if max := len(packed) * 8; n > max {
		n = max
	}
	voxels := make([]byte, n)
	full := n / 8
	for i := 0; i < full; i++ {
		b := packed[i]
		v := voxels[i*8 : i*8+8]
		v[0] = b & 1
		v[1] = (b >> 1) & 1
		v[2] = (b >> 2) & 1
		v[3] = (b >> 3) & 1
		v[4] = (b >> 4) & 1
		v[5] = (b >> 5) & 1
		v[6] = (b >> 6) & 1
		v[7] = b >> 7
	}
	for i := full * 8; i < n; i++ {
		voxels[i] = (packed[i>>3] >> uint(i&7)) & 1
	}
	return voxels
}

// Unpack unpacks every bit of the packed data, returning 8 voxels per byte.
func Unpack(packed []byte) []byte {
	return UnpackN(packed, len(packed)*8)
}

// Pack bit-packs voxels, treating any non-zero voxel as set.  The final byte is
// zero padded.
func Pack(voxels []byte) []byte {
	packed := make([]byte, (len(voxels)+7)/8)
	for i, v := range voxels {
		if v != 0 {
			packed[i>>3] |= 1 << uint(i&7)
		}
	}
	return packed
}
