/*
Package dicomseg converts DICOM Segmentation (SEG) objects to and from labelmaps,
dense per-voxel volumes of segment numbers aligned with a stack of source images.

Packages

	seg        core types: datasets, labelmaps, source slices, errors, logging, serialization
	geom       orientation classification and in-plane frame alignment
	packing    bit-packing, chunked unpacking, DICOM RLE, and per-frame mask readers
	sourcemap  resolution of SEG frames to source slices
	overlap    overlap detection and splitting of segments into layers
	labelmap   the SEG to labelmap decoder
	builder    the labelmap to SEG encoder
	cache      deduplicated, compressed caching of decode results
	dicomio    reading and writing DICOM Part 10 files
	config     TOML and YAML configuration

The seginfo command in cmd/seginfo inspects, decodes and re-encodes SEG files.

Decoding

A decode resolves each frame to a source slice, checks that every frame lies in the
plane of the source volume, and writes each frame's mask into a labelmap.  When
segments overlap, later segments move to additional labelmaps so that no voxel of
any labelmap holds two segments:

	decoder, err := labelmap.NewDecoder("4.0.0", labelmap.Options{}, nil)
	if err != nil {
		return err
	}
	result, err := decoder.Decode(ctx, ds, volume, provider)

Encoding reverses this, OR-ing the layers of each segment into one frame per slice.
*/
package dicomseg
