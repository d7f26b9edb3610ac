/*
	Package labelmap decodes DICOM segmentations into labelmaps over a source volume.

	Decoding validates the dataset, checks that the segmentation lies in the plane of
	the source volume, places every frame on a source slice, and writes the frames'
	set voxels into one or more labelmaps.  When segments overlap, the overlap
	splitting variant stacks additional labelmaps so that each voxel of each labelmap
	holds at most one segment.
*/
package labelmap

import (
	"context"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/dicomseg/cache"
	"github.com/janelia-flyem/dicomseg/geom"
	"github.com/janelia-flyem/dicomseg/overlap"
	"github.com/janelia-flyem/dicomseg/packing"
	"github.com/janelia-flyem/dicomseg/seg"
	"github.com/janelia-flyem/dicomseg/sourcemap"
)

// Decoder converts segmentation datasets to labelmaps.  A Decoder may be used
// concurrently.
type Decoder struct {
	variant Variant
	opts    Options
	cache   *cache.Cache
}

// NewDecoder returns a Decoder for segmentations written by the given tool version.
// If c is non-nil, results are cached by SOP Instance UID and concurrent decodes of
// the same segmentation share one decode.
func NewDecoder(version string, opts Options, c *cache.Cache) (*Decoder, error) {
	variant, err := SelectVariant(version)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		variant: variant,
		opts:    opts.withDefaults(),
		cache:   c,
	}, nil
}

// Variant returns the decoding variant selected at construction.
func (d *Decoder) Variant() Variant {
	return d.variant
}

// Decode converts ds into labelmaps over the source volume.  Unsupported
// orientations, non-binary fractional data and geometry mismatches return an error
// and no result.  Frames whose source slice is not in the volume are skipped and
// reported in Result.Warnings.
func (d *Decoder) Decode(ctx context.Context, ds *seg.Dataset, src *seg.SourceVolume, provider seg.MetadataProvider) (*Result, error) {
	if d.cache == nil || ds.SOPInstanceUID == "" {
		return d.decode(ctx, ds, src, provider)
	}
	slices, err := src.Resolve(provider)
	if err != nil {
		return d.decode(ctx, ds, src, provider)
	}
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}
	key := fmt.Sprintf("%s/%d/%016x", ds.SOPInstanceUID, d.variant, volumeDigest(slices))

	// The load is shared by every caller waiting on key.
	loadCtx := context.WithoutCancel(ctx)
	data, err := d.cache.Do(key, func() ([]byte, error) {
		result, err := d.decode(loadCtx, ds, src, provider)
		if err != nil {
			return nil, err
		}
		return result.MarshalBinary()
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}
	result := new(Result)
	if err := result.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return result, nil
}

// volumeDigest hashes the ordered instance and frame identities of the source slices.
func volumeDigest(slices []*seg.SliceMetadata) uint64 {
	h := xxhash.New()
	for _, meta := range slices {
		fmt.Fprintf(h, "%s#%d\n", meta.SOPInstanceUID, meta.FrameNumber)
	}
	return h.Sum64()
}

// job is the state of one decode.
type job struct {
	ctx        context.Context
	opts       Options
	ds         *seg.Dataset
	slices     []*seg.SliceMetadata
	transforms []geom.Transform
	reader     *packing.FrameReader
	layers     *overlap.Layers
	refs       []overlap.FrameRef
	warnings   []seg.Warning
}

func (j *job) warnf(frame int, segment uint16, format string, args ...interface{}) {
	j.warnings = append(j.warnings, seg.Warnf(frame, segment, format, args...))
}

// loadMask returns the canonically oriented mask of a frame.
func (j *job) loadMask(frame int) ([]byte, error) {
	raw, err := j.reader.Frame(frame)
	if err != nil {
		return nil, err
	}
	mask, _, _ := geom.Align(raw, j.ds.Rows, j.ds.Columns, j.transforms[frame])
	return mask, nil
}

func (d *Decoder) decode(ctx context.Context, ds *seg.Dataset, src *seg.SourceVolume, provider seg.MetadataProvider) (*Result, error) {
	timedLog := seg.NewTimeLog()
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	slices, err := src.Resolve(provider)
	if err != nil {
		return nil, err
	}
	j := &job{
		ctx:    ctx,
		opts:   d.opts,
		ds:     ds,
		slices: slices,
	}
	if err := j.checkGeometry(); err != nil {
		return nil, err
	}
	if j.reader, err = packing.NewFrameReader(ds, d.opts.MaxBytesPerChunk); err != nil {
		return nil, err
	}
	// Frames skipped later must still fail a non-binary fractional segmentation.
	if err := j.reader.CheckFractional(); err != nil {
		return nil, err
	}
	j.layers = overlap.NewLayers(slices[0].Rows, slices[0].Columns, len(slices))
	j.placeFrames()

	var overlapping bool
	if len(j.refs) > 1 && !d.opts.SkipOverlapCheck {
		overlapping, err = overlap.Detect(ctx, j.refs, j.layers.SliceSize(), j.loadMask)
		if err != nil {
			return nil, err
		}
	}
	switch {
	case overlapping && d.variant == OverlapSplitting:
		err = j.split()
	default:
		err = j.writeChunked()
		if overlapping {
			j.warnf(-1, 0, "overlapping segments flattened into one labelmap by the %s variant", d.variant)
		}
	}
	if err != nil {
		return nil, err
	}
	if d.opts.SkipOverlapCheck || (overlapping && d.variant != OverlapSplitting) {
		// overwritten segments may no longer be on a slice
		j.layers.SegmentsOnFrame[0] = seg.ComputeSegmentsOnFrame(j.layers.Labelmaps[0])
	}
	j.layers.Layer(0)

	result := &Result{
		Labelmaps:       j.layers.Labelmaps,
		SegmentsOnFrame: j.layers.SegmentsOnFrame,
		Segments:        ds.Segments,
		Centroids:       computeCentroids(j.layers.Labelmaps, slices),
		Overlapping:     overlapping,
	}
	for _, s := range ds.Segments {
		if _, found := result.Centroids[s.Number]; !found {
			j.warnf(-1, s.Number, "segment %q has no voxels in the source volume", s.Label)
		}
	}
	result.Warnings = j.warnings
	timedLog.Infof("Decoded %d frames of segmentation %s into %d labelmap(s), %s",
		ds.NumberOfFrames, ds.SOPInstanceUID, len(result.Labelmaps), seg.HumanBytes(result.Size()))
	return result, nil
}

// checkGeometry requires every frame to lie in the plane of the source volume and
// its realigned grid to match the source slices.
func (j *job) checkGeometry() error {
	ds, ref := j.ds, j.slices[0]
	if ds.NumberOfFrames == 0 {
		return nil
	}
	tol := j.opts.Tolerance
	first, _ := ds.FrameOrientation(0)
	dims := []int{ref.Rows, ref.Columns, len(j.slices)}
	if class := geom.Classify(first, ref.Orientation, ds.Rows, ds.Columns, dims, tol); class != geom.Planar {
		seg.Errorf("Segmentation orientation %s is %s to source orientation %s\n", first, class, ref.Orientation)
		return class.Err()
	}
	cands := geom.Candidates(ref.Orientation)
	j.transforms = make([]geom.Transform, ds.NumberOfFrames)
	for frame := range j.transforms {
		o, _ := ds.FrameOrientation(frame)
		t, ok := geom.Match(o, cands, tol)
		if !ok {
			return &seg.FrameError{Frame: frame, Err: seg.ErrFrameOutOfPlane}
		}
		rows, cols := geom.AlignedSize(t, ds.Rows, ds.Columns)
		if rows != ref.Rows || cols != ref.Columns {
			return &seg.FrameError{
				Frame: frame,
				Err: fmt.Errorf("%w: frame is %d x %d after %s alignment, source is %d x %d",
					seg.ErrGeometryMismatch, rows, cols, t, ref.Rows, ref.Columns),
			}
		}
		j.transforms[frame] = t
	}
	return nil
}

// placeFrames resolves the source slice of every frame, skipping frames that
// cannot be placed.
func (j *job) placeFrames() {
	mapper := sourcemap.New(j.ds, j.slices, j.opts.Tolerance)
	j.refs = make([]overlap.FrameRef, 0, j.ds.NumberOfFrames)
	for frame := 0; frame < j.ds.NumberOfFrames; frame++ {
		segment := j.ds.SegmentNumber(frame)
		z, found := mapper.Resolve(frame)
		if !found {
			j.warnf(frame, segment, "source image not found in the source volume, frame skipped")
			continue
		}
		j.refs = append(j.refs, overlap.FrameRef{Frame: frame, Segment: segment, Slice: z})
	}
}

func (j *job) chunkSize() int {
	n := int(math.Ceil(float64(len(j.refs)) * j.opts.ChunkFraction))
	if n < 1 {
		n = 1
	}
	return n
}

// endChunk reports progress and yields after done of the frames are written.
func (j *job) endChunk(done int) error {
	if j.opts.Progress != nil && len(j.refs) > 0 {
		j.opts.Progress(100 * float64(done) / float64(len(j.refs)))
	}
	if err := j.ctx.Err(); err != nil {
		return canceled(err)
	}
	if err := j.opts.Yield(j.ctx); err != nil {
		return canceled(err)
	}
	return nil
}

// writeChunked writes all frames into the first labelmap, one chunk at a time.
// Masks of a chunk are unpacked and aligned in parallel, then written in frame order.
func (j *job) writeChunked() error {
	j.layers.Layer(0)
	size := j.chunkSize()
	masks := make([][]byte, size)
	for beg := 0; beg < len(j.refs); beg += size {
		end := beg + size
		if end > len(j.refs) {
			end = len(j.refs)
		}
		chunk := j.refs[beg:end]

		var g errgroup.Group
		g.SetLimit(j.opts.Workers)
		for i, ref := range chunk {
			i, frame := i, ref.Frame
			g.Go(func() error {
				mask, err := j.loadMask(frame)
				masks[i] = mask
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for i, ref := range chunk {
			if _, err := j.layers.WriteFrame(0, ref, masks[i]); err != nil {
				return &seg.FrameError{Frame: ref.Frame, Err: err}
			}
			masks[i] = nil
		}
		if err := j.endChunk(end); err != nil {
			return err
		}
	}
	return nil
}

// split writes overlapping segments into as many labelmaps as needed.  Progress
// is reported and control yielded once at least a chunk of frames has been written.
func (j *job) split() error {
	size := j.chunkSize()
	var reported int
	return overlap.Split(j.ctx, j.refs, j.layers, j.loadMask, func(done int) error {
		if done-reported < size && done < len(j.refs) {
			return nil
		}
		reported = done
		return j.endChunk(done)
	})
}
