package labelmap

import (
	"context"
	"fmt"
	"runtime"

	"github.com/blang/semver"

	"github.com/janelia-flyem/dicomseg/geom"
	"github.com/janelia-flyem/dicomseg/packing"
	"github.com/janelia-flyem/dicomseg/seg"
)

// DefaultChunkFraction is the fraction of all frames processed between progress
// reports and yields.
const DefaultChunkFraction = 0.1

// Options control a Decoder.  Zero fields take their defaults.
type Options struct {
	// Tolerance is the per-component tolerance for direction cosines and positions.
	Tolerance float64

	// ChunkFraction is the fraction of frames processed per chunk, in (0, 1].
	ChunkFraction float64

	// MaxBytesPerChunk bounds each chunk of unpacked pixel data.
	MaxBytesPerChunk int

	// Workers is the number of goroutines unpacking and aligning frames within a
	// chunk.  Writes into labelmaps are always sequential.
	Workers int

	// SkipOverlapCheck assumes segments never overlap and writes everything into
	// one labelmap.
	SkipOverlapCheck bool

	// Progress, if set, receives the percentage of frames processed after each chunk.
	Progress func(percent float64)

	// Yield is called between chunks.  A non-nil error stops the decode.  The
	// default yields the processor and returns the context's error.
	Yield func(ctx context.Context) error
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		Tolerance:        geom.DefaultTolerance,
		ChunkFraction:    DefaultChunkFraction,
		MaxBytesPerChunk: packing.DefaultMaxBytesPerChunk,
		Workers:          runtime.NumCPU(),
	}
}

func (opts Options) withDefaults() Options {
	def := DefaultOptions()
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	if opts.ChunkFraction <= 0 || opts.ChunkFraction > 1 {
		opts.ChunkFraction = def.ChunkFraction
	}
	if opts.MaxBytesPerChunk <= 0 {
		opts.MaxBytesPerChunk = def.MaxBytesPerChunk
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.Yield == nil {
		opts.Yield = yield
	}
	return opts
}

func yield(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}

func canceled(err error) error {
	return fmt.Errorf("%w: %v", seg.ErrCanceled, err)
}

// Variant is the decoding behavior of a segmentation tool version.
type Variant uint8

const (
	// SingleLayer writes all segments into one labelmap; overlapping voxels take
	// the segment of the last frame written.
	SingleLayer Variant = iota

	// OverlapSplitting moves overlapping segments into additional labelmaps.
	OverlapSplitting
)

func (v Variant) String() string {
	switch v {
	case SingleLayer:
		return "single layer"
	case OverlapSplitting:
		return "overlap splitting"
	default:
		return fmt.Sprintf("unknown variant %d", v)
	}
}

// CurrentVersion is the tool version assumed when none is given.
const CurrentVersion = "4.0.0"

var variantRanges = []struct {
	valid   semver.Range
	variant Variant
}{
	{semver.MustParseRange(">=4.0.0"), OverlapSplitting},
	{semver.MustParseRange(">=3.0.0 <4.0.0"), SingleLayer},
}

// SelectVariant returns the variant for a tool version such as "3.8" or "v4.1.0".
func SelectVariant(version string) (Variant, error) {
	if version == "" {
		version = CurrentVersion
	}
	v, err := semver.ParseTolerant(version)
	if err != nil {
		return 0, fmt.Errorf("bad tool version %q: %v", version, err)
	}
	for _, r := range variantRanges {
		if r.valid(v) {
			return r.variant, nil
		}
	}
	return 0, fmt.Errorf("tool version %s is not supported", v)
}
