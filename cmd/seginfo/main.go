// Command-line inspection of DICOM Segmentation files.
// Prints a summary, decodes into labelmaps given source images, and re-encodes.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/janelia-flyem/dicomseg/builder"
	"github.com/janelia-flyem/dicomseg/cache"
	"github.com/janelia-flyem/dicomseg/config"
	"github.com/janelia-flyem/dicomseg/dicomio"
	"github.com/janelia-flyem/dicomseg/labelmap"
	"github.com/janelia-flyem/dicomseg/seg"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// TOML or YAML configuration file.
	configFile = flag.String("config", "", "")

	// Re-encode the decoded labelmaps to this file.
	outFile = flag.String("out", "", "")

	// Re-encode with RLE Lossless frames.
	useRLE = flag.Bool("rle", false, "")

	// Tool version used to select the decoding variant.
	toolVersion = flag.String("version", "", "")
)

const helpMessage = `
seginfo inspects a DICOM Segmentation and decodes it into labelmaps

Usage: seginfo [options] <seg file> [source image files...]

      -config     =string   TOML or YAML configuration file.
      -out        =string   Re-encode the decoded labelmaps to this file.
      -version    =string   Tool version selecting the decode variant (default 4.0.0).
      -rle        (flag)    Re-encode using RLE Lossless instead of bit-packed frames.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Without source image files only the SEG summary is printed.  Source images are
ordered along their slice normal before decoding.
`

var usage = func() {
	fmt.Print(helpMessage)
}

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = usage
	flag.Parse()

	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadConfig(*configFile); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}
	if *runVerbose {
		cfg.Logging.Level = "debug"
	}
	cfg.Logging.SetLogger()
	defer seg.Shutdown()

	if *toolVersion != "" {
		cfg.Decode.ToolVersion = *toolVersion
	}
	if *useRLE {
		cfg.Encode.RLE = true
	}

	// Capture ctrl+c and other interrupts so a long decode stops between chunks.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, segPath string, sources []string) error {
	ds, err := dicomio.ReadFile(segPath)
	if err != nil {
		return err
	}
	printSummary(ds)
	if len(sources) == 0 {
		if *outFile != "" {
			return fmt.Errorf("source image files are required to re-encode")
		}
		return nil
	}

	provider, vol, err := dicomio.NewFileProvider(sources)
	if err != nil {
		return err
	}
	resultCache, err := cache.New(cfg.Cache)
	if err != nil {
		return err
	}
	opts := cfg.Decode.Options()
	opts.Progress = func(percent float64) {
		fmt.Printf("\rdecoding... %3.0f%%", percent)
	}
	decoder, err := labelmap.NewDecoder(cfg.Decode.ToolVersion, opts, resultCache)
	if err != nil {
		return err
	}
	result, err := decoder.Decode(ctx, ds, vol, provider)
	fmt.Println()
	if err != nil {
		return err
	}
	printResult(result, decoder.Variant())

	if *outFile == "" {
		return nil
	}
	metas, err := vol.Resolve(provider)
	if err != nil {
		return err
	}
	out, warnings, err := builder.Build(builder.Input{
		Labelmaps:        result.Labelmaps,
		SegmentsOnFrame:  result.SegmentsOnFrame,
		Segments:         result.Segments,
		Source:           metas,
		StudyInstanceUID: ds.StudyInstanceUID,
	}, builder.Options{
		RLE:               cfg.Encode.RLE,
		SeriesDescription: cfg.Encode.SeriesDescription,
		ContentLabel:      cfg.Encode.ContentLabel,
	})
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	return dicomio.WriteFile(*outFile, out)
}

func printSummary(ds *seg.Dataset) {
	fmt.Printf("SOP Instance UID:  %s\n", ds.SOPInstanceUID)
	fmt.Printf("Series:            %s (%d)\n", ds.SeriesDescription, ds.SeriesNumber)
	fmt.Printf("Segmentation type: %s\n", ds.SegmentationType)
	fmt.Printf("Encoding:          %s\n", ds.Encoding())
	fmt.Printf("Frames:            %d of %d x %d\n", ds.NumberOfFrames, ds.Rows, ds.Columns)
	if len(ds.PixelData) != 0 {
		fmt.Printf("Pixel data:        %s\n", seg.HumanBytes(len(ds.PixelData)))
	}
	fmt.Printf("Segments:\n")
	for _, s := range ds.Segments {
		var frames int
		for i := range ds.PerFrame {
			if ds.SegmentNumber(i) == s.Number {
				frames++
			}
		}
		fmt.Printf("  %3d  %-24s %d frames\n", s.Number, s.Label, frames)
	}
}

func printResult(result *labelmap.Result, variant labelmap.Variant) {
	fmt.Printf("Decoded with %s into %d labelmap(s), %s\n", variant, len(result.Labelmaps), seg.HumanBytes(result.Size()))
	if result.Overlapping {
		fmt.Printf("Segments overlap\n")
	}
	numbers := make([]int, 0, len(result.Centroids))
	for n := range result.Centroids {
		numbers = append(numbers, int(n))
	}
	sort.Ints(numbers)
	for _, n := range numbers {
		c := result.Centroids[uint16(n)]
		var world string
		if c.HasWorld {
			world = fmt.Sprintf(" at (%.2f, %.2f, %.2f) mm", c.World.X, c.World.Y, c.World.Z)
		}
		fmt.Printf("  %3d  %d voxels, centroid %s%s\n", n, c.Count, c.Voxel, world)
	}
	if len(result.Warnings) != 0 {
		lines := make([]string, len(result.Warnings))
		for i, w := range result.Warnings {
			lines[i] = "  warning: " + w.String()
		}
		fmt.Println(strings.Join(lines, "\n"))
	}
}
