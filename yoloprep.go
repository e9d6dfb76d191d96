// Package yoloprep prepares and validates YOLO object-detection datasets.
//
// It verifies that every image decodes and that every label file follows the YOLO
// format (one "class cx cy w h" line per object, normalized to [0,1]), splits the
// admitted pairs into train and val subsets reproducibly from a seed, writes the
// canonical images/{train,val} and labels/{train,val} layout and reports how the
// classes are distributed.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		yoloprep "github.com/menta2k/yolo-prep"
//	)
//
//	func main() {
//		prep := yoloprep.New()
//
//		res, err := prep.Preprocess(context.Background(), yoloprep.PreprocessOptions{
//			Source:     "raw",
//			Output:     "dataset",
//			TrainRatio: 0.8,
//			Seed:       42,
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("train=%d val=%d\n", len(res.Train), len(res.Val))
//
//		v, err := prep.Validate(context.Background(), yoloprep.ValidateOptions{Manifest: res.Manifest})
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println("passed:", v.Passed)
//	}
//
// The package consists of these main components:
//
//  1. Scanner (pkg/scanner): pairs images with label files by stem
//  2. Processing (pkg/processing): decodes images and normalizes their colour mode
//  3. Annotation (pkg/annotation): validates label files line by line
//  4. Splitter (pkg/splitter): seeded, order-independent train/val split
//  5. Materializer (pkg/materializer): writes the output layout
//  6. Registry, Manifest and Distribution: classes.txt, data.yaml and class statistics
//
// Both entry points are also available as the yolo-prep and yolo-validate commands.
package yoloprep

import (
	"context"

	"github.com/spf13/afero"

	"github.com/menta2k/yolo-prep/internal/config"
	"github.com/menta2k/yolo-prep/pkg/annotation"
	"github.com/menta2k/yolo-prep/pkg/pipeline"
	"github.com/menta2k/yolo-prep/pkg/processing"
	"github.com/menta2k/yolo-prep/pkg/types"
)

// Version of the yolo-prep library
const Version = "1.0.0"

// Option and result types of the two entry points
type (
	PreprocessOptions = pipeline.PreprocessOptions
	PreprocessResult  = pipeline.PreprocessResult
	ValidateOptions   = pipeline.ValidateOptions
	ValidateResult    = pipeline.ValidateResult
)

// Preparer provides a high-level interface over one filesystem
type Preparer struct {
	fs        afero.Fs
	processor *processing.Processor
	validator *annotation.Validator
}

// New creates a Preparer on the host filesystem
func New() *Preparer {
	return NewWithFs(afero.NewOsFs())
}

// NewWithFs creates a Preparer on fs
func NewWithFs(fs afero.Fs) *Preparer {
	return &Preparer{
		fs:        fs,
		processor: processing.NewProcessor(),
		validator: annotation.NewValidator(),
	}
}

// Preprocess scans, checks, splits and materializes a flat source directory
func (p *Preparer) Preprocess(ctx context.Context, opts PreprocessOptions) (*PreprocessResult, error) {
	return pipeline.Preprocess(ctx, p.fs, opts)
}

// Validate checks a partitioned dataset described by a data.yaml manifest
func (p *Preparer) Validate(ctx context.Context, opts ValidateOptions) (*ValidateResult, error) {
	return pipeline.Validate(ctx, p.fs, opts)
}

// CheckImage fully decodes the image at path and returns its pixel size
func (p *Preparer) CheckImage(path string) (types.Dimensions, error) {
	c, err := p.processor.Check(p.fs, path)
	if err != nil {
		return types.Dimensions{}, err
	}
	return c.Dimensions, nil
}

// ValidateLabels checks one label file. dims may be zero when the image size is
// unknown. Pass annotation.NoClassLimit as nc when the class count is unknown.
func (p *Preparer) ValidateLabels(path string, dims types.Dimensions, nc int) annotation.LabelFile {
	return p.validator.ValidateFile(p.fs, path, dims, nc)
}

// PreprocessOptionsFromConfig fills preprocessing options from a run configuration
func PreprocessOptionsFromConfig(cfg *config.Config, source, output string) PreprocessOptions {
	return PreprocessOptions{
		Source:           source,
		Output:           output,
		TrainRatio:       cfg.Dataset.TrainRatio,
		Seed:             cfg.Dataset.Seed,
		Extensions:       cfg.Dataset.ImageExtensions,
		Workers:          cfg.Runtime.Workers,
		Quality:          cfg.Output.Quality,
		WebPLossless:     cfg.Output.WebPLossless,
		DropInvalidLines: cfg.Checks.DropInvalidLines,
		MinBoxPixels:     cfg.Checks.MinBoxPixels,
		MinImageSize:     cfg.Checks.MinImageSize,
	}
}

// ValidateOptionsFromConfig fills validation options from a run configuration
func ValidateOptionsFromConfig(cfg *config.Config, manifestPath string) ValidateOptions {
	return ValidateOptions{
		Manifest:     manifestPath,
		Extensions:   cfg.Dataset.ImageExtensions,
		Workers:      cfg.Runtime.Workers,
		MinBoxPixels: cfg.Checks.MinBoxPixels,
		MinImageSize: cfg.Checks.MinImageSize,
	}
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
