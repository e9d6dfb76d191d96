package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/menta2k/yolo-prep/internal/utils"
	"github.com/menta2k/yolo-prep/pkg/analyzer"
	"github.com/menta2k/yolo-prep/pkg/annotation"
	"github.com/menta2k/yolo-prep/pkg/distribution"
	"github.com/menta2k/yolo-prep/pkg/manifest"
	"github.com/menta2k/yolo-prep/pkg/processing"
	"github.com/menta2k/yolo-prep/pkg/report"
	"github.com/menta2k/yolo-prep/pkg/scanner"
	"github.com/menta2k/yolo-prep/pkg/types"
)

// ValidateOptions configures a validation run
type ValidateOptions struct {
	Manifest     string
	Extensions   []string
	Workers      int
	MinBoxPixels float64
	MinImageSize int
	Progress     io.Writer
}

// ValidateResult is the outcome of validating a partitioned dataset
type ValidateResult struct {
	Config       *manifest.DatasetConfig  `json:"config"`
	Train        *report.ValidationReport `json:"train"`
	// Val is nil when the validation image directory does not exist
	Val          *report.ValidationReport `json:"val,omitempty"`
	Distribution distribution.Stats       `json:"distribution"`
	Tally        report.Tally             `json:"tally"`
	Images       analyzer.Summary         `json:"images"`
	Warnings     []string                 `json:"warnings,omitempty"`
	Passed       bool                     `json:"passed"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Validate checks an already-partitioned dataset described by a manifest. The
// training subset is required; the validation subset is checked when present.
// Class counts come from the admitted training labels only.
//
// The run passes when the training subset has images and neither subset has a
// corrupted image or an invalid label file. Missing labels and zero-count classes
// are reported without failing the run.
func Validate(ctx context.Context, fs afero.Fs, opts ValidateOptions) (*ValidateResult, error) {
	cfg, err := manifest.Load(fs, opts.Manifest)
	if err != nil {
		return nil, err
	}
	res := &ValidateResult{Config: cfg, StartedAt: time.Now()}

	if !utils.DirExists(fs, cfg.BasePath()) {
		return nil, errors.Wrapf(types.ErrSourceMissing, "base path %s", cfg.BasePath())
	}
	if !utils.DirExists(fs, cfg.TrainImages()) {
		return nil, errors.Wrapf(types.ErrTrainImagesMissing, "%s", cfg.TrainImages())
	}

	chk := &checker{
		fs:        fs,
		processor: processing.NewProcessor(),
		validator: &annotation.Validator{MinBoxPixels: opts.MinBoxPixels},
		workers:   opts.Workers,
		progress:  opts.Progress,
	}
	scan := scanner.New(fs, opts.Extensions)

	acc := distribution.NewAccumulator(cfg.NC)
	sizes := analyzer.NewWithMinSize(opts.MinImageSize)
	res.Train, err = validateSubset(ctx, scan, chk, types.SubsetTrain, cfg.TrainImages(), cfg.TrainLabels(), cfg.NC, acc, sizes)
	if err != nil {
		return nil, err
	}
	res.Distribution = acc.Stats()
	res.Tally.Merge(res.Train.Tally)

	if utils.DirExists(fs, cfg.ValImages()) {
		res.Val, err = validateSubset(ctx, scan, chk, types.SubsetVal, cfg.ValImages(), cfg.ValLabels(), cfg.NC, nil, sizes)
		if err != nil {
			return nil, err
		}
		res.Tally.Merge(res.Val.Tally)
		res.Tally.Val = res.Val.Tally.Valid
		if res.Val.Tally.Total == 0 {
			res.Warnings = append(res.Warnings, "No validation images found")
		}
	} else {
		res.Warnings = append(res.Warnings, "Validation images path does not exist: "+cfg.ValImages())
	}
	res.Tally.Train = res.Train.Tally.Valid
	res.Images = sizes.Summary()

	if cfg.NC != len(cfg.Names) {
		res.Warnings = append(res.Warnings, "nc does not match the number of names")
	}

	res.Passed = res.Train.Tally.Total > 0 &&
		res.Tally.InvalidLabels == 0 &&
		res.Tally.CorruptedImages == 0
	res.FinishedAt = time.Now()

	log.Info().Bool("passed", res.Passed).Int("train_images", res.Train.Tally.Total).
		Int("invalid_labels", res.Tally.InvalidLabels).Msg("validation finished")
	return res, nil
}

// validateSubset checks one image/label directory pair. When acc is non-nil the
// records of admitted label files are folded into it, in input order. Every
// decodable image is added to sizes.
func validateSubset(ctx context.Context, scan *scanner.Scanner, chk *checker, subset, imageDir, labelDir string, nc int, acc *distribution.Accumulator, sizes *analyzer.SizeAnalyzer) (*report.ValidationReport, error) {
	found, err := scan.Scan(imageDir, labelDir)
	if err != nil {
		return nil, err
	}

	rep := report.NewValidationReport(subset)
	rep.ImageDir = imageDir
	rep.LabelDir = labelDir
	for _, m := range found.MissingLabels {
		rep.AddMissing(m)
	}

	results, err := chk.run(ctx, found.Pairs, nc, "validating "+subset)
	if err != nil {
		return nil, errors.Wrap(err, "validation interrupted")
	}
	for _, r := range results {
		rep.Add(r.Outcome)
		sizes.Add(r.Dims)
		if r.Outcome.Valid && acc != nil {
			acc.AddFile(r.Label)
		}
	}
	return rep, nil
}
