package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/menta2k/yolo-prep/pkg/analyzer"
	"github.com/menta2k/yolo-prep/pkg/annotation"
	"github.com/menta2k/yolo-prep/pkg/distribution"
	"github.com/menta2k/yolo-prep/pkg/manifest"
	"github.com/menta2k/yolo-prep/pkg/materializer"
	"github.com/menta2k/yolo-prep/pkg/processing"
	"github.com/menta2k/yolo-prep/pkg/registry"
	"github.com/menta2k/yolo-prep/pkg/report"
	"github.com/menta2k/yolo-prep/pkg/scanner"
	"github.com/menta2k/yolo-prep/pkg/splitter"
	"github.com/menta2k/yolo-prep/pkg/types"
)

// PreprocessOptions configures a preprocessing run
type PreprocessOptions struct {
	Source     string
	Output     string
	TrainRatio float64
	Seed       int64
	Extensions []string
	Workers    int

	Quality          int
	WebPLossless     bool
	DropInvalidLines bool
	MinBoxPixels     float64
	MinImageSize     int

	// Progress receives progress bars when non-nil
	Progress io.Writer
}

// PreprocessResult is everything a preprocessing run produced
type PreprocessResult struct {
	Source     string  `json:"source"`
	Output     string  `json:"output"`
	Seed       int64   `json:"seed"`
	TrainRatio float64 `json:"train_ratio"`

	Report   *report.ValidationReport `json:"report"`
	Tally    report.Tally             `json:"tally"`
	Train    []string                 `json:"train"`
	Val      []string                 `json:"val"`
	Failures []report.FileOutcome     `json:"write_failures,omitempty"`
	Images   analyzer.Summary         `json:"images"`

	Registry    *registry.Registry  `json:"registry"`
	ClassesFile string              `json:"classes_file,omitempty"`
	Manifest    string              `json:"manifest,omitempty"`
	TrainStats  *distribution.Stats `json:"train_distribution,omitempty"`
	ValStats    *distribution.Stats `json:"val_distribution,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Preprocess scans the source directory, checks every pair, splits the admitted
// pairs and materializes them under the output directory together with
// classes.txt and data.yaml.
//
// Fatal conditions are returned as errors wrapping the types sentinels. When no
// pair survives the checks the partial result is returned alongside
// types.ErrNoValidPairs so the caller can report what was rejected.
func Preprocess(ctx context.Context, fs afero.Fs, opts PreprocessOptions) (*PreprocessResult, error) {
	if err := splitter.ValidateRatio(opts.TrainRatio); err != nil {
		return nil, err
	}

	res := &PreprocessResult{
		Source:     opts.Source,
		Output:     opts.Output,
		Seed:       opts.Seed,
		TrainRatio: opts.TrainRatio,
		StartedAt:  time.Now(),
	}

	scan, err := scanner.New(fs, opts.Extensions).Scan(opts.Source, "")
	if err != nil {
		return nil, err
	}
	log.Info().Int("pairs", len(scan.Pairs)).Int("missing_labels", len(scan.MissingLabels)).
		Str("source", opts.Source).Msg("scanned source directory")

	// Resolved before the checks: an explicit class list bounds the class ids.
	reg := registry.Resolve(fs, registry.Detect(fs, opts.Source))
	res.Registry = reg
	nc := annotation.NoClassLimit
	if reg.Origin == registry.OriginExplicit {
		nc = reg.NC()
		if nc == 0 {
			log.Warn().Msg("class manifest lists no classes; every label will be rejected")
		}
	}

	rep := report.NewValidationReport("source")
	rep.ImageDir = opts.Source
	rep.LabelDir = opts.Source
	for _, m := range scan.MissingLabels {
		rep.AddMissing(m)
	}
	res.Report = rep

	if len(scan.Pairs) == 0 {
		res.Tally = rep.Tally
		return res, errors.Wrap(types.ErrNoValidPairs, "no image has a matching label file")
	}

	processor := &processing.Processor{Quality: opts.Quality, WebPLossless: opts.WebPLossless}
	validator := &annotation.Validator{DropInvalidLines: opts.DropInvalidLines, MinBoxPixels: opts.MinBoxPixels}
	chk := &checker{fs: fs, processor: processor, validator: validator, workers: opts.Workers, progress: opts.Progress}

	results, err := chk.run(ctx, scan.Pairs, nc, "checking")
	if err != nil {
		return nil, errors.Wrap(err, "check interrupted")
	}

	admitted := make([]types.SourcePair, 0, len(results))
	labels := make(map[string][]byte)
	sizes := analyzer.NewWithMinSize(opts.MinImageSize)
	for _, r := range results {
		rep.Add(r.Outcome)
		if !r.Outcome.Valid {
			continue
		}
		admitted = append(admitted, r.Pair)
		sizes.Add(r.Dims)
		if r.Outcome.Dropped > 0 {
			labels[r.Pair.ImagePath] = annotation.CleanContent(r.Label)
		}
	}
	res.Tally = rep.Tally
	res.Images = sizes.Summary()

	if len(admitted) == 0 {
		return res, errors.Wrap(types.ErrNoValidPairs, "every pair failed validation")
	}

	split, err := splitter.Split(admitted, opts.TrainRatio, opts.Seed)
	if err != nil {
		return nil, err
	}
	log.Info().Int("train", len(split.Train)).Int("val", len(split.Val)).Int64("seed", opts.Seed).Msg("split dataset")

	mat := materializer.New(fs, opts.Output, processor, defaultWorkers(opts.Workers))
	for _, subset := range []struct {
		name  string
		pairs []types.SourcePair
		dst   *[]string
		count *int
	}{
		{types.SubsetTrain, split.Train, &res.Train, &res.Tally.Train},
		{types.SubsetVal, split.Val, &res.Val, &res.Tally.Val},
	} {
		items := make([]materializer.Item, len(subset.pairs))
		for i, p := range subset.pairs {
			items[i] = materializer.Item{Pair: p, Label: labels[p.ImagePath]}
		}
		written, err := mat.Write(ctx, subset.name, items)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "materialization interrupted")
		}
		*subset.dst = written.Images
		*subset.count = len(written.Images)
		for _, f := range written.Failures {
			res.Tally.WriteFailures++
			res.Failures = append(res.Failures, report.FileOutcome{
				Image:  f.Pair.ImagePath,
				Label:  f.Pair.LabelPath,
				Errors: []string{f.Err.Error()},
			})
		}
	}

	if ok, err := reg.Persist(fs, opts.Output); err != nil {
		log.Warn().Err(err).Msg("failed to persist class registry")
	} else if ok {
		res.ClassesFile = filepath.Join(opts.Output, registry.ClassesFile)
	} else {
		log.Warn().Msg("no classes could be determined; create classes.txt manually")
	}
	if gaps := reg.Gaps(); len(gaps) > 0 {
		log.Warn().Ints("ids", gaps).Msg("class ids never observed in any label file")
	}

	if res.Manifest, err = manifest.Write(fs, opts.Output, manifest.ForOutput(opts.Output, reg.Names)); err != nil {
		log.Warn().Err(err).Msg("failed to write dataset manifest")
	}

	for _, s := range []struct {
		dir string
		dst **distribution.Stats
	}{
		{mat.LabelDir(types.SubsetTrain), &res.TrainStats},
		{mat.LabelDir(types.SubsetVal), &res.ValStats},
	} {
		acc, err := distribution.CountDir(fs, s.dir, reg.NC())
		if err != nil {
			log.Warn().Err(err).Str("dir", s.dir).Msg("failed to count class distribution")
			continue
		}
		if n := acc.Ignored(); n > 0 {
			log.Debug().Int("ignored", n).Str("dir", s.dir).Msg("class ids outside the registry")
		}
		stats := acc.Stats()
		*s.dst = &stats
	}

	res.FinishedAt = time.Now()
	return res, nil
}
