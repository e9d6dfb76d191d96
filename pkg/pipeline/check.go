package pipeline

import (
	"context"
	"io"
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/yolo-prep/pkg/annotation"
	"github.com/menta2k/yolo-prep/pkg/processing"
	"github.com/menta2k/yolo-prep/pkg/report"
	"github.com/menta2k/yolo-prep/pkg/types"
)

// checked is the per-pair result of the integrity and annotation checks
type checked struct {
	Pair    types.SourcePair
	Outcome report.FileOutcome
	Label   annotation.LabelFile
	Dims    types.Dimensions
}

// checker runs the image and label checks for many pairs on a bounded pool
type checker struct {
	fs        afero.Fs
	processor *processing.Processor
	validator *annotation.Validator
	workers   int
	progress  io.Writer
}

func defaultWorkers(n int) int {
	if n < 1 {
		return runtime.NumCPU()
	}
	return n
}

func newProgress(w io.Writer, total int, desc string) *progressbar.ProgressBar {
	if w == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("pairs"),
		progressbar.OptionClearOnFinish(),
	)
}

// run checks every pair. Each worker writes only its own slot, so the result is in
// input order regardless of completion order. Only cancellation is returned as an
// error; per-pair failures are outcomes.
func (c *checker) run(ctx context.Context, pairs []types.SourcePair, nc int, desc string) ([]checked, error) {
	results := make([]checked, len(pairs))
	bar := newProgress(c.progress, len(pairs), desc)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultWorkers(c.workers))
	for i, pair := range pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = c.checkPair(pair, nc)
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return results, nil
}

func (c *checker) checkPair(pair types.SourcePair, nc int) checked {
	canon, err := c.processor.Check(c.fs, pair.ImagePath)
	if err != nil {
		log.Debug().Err(err).Str("image", pair.ImagePath).Msg("corrupted image")
		return checked{Pair: pair, Outcome: report.ImageFailure(pair, err)}
	}

	lf := c.validator.ValidateFile(c.fs, pair.LabelPath, canon.Dimensions, nc)
	out := report.LabelOutcome(pair, lf, c.validator.Admit(lf))
	out.OriginalMode = canon.OriginalMode
	out.Converted = canon.Converted
	if !out.Valid {
		log.Debug().Str("label", pair.LabelPath).Strs("issues", lf.Messages()).Msg("invalid label file")
	}
	return checked{Pair: pair, Outcome: out, Label: lf, Dims: canon.Dimensions}
}
