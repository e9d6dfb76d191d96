package materializer

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/yolo-prep/internal/utils"
	"github.com/menta2k/yolo-prep/pkg/processing"
	"github.com/menta2k/yolo-prep/pkg/types"
)

// Item is one admitted pair ready to be written. Label, when non-nil, replaces
// the source label content (used when invalid lines were dropped).
type Item struct {
	Pair  types.SourcePair
	Label []byte
}

// Failure records a pair that could not be written
type Failure struct {
	Pair types.SourcePair
	Err  error
}

// Written summarizes one subset write
type Written struct {
	Subset   string
	Images   []string
	Failures []Failure
}

// Materializer writes subsets into the output layout:
//
//	<root>/images/<subset>/<image file>
//	<root>/labels/<subset>/<stem>.txt
type Materializer struct {
	fs        afero.Fs
	root      string
	processor *processing.Processor
	workers   int

	mu     sync.Mutex
	once   map[string]*sync.Once
	dirErr map[string]error
}

// New creates a materializer rooted at root
func New(fs afero.Fs, root string, processor *processing.Processor, workers int) *Materializer {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	if workers < 1 {
		workers = 1
	}
	return &Materializer{
		fs:        fs,
		root:      root,
		processor: processor,
		workers:   workers,
		once:      make(map[string]*sync.Once),
		dirErr:    make(map[string]error),
	}
}

// ImageDir returns the images directory of a subset
func (m *Materializer) ImageDir(subset string) string {
	return filepath.Join(m.root, "images", subset)
}

// LabelDir returns the labels directory of a subset
func (m *Materializer) LabelDir(subset string) string {
	return filepath.Join(m.root, "labels", subset)
}

// Prepare empties and recreates the subset directories, so files left by an
// earlier run never mix with this one. It runs at most once per subset; later
// calls return the first call's result.
func (m *Materializer) Prepare(subset string) error {
	m.mu.Lock()
	o, ok := m.once[subset]
	if !ok {
		o = new(sync.Once)
		m.once[subset] = o
	}
	m.mu.Unlock()

	o.Do(func() {
		var err error
		for _, dir := range []string{m.ImageDir(subset), m.LabelDir(subset)} {
			if err = m.fs.RemoveAll(dir); err != nil {
				err = errors.Wrapf(err, "failed to clear %s", dir)
				break
			}
			if err = utils.EnsureDir(m.fs, dir); err != nil {
				err = errors.Wrapf(err, "failed to create %s", dir)
				break
			}
		}
		m.mu.Lock()
		m.dirErr[subset] = err
		m.mu.Unlock()
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirErr[subset]
}

// Write materializes items into subset. Directory creation failing is returned as
// an error; a pair that fails to decode or write is recorded in Failures and the
// remaining pairs are still written. Images are re-decoded and saved in canonical
// colour form under their original file name; labels are copied verbatim unless
// the item carries replacement content.
func (m *Materializer) Write(ctx context.Context, subset string, items []Item) (*Written, error) {
	if err := m.Prepare(subset); err != nil {
		return nil, err
	}

	errs := make([]error, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, it := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = m.writePair(subset, it)
			return nil
		})
	}
	_ = g.Wait()

	out := &Written{Subset: subset}
	for i, it := range items {
		if errs[i] != nil {
			log.Warn().Err(errs[i]).Str("image", it.Pair.ImagePath).Str("subset", subset).Msg("failed to materialize pair")
			out.Failures = append(out.Failures, Failure{Pair: it.Pair, Err: errs[i]})
			continue
		}
		out.Images = append(out.Images, filepath.Base(it.Pair.ImagePath))
	}
	return out, nil
}

func (m *Materializer) writePair(subset string, it Item) error {
	canon, err := m.processor.Check(m.fs, it.Pair.ImagePath)
	if err != nil {
		return err
	}

	imgDst := filepath.Join(m.ImageDir(subset), filepath.Base(it.Pair.ImagePath))
	if err := m.processor.Save(m.fs, canon.Image, imgDst); err != nil {
		return err
	}

	lblDst := filepath.Join(m.LabelDir(subset), filepath.Base(it.Pair.LabelPath))
	if it.Label != nil {
		err = utils.WriteFileAtomic(m.fs, lblDst, it.Label, 0o644)
	} else {
		err = utils.CopyFile(m.fs, it.Pair.LabelPath, lblDst)
	}
	if err != nil {
		// keep the layout paired: no image without its label
		_ = m.fs.Remove(imgDst)
		return errors.Wrapf(err, "failed to write label for %s", it.Pair.Stem())
	}
	return nil
}
