package scanner

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/menta2k/yolo-prep/internal/utils"
	"github.com/menta2k/yolo-prep/pkg/types"
)

// Result holds the pairs found in a directory plus the images that had no label
type Result struct {
	Pairs         []types.SourcePair
	MissingLabels []string
}

// Scanner pairs image files with YOLO label files by stem
type Scanner struct {
	fs   afero.Fs
	exts []string
}

// New creates a scanner over fs recognizing the given image extensions.
// A nil or empty extension list means utils.DefaultImageExtensions.
func New(fs afero.Fs, exts []string) *Scanner {
	if len(exts) == 0 {
		exts = utils.DefaultImageExtensions
	}
	return &Scanner{fs: fs, exts: exts}
}

// Scan lists imageDir and pairs every recognized image with <stem>.txt in labelDir.
// When labelDir is empty the labels are expected next to the images.
// Pairs and missing labels are sorted by image path.
func (s *Scanner) Scan(imageDir, labelDir string) (*Result, error) {
	if !utils.DirExists(s.fs, imageDir) {
		return nil, errors.Wrap(types.ErrSourceMissing, imageDir)
	}
	if labelDir == "" {
		labelDir = imageDir
	}

	images, err := utils.ListImageFiles(s.fs, imageDir, s.exts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", imageDir)
	}

	res := &Result{}
	for _, img := range images {
		label := utils.LabelPathFor(img, labelDir)
		if !utils.FileExists(s.fs, label) {
			log.Debug().Str("image", img).Msg("no matching label file")
			res.MissingLabels = append(res.MissingLabels, img)
			continue
		}
		res.Pairs = append(res.Pairs, types.SourcePair{ImagePath: img, LabelPath: label})
	}
	return res, nil
}
