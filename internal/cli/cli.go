// Package cli holds the pieces shared by the yolo-prep and yolo-validate commands.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/menta2k/yolo-prep/internal/config"
	"github.com/menta2k/yolo-prep/internal/utils"
	"github.com/menta2k/yolo-prep/pkg/distribution"
	"github.com/menta2k/yolo-prep/pkg/ledger"
)

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
)

// LoadConfig reads the configuration at path. With an empty path the per-user
// file is used when it exists, otherwise the defaults.
func LoadConfig(fs afero.Fs, path string) (*config.Config, error) {
	if path == "" {
		path = config.GetConfigPath()
		if !utils.FileExists(fs, path) {
			return config.Default(), nil
		}
	}
	cfg, err := config.LoadFromFile(fs, path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Msg("loaded configuration")
	return cfg, nil
}

// Visited returns the names of the flags that were set on the command line
func Visited(fset *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fset.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// ColorEnabled reports whether w is a terminal that should get ANSI colours
func ColorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// WriteCharts renders the distribution of one subset as <dir>/<subset>_distribution.html
// and .png and returns the written paths. The PNG is skipped when there are no classes.
func WriteCharts(fs afero.Fs, dir, subset, title string, s distribution.Stats, names []string) ([]string, error) {
	if err := utils.EnsureDir(fs, dir); err != nil {
		return nil, errors.Wrap(err, "failed to create chart directory")
	}

	htmlPath := filepath.Join(dir, subset+"_distribution.html")
	f, err := fs.Create(htmlPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chart file")
	}
	if err := distribution.RenderHTML(f, title, s, names); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to write chart file")
	}
	written := []string{htmlPath}

	if len(s.Counts) == 0 {
		return written, nil
	}
	pngPath := filepath.Join(dir, subset+"_distribution.png")
	if err := distribution.RenderPNG(fs, pngPath, title, s, names); err != nil {
		return written, err
	}
	return append(written, pngPath), nil
}

// RecordRun appends run to the ledger at path and returns the run id
func RecordRun(ctx context.Context, path string, run *ledger.Run) (string, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrap(err, "failed to create ledger directory")
		}
	}
	l, err := ledger.Open(path)
	if err != nil {
		return "", err
	}
	defer l.Close()
	return l.RecordRun(ctx, run)
}
