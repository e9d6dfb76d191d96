package scanner

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/yolo-prep/pkg/types"
)

func writeFiles(t *testing.T, fs afero.Fs, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, afero.WriteFile(fs, name, []byte("x"), 0o644))
	}
}

func TestScanPairsByStem(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs,
		"/src/c.png", "/src/c.txt",
		"/src/a.JPG", "/src/a.txt",
		"/src/b.jpeg",
		"/src/classes.txt",
		"/src/readme.md",
	)

	res, err := New(fs, nil).Scan("/src", "")
	require.NoError(t, err)

	assert.Equal(t, []types.SourcePair{
		{ImagePath: "/src/a.JPG", LabelPath: "/src/a.txt"},
		{ImagePath: "/src/c.png", LabelPath: "/src/c.txt"},
	}, res.Pairs)
	assert.Equal(t, []string{"/src/b.jpeg"}, res.MissingLabels)
}

func TestScanSeparateLabelDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs,
		"/ds/images/train/x.png", "/ds/labels/train/x.txt",
		"/ds/images/train/y.png",
	)

	res, err := New(fs, nil).Scan("/ds/images/train", "/ds/labels/train")
	require.NoError(t, err)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "/ds/labels/train/x.txt", res.Pairs[0].LabelPath)
	assert.Equal(t, []string{"/ds/images/train/y.png"}, res.MissingLabels)
}

func TestScanMissingSourceIsFatal(t *testing.T) {
	_, err := New(afero.NewMemMapFs(), nil).Scan("/nope", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSourceMissing))
}

func TestScanCustomExtensions(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/src/a.webp", "/src/a.txt", "/src/b.png", "/src/b.txt")

	res, err := New(fs, []string{".webp"}).Scan("/src", "")
	require.NoError(t, err)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "/src/a.webp", res.Pairs[0].ImagePath)
}
