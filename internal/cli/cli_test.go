package cli

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/yolo-prep/internal/config"
	"github.com/menta2k/yolo-prep/internal/monitoring"
	"github.com/menta2k/yolo-prep/pkg/distribution"
	"github.com/menta2k/yolo-prep/pkg/ledger"
	"github.com/menta2k/yolo-prep/pkg/report"
)

func init() {
	monitoring.Silence()
}

func TestLoadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()

	cfg, err := LoadConfig(fs, "")
	require.NoError(t, err)
	assert.Equal(t, config.Default().Dataset, cfg.Dataset)

	require.NoError(t, afero.WriteFile(fs, "/etc/prep.json", []byte(`{"dataset":{"seed":9}}`), 0o644))
	cfg, err = LoadConfig(fs, "/etc/prep.json")
	require.NoError(t, err)
	assert.Equal(t, int64(9), cfg.Dataset.Seed)
	assert.Equal(t, 0.8, cfg.Dataset.TrainRatio)

	_, err = LoadConfig(fs, "/missing.json")
	assert.Error(t, err)
}

func TestVisited(t *testing.T) {
	fset := flag.NewFlagSet("t", flag.ContinueOnError)
	fset.Int("seed", 42, "")
	fset.Float64("train-ratio", 0.8, "")
	require.NoError(t, fset.Parse([]string{"-seed", "42"}))
	assert.Equal(t, map[string]bool{"seed": true}, Visited(fset))
}

func TestColorEnabled(t *testing.T) {
	assert.False(t, ColorEnabled(&bytes.Buffer{}))
}

func TestWriteCharts(t *testing.T) {
	fs := afero.NewMemMapFs()
	acc := distribution.NewAccumulator(2)
	acc.Add(0)
	acc.Add(1)
	acc.Add(1)

	paths, err := WriteCharts(fs, "/charts", "train", "Training", acc.Stats(), []string{"cat", "dog"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/charts/train_distribution.html", "/charts/train_distribution.png"}, paths)

	html, err := afero.ReadFile(fs, paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(html), "Training")

	paths, err = WriteCharts(fs, "/charts", "val", "Validation", distribution.NewAccumulator(0).Stats(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/charts/val_distribution.html"}, paths)
}

func TestRecordRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "runs.db")
	ctx := context.Background()

	id, err := RecordRun(ctx, path, &ledger.Run{
		Mode:   ledger.ModeValidate,
		Source: "/ds/data.yaml",
		Tally:  report.Tally{Total: 3, Valid: 3, Train: 3},
		Passed: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	l, err := ledger.Open(path)
	require.NoError(t, err)
	defer l.Close()
	runs, err := l.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.True(t, runs[0].Passed)
}
