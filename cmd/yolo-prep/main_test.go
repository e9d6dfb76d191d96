package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSource(t *testing.T, fs afero.Fs, n int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.NRGBA{0, 0, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	for i := 0; i < n; i++ {
		require.NoError(t, afero.WriteFile(fs, fmt.Sprintf("/raw/%02d.png", i), buf.Bytes(), 0o644))
		require.NoError(t, afero.WriteFile(fs, fmt.Sprintf("/raw/%02d.txt", i), []byte(fmt.Sprintf("%d 0.5 0.5 0.5 0.5\n", i%2)), 0o644))
	}
	require.NoError(t, afero.WriteFile(fs, "/raw/classes.txt", []byte("a\nb\n"), 0o644))
}

func runCmd(fs afero.Fs, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), fs, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunSuccess(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedSource(t, fs, 10)

	code, out, _ := runCmd(fs, "-source", "/raw", "-output", "/out", "-json", "/reports/prep.json", "-chart-dir", "/charts", "-workers", "2")
	require.Equal(t, 0, code, out)

	assert.Contains(t, out, "YOLO Dataset Preprocessing")
	assert.Contains(t, out, "✓ Found 10 valid image/label pairs")
	assert.Contains(t, out, "✓ Train: 8, Val: 2")
	assert.Contains(t, out, "Copied class manifest: /out/classes.txt")
	assert.Contains(t, out, "Class Distribution (Training Set)")
	assert.Contains(t, out, "Processing statistics")
	assert.NotContains(t, out, "\033[")

	data, err := afero.ReadFile(fs, "/reports/prep.json")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(42), decoded["seed"])

	for _, p := range []string{"/out/data.yaml", "/charts/train_distribution.html", "/charts/val_distribution.png"} {
		ok, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}
}

func TestRunUsageErrors(t *testing.T) {
	fs := afero.NewMemMapFs()

	code, _, stderr := runCmd(fs, "-source", "/raw")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "-source and -output are required")

	code, _, _ = runCmd(fs, "-source", "/raw", "-output", "/out", "-train-ratio", "1.5")
	assert.Equal(t, 1, code)

	code, _, _ = runCmd(fs, "-h")
	assert.Equal(t, 0, code)
}

func TestRunMissingSource(t *testing.T) {
	code, out, _ := runCmd(afero.NewMemMapFs(), "-source", "/nowhere", "-output", "/out")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Preprocessing failed")
}

func TestRunNoValidPairs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/raw/a.png", []byte("not an image"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/raw/a.txt", []byte("0 0.5 0.5 0.1 0.1\n"), 0o644))

	code, out, _ := runCmd(fs, "-source", "/raw", "-output", "/out")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "1 corrupted images")
	assert.Contains(t, out, "Corrupted images: 1")
	assert.Contains(t, out, "no valid image/label pairs found")
}

func TestRunConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedSource(t, fs, 10)
	require.NoError(t, afero.WriteFile(fs, "/cfg.json", []byte(`{"dataset":{"train_ratio":0.5}}`), 0o644))

	code, out, _ := runCmd(fs, "-config", "/cfg.json", "-source", "/raw", "-output", "/out")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Train: 5, Val: 5")

	// flags win over the file
	code, out, _ = runCmd(fs, "-config", "/cfg.json", "-train-ratio", "0.7", "-source", "/raw", "-output", "/out2")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Train: 7, Val: 3")
}
