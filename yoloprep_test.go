package yoloprep

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/spf13/afero"

	"github.com/menta2k/yolo-prep/internal/config"
	"github.com/menta2k/yolo-prep/internal/monitoring"
	"github.com/menta2k/yolo-prep/pkg/annotation"
	"github.com/menta2k/yolo-prep/pkg/types"
)

func init() {
	monitoring.Silence()
}

// createTestImage creates a JPEG with a bright subject in the center
func createTestImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func createTestDataset(t *testing.T, fs afero.Fs, n int) {
	t.Helper()
	img := createTestImage(t, 60, 40)
	for i := 0; i < n; i++ {
		stem := string(rune('a' + i))
		if err := afero.WriteFile(fs, "/raw/"+stem+".jpg", img, 0o644); err != nil {
			t.Fatal(err)
		}
		label := []byte("0 0.5 0.5 0.33 0.33\n")
		if err := afero.WriteFile(fs, "/raw/"+stem+".txt", label, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := afero.WriteFile(fs, "/raw/classes.txt", []byte("subject\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNew(t *testing.T) {
	p := New()
	if p == nil {
		t.Fatal("New() returned nil")
	}
	if p.fs == nil {
		t.Error("filesystem is nil")
	}
	if p.processor == nil {
		t.Error("processor component is nil")
	}
	if p.validator == nil {
		t.Error("validator component is nil")
	}
}

func TestPreprocessThenValidate(t *testing.T) {
	fs := afero.NewMemMapFs()
	createTestDataset(t, fs, 5)
	p := NewWithFs(fs)

	opts := PreprocessOptionsFromConfig(config.Default(), "/raw", "/dataset")
	res, err := p.Preprocess(context.Background(), opts)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if len(res.Train) != 4 || len(res.Val) != 1 {
		t.Errorf("Expected 4/1 split, got %d/%d", len(res.Train), len(res.Val))
	}
	if res.Manifest != "/dataset/data.yaml" {
		t.Errorf("Expected manifest at /dataset/data.yaml, got %q", res.Manifest)
	}

	v, err := p.Validate(context.Background(), ValidateOptionsFromConfig(config.Default(), res.Manifest))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !v.Passed {
		t.Errorf("Expected validation to pass, warnings: %v", v.Warnings)
	}
	if got := v.Distribution.Counts; len(got) != 1 || got[0] != 4 {
		t.Errorf("Expected train counts [4], got %v", got)
	}
}

func TestCheckImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	createTestDataset(t, fs, 1)
	p := NewWithFs(fs)

	dims, err := p.CheckImage("/raw/a.jpg")
	if err != nil {
		t.Fatalf("CheckImage failed: %v", err)
	}
	if dims.Width != 60 || dims.Height != 40 {
		t.Errorf("Expected 60x40, got %dx%d", dims.Width, dims.Height)
	}

	if err := afero.WriteFile(fs, "/raw/bad.jpg", []byte("not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := p.CheckImage("/raw/bad.jpg"); err == nil {
		t.Error("Expected error for undecodable image")
	}
}

func TestValidateLabels(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/l.txt", []byte("3 0.5 0.5 0.2 0.2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewWithFs(fs)

	if f := p.ValidateLabels("/l.txt", types.Dimensions{}, annotation.NoClassLimit); !f.Valid() {
		t.Errorf("Expected valid file without class bound, got %v", f.Messages())
	}
	if f := p.ValidateLabels("/l.txt", types.Dimensions{}, 0); f.Valid() {
		t.Error("Expected every class id to be rejected with nc=0")
	}
	f := p.ValidateLabels("/l.txt", types.Dimensions{}, 2)
	if f.Valid() {
		t.Fatal("Expected class id 3 to be rejected with nc=2")
	}
	if f.Issues[0].Kind != types.ClassIDOutOfRange {
		t.Errorf("Expected ClassIDOutOfRange, got %v", f.Issues[0].Kind)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Dataset.Seed = 7
	cfg.Checks.DropInvalidLines = true
	cfg.Runtime.Workers = 3

	opts := PreprocessOptionsFromConfig(cfg, "/in", "/out")
	if opts.Seed != 7 || !opts.DropInvalidLines || opts.Workers != 3 {
		t.Errorf("Options not taken from config: %+v", opts)
	}
	if opts.Source != "/in" || opts.Output != "/out" {
		t.Errorf("Unexpected paths: %q %q", opts.Source, opts.Output)
	}

	v := ValidateOptionsFromConfig(cfg, "/ds/data.yaml")
	if v.Manifest != "/ds/data.yaml" || v.Workers != 3 {
		t.Errorf("Unexpected validate options: %+v", v)
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("Expected %s, got %s", Version, GetVersion())
	}
}
