package report

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/yolo-prep/pkg/analyzer"
	"github.com/menta2k/yolo-prep/pkg/annotation"
	"github.com/menta2k/yolo-prep/pkg/distribution"
	"github.com/menta2k/yolo-prep/pkg/types"
)

var pair = types.SourcePair{ImagePath: "/src/a.jpg", LabelPath: "/src/a.txt"}

func TestTallyFold(t *testing.T) {
	dims := types.Dimensions{Width: 10, Height: 10}
	strict := annotation.NewValidator()
	good := strict.Validate([]byte("0 0.5 0.5 0.2 0.2\n"), dims, 1)
	bad := strict.Validate([]byte("0 1.5 0.5 0.2 0.2\n"), dims, 1)

	r := NewValidationReport(types.SubsetTrain)
	ok := LabelOutcome(pair, good, true)
	ok.Converted = true
	r.Add(ok)
	r.Add(LabelOutcome(pair, bad, false))
	r.Add(ImageFailure(pair, errors.New("unexpected EOF")))
	r.AddMissing("/src/b.jpg")

	assert.Equal(t, Tally{
		Total:           4,
		Valid:           1,
		CorruptedImages: 1,
		InvalidLabels:   1,
		MissingLabels:   1,
		Converted:       1,
	}, r.Tally)
	assert.Len(t, r.InvalidLabels(), 1)
	assert.Len(t, r.Corrupted(), 1)
	assert.Equal(t, types.GeometryViolation, r.InvalidLabels()[0].Kind)
}

func TestLabelOutcomeDroppedLines(t *testing.T) {
	v := &annotation.Validator{DropInvalidLines: true}
	f := v.Validate([]byte("0 0.5 0.5 0.2 0.2\n0 1.5 0.5 0.2 0.2\n"), types.Dimensions{}, 1)
	o := LabelOutcome(pair, f, v.Admit(f))
	assert.True(t, o.Valid)
	assert.Zero(t, o.Kind)
	assert.Equal(t, 1, o.Dropped)

	var tally Tally
	tally.Add(o)
	assert.Equal(t, 1, tally.PartialLabels)
}

func TestTallyMerge(t *testing.T) {
	a := Tally{Total: 3, Valid: 2, InvalidLabels: 1, Train: 2}
	b := Tally{Total: 2, Valid: 1, MissingLabels: 1, Val: 1}
	a.Merge(b)
	assert.Equal(t, Tally{Total: 5, Valid: 3, InvalidLabels: 1, MissingLabels: 1, Train: 2, Val: 1}, a)
}

func manyOutcomes(n, errs int) []FileOutcome {
	out := make([]FileOutcome, n)
	for i := range out {
		o := FileOutcome{Image: fmt.Sprintf("/d/img%d.jpg", i), Label: fmt.Sprintf("/d/img%d.txt", i), Kind: types.GeometryViolation}
		for j := 0; j < errs; j++ {
			o.Errors = append(o.Errors, fmt.Sprintf("Line %d: bad", j+1))
		}
		out[i] = o
	}
	return out
}

func TestInvalidListingCapped(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, false, false).Invalid("invalid label files", manyOutcomes(7, 5))
	out := buf.String()

	assert.Contains(t, out, "✗ 7 invalid label files")
	assert.Contains(t, out, "img4.txt:")
	assert.NotContains(t, out, "img5.txt:")
	assert.Contains(t, out, "    ... and 2 more errors")
	assert.Contains(t, out, "  ... and 2 more files")
	assert.Equal(t, 5, strings.Count(out, "Line 3: bad"))
	assert.NotContains(t, out, "Line 4: bad")
}

func TestInvalidListingVerbose(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, true, false).Invalid("invalid label files", manyOutcomes(7, 5))
	out := buf.String()

	assert.Contains(t, out, "img6.txt:")
	assert.Equal(t, 7, strings.Count(out, "Line 5: bad"))
	assert.NotContains(t, out, "more")
}

func TestMissingListing(t *testing.T) {
	paths := make([]string, 12)
	for i := range paths {
		paths[i] = fmt.Sprintf("/d/m%02d.png", i)
	}

	var buf bytes.Buffer
	NewPrinter(&buf, false, false).Missing(paths)
	assert.Contains(t, buf.String(), "⚠ 12 images missing label files")
	assert.Contains(t, buf.String(), "  - m09.png")
	assert.NotContains(t, buf.String(), "m10.png")
	assert.Contains(t, buf.String(), "  ... and 2 more")

	buf.Reset()
	NewPrinter(&buf, false, false).Missing(nil)
	assert.Empty(t, buf.String())
}

func TestDistributionTable(t *testing.T) {
	acc := distribution.NewAccumulator(3)
	for i := 0; i < 6; i++ {
		acc.Add(0)
	}
	for i := 0; i < 4; i++ {
		acc.Add(1)
	}
	names := []string{"cat", "dog", "bird"}

	var buf bytes.Buffer
	NewPrinter(&buf, false, false).Distribution("Class Distribution (Training Set)", acc.Stats(), func(id int) string { return names[id] })
	out := buf.String()

	assert.Contains(t, out, "cat             |     6 ( 60.0%) "+strings.Repeat("█", 30))
	assert.Contains(t, out, "bird            |     0 (  0.0%)")
	assert.Contains(t, out, "Total           |    10")
	assert.Contains(t, out, "Some classes have no samples: bird")
	assert.NotContains(t, out, "imbalance")
}

func TestDistributionImbalanceWarning(t *testing.T) {
	acc := distribution.NewAccumulator(2)
	for i := 0; i < 7; i++ {
		acc.Add(0)
	}
	acc.Add(1)
	acc.Add(1)

	var buf bytes.Buffer
	NewPrinter(&buf, false, true).Distribution("train", acc.Stats(), func(id int) string { return fmt.Sprint(id) })
	assert.Contains(t, buf.String(), "Class imbalance detected (ratio: 3.5:1)")
	assert.Contains(t, buf.String(), yellow)
}

func TestStatistics(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, false, false).Statistics(Tally{Total: 10, Valid: 9, InvalidLabels: 1, Train: 7, Val: 2})
	out := buf.String()
	assert.Contains(t, out, "Invalid labels:   1")
	assert.Contains(t, out, "Train:            7")
	assert.NotContains(t, out, "Write failures")
}

func TestImageSizes(t *testing.T) {
	a := analyzer.NewWithMinSize(32)
	a.Add(types.Dimensions{Width: 640, Height: 480})
	a.Add(types.Dimensions{Width: 16, Height: 16})

	var buf bytes.Buffer
	p := NewPrinter(&buf, false, false)
	p.ImageSizes(a.Summary())
	assert.Contains(t, buf.String(), "ℹ Image sizes: 16x16 to 640x480 (mean 328x248, aspect 1.17)")
	assert.Contains(t, buf.String(), "⚠ 1 images are smaller than the minimum size")

	buf.Reset()
	p.ImageSizes(analyzer.Summary{})
	assert.Empty(t, buf.String())
}

func TestBannerAndColor(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false, false)
	p.Banner("YOLO Dataset Validation")
	p.Success("ok")
	assert.Contains(t, buf.String(), "║   YOLO Dataset Validation")
	assert.Contains(t, buf.String(), "✓ ok\n")
	assert.NotContains(t, buf.String(), "\033[")
}

func TestWriteJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := NewValidationReport(types.SubsetVal)
	r.Add(ImageFailure(pair, errors.New("boom")))
	require.NoError(t, WriteJSON(fs, "/reports/val.json", r))

	data, err := afero.ReadFile(fs, "/reports/val.json")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "val", decoded["subset"])
	files := decoded["files"].([]any)
	assert.Equal(t, "corrupted_image", files[0].(map[string]any)["kind"])

	var buf bytes.Buffer
	require.NoError(t, EncodeJSON(&buf, r.Tally))
	assert.Contains(t, buf.String(), `"corrupted_images": 1`)
}
