package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/yolo-prep/pkg/report"
	"github.com/menta2k/yolo-prep/pkg/types"
)

func openTemp(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestRecordAndList(t *testing.T) {
	l, _ := openTemp(t)
	ctx := context.Background()

	r := report.NewValidationReport(types.SubsetTrain)
	r.Add(report.FileOutcome{Image: "/s/a.jpg", Label: "/s/a.txt", Valid: true})
	r.Add(report.ImageFailure(types.SourcePair{ImagePath: "/s/b.jpg", LabelPath: "/s/b.txt"}, errors.New("bad huffman code")))
	r.AddMissing("/s/c.jpg")

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := &Run{
		Mode: ModePreprocess, Source: "/s", Output: "/o", Seed: 42, TrainRatio: 0.8,
		Tally: r.Tally, Passed: true, StartedAt: base, FinishedAt: base.Add(time.Second),
		Files: FilesFromReport(r),
	}
	id, err := l.RecordRun(ctx, first)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, first.ID)

	second := &Run{Mode: ModeValidate, Source: "/o/data.yaml", StartedAt: base.Add(time.Minute)}
	_, err = l.RecordRun(ctx, second)
	require.NoError(t, err)

	runs, err := l.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, ModeValidate, runs[0].Mode)
	assert.False(t, runs[0].Passed)

	got := runs[1]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, int64(42), got.Seed)
	assert.Equal(t, 0.8, got.TrainRatio)
	assert.True(t, got.Passed)
	assert.Equal(t, 3, got.Tally.Total)
	assert.Equal(t, 1, got.Tally.CorruptedImages)
	assert.Equal(t, 1, got.Tally.MissingLabels)
	assert.True(t, base.Equal(got.StartedAt))

	limited, err := l.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	files, err := l.Files(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []File{
		{Subset: "train", Image: "/s/a.jpg", Label: "/s/a.txt", Valid: true},
		{Subset: "train", Image: "/s/b.jpg", Label: "/s/b.txt", Kind: "corrupted_image", Errors: []string{"bad huffman code"}},
		{Subset: "train", Image: "/s/c.jpg", Kind: "missing_label"},
	}, files)
}

func TestReopenKeepsHistory(t *testing.T) {
	l, path := openTemp(t)
	_, err := l.RecordRun(context.Background(), &Run{Mode: ModePreprocess, Source: "/s"})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	again, err := Open(path)
	require.NoError(t, err)
	defer again.Close()
	runs, err := again.Runs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecordRunCancelled(t *testing.T) {
	l, _ := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.RecordRun(ctx, &Run{Mode: ModePreprocess, Source: "/s"})
	assert.Error(t, err)

	runs, err := l.Runs(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestFilesFromNilReport(t *testing.T) {
	assert.Nil(t, FilesFromReport(nil))
}
