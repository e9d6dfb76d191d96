package config

import (
	"math"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.8, cfg.Dataset.TrainRatio)
	assert.Equal(t, int64(42), cfg.Dataset.Seed)
	assert.Equal(t, 95, cfg.Output.Quality)
	assert.False(t, cfg.Checks.DropInvalidLines)
	assert.Contains(t, cfg.Dataset.ImageExtensions, ".tif")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ratio zero", func(c *Config) { c.Dataset.TrainRatio = 0 }},
		{"ratio one", func(c *Config) { c.Dataset.TrainRatio = 1 }},
		{"ratio NaN", func(c *Config) { c.Dataset.TrainRatio = math.NaN() }},
		{"no extensions", func(c *Config) { c.Dataset.ImageExtensions = nil }},
		{"negative min box", func(c *Config) { c.Checks.MinBoxPixels = -1 }},
		{"negative min image size", func(c *Config) { c.Checks.MinImageSize = -1 }},
		{"quality", func(c *Config) { c.Output.Quality = 101 }},
		{"workers", func(c *Config) { c.Runtime.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadKeepsDefaultsForAbsentKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg.json",
		[]byte(`{"dataset": {"train_ratio": 0.7}, "checks": {"drop_invalid_lines": true}}`), 0o644))

	cfg, err := LoadFromFile(fs, "/cfg.json")
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Dataset.TrainRatio)
	assert.Equal(t, int64(42), cfg.Dataset.Seed)
	assert.True(t, cfg.Checks.DropInvalidLines)
	assert.Equal(t, 95, cfg.Output.Quality)
}

func TestLoadErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := LoadFromFile(fs, "/missing.json")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/bad.json", []byte("{"), 0o644))
	_, err = LoadFromFile(fs, "/bad.json")
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := Default()
	cfg.Dataset.Seed = 7
	cfg.Output.ChartDir = "/charts"
	require.NoError(t, cfg.SaveToFile(fs, "/home/u/.config/yolo-prep/config.json"))

	got, err := LoadFromFile(fs, "/home/u/.config/yolo-prep/config.json")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestGetConfigPath(t *testing.T) {
	assert.Contains(t, GetConfigPath(), "config.json")
}
