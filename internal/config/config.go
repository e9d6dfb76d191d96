package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/menta2k/yolo-prep/internal/utils"
)

// Config holds the application configuration
type Config struct {
	Dataset DatasetConfig `json:"dataset"`
	Checks  ChecksConfig  `json:"checks"`
	Output  OutputConfig  `json:"output"`
	Runtime RuntimeConfig `json:"runtime"`
}

// DatasetConfig holds configuration for scanning and splitting
type DatasetConfig struct {
	ImageExtensions []string `json:"image_extensions"`
	TrainRatio      float64  `json:"train_ratio"`
	Seed            int64    `json:"seed"`
}

// ChecksConfig holds configuration for label validation
type ChecksConfig struct {
	DropInvalidLines bool    `json:"drop_invalid_lines"`
	MinBoxPixels     float64 `json:"min_box_pixels"`
	// MinImageSize only warns; small images are still admitted
	MinImageSize int `json:"min_image_size"`
}

// OutputConfig holds configuration for materialized output and reports
type OutputConfig struct {
	Quality      int    `json:"quality"`
	WebPLossless bool   `json:"webp_lossless"`
	ChartDir     string `json:"chart_dir"`
	JSONReport   string `json:"json_report"`
	Ledger       string `json:"ledger"`
}

// RuntimeConfig holds configuration for execution
type RuntimeConfig struct {
	Workers  int    `json:"workers"`
	LogLevel string `json:"log_level"`
	Progress bool   `json:"progress"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			ImageExtensions: append([]string(nil), utils.DefaultImageExtensions...),
			TrainRatio:      0.8,
			Seed:            42,
		},
		Checks: ChecksConfig{
			DropInvalidLines: false,
			MinBoxPixels:     0,
		},
		Output: OutputConfig{
			Quality: 95,
		},
		Runtime: RuntimeConfig{
			Workers:  runtime.NumCPU(),
			LogLevel: "info",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Keys absent from the file
// keep their default values.
func LoadFromFile(fs afero.Fs, filename string) (*Config, error) {
	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(fs afero.Fs, filename string) error {
	if err := utils.EnsureDir(fs, filepath.Dir(filename)); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := utils.WriteFileAtomic(fs, filename, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Dataset.TrainRatio <= 0 || c.Dataset.TrainRatio >= 1 || math.IsNaN(c.Dataset.TrainRatio) {
		return fmt.Errorf("dataset.train_ratio must be strictly between 0 and 1, got %v", c.Dataset.TrainRatio)
	}

	if len(c.Dataset.ImageExtensions) == 0 {
		return fmt.Errorf("dataset.image_extensions cannot be empty")
	}

	if c.Checks.MinBoxPixels < 0 {
		return fmt.Errorf("checks.min_box_pixels cannot be negative")
	}

	if c.Checks.MinImageSize < 0 {
		return fmt.Errorf("checks.min_image_size cannot be negative")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Runtime.Workers < 1 {
		return fmt.Errorf("runtime.workers must be positive")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "yolo-prep", "config.json")
}
