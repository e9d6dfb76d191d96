package analyzer

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/menta2k/yolo-prep/pkg/types"
)

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

// GetImageInfo returns basic information about an image of the given size
func GetImageInfo(d types.Dimensions) ImageInfo {
	info := ImageInfo{Width: d.Width, Height: d.Height, Area: d.Width * d.Height}
	if d.Height > 0 {
		info.AspectRatio = float64(d.Width) / float64(d.Height)
	}
	return info
}

// Summary describes the image sizes of a set of admitted pairs
type Summary struct {
	Count           int     `json:"count"`
	MinWidth        int     `json:"min_width"`
	MaxWidth        int     `json:"max_width"`
	MinHeight       int     `json:"min_height"`
	MaxHeight       int     `json:"max_height"`
	MeanWidth       float64 `json:"mean_width"`
	MeanHeight      float64 `json:"mean_height"`
	MeanAspectRatio float64 `json:"mean_aspect_ratio"`
	// Small counts images with a side shorter than the configured minimum
	Small int `json:"small,omitempty"`
}

// SizeAnalyzer collects image sizes and summarizes them
type SizeAnalyzer struct {
	// MinImageSize flags images narrower or shorter than this; zero disables it
	MinImageSize int

	widths, heights, ratios []float64
	small                   int
}

// NewWithMinSize creates a SizeAnalyzer that counts images below minSize pixels.
// Zero disables the count.
func NewWithMinSize(minSize int) *SizeAnalyzer {
	return &SizeAnalyzer{MinImageSize: minSize}
}

// Add records one image. Zero-sized images are ignored.
func (a *SizeAnalyzer) Add(d types.Dimensions) {
	if d.Width <= 0 || d.Height <= 0 {
		return
	}
	info := GetImageInfo(d)
	a.widths = append(a.widths, float64(info.Width))
	a.heights = append(a.heights, float64(info.Height))
	a.ratios = append(a.ratios, info.AspectRatio)
	if a.MinImageSize > 0 && (info.Width < a.MinImageSize || info.Height < a.MinImageSize) {
		a.small++
	}
}

// Summary returns the statistics of everything added so far
func (a *SizeAnalyzer) Summary() Summary {
	s := Summary{Count: len(a.widths), Small: a.small}
	if s.Count == 0 {
		return s
	}
	s.MinWidth, s.MaxWidth = int(floats.Min(a.widths)), int(floats.Max(a.widths))
	s.MinHeight, s.MaxHeight = int(floats.Min(a.heights)), int(floats.Max(a.heights))
	s.MeanWidth = stat.Mean(a.widths, nil)
	s.MeanHeight = stat.Mean(a.heights, nil)
	s.MeanAspectRatio = stat.Mean(a.ratios, nil)
	return s
}
