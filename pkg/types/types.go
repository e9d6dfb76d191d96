package types

import (
	"path/filepath"
	"strings"
)

// MaxClasses bounds the number of classes a registry or manifest may declare
const MaxClasses = 1 << 16

// SourcePair is an image file together with the label file that shares its stem
type SourcePair struct {
	ImagePath string `json:"image"`
	LabelPath string `json:"label"`
}

// Stem returns the image file name without its extension
func (p SourcePair) Stem() string {
	return Stem(p.ImagePath)
}

// Stem returns the base name of path without its extension
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Box represents a normalized YOLO bounding box: center point plus size, all in [0,1]
type Box struct {
	CenterX float64 `json:"cx"`
	CenterY float64 `json:"cy"`
	Width   float64 `json:"w"`
	Height  float64 `json:"h"`
}

// Edges returns the box corners as x1, y1, x2, y2
func (b Box) Edges() (float64, float64, float64, float64) {
	return b.CenterX - b.Width/2, b.CenterY - b.Height/2, b.CenterX + b.Width/2, b.CenterY + b.Height/2
}

// Annotation is one object instance parsed from a label line
type Annotation struct {
	ClassID int    `json:"class_id"`
	Box     Box    `json:"box"`
	Line    int    `json:"line"`
	Raw     string `json:"-"`
}

// Dimensions is the pixel size of a decoded image
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Subset names used by the splitter and the output layout
const (
	SubsetTrain = "train"
	SubsetVal   = "val"
)
