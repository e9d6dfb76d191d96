package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a per-file problem. None of these abort a run.
type ErrorKind int

const (
	MissingLabelFile ErrorKind = iota + 1
	CorruptedImage
	EmptyLabelFile
	MalformedAnnotationLine
	GeometryViolation
	ClassIDOutOfRange
)

var kindNames = map[ErrorKind]string{
	MissingLabelFile:        "missing_label",
	CorruptedImage:          "corrupted_image",
	EmptyLabelFile:          "empty_label",
	MalformedAnnotationLine: "malformed_line",
	GeometryViolation:       "geometry",
	ClassIDOutOfRange:       "class_out_of_range",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsLabelKind reports whether the kind comes from annotation validation
func (k ErrorKind) IsLabelKind() bool {
	switch k {
	case EmptyLabelFile, MalformedAnnotationLine, GeometryViolation, ClassIDOutOfRange:
		return true
	}
	return false
}

// MarshalText lets kinds appear by name in JSON reports
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Issue is a single problem found in a file. Line is 1-based, 0 when the
// problem concerns the file as a whole.
type Issue struct {
	Kind   ErrorKind `json:"kind"`
	Line   int       `json:"line,omitempty"`
	Detail string    `json:"detail"`
}

func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("Line %d: %s", i.Line, i.Detail)
	}
	return i.Detail
}

// PairError is the failure side of a per-pair check result
type PairError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *PairError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *PairError) Unwrap() error { return e.Err }

// Fatal conditions. These abort the run before any partial work where feasible.
var (
	ErrSourceMissing      = errors.New("source directory does not exist")
	ErrMissingKey         = errors.New("configuration manifest is missing required keys")
	ErrInvalidManifest    = errors.New("configuration manifest is invalid")
	ErrNoValidPairs       = errors.New("no valid image/label pairs found")
	ErrInvalidRatio       = errors.New("train ratio must be strictly between 0 and 1")
	ErrTrainImagesMissing = errors.New("training images path does not exist")
)
