// Package annotation parses and validates YOLO label files.
//
// A label file holds one object per non-blank line:
//
//	class_id center_x center_y width height
//
// with the four geometric values normalized to the image size. Validation never
// stops at the first problem: every line is checked and every violation is
// reported with its line number, so a report can list all of a file's problems
// in one pass.
package annotation

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/menta2k/yolo-prep/pkg/types"
)

// EdgeTolerance absorbs float rounding when comparing box edges to the image bounds
const EdgeTolerance = 1e-9

// LabelFile is the parsed form of one label file
type LabelFile struct {
	Path    string             `json:"path"`
	Records []types.Annotation `json:"records,omitempty"`
	Empty   bool               `json:"empty,omitempty"`
	Issues  []types.Issue      `json:"issues,omitempty"`
	// Clean holds the records that passed every check
	Clean []types.Annotation `json:"-"`
}

// Valid reports whether the file is admissible under atomic (whole-file) policy
func (f LabelFile) Valid() bool {
	return !f.Empty && len(f.Records) > 0 && len(f.Issues) == 0
}

// Messages returns the issues as human-readable strings
func (f LabelFile) Messages() []string {
	out := make([]string, len(f.Issues))
	for i, is := range f.Issues {
		out[i] = is.String()
	}
	return out
}

// NoClassLimit passed as nc accepts any class id below types.MaxClasses. Used
// while the class list is still being inferred from the labels themselves.
const NoClassLimit = -1

// Validator checks label files against the YOLO geometry rules
type Validator struct {
	// DropInvalidLines admits a file with at least one clean record even when
	// other lines fail; only the clean lines are kept.
	DropInvalidLines bool
	// MinBoxPixels rejects boxes narrower or shorter than this many pixels.
	// Zero disables the check.
	MinBoxPixels float64
}

// NewValidator creates a validator with the default whole-file policy
func NewValidator() *Validator {
	return &Validator{}
}

// Admit reports whether a checked file may be materialized under this validator's policy
func (v *Validator) Admit(f LabelFile) bool {
	if v.DropInvalidLines {
		return !f.Empty && len(f.Clean) > 0
	}
	return f.Valid()
}

// ValidateFile reads and validates the label file at path. dims is the size of the
// paired image; nc is the class count, or NoClassLimit. With nc == 0 no class id
// is valid.
func (v *Validator) ValidateFile(fs afero.Fs, path string, dims types.Dimensions, nc int) LabelFile {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return LabelFile{
			Path: path,
			Issues: []types.Issue{{
				Kind:   types.MalformedAnnotationLine,
				Detail: fmt.Sprintf("Failed to read file: %v", err),
			}},
		}
	}
	f := v.Validate(data, dims, nc)
	f.Path = path
	return f
}

// Validate checks label content already in memory
func (v *Validator) Validate(data []byte, dims types.Dimensions, nc int) LabelFile {
	var f LabelFile

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		raw := sc.Text()
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		rec, issues := v.checkLine(line, lineNum, dims, nc)
		if rec != nil {
			rec.Raw = raw
			f.Records = append(f.Records, *rec)
			if len(issues) == 0 {
				f.Clean = append(f.Clean, *rec)
			}
		}
		f.Issues = append(f.Issues, issues...)
	}
	if err := sc.Err(); err != nil {
		f.Issues = append(f.Issues, types.Issue{
			Kind:   types.MalformedAnnotationLine,
			Line:   lineNum + 1,
			Detail: fmt.Sprintf("Failed to read file: %v", err),
		})
	}

	if len(f.Records) == 0 && len(f.Issues) == 0 {
		f.Empty = true
		f.Issues = append(f.Issues, types.Issue{Kind: types.EmptyLabelFile, Detail: "Label file is empty"})
	}
	return f
}

// checkLine parses one non-blank line. The record is nil when the line could not
// be parsed at all.
func (v *Validator) checkLine(line string, n int, dims types.Dimensions, nc int) (*types.Annotation, []types.Issue) {
	parts := strings.Fields(line)
	if len(parts) != 5 {
		return nil, []types.Issue{{
			Kind:   types.MalformedAnnotationLine,
			Line:   n,
			Detail: fmt.Sprintf("Expected 5 values (class x y w h), got %d", len(parts)),
		}}
	}

	classID, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, []types.Issue{malformed(n, err)}
	}
	var vals [4]float64
	for i, p := range parts[1:] {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, []types.Issue{malformed(n, err)}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, []types.Issue{{
				Kind:   types.MalformedAnnotationLine,
				Line:   n,
				Detail: fmt.Sprintf("Invalid format - non-finite value %q", p),
			}}
		}
		vals[i] = f
	}

	rec := &types.Annotation{
		ClassID: classID,
		Box:     types.Box{CenterX: vals[0], CenterY: vals[1], Width: vals[2], Height: vals[3]},
		Line:    n,
	}
	return rec, v.checkRecord(rec, dims, nc)
}

func malformed(n int, err error) types.Issue {
	msg := err.Error()
	if ne, ok := err.(*strconv.NumError); ok {
		msg = fmt.Sprintf("could not parse %q", ne.Num)
	}
	return types.Issue{Kind: types.MalformedAnnotationLine, Line: n, Detail: "Invalid format - " + msg}
}

// checkRecord applies the class and geometry invariants to a parsed record
func (v *Validator) checkRecord(rec *types.Annotation, dims types.Dimensions, nc int) []types.Issue {
	var issues []types.Issue
	n := rec.Line

	var bound string
	switch {
	case rec.ClassID < 0:
		bound = "must be >= 0"
	case nc < 0 && rec.ClassID >= types.MaxClasses:
		bound = fmt.Sprintf("must be below %d", types.MaxClasses)
	case nc == 0:
		bound = "no classes are defined"
	case nc > 0 && rec.ClassID >= nc:
		bound = fmt.Sprintf("must be 0-%d", nc-1)
	}
	if bound != "" {
		issues = append(issues, types.Issue{
			Kind:   types.ClassIDOutOfRange,
			Line:   n,
			Detail: fmt.Sprintf("Invalid class ID %d (%s)", rec.ClassID, bound),
		})
	}

	b := rec.Box
	inRange := true
	for _, c := range []struct {
		name string
		val  float64
	}{{"x", b.CenterX}, {"y", b.CenterY}, {"w", b.Width}, {"h", b.Height}} {
		if c.val < 0 || c.val > 1 {
			inRange = false
			issues = append(issues, types.Issue{
				Kind:   types.GeometryViolation,
				Line:   n,
				Detail: fmt.Sprintf("%s=%s out of range [0, 1]", c.name, formatFloat(c.val)),
			})
		}
	}

	if b.Width <= 0 || b.Height <= 0 {
		inRange = false
		issues = append(issues, types.Issue{
			Kind:   types.GeometryViolation,
			Line:   n,
			Detail: fmt.Sprintf("Invalid width/height (w=%s, h=%s)", formatFloat(b.Width), formatFloat(b.Height)),
		})
	}

	// Edge check only adds information when every value is individually in range.
	if inRange {
		x1, y1, x2, y2 := b.Edges()
		if x1 < -EdgeTolerance || y1 < -EdgeTolerance || x2 > 1+EdgeTolerance || y2 > 1+EdgeTolerance {
			issues = append(issues, types.Issue{
				Kind: types.GeometryViolation,
				Line: n,
				Detail: fmt.Sprintf("Bounding box exceeds image bounds [%s, %s, %s, %s]",
					formatFloat(x1), formatFloat(y1), formatFloat(x2), formatFloat(y2)),
			})
		}
	}

	if inRange && v.MinBoxPixels > 0 && dims.Width > 0 && dims.Height > 0 {
		pw, ph := b.Width*float64(dims.Width), b.Height*float64(dims.Height)
		if pw < v.MinBoxPixels || ph < v.MinBoxPixels {
			issues = append(issues, types.Issue{
				Kind: types.GeometryViolation,
				Line: n,
				Detail: fmt.Sprintf("Box %.1fx%.1f px smaller than %s px minimum",
					pw, ph, formatFloat(v.MinBoxPixels)),
			})
		}
	}

	return issues
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ParseClassID extracts the class id from a label line without validating the
// rest of it. ok is false for blank lines and lines whose first token is not an integer.
func ParseClassID(line string) (int, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return id, true
}

// CleanContent re-emits the clean records of f, one original line each
func CleanContent(f LabelFile) []byte {
	var buf bytes.Buffer
	for _, rec := range f.Clean {
		buf.WriteString(strings.TrimSpace(rec.Raw))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
