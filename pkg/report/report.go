package report

import (
	"github.com/menta2k/yolo-prep/pkg/annotation"
	"github.com/menta2k/yolo-prep/pkg/types"
)

// FileOutcome is the checked result of one image/label pair
type FileOutcome struct {
	Image        string          `json:"image"`
	Label        string          `json:"label,omitempty"`
	Valid        bool            `json:"valid"`
	Kind         types.ErrorKind `json:"kind,omitempty"`
	Errors       []string        `json:"errors,omitempty"`
	OriginalMode string          `json:"mode,omitempty"`
	Converted    bool            `json:"converted,omitempty"`
	Dropped      int             `json:"dropped_lines,omitempty"`
}

// ImageFailure builds the outcome of a pair whose image did not decode
func ImageFailure(pair types.SourcePair, err error) FileOutcome {
	return FileOutcome{
		Image:  pair.ImagePath,
		Label:  pair.LabelPath,
		Kind:   types.CorruptedImage,
		Errors: []string{err.Error()},
	}
}

// LabelOutcome builds the outcome of a pair from its checked label file. admitted
// is the validator policy's verdict.
func LabelOutcome(pair types.SourcePair, f annotation.LabelFile, admitted bool) FileOutcome {
	o := FileOutcome{
		Image:  pair.ImagePath,
		Label:  pair.LabelPath,
		Valid:  admitted,
		Errors: f.Messages(),
	}
	if len(f.Issues) > 0 && !admitted {
		o.Kind = f.Issues[0].Kind
	}
	if admitted && len(f.Issues) > 0 {
		o.Dropped = len(f.Issues)
	}
	return o
}

// Tally holds dataset-level counts. It is a plain value folded from outcomes.
type Tally struct {
	Total           int `json:"total"`
	Valid           int `json:"valid"`
	CorruptedImages int `json:"corrupted_images"`
	InvalidLabels   int `json:"invalid_labels"`
	MissingLabels   int `json:"missing_labels"`
	Converted       int `json:"converted_to_rgb"`
	PartialLabels   int `json:"partial_labels,omitempty"`
	Train           int `json:"train"`
	Val             int `json:"val"`
	WriteFailures   int `json:"write_failures,omitempty"`
}

// Add folds one checked pair
func (t *Tally) Add(o FileOutcome) {
	t.Total++
	switch {
	case o.Valid:
		t.Valid++
		if o.Dropped > 0 {
			t.PartialLabels++
		}
	case o.Kind == types.CorruptedImage:
		t.CorruptedImages++
	default:
		t.InvalidLabels++
	}
	if o.Converted {
		t.Converted++
	}
}

// AddMissing folds one image that has no label file
func (t *Tally) AddMissing() {
	t.Total++
	t.MissingLabels++
}

// Merge adds other into t
func (t *Tally) Merge(other Tally) {
	t.Total += other.Total
	t.Valid += other.Valid
	t.CorruptedImages += other.CorruptedImages
	t.InvalidLabels += other.InvalidLabels
	t.MissingLabels += other.MissingLabels
	t.Converted += other.Converted
	t.PartialLabels += other.PartialLabels
	t.Train += other.Train
	t.Val += other.Val
	t.WriteFailures += other.WriteFailures
}

// ValidationReport collects the per-file outcomes of one checked image set
type ValidationReport struct {
	Subset   string        `json:"subset"`
	ImageDir string        `json:"image_dir,omitempty"`
	LabelDir string        `json:"label_dir,omitempty"`
	Outcomes []FileOutcome `json:"files"`
	Missing  []string      `json:"missing_labels,omitempty"`
	Tally    Tally         `json:"tally"`
}

// NewValidationReport creates an empty report for subset
func NewValidationReport(subset string) *ValidationReport {
	return &ValidationReport{Subset: subset}
}

// Add records a checked pair
func (r *ValidationReport) Add(o FileOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Tally.Add(o)
}

// AddMissing records an image without a label file
func (r *ValidationReport) AddMissing(imagePath string) {
	r.Missing = append(r.Missing, imagePath)
	r.Tally.AddMissing()
}

// InvalidLabels returns rejected pairs whose image decoded but whose label failed
func (r *ValidationReport) InvalidLabels() []FileOutcome {
	var out []FileOutcome
	for _, o := range r.Outcomes {
		if !o.Valid && o.Kind.IsLabelKind() {
			out = append(out, o)
		}
	}
	return out
}

// Corrupted returns rejected pairs whose image did not decode
func (r *ValidationReport) Corrupted() []FileOutcome {
	var out []FileOutcome
	for _, o := range r.Outcomes {
		if o.Kind == types.CorruptedImage {
			out = append(out, o)
		}
	}
	return out
}
