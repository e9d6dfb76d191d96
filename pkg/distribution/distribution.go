package distribution

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/menta2k/yolo-prep/internal/utils"
	"github.com/menta2k/yolo-prep/pkg/annotation"
)

// ImbalanceThreshold is the max/min ratio above which a subset is flagged as imbalanced
const ImbalanceThreshold = 3.0

// Stats is the class distribution of one subset
type Stats struct {
	Counts      []int   `json:"counts"`
	Total       int     `json:"total"`
	Ratio       float64 `json:"ratio,omitempty"`
	HasRatio    bool    `json:"has_ratio"`
	ZeroClasses []int   `json:"zero_classes,omitempty"`
	Imbalanced  bool    `json:"imbalanced"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"stddev"`
}

// Accumulator folds class occurrences for nc classes. It is not safe for
// concurrent use; workers build their own and Merge the results.
type Accumulator struct {
	counts  []int
	ignored int
}

// NewAccumulator creates an accumulator for class ids 0..nc-1
func NewAccumulator(nc int) *Accumulator {
	if nc < 0 {
		nc = 0
	}
	return &Accumulator{counts: make([]int, nc)}
}

// Add counts one occurrence. Ids outside [0,nc) are ignored.
func (a *Accumulator) Add(classID int) {
	if classID < 0 || classID >= len(a.counts) {
		a.ignored++
		return
	}
	a.counts[classID]++
}

// AddFile counts every record of a validated label file
func (a *Accumulator) AddFile(f annotation.LabelFile) {
	for _, rec := range f.Records {
		a.Add(rec.ClassID)
	}
}

// AddContent counts label content with the lenient class-id parser
func (a *Accumulator) AddContent(data []byte) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if id, ok := annotation.ParseClassID(line); ok {
			a.Add(id)
		} else {
			a.ignored++
		}
	}
}

// Merge adds other's counts into a
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil {
		return
	}
	for id, c := range other.counts {
		if id < len(a.counts) {
			a.counts[id] += c
		} else {
			a.ignored += c
		}
	}
	a.ignored += other.ignored
}

// Ignored returns how many occurrences fell outside [0,nc) or did not parse
func (a *Accumulator) Ignored() int {
	return a.ignored
}

// Stats derives the distribution summary
func (a *Accumulator) Stats() Stats {
	s := Stats{Counts: append([]int(nil), a.counts...)}
	if len(s.Counts) == 0 {
		return s
	}

	all := make([]float64, len(s.Counts))
	var nonZero []float64
	for id, c := range s.Counts {
		s.Total += c
		all[id] = float64(c)
		if c == 0 {
			s.ZeroClasses = append(s.ZeroClasses, id)
			continue
		}
		nonZero = append(nonZero, float64(c))
	}

	s.Mean, s.StdDev = stat.MeanStdDev(all, nil)
	if len(all) < 2 {
		s.StdDev = 0
	}
	if len(nonZero) > 0 {
		s.Ratio = floats.Max(nonZero) / floats.Min(nonZero)
		s.HasRatio = true
		s.Imbalanced = s.Ratio > ImbalanceThreshold
	}
	return s
}

// CountDir folds every label file in labelDir. Lines that do not parse and ids
// outside [0,nc) are ignored; validation already reported them.
func CountDir(fs afero.Fs, labelDir string, nc int) (*Accumulator, error) {
	files, err := utils.ListLabelFiles(fs, labelDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", labelDir)
	}
	acc := NewAccumulator(nc)
	for _, f := range files {
		data, err := afero.ReadFile(fs, f)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", f)
		}
		acc.AddContent(data)
	}
	return acc, nil
}
