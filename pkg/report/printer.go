package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/menta2k/yolo-prep/pkg/analyzer"
	"github.com/menta2k/yolo-prep/pkg/distribution"
	"github.com/menta2k/yolo-prep/pkg/types"
)

// ANSI colour codes
const (
	red     = "\033[0;31m"
	green   = "\033[0;32m"
	yellow  = "\033[1;33m"
	cyan    = "\033[0;36m"
	magenta = "\033[0;35m"
	reset   = "\033[0m"
)

// Listing caps used unless the printer is verbose
const (
	MaxMissingShown  = 10
	MaxInvalidShown  = 5
	MaxIssuesPerFile = 3
)

// Printer writes human-readable reports
type Printer struct {
	w       io.Writer
	Verbose bool
	Color   bool
}

// NewPrinter creates a printer writing to w
func NewPrinter(w io.Writer, verbose, color bool) *Printer {
	return &Printer{w: w, Verbose: verbose, Color: color}
}

func (p *Printer) paint(code, msg string) {
	if p.Color {
		fmt.Fprintf(p.w, "%s%s%s\n", code, msg, reset)
		return
	}
	fmt.Fprintln(p.w, msg)
}

func (p *Printer) Success(format string, a ...any) { p.paint(green, "✓ "+fmt.Sprintf(format, a...)) }
func (p *Printer) Error(format string, a ...any)   { p.paint(red, "✗ "+fmt.Sprintf(format, a...)) }
func (p *Printer) Warning(format string, a ...any) { p.paint(yellow, "⚠ "+fmt.Sprintf(format, a...)) }
func (p *Printer) Info(format string, a ...any)    { p.paint(cyan, "ℹ "+fmt.Sprintf(format, a...)) }
func (p *Printer) Step(format string, a ...any)    { p.paint(magenta, "▶ "+fmt.Sprintf(format, a...)) }

// Line prints an uncoloured line
func (p *Printer) Line(format string, a ...any) {
	fmt.Fprintf(p.w, format+"\n", a...)
}

// Banner prints a boxed title
func (p *Printer) Banner(title string) {
	width := 36
	if n := len([]rune(title)) + 6; n > width {
		width = n
	}
	pad := width - 3 - len([]rune(title))
	p.Line("")
	p.paint(magenta, "╔"+strings.Repeat("═", width)+"╗")
	p.paint(magenta, "║   "+title+strings.Repeat(" ", pad)+"║")
	p.paint(magenta, "╚"+strings.Repeat("═", width)+"╝")
	p.Line("")
}

// Rule prints a horizontal separator
func (p *Printer) Rule() {
	p.Line("%s", strings.Repeat("─", 50))
}

func (p *Printer) cap(n, limit int) int {
	if p.Verbose || n < limit {
		return n
	}
	return limit
}

// Missing lists images without labels
func (p *Printer) Missing(paths []string) {
	if len(paths) == 0 {
		return
	}
	p.Warning("%d images missing label files", len(paths))
	shown := p.cap(len(paths), MaxMissingShown)
	for _, path := range paths[:shown] {
		p.Line("  - %s", filepath.Base(path))
	}
	if rest := len(paths) - shown; rest > 0 {
		p.Line("  ... and %d more", rest)
	}
}

// Invalid lists rejected files with their errors
func (p *Printer) Invalid(what string, outcomes []FileOutcome) {
	if len(outcomes) == 0 {
		return
	}
	p.Error("%d %s", len(outcomes), what)
	shown := p.cap(len(outcomes), MaxInvalidShown)
	for _, o := range outcomes[:shown] {
		name := filepath.Base(o.Label)
		if o.Label == "" || o.Kind == types.CorruptedImage {
			name = filepath.Base(o.Image)
		}
		p.Line("  %s:", name)
		n := p.cap(len(o.Errors), MaxIssuesPerFile)
		for _, e := range o.Errors[:n] {
			p.Line("    - %s", e)
		}
		if rest := len(o.Errors) - n; rest > 0 {
			p.Line("    ... and %d more errors", rest)
		}
	}
	if rest := len(outcomes) - shown; rest > 0 {
		p.Line("  ... and %d more files", rest)
	}
}

// Distribution prints the class table with proportional bars and the imbalance verdict
func (p *Printer) Distribution(title string, s distribution.Stats, name func(int) string) {
	p.Line("")
	p.Line("%s:", title)
	p.Rule()
	for id, count := range s.Counts {
		pct := 0.0
		if s.Total > 0 {
			pct = float64(count) / float64(s.Total) * 100
		}
		bar := strings.Repeat("█", int(pct/2))
		p.Line("%-15s | %5d (%5.1f%%) %s", name(id), count, pct, bar)
	}
	p.Rule()
	p.Line("%-15s | %5d", "Total", s.Total)
	p.Line("")

	if len(s.ZeroClasses) > 0 {
		names := make([]string, len(s.ZeroClasses))
		for i, id := range s.ZeroClasses {
			names[i] = name(id)
		}
		p.Error("Some classes have no samples: %s", strings.Join(names, ", "))
	}
	if s.Imbalanced {
		p.Warning("Class imbalance detected (ratio: %.1f:1)", s.Ratio)
		p.Info("Consider data augmentation or weighted loss")
	}
}

// ImageSizes prints the size range of the checked images
func (p *Printer) ImageSizes(s analyzer.Summary) {
	if s.Count == 0 {
		return
	}
	p.Info("Image sizes: %dx%d to %dx%d (mean %.0fx%.0f, aspect %.2f)",
		s.MinWidth, s.MinHeight, s.MaxWidth, s.MaxHeight, s.MeanWidth, s.MeanHeight, s.MeanAspectRatio)
	if s.Small > 0 {
		p.Warning("%d images are smaller than the minimum size", s.Small)
	}
}

// Statistics prints the processing summary of a preprocessing run
func (p *Printer) Statistics(t Tally) {
	sep := strings.Repeat("=", 60)
	p.Line("")
	p.Line("%s", sep)
	p.Line("Processing statistics")
	p.Line("%s", sep)
	p.Line("%-18s%d", "Total images:", t.Total)
	p.Line("%-18s%d", "Valid images:", t.Valid)
	p.Line("%-18s%d", "Corrupted images:", t.CorruptedImages)
	p.Line("%-18s%d", "Converted to RGB:", t.Converted)
	p.Line("%-18s%d", "Invalid labels:", t.InvalidLabels)
	p.Line("%-18s%d", "Missing labels:", t.MissingLabels)
	if t.PartialLabels > 0 {
		p.Line("%-18s%d", "Lines dropped in:", t.PartialLabels)
	}
	if t.WriteFailures > 0 {
		p.Line("%-18s%d", "Write failures:", t.WriteFailures)
	}
	p.Line("%s", strings.Repeat("-", 60))
	p.Line("%-18s%d", "Train:", t.Train)
	p.Line("%-18s%d", "Val:", t.Val)
	p.Line("%s", sep)
}
