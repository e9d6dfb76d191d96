package distribution

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/menta2k/yolo-prep/internal/utils"
)

// labels returns one axis label per class, falling back to the class id
func labels(s Stats, names []string) []string {
	out := make([]string, len(s.Counts))
	for id := range s.Counts {
		if id < len(names) && names[id] != "" {
			out[id] = names[id]
		} else {
			out[id] = strconv.Itoa(id)
		}
	}
	return out
}

// RenderHTML writes an interactive bar chart of the distribution
func RenderHTML(w io.Writer, title string, s Stats, names []string) error {
	data := make([]opts.BarData, len(s.Counts))
	for id, c := range s.Counts {
		data[id] = opts.BarData{Value: c}
	}

	subtitle := fmt.Sprintf("total=%d classes=%d", s.Total, len(s.Counts))
	if s.HasRatio {
		subtitle += fmt.Sprintf(" imbalance=%.2f", s.Ratio)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1000px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "instances"}),
	)
	bar.SetXAxis(labels(s, names)).AddSeries("instances", data)

	if err := bar.Render(w); err != nil {
		return errors.Wrap(err, "failed to render chart")
	}
	return nil
}

// RenderPNG writes a static bar chart of the distribution to path
func RenderPNG(fs afero.Fs, path, title string, s Stats, names []string) error {
	if len(s.Counts) == 0 {
		return errors.New("no classes to plot")
	}

	values := make(plotter.Values, len(s.Counts))
	for id, c := range s.Counts {
		values[id] = float64(c)
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Instances"
	p.X.Label.Text = "Class"

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return errors.Wrap(err, "failed to build bar chart")
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(labels(s, names)...)

	width := 4*vg.Inch + vg.Length(len(s.Counts))*vg.Points(30)
	wt, err := p.WriterTo(width, 4*vg.Inch, "png")
	if err != nil {
		return errors.Wrap(err, "failed to render chart")
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return errors.Wrap(err, "failed to render chart")
	}
	return utils.WriteFileAtomic(fs, path, buf.Bytes(), 0o644)
}
