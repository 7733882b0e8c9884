// Package plot renders diagnostic charts of a reduced cycle stream: a PNG
// of each channel pair with gonum/plot and an interactive HTML page with
// go-echarts. Phase boundaries are drawn as vertical markers.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/fatigue.report/internal/fatigue/l1records"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("plot: no records")

// Series holds the per-cycle channels of a reduced stream.
type Series struct {
	Cycle   []float64
	PosDisp []float64
	NegDisp []float64
	PosLoad []float64
	NegLoad []float64
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.Cycle) }

// Marker is a vertical line at a cycle id.
type Marker struct {
	Label string
	Cycle float64
}

// Collect reads r to the end. The reduced stream carries one record per
// cycle, so the series stays proportional to the cycle count.
func Collect(r *l1records.Reader) (Series, error) {
	var s Series
	for {
		rec, _, err := r.Next()
		if err == io.EOF {
			return s, nil
		}
		if err != nil {
			return s, err
		}
		s.Cycle = append(s.Cycle, rec.Cycle())
		s.PosDisp = append(s.PosDisp, rec.PosDisp())
		s.NegDisp = append(s.NegDisp, rec.NegDisp())
		s.PosLoad = append(s.PosLoad, rec.PosLoad())
		s.NegLoad = append(s.NegLoad, rec.NegLoad())
	}
}

var (
	posColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	negColor    = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	markerColor = color.RGBA{R: 90, G: 90, B: 90, A: 255}
)

// Channel selects which pair of columns a chart shows.
type Channel int

const (
	Displacement Channel = iota
	Load
)

func (c Channel) String() string {
	if c == Load {
		return "Load"
	}
	return "Displacement"
}

func (s Series) pair(c Channel) (pos, neg []float64) {
	if c == Load {
		return s.PosLoad, s.NegLoad
	}
	return s.PosDisp, s.NegDisp
}

func (s Series) xys(ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(ys))
	for i, y := range ys {
		pts[i] = plotter.XY{X: s.Cycle[i], Y: y}
	}
	return pts
}

// WritePNG draws one channel pair over cycle id and encodes it as PNG.
func WritePNG(w io.Writer, title string, s Series, c Channel, marks []Marker) error {
	if s.Len() == 0 {
		return ErrNoData
	}
	pos, neg := s.pair(c)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - %s", title, c)
	p.X.Label.Text = "Cycle"
	p.Y.Label.Text = c.String()

	posLine, err := plotter.NewLine(s.xys(pos))
	if err != nil {
		return fmt.Errorf("positive line: %w", err)
	}
	posLine.Color = posColor
	posLine.Width = vg.Points(1)
	p.Add(posLine)
	p.Legend.Add("positive", posLine)

	negLine, err := plotter.NewLine(s.xys(neg))
	if err != nil {
		return fmt.Errorf("negative line: %w", err)
	}
	negLine.Color = negColor
	negLine.Width = vg.Points(1)
	p.Add(negLine)
	p.Legend.Add("negative", negLine)

	lo := min(floats.Min(pos), floats.Min(neg))
	hi := max(floats.Max(pos), floats.Max(neg))
	for _, m := range marks {
		ml, err := plotter.NewLine(plotter.XYs{{X: m.Cycle, Y: lo}, {X: m.Cycle, Y: hi}})
		if err != nil {
			return fmt.Errorf("marker %s: %w", m.Label, err)
		}
		ml.Color = markerColor
		ml.Width = vg.Points(1)
		ml.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(ml)
		p.Legend.Add(m.Label, ml)
	}

	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// WriteHTML renders both channel pairs as an interactive page.
func WriteHTML(w io.Writer, title string, s Series, marks []Marker) error {
	if s.Len() == 0 {
		return ErrNoData
	}

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(
		s.scatter(title, Displacement, marks),
		s.scatter(title, Load, marks),
	)
	return page.Render(w)
}

func (s Series) scatter(title string, c Channel, marks []Marker) *charts.Scatter {
	pos, neg := s.pair(c)

	sc := charts.NewScatter()
	sc.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s - %s", title, c), Subtitle: fmt.Sprintf("cycles=%d", s.Len())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Cycle", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: c.String(), NameLocation: "middle", NameGap: 40}),
	)

	sc.AddSeries("positive", s.points(pos), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	sc.AddSeries("negative", s.points(neg), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	// markers are drawn at the positive channel value of their cycle
	for _, m := range marks {
		pts := make([]opts.ScatterData, 0, 2)
		for i, cy := range s.Cycle {
			if cy == m.Cycle {
				pts = append(pts, opts.ScatterData{Value: []interface{}{cy, pos[i]}}, opts.ScatterData{Value: []interface{}{cy, neg[i]}})
				break
			}
		}
		sc.AddSeries(m.Label, pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	}
	return sc
}

func (s Series) points(ys []float64) []opts.ScatterData {
	pts := make([]opts.ScatterData, len(ys))
	for i, y := range ys {
		pts[i] = opts.ScatterData{Value: []interface{}{s.Cycle[i], y}}
	}
	return pts
}
