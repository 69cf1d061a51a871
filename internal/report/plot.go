package report

import (
	"errors"
	"fmt"
	"image/color"
	"math/rand/v2"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"rtbench/internal/analysis"
)

// ErrNoData is returned when a figure would be empty.
var ErrNoData = errors.New("no data to plot")

// Figure holds the labels and output size of one plot. The file format
// follows the extension of the path passed to the plot functions.
type Figure struct {
	Title    string
	XLabel   string
	YLabel   string
	Annotate bool
	Width    vg.Length
	Height   vg.Length
}

func (f Figure) size() (vg.Length, vg.Length) {
	w, h := f.Width, f.Height
	if w == 0 {
		w = 12 * vg.Inch
	}
	if h == 0 {
		h = 8 * vg.Inch
	}
	return w, h
}

var palette = []color.Color{
	color.RGBA{141, 211, 199, 255},
	color.RGBA{251, 128, 114, 255},
	color.RGBA{128, 177, 211, 255},
	color.RGBA{253, 180, 98, 255},
	color.RGBA{179, 222, 105, 255},
	color.RGBA{188, 128, 189, 255},
}

func colorFor(i int) color.Color { return palette[i%len(palette)] }

// layout assigns x positions to groups and slots to datasets.
type layout struct {
	groups   []string
	datasets []string
	slot     float64
}

func newLayout(points []analysis.Labeled, order []string) layout {
	present := analysis.DatasetOrder(points)
	var datasets []string
	for _, d := range order {
		for _, p := range present {
			if p == d {
				datasets = append(datasets, d)
			}
		}
	}
	for _, p := range present {
		found := false
		for _, d := range datasets {
			found = found || d == p
		}
		if !found {
			datasets = append(datasets, p)
		}
	}
	return layout{
		groups:   analysis.GroupOrder(points),
		datasets: datasets,
		slot:     0.8 / float64(max(len(datasets), 1)),
	}
}

func (l layout) x(group, dataset int) float64 {
	return float64(group) + (float64(dataset)-float64(len(l.datasets)-1)/2)*l.slot
}

func (l layout) values(points []analysis.Labeled) map[[2]int]plotter.Values {
	gi := make(map[string]int, len(l.groups))
	for i, g := range l.groups {
		gi[g] = i
	}
	di := make(map[string]int, len(l.datasets))
	for i, d := range l.datasets {
		di[d] = i
	}
	out := make(map[[2]int]plotter.Values)
	for _, p := range points {
		k := [2]int{gi[p.Group], di[p.Dataset]}
		out[k] = append(out[k], float64(p.Value))
	}
	return out
}

func newPlot(fig Figure) *plot.Plot {
	p := plot.New()
	p.Title.Text = fig.Title
	p.X.Label.Text = fig.XLabel
	p.Y.Label.Text = fig.YLabel
	p.X.Tick.Label.Rotation = 0.785
	p.X.Tick.Label.XAlign = draw.XRight
	p.Legend.Top = true
	return p
}

func legendSwatch(c color.Color) (*plotter.Scatter, error) {
	s, err := plotter.NewScatter(plotter.XYs{{}})
	if err != nil {
		return nil, err
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Shape = draw.BoxGlyph{}
	s.GlyphStyle.Radius = vg.Points(4)
	return s, nil
}

func annotate(p *plot.Plot, l layout, vals map[[2]int]plotter.Values) error {
	var xys plotter.XYs
	var labels []string
	for k, v := range vals {
		s, ok := analysis.Summarize(v)
		if !ok {
			continue
		}
		xys = append(xys, plotter.XY{X: l.x(k[0], k[1]), Y: s.Max})
		label := fmt.Sprintf("Mean: %.2f\nSTD: %.2f\nMax: %.0f", s.Mean, s.Std, s.Max)
		if l.datasets[k[1]] != "" {
			label = l.datasets[k[1]] + "\n" + label
		}
		labels = append(labels, label)
	}
	if len(xys) == 0 {
		return nil
	}
	lbl, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return err
	}
	p.Add(lbl)
	return nil
}

func buildBoxPlot(fig Figure, points []analysis.Labeled, order []string) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, ErrNoData
	}
	l := newLayout(points, order)
	vals := l.values(points)
	p := newPlot(fig)
	width := vg.Points(max(6, 60*l.slot))
	for di, ds := range l.datasets {
		for gi := range l.groups {
			v := vals[[2]int{gi, di}]
			if len(v) == 0 {
				continue
			}
			box, err := plotter.NewBoxPlot(width, l.x(gi, di), v)
			if err != nil {
				return nil, fmt.Errorf("box %s/%s: %w", l.groups[gi], ds, err)
			}
			box.FillColor = colorFor(di)
			p.Add(box)
		}
		if ds == "" {
			continue
		}
		sw, err := legendSwatch(colorFor(di))
		if err != nil {
			return nil, err
		}
		p.Legend.Add(ds, sw)
	}
	if fig.Annotate {
		if err := annotate(p, l, vals); err != nil {
			return nil, err
		}
	}
	p.NominalX(l.groups...)
	return p, nil
}

// BoxPlot draws one box per (group, dataset). order fixes the dataset
// slot and color; datasets without points are skipped.
func BoxPlot(path string, fig Figure, points []analysis.Labeled, order []string) error {
	p, err := buildBoxPlot(fig, points, order)
	if err != nil {
		return err
	}
	w, h := fig.size()
	return p.Save(w, h, path)
}

// Sample returns at most limit points chosen with a seeded generator.
// Order of the input is preserved.
func Sample(points []analysis.Labeled, limit int, seed uint64) []analysis.Labeled {
	if limit <= 0 || len(points) <= limit {
		return points
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	keep := make([]bool, len(points))
	for _, i := range r.Perm(len(points))[:limit] {
		keep[i] = true
	}
	out := make([]analysis.Labeled, 0, limit)
	for i, p := range points {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// StripPlot scatters every point with horizontal jitter inside its
// dataset slot. At most limit points are drawn.
func StripPlot(path string, fig Figure, points []analysis.Labeled, order []string, limit int, seed uint64) error {
	if len(points) == 0 {
		return ErrNoData
	}
	l := newLayout(points, order)
	sampled := Sample(points, limit, seed)
	r := rand.New(rand.NewPCG(seed, seed+1))

	gi := make(map[string]int, len(l.groups))
	for i, g := range l.groups {
		gi[g] = i
	}
	p := newPlot(fig)
	for di, ds := range l.datasets {
		var xys plotter.XYs
		for _, pt := range sampled {
			if pt.Dataset != ds {
				continue
			}
			jitter := (r.Float64() - 0.5) * l.slot * 0.8
			xys = append(xys, plotter.XY{X: l.x(gi[pt.Group], di) + jitter, Y: float64(pt.Value)})
		}
		if len(xys) == 0 {
			continue
		}
		s, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("strip %s: %w", ds, err)
		}
		s.GlyphStyle.Color = colorFor(di)
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add(ds, s)
	}
	if fig.Annotate {
		if err := annotate(p, l, l.values(points)); err != nil {
			return err
		}
	}
	p.NominalX(l.groups...)
	w, h := fig.size()
	return p.Save(w, h, path)
}
