package chart

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/pgilab/pgilab/pkg/types"
	"github.com/pgilab/pgilab/server/internal/compute"
)

// Kind selects the chart type.
type Kind int

const (
	KindBar Kind = iota
	KindBox
	KindScatter
	KindHist
	KindGrouped
)

// ParseKind maps "bar", "box", "scatter", "hist" and "grouped" to a Kind.
// Empty selects bar.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "bar":
		return KindBar, nil
	case "box":
		return KindBox, nil
	case "scatter":
		return KindScatter, nil
	case "hist":
		return KindHist, nil
	case "grouped":
		return KindGrouped, nil
	}
	return 0, fmt.Errorf("chart: unknown kind %q: want bar|box|scatter|hist|grouped", s)
}

func (k Kind) String() string {
	switch k {
	case KindBox:
		return "box"
	case KindScatter:
		return "scatter"
	case KindHist:
		return "hist"
	case KindGrouped:
		return "grouped"
	default:
		return "bar"
	}
}

// histBins is the bin count of KindHist.
const histBins = 12

// Format is an output encoding accepted by Render.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
	FormatPDF Format = "pdf"
)

// ParseFormat accepts png, svg and pdf. Empty selects png.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatPNG, nil
	case FormatPNG, FormatSVG, FormatPDF:
		return f, nil
	}
	return "", fmt.Errorf("chart: unknown format %q: want png|svg|pdf", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatPDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}

// Default render size.
const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 5 * vg.Inch
)

// Options selects what a chart shows.
type Options struct {
	Kind Kind

	// GroupBy is ByIsolate or ByFungus.
	GroupBy compute.GroupBy

	// Target, when set, keeps only records against one counterpart: with
	// ByIsolate it names a fungus ("isolates vs Fusarium"), with ByFungus
	// an isolate.
	Target string

	// Metric is the plotted value. MetricZone draws raw inhibition zone
	// diameters, which exist even where PGI is undefined.
	Metric compute.Metric

	// Title overrides the generated title.
	Title string
}

// Plot builds the chart for records.
func Plot(records []types.Record, opts Options) (*plot.Plot, error) {
	var axis string
	switch opts.GroupBy {
	case compute.ByIsolate:
		axis = "Isolate"
	case compute.ByFungus:
		axis = "Fungus"
	default:
		return nil, fmt.Errorf("chart: grouping %q is not supported, use isolate or fungus", opts.GroupBy)
	}

	if opts.Target != "" {
		records = filterTarget(records, opts.GroupBy, opts.Target)
		if len(records) == 0 {
			return nil, fmt.Errorf("chart: target %q: %w", opts.Target, types.ErrNotFound)
		}
	}

	p := plot.New()
	p.Title.Text = opts.Title
	if p.Title.Text == "" {
		p.Title.Text = defaultTitle(opts, axis)
	}
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = axis
	p.Y.Label.Text = opts.Metric.Label()
	p.Add(plotter.NewGrid())

	var (
		names []string
		err   error
	)
	switch opts.Kind {
	case KindHist:
		p.X.Label.Text = opts.Metric.Label()
		p.Y.Label.Text = "Records"
		err = addHist(p, records, opts.Metric)
	case KindGrouped:
		names, err = addGrouped(p, records, opts)
	default:
		var groups []compute.GroupStat
		for _, g := range compute.AggregateMetric(records, opts.GroupBy, opts.Metric) {
			if g.Sufficient {
				groups = append(groups, g)
			}
		}
		if len(groups) == 0 {
			return nil, fmt.Errorf("chart: %w", types.ErrInsufficientData)
		}
		switch opts.Kind {
		case KindBox:
			err = addBoxes(p, groups)
		case KindScatter:
			err = addScatter(p, groups)
		default:
			err = addBars(p, groups)
		}
		for _, g := range groups {
			names = append(names, g.Key)
		}
	}
	if errors.Is(err, types.ErrInsufficientData) {
		return nil, fmt.Errorf("chart: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("chart: %s: %w", opts.Kind, err)
	}

	if names != nil {
		p.NominalX(names...)
		p.X.Tick.Label.XAlign = draw.XCenter
	}
	return p, nil
}

// Render builds the chart and writes it to w in format f.
func Render(w io.Writer, records []types.Record, opts Options, f Format) error {
	p, err := Plot(records, opts)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(DefaultWidth, DefaultHeight, string(f))
	if err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("chart: write %s: %w", f, err)
	}
	return nil
}

func defaultTitle(opts Options, axis string) string {
	name := "PGI%"
	if opts.Metric == compute.MetricZone {
		name = "Inhibition zone"
	}
	var prefix string
	switch opts.Kind {
	case KindBox:
		prefix = name + " distribution"
	case KindScatter:
		prefix = name + " replicates"
	case KindHist:
		prefix = name + " histogram"
	default:
		prefix = "Mean " + name
	}
	by := strings.ToLower(axis)
	if opts.Kind == KindGrouped {
		by = "isolate and fungus"
		if opts.GroupBy == compute.ByFungus {
			by = "fungus and isolate"
		}
	}
	if opts.Target != "" {
		return fmt.Sprintf("%s: %ss vs %s", prefix, strings.ToLower(axis), opts.Target)
	}
	return fmt.Sprintf("%s by %s", prefix, by)
}

func filterTarget(records []types.Record, by compute.GroupBy, target string) []types.Record {
	var out []types.Record
	for _, r := range records {
		if (by == compute.ByIsolate && r.Fungus == target) || (by == compute.ByFungus && r.Isolate == target) {
			out = append(out, r)
		}
	}
	return out
}

// meanErrors feeds NewYErrorBars: points from XYs, whiskers from YErrors.
type meanErrors struct {
	plotter.XYs
	plotter.YErrors
}

func addBars(p *plot.Plot, groups []compute.GroupStat) error {
	means := make(plotter.Values, len(groups))
	errs := meanErrors{
		XYs:     make(plotter.XYs, len(groups)),
		YErrors: make(plotter.YErrors, len(groups)),
	}
	for i, g := range groups {
		means[i] = g.Mean
		errs.XYs[i] = plotter.XY{X: float64(i), Y: g.Mean}
		errs.YErrors[i].Low = g.Std
		errs.YErrors[i].High = g.Std
	}

	bars, err := plotter.NewBarChart(means, vg.Points(24))
	if err != nil {
		return err
	}
	bars.Color = plotutil.Color(0)
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)

	eb, err := plotter.NewYErrorBars(errs)
	if err != nil {
		return err
	}
	p.Add(eb)
	return nil
}

func addBoxes(p *plot.Plot, groups []compute.GroupStat) error {
	for i, g := range groups {
		box, err := plotter.NewBoxPlot(vg.Points(24), float64(i), plotter.Values(g.Values))
		if err != nil {
			return fmt.Errorf("group %q: %w", g.Key, err)
		}
		box.FillColor = plotutil.Color(i)
		p.Add(box)
	}
	return nil
}

func addScatter(p *plot.Plot, groups []compute.GroupStat) error {
	var pts plotter.XYs
	means := plotter.XYLabels{
		XYs:    make([]plotter.XY, len(groups)),
		Labels: make([]string, len(groups)),
	}
	for i, g := range groups {
		for _, v := range g.Values {
			pts = append(pts, plotter.XY{X: float64(i), Y: v})
		}
		means.XYs[i] = plotter.XY{X: float64(i), Y: g.Mean}
		means.Labels[i] = strconv.FormatFloat(g.Mean, 'f', 1, 64)
	}

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	sc.GlyphStyle.Radius = vg.Points(3)
	sc.GlyphStyle.Color = plotutil.Color(0)
	p.Add(sc)

	labels, err := plotter.NewLabels(means)
	if err != nil {
		return err
	}
	labels.Offset = vg.Point{X: vg.Points(6)}
	p.Add(labels)
	return nil
}

func addHist(p *plot.Plot, records []types.Record, m compute.Metric) error {
	var vals plotter.Values
	for _, r := range records {
		if v, ok := m.Value(r); ok {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return types.ErrInsufficientData
	}
	h, err := plotter.NewHist(vals, histBins)
	if err != nil {
		return err
	}
	h.FillColor = plotutil.Color(0)
	p.Add(h)
	return nil
}

// addGrouped draws one bar per (group, counterpart) cell with a defined
// mean, side by side within each group, one colour per counterpart.
// Cells without a defined mean are left empty rather than drawn at 0.
func addGrouped(p *plot.Plot, records []types.Record, opts Options) ([]string, error) {
	type cell struct {
		x, series string
		mean      float64
	}
	var cells []cell
	xs := map[string]struct{}{}
	series := map[string]struct{}{}
	for _, g := range compute.AggregateMetric(records, compute.ByPair, opts.Metric) {
		if !g.Sufficient {
			continue
		}
		c := cell{x: g.Isolate, series: g.Fungus, mean: g.Mean}
		if opts.GroupBy == compute.ByFungus {
			c.x, c.series = g.Fungus, g.Isolate
		}
		cells = append(cells, c)
		xs[c.x] = struct{}{}
		series[c.series] = struct{}{}
	}
	if len(cells) == 0 {
		return nil, types.ErrInsufficientData
	}

	xNames, seriesNames := sortedSet(xs), sortedSet(series)
	xPos := make(map[string]int, len(xNames))
	for i, n := range xNames {
		xPos[n] = i
	}
	sPos := make(map[string]int, len(seriesNames))
	for i, n := range seriesNames {
		sPos[n] = i
	}

	width := vg.Points(48) / vg.Length(len(seriesNames))
	if width < vg.Points(4) {
		width = vg.Points(4)
	}
	legend := make([]plot.Thumbnailer, len(seriesNames))
	for _, c := range cells {
		si := sPos[c.series]
		bar, err := plotter.NewBarChart(plotter.Values{c.mean}, width)
		if err != nil {
			return nil, err
		}
		bar.XMin = float64(xPos[c.x])
		bar.Offset = (vg.Length(si) - vg.Length(len(seriesNames)-1)/2) * width
		bar.Color = plotutil.Color(si)
		bar.LineStyle.Width = vg.Length(0)
		p.Add(bar)
		if legend[si] == nil {
			legend[si] = bar
		}
	}
	for i, n := range seriesNames {
		p.Legend.Add(n, legend[i])
	}
	p.Legend.Top = true
	return xNames, nil
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
