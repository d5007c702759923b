package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"

	xfont "golang.org/x/image/font"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgpdf"

	"github.com/pgilab/pgilab/pkg/types"
	"github.com/pgilab/pgilab/server/internal/chart"
	"github.com/pgilab/pgilab/server/internal/compute"
)

// A4 in points.
const (
	pageWidth  = 595
	pageHeight = 842
	margin     = 36
)

const formula = "PGI% = (KR - R1) / KR × 100, where KR = control_mm and R1 = inhibition_zone_mm"

// WritePDF renders d as a multi-page A4 document.
func WritePDF(w io.Writer, d Data) error {
	doc := newPDFDoc()

	doc.text(doc.title, d.Title)
	doc.advance(8)
	doc.text(doc.small, "Generated "+d.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	doc.advance(6)

	doc.heading("Dataset summary")
	s := d.Summary
	doc.text(doc.body, fmt.Sprintf("Records: %d (PGI defined: %d, excluded: %d)", s.Records, s.Defined, s.Excluded))
	doc.text(doc.body, fmt.Sprintf("Isolates: %d   Fungi: %d", s.Isolates, s.Fungi))
	overall := InsufficientData
	if s.Sufficient {
		overall = fmtPct(s.MeanPGI)
	}
	doc.text(doc.body, "Overall mean PGI%: "+overall)
	doc.text(doc.small, formula)

	doc.heading("PGI by " + d.GroupBy.String())
	cols := []vg.Length{0, 170, 240, 290, 325, 380}
	doc.row(doc.bold, cols, "Group", "Mean PGI%", "Std", "n", "Defined", "Best / worst")
	for _, g := range d.Table.Groups {
		mean, std := InsufficientData, ""
		if g.Sufficient {
			mean, std = fmtPct(g.Mean), fmtPct(g.Std)
		}
		bw := ""
		if g.Best != "" {
			bw = clip(g.Best, 14) + " / " + clip(g.Worst, 14)
		}
		doc.row(doc.body, cols, clip(g.Key, 30), mean, std, strconv.Itoa(g.Count), strconv.Itoa(g.Defined), bw)
	}
	if len(d.Table.Excluded) > 0 {
		doc.advance(4)
		doc.text(doc.small, fmt.Sprintf("Excluded (control_mm = 0): %d, indexes %s", len(d.Table.Excluded), joinInts(d.Table.Excluded)))
	}

	doc.heading("Isolate × fungus mean PGI%")
	writeMatrix(doc, d.Matrix)

	doc.heading("Checks")
	if len(d.Findings) == 0 {
		doc.text(doc.body, "No findings.")
	}
	for _, f := range d.Findings {
		doc.text(doc.small, fmt.Sprintf("- [%s] %s: index %d (%s vs %s), %s",
			f.Severity, f.Rule, f.Index, f.Isolate, f.Fungus, fmtPct(f.Value)))
	}

	groupings := []compute.GroupBy{compute.ByIsolate, compute.ByFungus}
	if d.Chart == chart.KindHist {
		// A histogram does not depend on the grouping.
		groupings = groupings[:1]
	}
	for _, by := range groupings {
		if err := doc.chart(d.Records, chart.Options{Kind: d.Chart, GroupBy: by}); err != nil {
			return err
		}
	}

	if _, err := doc.c.WriteTo(w); err != nil {
		return fmt.Errorf("report: write pdf: %w", err)
	}
	return nil
}

func writeMatrix(doc *pdfDoc, m compute.Matrix) {
	if len(m.Isolates) == 0 {
		doc.text(doc.body, "No records.")
		return
	}
	// Wide matrices are split into column blocks that fit the page.
	const perBlock = 6
	colW := vg.Length(pageWidth-2*margin) / (perBlock + 1)
	for start := 0; start < len(m.Fungi); start += perBlock {
		end := start + perBlock
		if end > len(m.Fungi) {
			end = len(m.Fungi)
		}
		cols := make([]vg.Length, end-start+1)
		for i := range cols {
			cols[i] = vg.Length(i) * colW
		}
		header := append([]string{"Isolate"}, clipAll(m.Fungi[start:end], 12)...)
		doc.row(doc.bold, cols, header...)
		for i, iso := range m.Isolates {
			cells := []string{clip(iso, 12)}
			for j := start; j < end; j++ {
				cells = append(cells, cellText(m.Cells[i][j]))
			}
			doc.row(doc.body, cols, cells...)
		}
		doc.advance(6)
	}
}

func cellText(c compute.Cell) string {
	switch {
	case c.Count == 0:
		return ""
	case !c.Sufficient:
		return "n/a"
	default:
		return fmtPct(c.Mean)
	}
}

// pdfDoc lays out text top to bottom and starts a new page when the
// cursor reaches the bottom margin.
type pdfDoc struct {
	c  *vgpdf.Canvas
	dc draw.Canvas
	y  vg.Length

	title, bold, body, small text.Style
}

func newPDFDoc() *pdfDoc {
	c := vgpdf.New(pageWidth, pageHeight)
	style := func(size vg.Length, weight xfont.Weight) text.Style {
		fnt := font.From(plot.DefaultFont, size)
		fnt.Weight = weight
		return text.Style{
			Color:   color.Black,
			Font:    fnt,
			YAlign:  text.YTop,
			Handler: plot.DefaultTextHandler,
		}
	}
	return &pdfDoc{
		c:     c,
		dc:    draw.New(c),
		y:     pageHeight - margin,
		title: style(18, xfont.WeightBold),
		bold:  style(9, xfont.WeightBold),
		body:  style(9, xfont.WeightNormal),
		small: style(8, xfont.WeightNormal),
	}
}

func (d *pdfDoc) lineHeight(sty text.Style) vg.Length {
	return sty.Font.Size * 1.4
}

func (d *pdfDoc) advance(h vg.Length) {
	d.y -= h
}

// ensure starts a new page unless h more points fit above the margin.
func (d *pdfDoc) ensure(h vg.Length) {
	if d.y-h < margin {
		d.c.NextPage()
		d.y = pageHeight - margin
	}
}

func (d *pdfDoc) text(sty text.Style, s string) {
	h := d.lineHeight(sty)
	d.ensure(h)
	d.dc.FillText(sty, vg.Point{X: margin, Y: d.y}, s)
	d.advance(h)
}

func (d *pdfDoc) heading(s string) {
	d.advance(10)
	d.ensure(3 * d.lineHeight(d.bold))
	d.text(d.bold, s)
}

func (d *pdfDoc) row(sty text.Style, cols []vg.Length, cells ...string) {
	h := d.lineHeight(sty)
	d.ensure(h)
	for i, s := range cells {
		if i >= len(cols) {
			break
		}
		d.dc.FillText(sty, vg.Point{X: margin + cols[i], Y: d.y}, s)
	}
	d.advance(h)
}

// chart draws one chart on a fresh page, or a note when it has no data.
func (d *pdfDoc) chart(records []types.Record, opts chart.Options) error {
	const h = 330
	d.ensure(pageHeight)
	p, err := chart.Plot(records, opts)
	if errors.Is(err, types.ErrInsufficientData) {
		d.heading("Chart by " + opts.GroupBy.String())
		d.text(d.body, "Chart: "+InsufficientData)
		return nil
	}
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	area := draw.Canvas{
		Canvas: d.c,
		Rectangle: vg.Rectangle{
			Min: vg.Point{X: margin, Y: d.y - h},
			Max: vg.Point{X: pageWidth - margin, Y: d.y},
		},
	}
	p.Draw(area)
	d.advance(h + 10)
	return nil
}

func fmtPct(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func clipAll(ss []string, n int) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = clip(s, n)
	}
	return out
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
