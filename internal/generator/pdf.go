package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/farmledger/export-api/internal/config"
	"github.com/farmledger/export-api/internal/report"
)

// PDF is the document strategy: a paginated layout with branding header,
// KPI summary cards, detail tables, an optional chart section and a page
// footer, exported at the page size/orientation the caller asked for.
type PDF struct {
	style config.Style
}

func NewPDF(style config.Style) *PDF {
	return &PDF{style: style}
}

func (g *PDF) Format() report.Format { return report.FormatPDF }

// Close implements io.Closer for the registry's cleanup pass; the embedded
// renderer holds no long-lived engine state.
func (g *PDF) Close() error { return nil }

func (g *PDF) Generate(ctx context.Context, bundle report.Bundle, opts report.FormatOptions, destPath string) ([]File, error) {
	files, err := g.generate(bundle, opts, destPath)
	if err != nil {
		return nil, report.NewGenerationError(report.FormatPDF, err)
	}
	return files, nil
}

func (g *PDF) generate(bundle report.Bundle, opts report.FormatOptions, destPath string) ([]File, error) {
	orientation := "P"
	if strings.EqualFold(opts.Orientation, "landscape") {
		orientation = "L"
	}
	size := "A4"
	if strings.EqualFold(opts.PageSize, "letter") {
		size = "Letter"
	}

	pdf := fpdf.New(orientation, "mm", size, "")
	pdf.SetTitle(bundle.Template().Label(), true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 8, g.style.FooterNote, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	g.header(pdf, bundle)
	g.summaryCards(pdf, bundle.Summary())

	for _, table := range bundle.Tables() {
		if len(table.Rows) == 0 {
			continue
		}
		g.table(pdf, table)
	}

	if opts.IncludeCharts && len(bundle.Charts()) > 0 {
		g.charts(pdf, bundle.Charts())
	}

	if len(bundle.Summary()) == 0 && len(bundle.Tables()) == 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 11)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 8, "No data available for the requested parameters.", "", 1, "L", false, 0, "")
	}

	if err := pdf.OutputFileAndClose(destPath); err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}
	f, err := statFile(destPath, report.FormatPDF.MimeType())
	if err != nil {
		return nil, err
	}
	return []File{f}, nil
}

func (g *PDF) header(pdf *fpdf.Fpdf, bundle report.Bundle) {
	hc := g.style.HeaderColor
	pdf.SetFillColor(hc.R, hc.G, hc.B)
	pageW, _ := pdf.GetPageSize()
	pdf.Rect(0, 0, pageW, 26, "F")

	pdf.SetY(7)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(0, 8, g.style.CompanyName, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, bundle.Template().Label()+" — "+time.Now().Format("2006-01-02"), "", 1, "L", false, 0, "")
	pdf.SetY(32)
	pdf.SetTextColor(0, 0, 0)
}

// summaryCards lays the KPI map out as a grid of three cards per row.
func (g *PDF) summaryCards(pdf *fpdf.Fpdf, kpis []report.KPI) {
	if len(kpis) == 0 {
		return
	}
	ac := g.style.AccentColor
	usable := g.usableWidth(pdf)
	const gap = 4.0
	cardW := (usable - 2*gap) / 3
	const cardH = 16.0

	left := 15.0
	x, y := left, pdf.GetY()
	for i, kpi := range kpis {
		if i > 0 && i%3 == 0 {
			x = left
			y += cardH + gap
		}
		pdf.SetFillColor(ac.R, ac.G, ac.B)
		pdf.Rect(x, y, cardW, cardH, "F")

		pdf.SetXY(x+3, y+2.5)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(90, 90, 90)
		pdf.CellFormat(cardW-6, 4, g.truncate(pdf, kpi.Label, cardW-6), "", 2, "L", false, 0, "")
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(cardW-6, 7, formatCellText(kpi.Value, kpi.Kind, g.style), "", 0, "L", false, 0, "")

		x += cardW + gap
	}
	pdf.SetXY(left, y+cardH+8)
}

func (g *PDF) table(pdf *fpdf.Fpdf, table report.Table) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, table.Name, "", 1, "L", false, 0, "")
	pdf.Ln(1)

	usable := g.usableWidth(pdf)
	colW := usable / float64(len(table.Columns))

	hc := g.style.HeaderColor
	pdf.SetFillColor(hc.R, hc.G, hc.B)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 9)
	for _, col := range table.Columns {
		pdf.CellFormat(colW, 7, g.truncate(pdf, col.Title, colW-2), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	sc := g.style.StripeColor
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 9)
	for i, row := range table.Rows {
		fill := i%2 == 1
		pdf.SetFillColor(sc.R, sc.G, sc.B)
		for c, col := range table.Columns {
			text := ""
			if c < len(row) {
				text = formatCellText(row[c], col.Kind, g.style)
			}
			align := "L"
			if col.Kind.Numeric() {
				align = "R"
			}
			pdf.CellFormat(colW, 6, g.truncate(pdf, text, colW-2), "1", 0, align, fill, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(6)
}

// charts renders each series as a labelled horizontal bar diagram; the first
// series of each chart is drawn, the rest appear in the spreadsheet export.
func (g *PDF) charts(pdf *fpdf.Fpdf, charts []report.Chart) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Charts", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	hc := g.style.HeaderColor
	usable := g.usableWidth(pdf)
	labelW := usable * 0.3
	barMax := usable*0.7 - 24

	for _, chart := range charts {
		if len(chart.Series) == 0 {
			continue
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, chart.Title, "", 1, "L", false, 0, "")

		series := chart.Series[0]
		maxVal := 0.0
		for _, v := range series.Data {
			if v > maxVal {
				maxVal = v
			}
		}
		pdf.SetFont("Helvetica", "", 9)
		for i, label := range chart.Labels {
			if i >= len(series.Data) {
				break
			}
			v := series.Data[i]
			pdf.CellFormat(labelW, 5.5, g.truncate(pdf, label, labelW-2), "", 0, "L", false, 0, "")
			barW := 0.0
			if maxVal > 0 {
				barW = barMax * (v / maxVal)
			}
			x, y := pdf.GetXY()
			pdf.SetFillColor(hc.R, hc.G, hc.B)
			pdf.Rect(x, y+1, barW, 3.5, "F")
			pdf.SetXY(x+barW+2, y)
			pdf.CellFormat(22, 5.5, formatCellText(v, report.KindNumber, g.style), "", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}
}

func (g *PDF) usableWidth(pdf *fpdf.Fpdf) float64 {
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	return pageW - left - right
}

// truncate shortens text to fit a cell width, appending an ellipsis.
func (g *PDF) truncate(pdf *fpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 1 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
