package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tealeg/xlsx/v3"

	"github.com/farmledger/export-api/internal/config"
	"github.com/farmledger/export-api/internal/report"
)

const (
	currencyNumFmt = `#,##0.00`
	numberNumFmt   = `#,##0.00`
)

// Excel is the spreadsheet strategy: a styled summary sheet, one sheet per
// detail table, and an optional chart-data sheet.
type Excel struct {
	style config.Style
}

func NewExcel(style config.Style) *Excel {
	return &Excel{style: style}
}

func (g *Excel) Format() report.Format { return report.FormatExcel }

func (g *Excel) Generate(ctx context.Context, bundle report.Bundle, opts report.FormatOptions, destPath string) ([]File, error) {
	files, err := g.generate(bundle, opts, destPath)
	if err != nil {
		return nil, report.NewGenerationError(report.FormatExcel, err)
	}
	return files, nil
}

func (g *Excel) generate(bundle report.Bundle, opts report.FormatOptions, destPath string) ([]File, error) {
	wb := xlsx.NewFile()

	if err := g.summarySheet(wb, bundle); err != nil {
		return nil, err
	}
	for _, table := range bundle.Tables() {
		if len(table.Rows) == 0 {
			continue
		}
		if err := g.tableSheet(wb, table); err != nil {
			return nil, err
		}
	}
	if opts.IncludeCharts && len(bundle.Charts()) > 0 {
		if err := g.chartSheet(wb, bundle.Charts()); err != nil {
			return nil, err
		}
	}

	if err := wb.Save(destPath); err != nil {
		return nil, fmt.Errorf("save workbook: %w", err)
	}
	f, err := statFile(destPath, report.FormatExcel.MimeType())
	if err != nil {
		return nil, err
	}
	return []File{f}, nil
}

func (g *Excel) summarySheet(wb *xlsx.File, bundle report.Bundle) error {
	sheet, err := wb.AddSheet("Summary")
	if err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}

	title := sheet.AddRow()
	title.SetHeight(22)
	cell := title.AddCell()
	cell.SetString(fmt.Sprintf("%s — %s", g.style.CompanyName, bundle.Template().Label()))
	cell.SetStyle(g.titleStyle())

	sub := sheet.AddRow()
	sub.AddCell().SetString("Generated " + time.Now().Format("2006-01-02 15:04"))
	sheet.AddRow() // spacer

	labelStyle := g.boldStyle()
	for _, kpi := range bundle.Summary() {
		row := sheet.AddRow()
		label := row.AddCell()
		label.SetString(kpi.Label)
		label.SetStyle(labelStyle)
		g.setTypedCell(row.AddCell(), kpi.Value, kpi.Kind)
	}
	if len(bundle.Summary()) == 0 {
		row := sheet.AddRow()
		row.AddCell().SetString("No data available for the requested parameters")
	}

	// SetColWidth columns are 1-based.
	sheet.SetColWidth(1, 1, 36)
	sheet.SetColWidth(2, 2, 20)
	return nil
}

func (g *Excel) tableSheet(wb *xlsx.File, table report.Table) error {
	sheet, err := wb.AddSheet(sheetName(table.Name))
	if err != nil {
		return fmt.Errorf("add sheet %q: %w", table.Name, err)
	}

	headerStyle := g.headerStyle()
	header := sheet.AddRow()
	header.SetHeight(18)
	for _, col := range table.Columns {
		cell := header.AddCell()
		cell.SetString(col.Title)
		cell.SetStyle(headerStyle)
	}

	stripe := g.stripeStyle()
	for i, row := range table.Rows {
		r := sheet.AddRow()
		for c, col := range table.Columns {
			cell := r.AddCell()
			if c < len(row) {
				g.setTypedCell(cell, row[c], col.Kind)
			}
			// Alternating row shading on odd rows.
			if i%2 == 1 {
				cell.SetStyle(stripe)
			}
		}
	}

	g.totalsRow(sheet, table)

	// Autofilter over the header + data range.
	sheet.AutoFilter = &xlsx.AutoFilter{
		TopLeftCell:     "A1",
		BottomRightCell: fmt.Sprintf("%s%d", colRef(len(table.Columns)-1), len(table.Rows)+1),
	}

	for i, col := range table.Columns {
		width := float64(len(col.Title)) + 6
		if width < 12 {
			width = 12
		}
		sheet.SetColWidth(i+1, i+1, width)
	}
	return nil
}

// totalsRow appends a bold sum row covering every numeric column.
func (g *Excel) totalsRow(sheet *xlsx.Sheet, table report.Table) {
	hasNumeric := false
	for _, col := range table.Columns {
		if col.Kind.Numeric() {
			hasNumeric = true
			break
		}
	}
	if !hasNumeric {
		return
	}

	bold := g.boldStyle()
	row := sheet.AddRow()
	for c, col := range table.Columns {
		cell := row.AddCell()
		cell.SetStyle(bold)
		if c == 0 && !col.Kind.Numeric() {
			cell.SetString("Total")
			continue
		}
		if !col.Kind.Numeric() {
			continue
		}
		sum := 0.0
		for _, r := range table.Rows {
			if c < len(r) {
				if f, ok := asFloat(r[c]); ok {
					sum += f
				}
			}
		}
		cell.SetFloatWithFormat(sum, numberNumFmt)
	}
}

func (g *Excel) chartSheet(wb *xlsx.File, charts []report.Chart) error {
	sheet, err := wb.AddSheet("Charts")
	if err != nil {
		return fmt.Errorf("add chart sheet: %w", err)
	}

	bold := g.boldStyle()
	for _, chart := range charts {
		title := sheet.AddRow()
		cell := title.AddCell()
		cell.SetString(fmt.Sprintf("%s (%s)", chart.Title, chart.Type))
		cell.SetStyle(bold)

		header := sheet.AddRow()
		header.AddCell().SetString("Label")
		for _, s := range chart.Series {
			header.AddCell().SetString(s.Name)
		}
		for i, label := range chart.Labels {
			row := sheet.AddRow()
			row.AddCell().SetString(label)
			for _, s := range chart.Series {
				cell := row.AddCell()
				if i < len(s.Data) {
					cell.SetFloatWithFormat(s.Data[i], numberNumFmt)
				}
			}
		}
		sheet.AddRow() // spacer between charts
	}
	sheet.SetColWidth(1, 1, 24)
	return nil
}

// setTypedCell applies per-column type-aware formatting.
func (g *Excel) setTypedCell(cell *xlsx.Cell, v any, kind report.CellKind) {
	switch kind {
	case report.KindDate:
		if t, ok := v.(time.Time); ok && !t.IsZero() {
			cell.SetDate(t)
			return
		}
	case report.KindCurrency:
		if f, ok := asFloat(v); ok {
			cell.SetFloatWithFormat(f, currencyNumFmt+` "`+g.style.CurrencyCode+`"`)
			return
		}
	case report.KindNumber:
		if f, ok := asFloat(v); ok {
			cell.SetFloatWithFormat(f, numberNumFmt)
			return
		}
	case report.KindInteger:
		if n, ok := asInt(v); ok {
			cell.SetInt64(n)
			return
		}
	}
	if v == nil {
		cell.SetString("")
		return
	}
	cell.SetString(fmt.Sprintf("%v", v))
}

func (g *Excel) titleStyle() *xlsx.Style {
	st := xlsx.NewStyle()
	st.Font = *xlsx.NewFont(14, "Calibri")
	st.Font.Bold = true
	st.Font.Color = "FF" + g.style.HeaderColor.Hex()
	st.ApplyFont = true
	return st
}

func (g *Excel) boldStyle() *xlsx.Style {
	st := xlsx.NewStyle()
	st.Font = *xlsx.NewFont(11, "Calibri")
	st.Font.Bold = true
	st.ApplyFont = true
	return st
}

func (g *Excel) headerStyle() *xlsx.Style {
	st := xlsx.NewStyle()
	st.Font = *xlsx.NewFont(11, "Calibri")
	st.Font.Bold = true
	st.Font.Color = "FFFFFFFF"
	st.Fill = *xlsx.NewFill("solid", "FF"+g.style.HeaderColor.Hex(), "FF"+g.style.HeaderColor.Hex())
	st.ApplyFont = true
	st.ApplyFill = true
	return st
}

func (g *Excel) stripeStyle() *xlsx.Style {
	st := xlsx.NewStyle()
	st.Fill = *xlsx.NewFill("solid", "FF"+g.style.StripeColor.Hex(), "FF"+g.style.StripeColor.Hex())
	st.ApplyFill = true
	return st
}

// sheetName strips characters xlsx forbids and respects the 31-char limit.
func sheetName(name string) string {
	for _, bad := range []string{"[", "]", ":", "*", "?", "/", "\\"} {
		name = strings.ReplaceAll(name, bad, "")
	}
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

// colRef converts a zero-based column index to its A1-style letters.
func colRef(col int) string {
	ref := ""
	for col >= 0 {
		ref = string(rune('A'+col%26)) + ref
		col = col/26 - 1
	}
	return ref
}
