package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Workbook sheet names.
const (
	SheetRecords = "Records"
	SheetPGI     = "PGI"
	SheetGroups  = "Groups"
	SheetMatrix  = "Matrix"
	SheetChecks  = "Checks"
)

// WriteWorkbook writes d as an XLSX workbook with one sheet per view.
// Undefined PGI cells hold the text "insufficient data" rather than 0.
func WriteWorkbook(w io.Writer, d Data) error {
	f := excelize.NewFile()
	defer f.Close()

	wb := &workbook{f: f}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("report: xlsx style: %w", err)
	}
	wb.header = bold

	f.SetSheetName("Sheet1", SheetRecords)
	for _, name := range []string{SheetPGI, SheetGroups, SheetMatrix, SheetChecks} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("report: xlsx sheet %q: %w", name, err)
		}
	}

	// Records: the dataset exactly as exported.
	wb.row(SheetRecords, 1, true, "index", "fungus", "isolate", "inhibition_zone_mm", "control_mm", "concentration_cfu_ml", "notes", "image_path")
	for i, r := range d.Records {
		wb.row(SheetRecords, i+2, false, i, r.Fungus, r.Isolate, r.InhibitionZoneMm, r.ControlMm, r.ConcentrationCfuPerMl, r.Notes, r.ImagePath)
	}

	wb.row(SheetPGI, 1, true, "index", "isolate", "fungus", "inhibition_zone_mm", "control_mm", "pgi_pct")
	for i, r := range d.Rows {
		var pgi any = InsufficientData
		if r.PGI != nil {
			pgi = *r.PGI
		}
		wb.row(SheetPGI, i+2, false, r.Index, r.Isolate, r.Fungus, r.InhibitionZoneMm, r.ControlMm, pgi)
	}

	wb.row(SheetGroups, 1, true, d.GroupBy.String(), "count", "defined", "excluded", "mean_pgi", "std", "min", "max", "best", "worst")
	for i, g := range d.Table.Groups {
		if g.Sufficient {
			wb.row(SheetGroups, i+2, false, g.Key, g.Count, g.Defined, g.Excluded, g.Mean, g.Std, g.Min, g.Max, g.Best, g.Worst)
		} else {
			wb.row(SheetGroups, i+2, false, g.Key, g.Count, g.Defined, g.Excluded, InsufficientData)
		}
	}

	m := d.Matrix
	header := []any{"isolate \\ fungus"}
	for _, fu := range m.Fungi {
		header = append(header, fu)
	}
	wb.row(SheetMatrix, 1, true, header...)
	for i, iso := range m.Isolates {
		vals := []any{iso}
		for _, c := range m.Cells[i] {
			switch {
			case c.Count == 0:
				vals = append(vals, nil)
			case !c.Sufficient:
				vals = append(vals, InsufficientData)
			default:
				vals = append(vals, c.Mean)
			}
		}
		wb.row(SheetMatrix, i+2, false, vals...)
	}

	wb.row(SheetChecks, 1, true, "rule", "severity", "index", "isolate", "fungus", "value")
	for i, fd := range d.Findings {
		wb.row(SheetChecks, i+2, false, fd.Rule, fd.Severity, fd.Index, fd.Isolate, fd.Fungus, fd.Value)
	}

	for _, name := range []string{SheetRecords, SheetPGI, SheetGroups, SheetMatrix, SheetChecks} {
		if err := f.SetColWidth(name, "A", "J", 16); err != nil {
			wb.fail(err)
		}
	}
	if wb.err != nil {
		return fmt.Errorf("report: xlsx: %w", wb.err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("report: write xlsx: %w", err)
	}
	return nil
}

// workbook keeps the first cell error so row writes stay one-liners.
type workbook struct {
	f      *excelize.File
	header int
	err    error
}

func (wb *workbook) fail(err error) {
	if wb.err == nil {
		wb.err = err
	}
}

func (wb *workbook) row(sheet string, row int, header bool, vals ...any) {
	if wb.err != nil || len(vals) == 0 {
		return
	}
	for col, v := range vals {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			wb.fail(err)
			return
		}
		if err := wb.f.SetCellValue(sheet, cell, v); err != nil {
			wb.fail(err)
			return
		}
	}
	if header {
		first, _ := excelize.CoordinatesToCellName(1, row)
		last, _ := excelize.CoordinatesToCellName(len(vals), row)
		wb.fail(wb.f.SetCellStyle(sheet, first, last, wb.header))
	}
}
