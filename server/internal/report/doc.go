// Package report assembles the downloadable outputs: an A4 PDF report
// drawn with gonum/plot's vgpdf backend and an XLSX workbook written with
// excelize.
//
// Both take a Data value built once from a record snapshot, so the PDF and
// the workbook produced from the same snapshot always agree.
package report
