package report

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pgilab/pgilab/pkg/types"
	"github.com/pgilab/pgilab/server/internal/chart"
	"github.com/pgilab/pgilab/server/internal/checks"
	"github.com/pgilab/pgilab/server/internal/compute"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func sampleData(t *testing.T) Data {
	t.Helper()
	records := []types.Record{
		{Fungus: "FungusA", Isolate: "IsolateX", InhibitionZoneMm: 10, ControlMm: 20, ConcentrationCfuPerMl: 1e6, Notes: "plate 1"},
		{Fungus: "FungusA", Isolate: "IsolateY", InhibitionZoneMm: 5, ControlMm: 20, ConcentrationCfuPerMl: 1e6},
		{Fungus: "FungusB", Isolate: "IsolateZ", InhibitionZoneMm: 4, ControlMm: 0},
		{Fungus: "FungusB", Isolate: "IsolateX", InhibitionZoneMm: 30, ControlMm: 20},
	}
	engine, err := checks.New(checks.DefaultRules())
	if err != nil {
		t.Fatalf("checks.New: %v", err)
	}
	return Build(records, engine, Options{GroupBy: compute.ByIsolate, Chart: chart.KindBar}, fixedNow)
}

func TestBuild(t *testing.T) {
	d := sampleData(t)
	if d.Title != "PGI% Report" {
		t.Errorf("default title: got %q", d.Title)
	}
	if d.Summary.Records != 4 || d.Summary.Excluded != 1 {
		t.Errorf("summary: %+v", d.Summary)
	}
	if len(d.Findings) != 2 {
		t.Errorf("findings: got %d (%+v), want stimulation + zero_control", len(d.Findings), d.Findings)
	}
	if len(d.Table.Groups) != 3 || !reflect.DeepEqual(d.Table.Excluded, []int{2}) {
		t.Errorf("table: %+v", d.Table)
	}
}

func TestWritePDF(t *testing.T) {
	for _, kind := range []chart.Kind{chart.KindBar, chart.KindBox, chart.KindScatter, chart.KindHist, chart.KindGrouped} {
		d := sampleData(t)
		d.Chart = kind
		var buf bytes.Buffer
		if err := WritePDF(&buf, d); err != nil {
			t.Fatalf("WritePDF(%s): %v", kind, err)
		}
		if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
			t.Errorf("WritePDF(%s): output is not a PDF: %q", kind, buf.Bytes()[:min(buf.Len(), 16)])
		}
	}
}

func TestWritePDF_EmptyDataset(t *testing.T) {
	d := Build(nil, nil, Options{Title: "Empty"}, fixedNow)
	var buf bytes.Buffer
	if err := WritePDF(&buf, d); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("WritePDF wrote nothing")
	}
}

func TestWritePDF_ManyGroups(t *testing.T) {
	var records []types.Record
	for i := 0; i < 150; i++ {
		records = append(records, types.Record{
			Fungus:           "F" + string(rune('A'+i%9)),
			Isolate:          "Iso-" + string(rune('A'+i%26)) + string(rune('a'+i/26)),
			InhibitionZoneMm: float64(i % 20),
			ControlMm:        25,
		})
	}
	var small, large bytes.Buffer
	if err := WritePDF(&small, sampleData(t)); err != nil {
		t.Fatalf("WritePDF(small): %v", err)
	}
	if err := WritePDF(&large, Build(records, nil, Options{GroupBy: compute.ByPair}, fixedNow)); err != nil {
		t.Fatalf("WritePDF(large): %v", err)
	}
	if large.Len() <= small.Len() {
		t.Errorf("large report (%d bytes) not bigger than small one (%d bytes)", large.Len(), small.Len())
	}
}

func TestWriteWorkbook(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, sampleData(t)); err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	want := []string{SheetRecords, SheetPGI, SheetGroups, SheetMatrix, SheetChecks}
	if got := f.GetSheetList(); !reflect.DeepEqual(got, want) {
		t.Errorf("sheets: got %v, want %v", got, want)
	}

	rows, err := f.GetRows(SheetRecords)
	if err != nil {
		t.Fatalf("GetRows(Records): %v", err)
	}
	if len(rows) != 5 || rows[1][1] != "FungusA" || rows[1][3] != "10" || rows[1][6] != "plate 1" {
		t.Errorf("Records sheet: %v", rows)
	}

	rows, err = f.GetRows(SheetPGI)
	if err != nil {
		t.Fatalf("GetRows(PGI): %v", err)
	}
	if rows[1][5] != "50" {
		t.Errorf("PGI row 0: got %q, want 50", rows[1][5])
	}
	if rows[3][5] != InsufficientData {
		t.Errorf("PGI row 2: got %q, want %q", rows[3][5], InsufficientData)
	}

	rows, err = f.GetRows(SheetGroups)
	if err != nil {
		t.Fatalf("GetRows(Groups): %v", err)
	}
	// Groups are sorted: IsolateX, IsolateY, IsolateZ.
	if rows[0][0] != "isolate" || rows[3][0] != "IsolateZ" || rows[3][4] != InsufficientData {
		t.Errorf("Groups sheet: %v", rows)
	}

	rows, err = f.GetRows(SheetMatrix)
	if err != nil {
		t.Fatalf("GetRows(Matrix): %v", err)
	}
	if len(rows) != 4 || rows[0][1] != "FungusA" || rows[2][1] != "75" {
		t.Errorf("Matrix sheet: %v", rows)
	}
}
