package compute

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pgilab/pgilab/pkg/types"
)

// Table is the PGI table handed to the report generator: one row per group
// plus the indices of records excluded for a zero control.
type Table struct {
	GroupBy  GroupBy     `json:"group_by"`
	Groups   []GroupStat `json:"groups"`
	Excluded []int       `json:"excluded"`
}

// BuildTable aggregates records by the given key.
func BuildTable(records []types.Record, by GroupBy) Table {
	t := Table{GroupBy: by, Groups: Aggregate(records, by), Excluded: []int{}}
	for i, r := range records {
		if _, ok := PGI(r); !ok {
			t.Excluded = append(t.Excluded, i)
		}
	}
	return t
}

// Row is one record with its PGI. PGI is nil when undefined.
type Row struct {
	Index int `json:"index"`
	types.Record
	PGI *float64 `json:"pgi"`
}

// NewRow pairs rec with its position and PGI.
func NewRow(index int, rec types.Record) Row {
	row := Row{Index: index, Record: rec}
	if v, ok := PGI(rec); ok {
		row.PGI = &v
	}
	return row
}

// Rows pairs every record with its position and PGI.
func Rows(records []types.Record) []Row {
	out := make([]Row, len(records))
	for i, r := range records {
		out[i] = NewRow(i, r)
	}
	return out
}

// Cell is one isolate × fungus entry of a Matrix. Count == 0 means the pair
// was never tested; Count > 0 with Sufficient == false means every replicate
// had a zero control.
type Cell struct {
	Count      int     `json:"count"`
	Defined    int     `json:"defined"`
	Sufficient bool    `json:"sufficient"`
	Mean       float64 `json:"mean"`
}

// Matrix holds the mean PGI of every isolate (row) against every fungus
// (column). Both axes are sorted.
type Matrix struct {
	Isolates []string `json:"isolates"`
	Fungi    []string `json:"fungi"`
	Cells    [][]Cell `json:"cells"`
}

// Cell returns the entry for the given isolate and fungus.
func (m Matrix) Cell(isolate, fungus string) (Cell, bool) {
	i := sort.SearchStrings(m.Isolates, isolate)
	j := sort.SearchStrings(m.Fungi, fungus)
	if i == len(m.Isolates) || m.Isolates[i] != isolate || j == len(m.Fungi) || m.Fungi[j] != fungus {
		return Cell{}, false
	}
	return m.Cells[i][j], true
}

// BuildMatrix pivots records into an isolate × fungus matrix of mean PGI.
func BuildMatrix(records []types.Record) Matrix {
	pairs := Aggregate(records, ByPair)

	var m Matrix
	isolates := make(map[string]int)
	fungi := make(map[string]int)
	for _, r := range records {
		if _, ok := isolates[r.Isolate]; !ok {
			isolates[r.Isolate] = 0
			m.Isolates = append(m.Isolates, r.Isolate)
		}
		if _, ok := fungi[r.Fungus]; !ok {
			fungi[r.Fungus] = 0
			m.Fungi = append(m.Fungi, r.Fungus)
		}
	}
	sort.Strings(m.Isolates)
	sort.Strings(m.Fungi)
	for i, name := range m.Isolates {
		isolates[name] = i
	}
	for j, name := range m.Fungi {
		fungi[name] = j
	}

	m.Cells = make([][]Cell, len(m.Isolates))
	for i := range m.Cells {
		m.Cells[i] = make([]Cell, len(m.Fungi))
	}
	for _, g := range pairs {
		m.Cells[isolates[g.Isolate]][fungi[g.Fungus]] = Cell{
			Count:      g.Count,
			Defined:    g.Defined,
			Sufficient: g.Sufficient,
			Mean:       g.Mean,
		}
	}
	return m
}

// Summary describes the whole dataset.
type Summary struct {
	Records    int     `json:"records"`
	Defined    int     `json:"defined"`
	Excluded   int     `json:"excluded"`
	Isolates   int     `json:"isolates"`
	Fungi      int     `json:"fungi"`
	Sufficient bool    `json:"sufficient"`
	MeanPGI    float64 `json:"mean_pgi"`
}

// Summarize counts records and distinct names and averages every defined PGI.
func Summarize(records []types.Record) Summary {
	s := Summary{Records: len(records)}
	isolates := make(map[string]struct{})
	fungi := make(map[string]struct{})
	var values []float64
	for _, r := range records {
		isolates[r.Isolate] = struct{}{}
		fungi[r.Fungus] = struct{}{}
		if v, ok := PGI(r); ok {
			values = append(values, v)
		}
	}
	s.Isolates = len(isolates)
	s.Fungi = len(fungi)
	s.Defined = len(values)
	s.Excluded = s.Records - s.Defined
	if s.Defined > 0 {
		s.Sufficient = true
		s.MeanPGI = stat.Mean(values, nil)
	}
	return s
}
