package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pgilab/pgilab/pkg/types"
)

// ErrMissingColumn is returned when the header row lacks a required column.
// Every data row would fail in that case, so the import is rejected whole.
var ErrMissingColumn = errors.New("missing required column")

// Codec reads and writes the delimited text format.
// The zero value uses a comma.
type Codec struct {
	Comma rune
}

// ImportResult is the outcome of parsing one tabular file. Records holds the
// rows that parsed and validated; Errors holds one entry per rejected row.
type ImportResult struct {
	Records []types.Record   `json:"-"`
	Errors  []types.RowError `json:"errors"`
}

func (c Codec) comma() rune {
	if c.Comma == 0 {
		return ','
	}
	return c.Comma
}

// Parse reads a header row followed by data rows. Columns are located by
// header name, case-insensitively, so extra or reordered columns are
// tolerated. The optional notes and image_path columns are read when
// present. Malformed rows are reported in the result and never abort the
// parse; only an unreadable header or a missing required column is fatal.
func (c Codec) Parse(r io.Reader) (ImportResult, error) {
	reader := csv.NewReader(r)
	reader.Comma = c.comma()
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = reader.Comma != '\t'

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ImportResult{}, fmt.Errorf("dataset: parse: empty input, header row required")
		}
		return ImportResult{}, fmt.Errorf("dataset: parse header: %w", err)
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	idx := make([]int, len(types.Columns))
	for i, col := range types.Columns {
		p, ok := pos[col]
		if !ok {
			return ImportResult{}, fmt.Errorf("dataset: parse header: %w %q", ErrMissingColumn, col)
		}
		idx[i] = p
	}
	opt := make([]int, len(types.OptionalColumns))
	for i, col := range types.OptionalColumns {
		opt[i] = -1
		if p, ok := pos[col]; ok {
			opt[i] = p
		}
	}

	var res ImportResult
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				res.Errors = append(res.Errors, types.RowError{Line: pe.StartLine, Reason: pe.Err.Error()})
				continue
			}
			return res, fmt.Errorf("dataset: parse: %w", err)
		}
		line, _ := reader.FieldPos(0)

		rec, rowErr := decodeRow(row, idx, opt)
		if rowErr != nil {
			rowErr.Line = line
			res.Errors = append(res.Errors, *rowErr)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// decodeRow maps one CSV row onto a Record using the column positions in idx,
// which follow types.Columns order, and opt, which follows
// types.OptionalColumns with -1 for an absent column.
func decodeRow(row []string, idx, opt []int) (types.Record, *types.RowError) {
	optional := func(i int) string {
		if opt[i] < 0 || opt[i] >= len(row) {
			return ""
		}
		return row[opt[i]]
	}
	field := func(i int) (string, *types.RowError) {
		col := types.Columns[i]
		if idx[i] >= len(row) {
			return "", &types.RowError{Column: col, Reason: "missing column"}
		}
		return strings.TrimSpace(row[idx[i]]), nil
	}
	number := func(i int) (float64, *types.RowError) {
		s, rowErr := field(i)
		if rowErr != nil {
			return 0, rowErr
		}
		if s == "" {
			return 0, &types.RowError{Column: types.Columns[i], Reason: "missing value"}
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, &types.RowError{Column: types.Columns[i], Reason: fmt.Sprintf("not a number: %q", s)}
		}
		return v, nil
	}

	var rec types.Record
	var rowErr *types.RowError
	if rec.Fungus, rowErr = field(0); rowErr != nil {
		return rec, rowErr
	}
	if rec.Isolate, rowErr = field(1); rowErr != nil {
		return rec, rowErr
	}
	if rec.InhibitionZoneMm, rowErr = number(2); rowErr != nil {
		return rec, rowErr
	}
	if rec.ControlMm, rowErr = number(3); rowErr != nil {
		return rec, rowErr
	}
	if rec.ConcentrationCfuPerMl, rowErr = number(4); rowErr != nil {
		return rec, rowErr
	}
	rec.Notes = optional(0)
	rec.ImagePath = optional(1)

	rec = rec.Normalize()
	if err := rec.Validate(); err != nil {
		var ve *types.ValidationError
		if errors.As(err, &ve) {
			return rec, &types.RowError{Column: ve.Field, Reason: ve.Reason}
		}
		return rec, &types.RowError{Reason: err.Error()}
	}
	return rec, nil
}

// Write serializes records under the fixed header. Numbers use the shortest
// representation that parses back to the identical float64. The optional
// columns are appended only when some record has notes or an image path.
func (c Codec) Write(w io.Writer, records []types.Record) error {
	cw := csv.NewWriter(w)
	cw.Comma = c.comma()

	extras := false
	for _, r := range records {
		if r.HasExtras() {
			extras = true
			break
		}
	}
	header := types.Columns
	if extras {
		header = append(append([]string(nil), types.Columns...), types.OptionalColumns...)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("dataset: write header: %w", err)
	}
	for i, r := range records {
		row := []string{
			r.Fungus,
			r.Isolate,
			formatFloat(r.InhibitionZoneMm),
			formatFloat(r.ControlMm),
			formatFloat(r.ConcentrationCfuPerMl),
		}
		if extras {
			row = append(row, r.Notes, r.ImagePath)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("dataset: write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("dataset: flush: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseDelimiter converts a configured delimiter string into a rune.
// "\t" and "tab" both select a tab.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "", ",":
		return ',', nil
	case ";":
		return ';', nil
	case "\t", `\t`, "tab":
		return '\t', nil
	case "|":
		return '|', nil
	}
	return 0, fmt.Errorf("dataset: unsupported delimiter %q", s)
}
