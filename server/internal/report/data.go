package report

import (
	"time"

	"github.com/pgilab/pgilab/pkg/types"
	"github.com/pgilab/pgilab/server/internal/chart"
	"github.com/pgilab/pgilab/server/internal/checks"
	"github.com/pgilab/pgilab/server/internal/compute"
)

// InsufficientData is printed wherever a PGI aggregate is undefined.
const InsufficientData = "insufficient data"

// Options control report content.
type Options struct {
	Title   string
	GroupBy compute.GroupBy
	Chart   chart.Kind
}

// Data is everything a report shows, computed from one record snapshot.
type Data struct {
	Title       string
	GeneratedAt time.Time
	GroupBy     compute.GroupBy
	Chart       chart.Kind

	Records  []types.Record
	Summary  compute.Summary
	Table    compute.Table
	Matrix   compute.Matrix
	Rows     []compute.Row
	Findings []checks.Finding
}

// Build computes report data for records. engine may be nil to skip checks.
func Build(records []types.Record, engine *checks.Engine, opts Options, now time.Time) Data {
	d := Data{
		Title:       opts.Title,
		GeneratedAt: now,
		GroupBy:     opts.GroupBy,
		Chart:       opts.Chart,
		Records:     records,
		Summary:     compute.Summarize(records),
		Table:       compute.BuildTable(records, opts.GroupBy),
		Matrix:      compute.BuildMatrix(records),
		Rows:        compute.Rows(records),
	}
	if d.Title == "" {
		d.Title = "PGI% Report"
	}
	if engine != nil {
		d.Findings = engine.Evaluate(records)
	}
	return d
}
