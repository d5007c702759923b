// Package compute is the PGI calculator. Every function is pure: it reads
// the record slice it is given and nothing else.
//
// pgi.go holds the per-record formula:
//
//	PGI% = (control_mm - inhibition_zone_mm) / control_mm * 100
//
// The value is undefined when control_mm is 0. Such records are excluded
// from every aggregate, and a group left with no defined value reports
// Sufficient == false rather than a mean of 0.
//
// aggregate.go groups records by isolate, fungus or (isolate, fungus) pair
// and ranks counterparts. table.go builds the report payloads (PGI table,
// isolate × fungus matrix, per-record rows, dataset summary).
//
// Ties between equal means always go to the name that sorts first.
package compute
