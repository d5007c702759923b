// Package checks evaluates per-record rules against a dataset and reports
// the records that match. The default rules flag PGI values outside
// 0–100 and records excluded from PGI for a zero control.
//
// Notifier tracks findings across dataset changes and posts an Event to
// Slack, Teams or a plain HTTP endpoint when a rule starts or stops matching
// an isolate/fungus pair.
package checks
