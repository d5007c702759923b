// Package chart renders PGI comparison charts with gonum/plot.
//
// Five kinds are supported:
//   - bar      mean per group with ± population std error bars
//   - box      distribution of replicate values per group
//   - scatter  every replicate, with the group mean as a label
//   - hist     histogram of every record's value, 12 bins
//   - grouped  mean per counterpart, side by side within each group
//
// Options.Metric picks PGI% (the default) or the raw inhibition zone in mm.
// The zone is defined for every record, so it can be drawn where PGI is
// not; the axis label always names the metric shown.
//
// Groups without a defined value are left off the chart; a chart with no
// group left fails with types.ErrInsufficientData. Plot returns the
// *plot.Plot so callers can draw it onto their own canvas (the PDF
// report does); Render encodes it as png, svg or pdf.
package chart
