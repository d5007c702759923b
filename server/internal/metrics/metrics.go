// Package metrics exposes the dataset and API activity as Prometheus
// metrics. Dataset gauges are computed from a store snapshot at scrape
// time, so they never drift from the records.
package metrics

import (
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/pgilab/pgilab/pkg/types"
	"github.com/pgilab/pgilab/server/internal/compute"
)

const namespace = "pgilab"

// Source supplies the records to describe. *dataset.Store satisfies it.
type Source interface {
	Records() []types.Record
}

// Collector reports dataset gauges on every scrape.
type Collector struct {
	src Source

	records  *prometheus.Desc
	defined  *prometheus.Desc
	excluded *prometheus.Desc
	mean     *prometheus.Desc
}

// NewCollector returns a Collector reading from src.
func NewCollector(src Source) *Collector {
	return &Collector{
		src: src,
		records: prometheus.NewDesc(namespace+"_records",
			"Number of measurement records in the dataset.", nil, nil),
		defined: prometheus.NewDesc(namespace+"_pgi_defined_records",
			"Records with a defined PGI (control_mm > 0).", nil, nil),
		excluded: prometheus.NewDesc(namespace+"_pgi_excluded_records",
			"Records excluded from PGI because control_mm is 0.", nil, nil),
		mean: prometheus.NewDesc(namespace+"_pgi_mean",
			"Mean PGI% per group. Groups without a defined PGI are omitted.",
			[]string{"group_by", "key"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.records
	ch <- c.defined
	ch <- c.excluded
	ch <- c.mean
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	recs := c.src.Records()
	s := compute.Summarize(recs)
	ch <- prometheus.MustNewConstMetric(c.records, prometheus.GaugeValue, float64(s.Records))
	ch <- prometheus.MustNewConstMetric(c.defined, prometheus.GaugeValue, float64(s.Defined))
	ch <- prometheus.MustNewConstMetric(c.excluded, prometheus.GaugeValue, float64(s.Excluded))

	for _, by := range []compute.GroupBy{compute.ByIsolate, compute.ByFungus} {
		for _, g := range compute.Aggregate(recs, by) {
			if !g.Sufficient {
				continue
			}
			ch <- prometheus.MustNewConstMetric(c.mean, prometheus.GaugeValue, g.Mean, by.String(), g.Key)
		}
	}
}

// Recorder counts API operations by name and outcome.
type Recorder struct {
	ops *prometheus.CounterVec
}

// NewRecorder creates the operation counter. Register it with Registry.
func NewRecorder() *Recorder {
	return &Recorder{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Dataset and calculator operations by outcome.",
		}, []string{"op", "status"}),
	}
}

// Observe counts one op. A nil err is recorded as "ok".
func (r *Recorder) Observe(op string, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.ops.WithLabelValues(op, status).Inc()
}

// Registry bundles a private registry with the pgilab collectors.
type Registry struct {
	*prometheus.Registry
	Recorder *Recorder
}

// NewRegistry registers a Collector for src and a fresh Recorder.
func NewRegistry(src Source) *Registry {
	reg := prometheus.NewRegistry()
	rec := NewRecorder()
	reg.MustRegister(NewCollector(src), rec.ops)
	return &Registry{Registry: reg, Recorder: rec}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}

// WriteText gathers g and writes the text exposition format to w.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
