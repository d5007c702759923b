package compute

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pgilab/pgilab/pkg/types"
)

// GroupBy selects the grouping key for Aggregate.
type GroupBy int

const (
	ByIsolate GroupBy = iota
	ByFungus
	ByPair
)

// ParseGroupBy maps "isolate", "fungus" and "pair" to a GroupBy.
// Empty selects ByIsolate.
func ParseGroupBy(s string) (GroupBy, error) {
	switch s {
	case "", "isolate":
		return ByIsolate, nil
	case "fungus":
		return ByFungus, nil
	case "pair":
		return ByPair, nil
	}
	return 0, fmt.Errorf("compute: unknown grouping %q: want isolate|fungus|pair", s)
}

func (g GroupBy) String() string {
	switch g {
	case ByFungus:
		return "fungus"
	case ByPair:
		return "pair"
	default:
		return "isolate"
	}
}

// MarshalText renders the grouping by name in JSON payloads.
func (g GroupBy) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *GroupBy) UnmarshalText(b []byte) error {
	v, err := ParseGroupBy(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// Metric selects the per-record value that AggregateMetric summarizes.
type Metric int

const (
	// MetricPGI is the PGI%, undefined for a zero control.
	MetricPGI Metric = iota
	// MetricZone is the raw inhibition_zone_mm, defined for every record.
	MetricZone
)

// ParseMetric maps "pgi" and "zone" to a Metric. Empty selects MetricPGI.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "", "pgi":
		return MetricPGI, nil
	case "zone":
		return MetricZone, nil
	}
	return 0, fmt.Errorf("compute: unknown metric %q: want pgi|zone", s)
}

func (m Metric) String() string {
	if m == MetricZone {
		return "zone"
	}
	return "pgi"
}

// Label is the axis title for the metric.
func (m Metric) Label() string {
	if m == MetricZone {
		return "Inhibition zone (mm)"
	}
	return "PGI %"
}

// MarshalText renders the metric by name.
func (m Metric) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Value returns rec's value for m and whether it is defined.
func (m Metric) Value(rec types.Record) (float64, bool) {
	if m == MetricZone {
		return rec.InhibitionZoneMm, true
	}
	return PGI(rec)
}

// GroupStat is the aggregate of one group. Aggregate fills it with PGI
// values; AggregateMetric with MetricZone fills it with raw diameters.
//
// When Sufficient is false no record in the group has a defined PGI;
// Mean, Std, Min and Max are then zero and must not be shown as values.
type GroupStat struct {
	Key     string `json:"key"`
	Isolate string `json:"isolate,omitempty"`
	Fungus  string `json:"fungus,omitempty"`

	Count    int `json:"count"`
	Defined  int `json:"defined"`
	Excluded int `json:"excluded"`

	Sufficient bool    `json:"sufficient"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`

	// Best and Worst name the counterpart with the highest and lowest mean
	// PGI inside the group: fungi for an isolate group, isolates for a
	// fungus group. Pair groups leave both empty.
	Best  string `json:"best,omitempty"`
	Worst string `json:"worst,omitempty"`

	// Values are the defined metric values in record order.
	Values []float64 `json:"-"`
}

// Ranked is a winner picked by MostEffectiveIsolate or MostResistantFungus.
type Ranked struct {
	Name    string  `json:"name"`
	Mean    float64 `json:"mean"`
	Defined int     `json:"defined"`
}

// PairKey is the display key of an (isolate, fungus) group.
func PairKey(isolate, fungus string) string {
	return isolate + " vs " + fungus
}

func isolateOf(r types.Record) string { return r.Isolate }
func fungusOf(r types.Record) string  { return r.Fungus }

// Aggregate groups records and computes PGI statistics per group. Groups
// are ordered by isolate, then fungus.
func Aggregate(records []types.Record, by GroupBy) []GroupStat {
	return AggregateMetric(records, by, MetricPGI)
}

// AggregateMetric is Aggregate over metric m. Best and Worst are filled
// for MetricPGI only; a diameter ranking has no meaning without a control.
func AggregateMetric(records []types.Record, by GroupBy, m Metric) []GroupStat {
	index := make(map[string]int)
	var out []GroupStat

	for _, rec := range records {
		var g GroupStat
		switch by {
		case ByFungus:
			g = GroupStat{Key: rec.Fungus, Fungus: rec.Fungus}
		case ByPair:
			g = GroupStat{Key: PairKey(rec.Isolate, rec.Fungus), Isolate: rec.Isolate, Fungus: rec.Fungus}
		default:
			g = GroupStat{Key: rec.Isolate, Isolate: rec.Isolate}
		}
		// The pair key alone is ambiguous when names contain " vs ".
		id := g.Isolate + "\x00" + g.Fungus
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, g)
		}
		st := &out[i]
		st.Count++
		if v, ok := m.Value(rec); ok {
			st.Values = append(st.Values, v)
		}
	}

	for i := range out {
		st := &out[i]
		st.Defined = len(st.Values)
		st.Excluded = st.Count - st.Defined
		if st.Defined == 0 {
			continue
		}
		st.Sufficient = true
		st.Mean, st.Std = stat.PopMeanStdDev(st.Values, nil)
		st.Min = floats.Min(st.Values)
		st.Max = floats.Max(st.Values)

		if m != MetricPGI {
			continue
		}
		switch by {
		case ByIsolate:
			cands := meansBy(records, func(r types.Record) bool { return r.Isolate == st.Isolate }, fungusOf)
			st.Best, st.Worst = bestWorst(cands)
		case ByFungus:
			cands := meansBy(records, func(r types.Record) bool { return r.Fungus == st.Fungus }, isolateOf)
			st.Best, st.Worst = bestWorst(cands)
		}
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].Isolate != out[b].Isolate {
			return out[a].Isolate < out[b].Isolate
		}
		return out[a].Fungus < out[b].Fungus
	})
	return out
}

// MostEffectiveIsolate returns the isolate with the highest mean PGI against
// fungus. It returns types.ErrNotFound when fungus never appears and
// types.ErrInsufficientData when no isolate has a defined mean.
func MostEffectiveIsolate(records []types.Record, fungus string) (Ranked, error) {
	cands := meansBy(records, func(r types.Record) bool { return r.Fungus == fungus }, isolateOf)
	if len(cands) == 0 {
		return Ranked{}, fmt.Errorf("compute: fungus %q: %w", fungus, types.ErrNotFound)
	}
	best, ok := pick(cands, func(a, b float64) bool { return a > b })
	if !ok {
		return Ranked{}, fmt.Errorf("compute: most effective isolate for %q: %w", fungus, types.ErrInsufficientData)
	}
	return best, nil
}

// MostResistantFungus returns the fungus with the lowest mean PGI for
// isolate, i.e. the least inhibited one. Errors follow MostEffectiveIsolate.
func MostResistantFungus(records []types.Record, isolate string) (Ranked, error) {
	cands := meansBy(records, func(r types.Record) bool { return r.Isolate == isolate }, fungusOf)
	if len(cands) == 0 {
		return Ranked{}, fmt.Errorf("compute: isolate %q: %w", isolate, types.ErrNotFound)
	}
	worst, ok := pick(cands, func(a, b float64) bool { return a < b })
	if !ok {
		return Ranked{}, fmt.Errorf("compute: most resistant fungus for %q: %w", isolate, types.ErrInsufficientData)
	}
	return worst, nil
}

// candidate accumulates the PGI values of one counterpart name.
type candidate struct {
	name   string
	values []float64
}

// meansBy collects, for every distinct name(r) among records passing keep,
// the defined PGI values. Candidates are sorted by name.
// Names whose records are all undefined are still listed, with no values.
func meansBy(records []types.Record, keep func(types.Record) bool, name func(types.Record) string) []candidate {
	index := make(map[string]int)
	var cands []candidate
	for _, r := range records {
		if !keep(r) {
			continue
		}
		n := name(r)
		i, ok := index[n]
		if !ok {
			i = len(cands)
			index[n] = i
			cands = append(cands, candidate{name: n})
		}
		if v, ok := PGI(r); ok {
			cands[i].values = append(cands[i].values, v)
		}
	}
	sort.Slice(cands, func(a, b int) bool { return cands[a].name < cands[b].name })
	return cands
}

// pick walks cands in name order and keeps the first candidate no later
// one beats strictly, so equal means resolve to the smaller name.
func pick(cands []candidate, better func(a, b float64) bool) (Ranked, bool) {
	var (
		out   Ranked
		found bool
	)
	for _, c := range cands {
		if len(c.values) == 0 {
			continue
		}
		mean := stat.Mean(c.values, nil)
		if !found || better(mean, out.Mean) {
			out = Ranked{Name: c.name, Mean: mean, Defined: len(c.values)}
			found = true
		}
	}
	return out, found
}

func bestWorst(cands []candidate) (best, worst string) {
	if b, ok := pick(cands, func(a, b float64) bool { return a > b }); ok {
		best = b.Name
	}
	if w, ok := pick(cands, func(a, b float64) bool { return a < b }); ok {
		worst = w.Name
	}
	return best, worst
}
