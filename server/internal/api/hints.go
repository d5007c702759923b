package api

import (
	"fmt"
	"time"

	"github.com/pgilab/pgilab/pkg/types"
	"github.com/pgilab/pgilab/server/internal/compute"
	"github.com/pgilab/pgilab/server/internal/dataset"
)

// spreadWarnStd is the replicate standard deviation, in PGI points, above
// which a pair is flagged as noisy.
const spreadWarnStd = 15.0

// Hint is one human-readable insight about the dataset. The UI displays these
// as chips next to the summary; clicking one shows Detail.
type Hint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional number associated with this hint (e.g. a count).
	Value *float64 `json:"value,omitempty"`
}

// BuildSummary computes the summary payload from the current records.
func BuildSummary(st *dataset.Store, now time.Time) SummaryResponse {
	records := st.Records()
	sum := compute.Summarize(records)
	return SummaryResponse{
		Summary:     sum,
		Version:     st.Version(),
		Hints:       computeHints(records, sum),
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
}

// computeHints derives hints from the records. Warnings come before info.
func computeHints(records []types.Record, sum compute.Summary) []Hint {
	if sum.Records == 0 {
		return []Hint{{
			Key:   "empty",
			Level: "info",
			Title: "No records",
			Detail: "The dataset is empty. Add measurements one by one or import a CSV file " +
				"with the columns fungus, isolate, inhibition_zone_mm, control_mm and concentration_cfu_ml.",
		}}
	}
	if sum.Defined == 0 {
		v := float64(sum.Excluded)
		return []Hint{{
			Key:   "no_defined_pgi",
			Level: "warning",
			Title: "No PGI values",
			Detail: "Every record has a control growth of 0 mm, so no PGI% can be computed. " +
				"PGI% divides by the control, and a missing control is not treated as 0% inhibition.",
			Value: &v,
		}}
	}

	var warn, info []Hint
	pairs := compute.Aggregate(records, compute.ByPair)

	var stimulating, unreplicated, noisy int
	var worstStd float64
	for _, g := range pairs {
		if !g.Sufficient {
			continue
		}
		if g.Mean < 0 {
			stimulating++
		}
		if g.Defined == 1 {
			unreplicated++
		}
		if g.Defined > 1 && g.Std > spreadWarnStd {
			noisy++
			if g.Std > worstStd {
				worstStd = g.Std
			}
		}
	}

	if stimulating > 0 {
		v := float64(stimulating)
		warn = append(warn, Hint{
			Key:   "stimulation",
			Level: "warning",
			Title: fmt.Sprintf("%d %s stimulate growth", stimulating, plural(stimulating, "pair", "pairs")),
			Detail: fmt.Sprintf(
				"For %d isolate/fungus %s the fungus grew further on the treated plate than on the control, "+
					"which gives a negative mean PGI%%. Check that the zone and control columns are not swapped "+
					"and that the control plates were not contaminated.",
				stimulating, plural(stimulating, "pair", "pairs"),
			),
			Value: &v,
		})
	}
	if noisy > 0 {
		v := worstStd
		warn = append(warn, Hint{
			Key:   "replicate_spread",
			Level: "warning",
			Title: "High replicate spread",
			Detail: fmt.Sprintf(
				"%d %s have replicates that disagree by more than %.0f PGI points (standard deviation, worst %.1f). "+
					"The mean of such a pair is unreliable; consider re-measuring or adding replicates.",
				noisy, plural(noisy, "pair", "pairs"), spreadWarnStd, worstStd,
			),
			Value: &v,
		})
	}
	if sum.Excluded > 0 {
		v := float64(sum.Excluded)
		info = append(info, Hint{
			Key:   "excluded",
			Level: "info",
			Title: fmt.Sprintf("%d %s excluded", sum.Excluded, plural(sum.Excluded, "record", "records")),
			Detail: fmt.Sprintf(
				"%d %s a control growth of 0 mm. They stay in the dataset and in the record counts, "+
					"but are left out of every PGI%% mean.",
				sum.Excluded, plural(sum.Excluded, "record has", "records have"),
			),
			Value: &v,
		})
	}
	if unreplicated > 0 {
		v := float64(unreplicated)
		info = append(info, Hint{
			Key:   "unreplicated",
			Level: "info",
			Title: fmt.Sprintf("%d unreplicated %s", unreplicated, plural(unreplicated, "pair", "pairs")),
			Detail: "These isolate/fungus pairs have a single usable measurement, so their standard deviation " +
				"is reported as 0. Replicates make the comparison between isolates much more trustworthy.",
			Value: &v,
		})
	}
	if untested := sum.Isolates*sum.Fungi - len(pairs); untested > 0 {
		v := float64(untested)
		info = append(info, Hint{
			Key:   "untested",
			Level: "info",
			Title: fmt.Sprintf("%d untested %s", untested, plural(untested, "pair", "pairs")),
			Detail: fmt.Sprintf(
				"The matrix has %d isolates and %d fungi, but %d combinations have no measurement at all. "+
					"Those cells stay empty in the matrix and in the report.",
				sum.Isolates, sum.Fungi, untested,
			),
			Value: &v,
		})
	}

	hints := append(warn, info...)
	if len(hints) == 0 {
		v := sum.MeanPGI
		hints = append(hints, Hint{
			Key:   "ok",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf(
				"All %d records have a usable control, every tested pair is replicated and the replicates agree. "+
					"The overall mean PGI%% is %.1f.",
				sum.Records, sum.MeanPGI,
			),
			Value: &v,
		})
	}
	return hints
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
