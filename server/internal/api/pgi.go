package api

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/pgilab/pgilab/pkg/types"
	"github.com/pgilab/pgilab/server/internal/chart"
	"github.com/pgilab/pgilab/server/internal/checks"
	"github.com/pgilab/pgilab/server/internal/compute"
	"github.com/pgilab/pgilab/server/internal/report"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

// pgiTable returns GET /api/v1/pgi?group=isolate|fungus|pair.
func (h *Handler) pgiTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	by, ok := h.groupParam(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, compute.BuildTable(h.store.Records(), by))
}

// matrix returns GET /api/v1/pgi/matrix.
func (h *Handler) matrix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, compute.BuildMatrix(h.store.Records()))
}

// effective returns GET /api/v1/pgi/effective?fungus=F.
func (h *Handler) effective(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fungus := r.URL.Query().Get("fungus")
	if fungus == "" {
		jsonErr(w, http.StatusBadRequest, "query parameter fungus is required")
		return
	}
	best, err := compute.MostEffectiveIsolate(h.store.Records(), fungus)
	h.respondRanked(w, RankedResponse{Fungus: fungus}, best, err)
}

// resistant returns GET /api/v1/pgi/resistant?isolate=I.
func (h *Handler) resistant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	isolate := r.URL.Query().Get("isolate")
	if isolate == "" {
		jsonErr(w, http.StatusBadRequest, "query parameter isolate is required")
		return
	}
	worst, err := compute.MostResistantFungus(h.store.Records(), isolate)
	h.respondRanked(w, RankedResponse{Isolate: isolate}, worst, err)
}

// respondRanked answers a ranking query. Insufficient data is a successful
// answer with sufficient=false and no result.
func (h *Handler) respondRanked(w http.ResponseWriter, resp RankedResponse, res compute.Ranked, err error) {
	switch {
	case errors.Is(err, types.ErrInsufficientData):
		jsonResp(w, http.StatusOK, resp)
	case err != nil:
		writeError(w, err)
	default:
		resp.Sufficient = true
		resp.Result = &res
		jsonResp(w, http.StatusOK, resp)
	}
}

// summary returns GET /api/v1/summary.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSummary(h.store, h.opts.Now()))
}

// checks returns GET /api/v1/checks: the configured rules and their findings.
func (h *Handler) checks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := ChecksResponse{Rules: []checks.Rule{}, Findings: []checks.Finding{}}
	if e := h.opts.Checks; e != nil {
		resp.Rules = e.Rules()
		if f := e.Evaluate(h.store.Records()); f != nil {
			resp.Findings = f
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// chart returns GET /api/v1/chart?group=&kind=&metric=&target=&format= as an image.
func (h *Handler) chart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()

	by := h.opts.Report.GroupBy
	if by == compute.ByPair {
		by = compute.ByIsolate
	}
	if s := q.Get("group"); s != "" {
		var err error
		if by, err = compute.ParseGroupBy(s); err != nil || by == compute.ByPair {
			jsonErr(w, http.StatusBadRequest, "group must be isolate or fungus")
			return
		}
	}
	kind := h.opts.Report.Chart
	if s := q.Get("kind"); s != "" {
		var err error
		if kind, err = chart.ParseKind(s); err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	metric, err := compute.ParseMetric(q.Get("metric"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	format, err := chart.ParseFormat(q.Get("format"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	opts := chart.Options{Kind: kind, GroupBy: by, Metric: metric, Target: q.Get("target")}
	err = chart.Render(&buf, h.store.Records(), opts, format)
	h.opts.Metrics.Observe("chart", err)
	switch {
	case errors.Is(err, types.ErrInsufficientData):
		resp := insufficientResponse{Error: report.InsufficientData, Metric: metric}
		if metric == compute.MetricPGI {
			resp.Hint = "no record has control_mm > 0; add metric=zone to plot raw inhibition zones"
		}
		jsonResp(w, http.StatusOK, resp)
		return
	case err != nil:
		writeError(w, err)
		return
	}
	writeBody(w, format.ContentType(), "", buf.Bytes())
}

// exportCSV returns GET /api/v1/export: the dataset as delimited text.
func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var buf bytes.Buffer
	err := h.store.Export(&buf)
	h.opts.Metrics.Observe("export", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeBody(w, contentTypeCSV, "measurements.csv", buf.Bytes())
}

// exportXLSX returns GET /api/v1/export.xlsx: records, PGI, groups, matrix and checks.
func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	d, ok := h.reportData(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := report.WriteWorkbook(&buf, d)
	h.opts.Metrics.Observe("xlsx", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeBody(w, contentTypeXLSX, "pgi-report.xlsx", buf.Bytes())
}

// reportPDF returns GET /api/v1/report.pdf?group=.
func (h *Handler) reportPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	d, ok := h.reportData(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := report.WritePDF(&buf, d)
	h.opts.Metrics.Observe("report", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeBody(w, contentTypePDF, "pgi-report.pdf", buf.Bytes())
}

func (h *Handler) reportData(w http.ResponseWriter, r *http.Request) (report.Data, bool) {
	by, ok := h.groupParam(w, r)
	if !ok {
		return report.Data{}, false
	}
	opts := h.opts.Report
	opts.GroupBy = by
	return report.Build(h.store.Records(), h.opts.Checks, opts, h.opts.Now()), true
}

// groupParam reads ?group=, falling back to the configured grouping.
func (h *Handler) groupParam(w http.ResponseWriter, r *http.Request) (compute.GroupBy, bool) {
	s := r.URL.Query().Get("group")
	if s == "" {
		return h.opts.Report.GroupBy, true
	}
	by, err := compute.ParseGroupBy(s)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return by, true
}

func writeBody(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	if filename != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck
}
