package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pgilab/pgilab/pkg/types"
	"github.com/pgilab/pgilab/server/internal/checks"
	"github.com/pgilab/pgilab/server/internal/compute"
	"github.com/pgilab/pgilab/server/internal/dataset"
	"github.com/pgilab/pgilab/server/internal/metrics"
	"github.com/pgilab/pgilab/server/internal/report"
)

const (
	maxRecordBody = 64 << 10
	maxImportBody = 32 << 20
)

// Options wires the optional collaborators of a Handler.
type Options struct {
	// Checks evaluates findings for /checks and the PDF report. Nil disables checks.
	Checks *checks.Engine
	// Metrics counts operations. Nil disables counting.
	Metrics *metrics.Recorder
	// Report holds the default title, grouping and chart kind.
	Report report.Options
	// Now stamps generated reports. Defaults to time.Now.
	Now func() time.Time
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads and mutates the dataset store and returns JSON responses.
type Handler struct {
	store *dataset.Store
	opts  Options
	mux   *http.ServeMux
}

// New creates a Handler wired to the given dataset store and registers all routes.
func New(st *dataset.Store, opts Options) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	h := &Handler{store: st, opts: opts, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/records", h.records)
	h.mux.HandleFunc("/api/v1/records/", h.record) // subtree: {i} and undo
	h.mux.HandleFunc("/api/v1/names", h.names)
	h.mux.HandleFunc("/api/v1/import", h.importCSV)
	h.mux.HandleFunc("/api/v1/export", h.exportCSV)
	h.mux.HandleFunc("/api/v1/export.xlsx", h.exportXLSX)
	h.mux.HandleFunc("/api/v1/pgi", h.pgiTable)
	h.mux.HandleFunc("/api/v1/pgi/matrix", h.matrix)
	h.mux.HandleFunc("/api/v1/pgi/effective", h.effective)
	h.mux.HandleFunc("/api/v1/pgi/resistant", h.resistant)
	h.mux.HandleFunc("/api/v1/summary", h.summary)
	h.mux.HandleFunc("/api/v1/checks", h.checks)
	h.mux.HandleFunc("/api/v1/chart", h.chart)
	h.mux.HandleFunc("/api/v1/report.pdf", h.reportPDF)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Records: h.store.Len(),
		Version: h.store.Version(),
	})
}

// records serves GET (list with PGI) and POST (add) on /api/v1/records.
func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jsonResp(w, http.StatusOK, compute.Rows(h.store.Records()))
	case http.MethodPost:
		rec, ok := readRecord(w, r)
		if !ok {
			return
		}
		idx, err := h.store.Add(rec)
		h.opts.Metrics.Observe("add", err)
		if err != nil {
			writeError(w, err)
			return
		}
		h.respondRow(w, http.StatusCreated, idx)
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// record serves /api/v1/records/{i} and /api/v1/records/undo.
func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, "/api/v1/records/")
	switch tail {
	case "":
		h.records(w, r)
		return
	case "undo":
		h.undo(w, r)
		return
	}

	idx, err := strconv.Atoi(tail)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("invalid record index %q", tail))
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, err := h.store.Get(idx)
		if err != nil {
			writeError(w, err)
			return
		}
		jsonResp(w, http.StatusOK, compute.NewRow(idx, rec))
	case http.MethodPut:
		rec, ok := readRecord(w, r)
		if !ok {
			return
		}
		err := h.store.Update(idx, rec)
		h.opts.Metrics.Observe("update", err)
		if err != nil {
			writeError(w, err)
			return
		}
		h.respondRow(w, http.StatusOK, idx)
	case http.MethodDelete:
		rec, err := h.store.Delete(idx)
		h.opts.Metrics.Observe("delete", err)
		if err != nil {
			writeError(w, err)
			return
		}
		jsonResp(w, http.StatusOK, compute.NewRow(idx, rec))
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// undo returns POST /api/v1/records/undo: the restored record at its new index.
func (h *Handler) undo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	idx, err := h.store.UndoDelete()
	h.opts.Metrics.Observe("undo", err)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondRow(w, http.StatusOK, idx)
}

// names returns GET /api/v1/names: the distinct isolates and fungi.
func (h *Handler) names(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, NamesResponse{
		Isolates: h.store.Isolates(),
		Fungi:    h.store.Fungi(),
	})
}

// importCSV handles POST /api/v1/import?mode=append|replace with a CSV body.
func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	mode, err := dataset.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.store.Import(http.MaxBytesReader(w, r.Body, maxImportBody), mode)
	h.opts.Metrics.Observe("import", err)
	if err != nil {
		slog.Warn("api: import rejected", "err", err)
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Info("api: import", "mode", mode.String(), "rows", len(res.Records), "errors", len(res.Errors))

	errs := res.Errors
	if errs == nil {
		errs = []types.RowError{}
	}
	jsonResp(w, http.StatusOK, ImportResponse{
		Mode:     mode.String(),
		Imported: len(res.Records),
		Total:    h.store.Len(),
		Errors:   errs,
	})
}

// --- helpers ----------------------------------------------------------------

// respondRow answers with the stored record at idx. The record is re-read so
// the response carries the normalized names.
func (h *Handler) respondRow(w http.ResponseWriter, code int, idx int) {
	rec, err := h.store.Get(idx)
	if err != nil {
		// Removed by a concurrent request between the write and this read.
		writeError(w, err)
		return
	}
	jsonResp(w, code, compute.NewRow(idx, rec))
}

// readRecord decodes a JSON record body. It answers 400 itself on failure,
// including when a numeric field is absent: an omitted diameter must not
// turn into a measured 0.
func readRecord(w http.ResponseWriter, r *http.Request) (types.Record, bool) {
	var req RecordRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecordBody))
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return types.Record{}, false
	}
	rec, err := req.Record()
	if err != nil {
		writeError(w, err)
		return types.Record{}, false
	}
	return rec, true
}

// writeError maps store and calculator errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		ve *types.ValidationError
		ie *types.IndexError
	)
	switch {
	case errors.As(err, &ve):
		jsonResp(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: ve.Field})
	case errors.As(err, &ie):
		jsonErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrNotFound):
		jsonErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dataset.ErrNothingToUndo):
		jsonErr(w, http.StatusConflict, err.Error())
	default:
		slog.Error("api: request failed", "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
	}
}

// jsonResp encodes v before writing the status, so a value that cannot be
// encoded becomes a 500 instead of an empty 200.
func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("api: encode response", "err", err)
		body = []byte(`{"error":"internal error"}`)
		code = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(body, '\n')) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
