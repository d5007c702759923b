package api_test

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pgilab/pgilab/pkg/types"
	"github.com/pgilab/pgilab/server/internal/api"
	"github.com/pgilab/pgilab/server/internal/chart"
	"github.com/pgilab/pgilab/server/internal/checks"
	"github.com/pgilab/pgilab/server/internal/compute"
	"github.com/pgilab/pgilab/server/internal/dataset"
	"github.com/pgilab/pgilab/server/internal/metrics"
	"github.com/pgilab/pgilab/server/internal/report"
)

// --- test helpers -----------------------------------------------------------

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func rec(fungus, isolate string, zone, control float64) types.Record {
	return types.Record{Fungus: fungus, Isolate: isolate, InhibitionZoneMm: zone, ControlMm: control}
}

func newStore(recs ...types.Record) *dataset.Store {
	st := dataset.New(dataset.Codec{})
	st.Replace(recs)
	return st
}

func sampleStore() *dataset.Store {
	return newStore(
		rec("FungusA", "IsolateX", 10, 20), // 50
		rec("FungusA", "IsolateY", 5, 20),  // 75
		rec("FungusB", "IsolateX", 15, 20), // 25
		rec("FungusB", "IsolateZ", 4, 0),   // undefined
	)
}

func newHandler(st *dataset.Store) http.Handler {
	engine, _ := checks.New(checks.DefaultRules())
	return api.New(st, api.Options{
		Checks: engine,
		Report: report.Options{GroupBy: compute.ByIsolate, Chart: chart.KindBar},
		Now:    func() time.Time { return fixedNow },
	})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodGet, path, "")
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth(t *testing.T) {
	rr := get(t, newHandler(sampleStore()), "/api/v1/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" || resp.Records != 4 {
		t.Errorf("health: got %+v", resp)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHandler(sampleStore())
	tests := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/v1/health"},
		{http.MethodDelete, "/api/v1/records"},
		{http.MethodPost, "/api/v1/records/0"},
		{http.MethodGet, "/api/v1/records/undo"},
		{http.MethodGet, "/api/v1/import"},
		{http.MethodPost, "/api/v1/export"},
		{http.MethodPut, "/api/v1/pgi"},
		{http.MethodPost, "/api/v1/pgi/matrix"},
		{http.MethodPost, "/api/v1/summary"},
		{http.MethodPost, "/api/v1/chart"},
		{http.MethodPost, "/api/v1/report.pdf"},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rr := do(t, h, tc.method, tc.path, "")
			if rr.Code != http.StatusMethodNotAllowed {
				t.Errorf("status: got %d, want 405", rr.Code)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type: got %q", ct)
			}
		})
	}
}

// --- /api/v1/records --------------------------------------------------------

func TestListRecords(t *testing.T) {
	rr := get(t, newHandler(sampleStore()), "/api/v1/records")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var rows []map[string]interface{}
	decode(t, rr, &rows)
	if len(rows) != 4 {
		t.Fatalf("rows: got %d, want 4", len(rows))
	}
	if rows[1]["pgi"].(float64) != 75 || rows[1]["index"].(float64) != 1 {
		t.Errorf("row 1: got %v", rows[1])
	}
	if rows[3]["pgi"] != nil {
		t.Errorf("zero-control row: pgi should be null, got %v", rows[3]["pgi"])
	}
}

func TestAddRecord(t *testing.T) {
	st := sampleStore()
	h := newHandler(st)
	rr := do(t, h, http.MethodPost, "/api/v1/records",
		`{"fungus":" FungusC ","isolate":"IsolateX","inhibition_zone_mm":3,"control_mm":12,"concentration_cfu_ml":1e6}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201 (body %s)", rr.Code, rr.Body.String())
	}
	var row compute.Row
	decode(t, rr, &row)
	if row.Index != 4 || row.Fungus != "FungusC" || row.PGI == nil || *row.PGI != 75 {
		t.Errorf("created row: got %+v", row)
	}
	if st.Len() != 5 {
		t.Errorf("store len: got %d, want 5", st.Len())
	}
}

func TestAddRecord_Invalid(t *testing.T) {
	tests := []struct {
		name, body string
		wantField  string
	}{
		{"empty fungus", `{"fungus":"","isolate":"I","inhibition_zone_mm":1,"control_mm":2,"concentration_cfu_ml":0}`, "fungus"},
		{"negative control", `{"fungus":"F","isolate":"I","inhibition_zone_mm":1,"control_mm":-2,"concentration_cfu_ml":0}`, "control_mm"},
		{"missing zone", `{"fungus":"F","isolate":"I","control_mm":20,"concentration_cfu_ml":0}`, "inhibition_zone_mm"},
		{"missing control", `{"fungus":"F","isolate":"I","inhibition_zone_mm":5,"concentration_cfu_ml":0}`, "control_mm"},
		{"missing concentration", `{"fungus":"F","isolate":"I","inhibition_zone_mm":5,"control_mm":20}`, "concentration_cfu_ml"},
		{"null zone", `{"fungus":"F","isolate":"I","inhibition_zone_mm":null,"control_mm":20,"concentration_cfu_ml":0}`, "inhibition_zone_mm"},
		{"zone beyond range", `{"fungus":"F","isolate":"I","inhibition_zone_mm":1e308,"control_mm":20,"concentration_cfu_ml":0}`, "inhibition_zone_mm"},
		{"control too small", `{"fungus":"F","isolate":"I","inhibition_zone_mm":1,"control_mm":1e-300,"concentration_cfu_ml":0}`, "control_mm"},
		{"malformed JSON", `{"fungus":`, ""},
		{"wrong type", `{"fungus":"F","isolate":"I","inhibition_zone_mm":"ten"}`, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := sampleStore()
			rr := do(t, newHandler(st), http.MethodPost, "/api/v1/records", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400", rr.Code)
			}
			var resp map[string]interface{}
			decode(t, rr, &resp)
			if tc.wantField != "" && resp["field"] != tc.wantField {
				t.Errorf("field: got %v, want %s", resp["field"], tc.wantField)
			}
			if st.Len() != 4 {
				t.Errorf("store changed on invalid add: len %d", st.Len())
			}
		})
	}
}

func TestGetUpdateDeleteRecord(t *testing.T) {
	st := sampleStore()
	h := newHandler(st)

	rr := get(t, h, "/api/v1/records/2")
	var row compute.Row
	decode(t, rr, &row)
	if row.Isolate != "IsolateX" || row.Fungus != "FungusB" || *row.PGI != 25 {
		t.Errorf("GET record 2: got %+v", row)
	}

	rr = do(t, h, http.MethodPut, "/api/v1/records/2",
		`{"fungus":"FungusB","isolate":"IsolateX","inhibition_zone_mm":0,"control_mm":20,"concentration_cfu_ml":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT status: got %d (body %s)", rr.Code, rr.Body.String())
	}
	decode(t, rr, &row)
	if *row.PGI != 100 {
		t.Errorf("PUT pgi: got %v, want 100", *row.PGI)
	}

	rr = do(t, h, http.MethodDelete, "/api/v1/records/0", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("DELETE status: got %d", rr.Code)
	}
	if st.Len() != 3 {
		t.Errorf("len after delete: got %d, want 3", st.Len())
	}

	rr = do(t, h, http.MethodPost, "/api/v1/records/undo", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("undo status: got %d", rr.Code)
	}
	decode(t, rr, &row)
	if row.Index != 0 || row.Isolate != "IsolateX" || row.Fungus != "FungusA" {
		t.Errorf("undo: got %+v", row)
	}

	rr = do(t, h, http.MethodPost, "/api/v1/records/undo", "")
	if rr.Code != http.StatusConflict {
		t.Errorf("second undo: got %d, want 409", rr.Code)
	}
}

func TestUpdateRecord_MissingField(t *testing.T) {
	st := sampleStore()
	rr := do(t, newHandler(st), http.MethodPut, "/api/v1/records/0",
		`{"fungus":"FungusA","isolate":"IsolateX","control_mm":20,"concentration_cfu_ml":0}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400 (body %s)", rr.Code, rr.Body.String())
	}
	if got, _ := st.Get(0); got.InhibitionZoneMm != 10 {
		t.Errorf("record 0 changed: %+v", got)
	}
}

func TestAddRecord_NotesAndImage(t *testing.T) {
	st := sampleStore()
	rr := do(t, newHandler(st), http.MethodPost, "/api/v1/records",
		`{"fungus":"F","isolate":"I","inhibition_zone_mm":5,"control_mm":20,"concentration_cfu_ml":0,"notes":" day 3 ","image_path":"plates/i.jpg"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d (body %s)", rr.Code, rr.Body.String())
	}
	var row compute.Row
	decode(t, rr, &row)
	if row.Notes != "day 3" || row.ImagePath != "plates/i.jpg" {
		t.Errorf("extras: got %q / %q", row.Notes, row.ImagePath)
	}
}

// Records stored through Replace skip validation, so the API must still
// cope with values it cannot present.
func TestExtremeValues(t *testing.T) {
	st := newStore(
		rec("FungusA", "IsolateX", 10, 20),
		rec("FungusA", "IsolateY", 1e308, 1e-300),
	)
	h := newHandler(st)
	for _, path := range []string{"/api/v1/records", "/api/v1/pgi", "/api/v1/summary"} {
		rr := get(t, h, path)
		if rr.Code != http.StatusOK {
			t.Errorf("%s: status %d, want 200 (body %s)", path, rr.Code, rr.Body.String())
			continue
		}
		var v interface{}
		decode(t, rr, &v)
	}

	var tbl compute.Table
	decode(t, get(t, h, "/api/v1/pgi?group=isolate"), &tbl)
	if y := tbl.Groups[1]; y.Key != "IsolateY" || y.Sufficient {
		t.Errorf("IsolateY: got %+v, want insufficient", y)
	}

	bad := types.Record{Fungus: "F", Isolate: "I", ControlMm: 20, ConcentrationCfuPerMl: math.Inf(1)}
	rr := get(t, newHandler(newStore(bad)), "/api/v1/records")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("unencodable record: status %d, want 500", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["error"] == nil {
		t.Errorf("500 body: %v", resp)
	}
}

func TestRecord_BadIndex(t *testing.T) {
	h := newHandler(sampleStore())
	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/v1/records/4", http.StatusNotFound},
		{http.MethodGet, "/api/v1/records/-1", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/records/99", http.StatusNotFound},
		{http.MethodGet, "/api/v1/records/abc", http.StatusBadRequest},
	}
	for _, tc := range tests {
		rr := do(t, h, tc.method, tc.path, "")
		if rr.Code != tc.want {
			t.Errorf("%s %s: got %d, want %d", tc.method, tc.path, rr.Code, tc.want)
		}
	}

	// Out-of-range is reported before the body is validated.
	rr := do(t, h, http.MethodPut, "/api/v1/records/10", `{"fungus":"","isolate":""}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("PUT out of range with bad body: got %d, want 404", rr.Code)
	}
}

func TestNames(t *testing.T) {
	var resp api.NamesResponse
	decode(t, get(t, newHandler(sampleStore()), "/api/v1/names"), &resp)
	if strings.Join(resp.Isolates, ",") != "IsolateX,IsolateY,IsolateZ" || strings.Join(resp.Fungi, ",") != "FungusA,FungusB" {
		t.Errorf("names: got %+v", resp)
	}
}

// --- import / export --------------------------------------------------------

const importCSV = "fungus,isolate,inhibition_zone_mm,control_mm,concentration_cfu_ml\n" +
	"FungusC,IsolateQ,2,8,100\n" +
	"FungusC,,2,8,100\n" +
	"FungusC,IsolateQ,abc,8,100\n"

func TestImport(t *testing.T) {
	tests := []struct {
		mode      string
		wantTotal int
	}{
		{"append", 5},
		{"replace", 1},
		{"", 1},
	}
	for _, tc := range tests {
		t.Run("mode="+tc.mode, func(t *testing.T) {
			st := sampleStore()
			rr := do(t, newHandler(st), http.MethodPost, "/api/v1/import?mode="+tc.mode, importCSV)
			if rr.Code != http.StatusOK {
				t.Fatalf("status: got %d (body %s)", rr.Code, rr.Body.String())
			}
			var resp api.ImportResponse
			decode(t, rr, &resp)
			if resp.Imported != 1 || resp.Total != tc.wantTotal || len(resp.Errors) != 2 {
				t.Errorf("import: got %+v", resp)
			}
			if resp.Errors[0].Line != 3 {
				t.Errorf("first row error line: got %d, want 3", resp.Errors[0].Line)
			}
		})
	}
}

func TestImport_Rejected(t *testing.T) {
	st := sampleStore()
	h := newHandler(st)

	rr := do(t, h, http.MethodPost, "/api/v1/import", "fungus,isolate\nF,I\n")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing column: got %d, want 400", rr.Code)
	}
	rr = do(t, h, http.MethodPost, "/api/v1/import?mode=merge", importCSV)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad mode: got %d, want 400", rr.Code)
	}
	if st.Len() != 4 {
		t.Errorf("store changed by rejected import: len %d", st.Len())
	}
}

func TestExportCSV_RoundTrip(t *testing.T) {
	st := sampleStore()
	h := newHandler(st)
	rr := get(t, h, "/api/v1/export")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("Content-Type: got %q", rr.Header().Get("Content-Type"))
	}
	exported := rr.Body.String()
	if !strings.HasPrefix(exported, "fungus,isolate,inhibition_zone_mm,control_mm,concentration_cfu_ml\n") {
		t.Errorf("header: got %q", exported)
	}

	dst := newStore()
	rr = do(t, newHandler(dst), http.MethodPost, "/api/v1/import?mode=replace", exported)
	if rr.Code != http.StatusOK || dst.Len() != st.Len() {
		t.Fatalf("re-import: status %d, len %d", rr.Code, dst.Len())
	}
	if again := get(t, newHandler(dst), "/api/v1/export").Body.String(); again != exported {
		t.Errorf("export not idempotent:\n%s\nvs\n%s", exported, again)
	}
}

func TestExportXLSX(t *testing.T) {
	rr := get(t, newHandler(sampleStore()), "/api/v1/export.xlsx")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body %s)", rr.Code, rr.Body.String())
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")) {
		t.Error("body is not a zip archive")
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "pgi-report.xlsx") {
		t.Errorf("Content-Disposition: got %q", cd)
	}
}

// --- /api/v1/pgi ------------------------------------------------------------

func TestPGITable(t *testing.T) {
	h := newHandler(sampleStore())
	tests := []struct {
		group      string
		wantGroups int
		wantFirst  string
	}{
		{"", 3, "IsolateX"},
		{"isolate", 3, "IsolateX"},
		{"fungus", 2, "FungusA"},
		{"pair", 4, "IsolateX vs FungusA"},
	}
	for _, tc := range tests {
		t.Run("group="+tc.group, func(t *testing.T) {
			rr := get(t, h, "/api/v1/pgi?group="+tc.group)
			if rr.Code != http.StatusOK {
				t.Fatalf("status: got %d", rr.Code)
			}
			var tbl compute.Table
			decode(t, rr, &tbl)
			if len(tbl.Groups) != tc.wantGroups || tbl.Groups[0].Key != tc.wantFirst {
				t.Errorf("groups: got %+v", tbl.Groups)
			}
			if len(tbl.Excluded) != 1 || tbl.Excluded[0] != 3 {
				t.Errorf("excluded: got %v, want [3]", tbl.Excluded)
			}
		})
	}

	if rr := get(t, h, "/api/v1/pgi?group=plate"); rr.Code != http.StatusBadRequest {
		t.Errorf("bad group: got %d, want 400", rr.Code)
	}
}

func TestPGITable_InsufficientGroup(t *testing.T) {
	rr := get(t, newHandler(sampleStore()), "/api/v1/pgi?group=isolate")
	var resp struct {
		Groups []map[string]interface{} `json:"groups"`
	}
	decode(t, rr, &resp)
	z := resp.Groups[2]
	if z["key"] != "IsolateZ" || z["sufficient"] != false {
		t.Errorf("IsolateZ group: got %v", z)
	}
}

func TestMatrix(t *testing.T) {
	rr := get(t, newHandler(sampleStore()), "/api/v1/pgi/matrix")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var m compute.Matrix
	decode(t, rr, &m)
	c, ok := m.Cell("IsolateY", "FungusA")
	if !ok || !c.Sufficient || c.Mean != 75 {
		t.Errorf("cell Y×A: got %+v, %v", c, ok)
	}
	if c, _ := m.Cell("IsolateY", "FungusB"); c.Count != 0 {
		t.Errorf("untested cell: got %+v", c)
	}
}

func TestEffectiveAndResistant(t *testing.T) {
	h := newHandler(sampleStore())
	tests := []struct {
		path           string
		wantCode       int
		wantSufficient bool
		wantName       string
	}{
		{"/api/v1/pgi/effective?fungus=FungusA", http.StatusOK, true, "IsolateY"},
		{"/api/v1/pgi/resistant?isolate=IsolateX", http.StatusOK, true, "FungusB"},
		{"/api/v1/pgi/resistant?isolate=IsolateZ", http.StatusOK, false, ""},
		{"/api/v1/pgi/effective?fungus=FungusQ", http.StatusNotFound, false, ""},
		{"/api/v1/pgi/effective", http.StatusBadRequest, false, ""},
		{"/api/v1/pgi/resistant", http.StatusBadRequest, false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			rr := get(t, h, tc.path)
			if rr.Code != tc.wantCode {
				t.Fatalf("status: got %d, want %d (body %s)", rr.Code, tc.wantCode, rr.Body.String())
			}
			if tc.wantCode != http.StatusOK {
				return
			}
			var resp api.RankedResponse
			decode(t, rr, &resp)
			if resp.Sufficient != tc.wantSufficient {
				t.Errorf("sufficient: got %v, want %v", resp.Sufficient, tc.wantSufficient)
			}
			if !tc.wantSufficient {
				if resp.Result != nil {
					t.Errorf("insufficient answer carries a result: %+v", resp.Result)
				}
				return
			}
			if resp.Result == nil || resp.Result.Name != tc.wantName {
				t.Errorf("result: got %+v, want %s", resp.Result, tc.wantName)
			}
		})
	}
}

// --- summary / checks -------------------------------------------------------

func TestSummary(t *testing.T) {
	rr := get(t, newHandler(sampleStore()), "/api/v1/summary")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var resp api.SummaryResponse
	decode(t, rr, &resp)
	if resp.Records != 4 || resp.Defined != 3 || resp.Excluded != 1 || resp.Isolates != 3 || resp.Fungi != 2 {
		t.Errorf("summary: got %+v", resp.Summary)
	}
	if resp.MeanPGI != 50 {
		t.Errorf("mean_pgi: got %v, want 50", resp.MeanPGI)
	}
	if resp.GeneratedAt != "2026-03-14T09:30:00Z" {
		t.Errorf("generated_at: got %q", resp.GeneratedAt)
	}
	keys := map[string]bool{}
	for _, hint := range resp.Hints {
		keys[hint.Key] = true
	}
	for _, k := range []string{"excluded", "unreplicated", "untested"} {
		if !keys[k] {
			t.Errorf("hint %q missing from %+v", k, resp.Hints)
		}
	}
}

func TestSummary_Hints(t *testing.T) {
	tests := []struct {
		name  string
		store *dataset.Store
		first string
	}{
		{"empty", newStore(), "empty"},
		{"all excluded", newStore(rec("F", "I", 1, 0)), "no_defined_pgi"},
		{"stimulation", newStore(rec("F", "I", 30, 20), rec("F", "I", 25, 20)), "stimulation"},
		{"spread", newStore(rec("F", "I", 0, 20), rec("F", "I", 20, 20)), "replicate_spread"},
		{"clean", newStore(rec("F", "I", 10, 20), rec("F", "I", 11, 20)), "ok"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var resp api.SummaryResponse
			decode(t, get(t, newHandler(tc.store), "/api/v1/summary"), &resp)
			if len(resp.Hints) == 0 || resp.Hints[0].Key != tc.first {
				t.Errorf("hints: got %+v, want first %q", resp.Hints, tc.first)
			}
		})
	}
}

func TestChecks(t *testing.T) {
	st := sampleStore()
	st.Add(rec("FungusC", "IsolateY", 30, 20)) //nolint:errcheck
	rr := get(t, newHandler(st), "/api/v1/checks")
	var resp api.ChecksResponse
	decode(t, rr, &resp)
	if len(resp.Rules) != 3 {
		t.Errorf("rules: got %d, want 3", len(resp.Rules))
	}
	var rules []string
	for _, f := range resp.Findings {
		rules = append(rules, f.Rule)
	}
	if strings.Join(rules, ",") != "zero_control,stimulation" {
		t.Errorf("findings: got %v", rules)
	}
}

func TestChecks_Disabled(t *testing.T) {
	h := api.New(sampleStore(), api.Options{})
	rr := get(t, h, "/api/v1/checks")
	if body := strings.TrimSpace(rr.Body.String()); body != `{"rules":[],"findings":[]}` {
		t.Errorf("body: got %s", body)
	}
}

// --- chart / report ---------------------------------------------------------

func TestChart(t *testing.T) {
	h := newHandler(sampleStore())
	tests := []struct {
		query    string
		wantCode int
		wantType string
	}{
		{"", http.StatusOK, "image/png"},
		{"?group=fungus&kind=box&format=svg", http.StatusOK, "image/svg+xml"},
		{"?kind=scatter&format=pdf&target=FungusA", http.StatusOK, "application/pdf"},
		{"?group=pair", http.StatusBadRequest, "application/json"},
		{"?kind=hist&metric=zone", http.StatusOK, "image/png"},
		{"?kind=grouped&group=fungus&format=svg", http.StatusOK, "image/svg+xml"},
		{"?kind=pie", http.StatusBadRequest, "application/json"},
		{"?metric=area", http.StatusBadRequest, "application/json"},
		{"?format=gif", http.StatusBadRequest, "application/json"},
		{"?target=FungusQ", http.StatusNotFound, "application/json"},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			rr := get(t, h, "/api/v1/chart"+tc.query)
			if rr.Code != tc.wantCode {
				t.Fatalf("status: got %d, want %d (body %.200s)", rr.Code, tc.wantCode, rr.Body.String())
			}
			if ct := rr.Header().Get("Content-Type"); ct != tc.wantType {
				t.Errorf("Content-Type: got %q, want %q", ct, tc.wantType)
			}
		})
	}
}

func TestChart_InsufficientData(t *testing.T) {
	rr := get(t, newHandler(newStore(rec("F", "I", 1, 0))), "/api/v1/chart")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["sufficient"] != false || resp["error"] != "insufficient data" || resp["metric"] != "pgi" || resp["hint"] == nil {
		t.Errorf("body: got %v", resp)
	}

	// The raw zone is defined without a control.
	rr = get(t, newHandler(newStore(rec("F", "I", 1, 0))), "/api/v1/chart?metric=zone")
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/png" {
		t.Errorf("metric=zone: status %d, type %q", rr.Code, rr.Header().Get("Content-Type"))
	}
}

func TestReportPDF(t *testing.T) {
	rr := get(t, newHandler(sampleStore()), "/api/v1/report.pdf?group=fungus")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (body %.200s)", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "application/pdf" || !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")) {
		t.Errorf("not a PDF: %q", rr.Body.Bytes()[:min(rr.Body.Len(), 16)])
	}
}

// --- metrics / middleware ---------------------------------------------------

func TestOperationsAreCounted(t *testing.T) {
	st := sampleStore()
	reg := metrics.NewRegistry(st)
	h := api.New(st, api.Options{Metrics: reg.Recorder})

	do(t, h, http.MethodPost, "/api/v1/records", `{"fungus":"F","isolate":"I","inhibition_zone_mm":1,"control_mm":2,"concentration_cfu_ml":0}`)
	do(t, h, http.MethodPost, "/api/v1/records", `{"fungus":"","isolate":"I"}`)
	do(t, h, http.MethodDelete, "/api/v1/records/0", "")

	var buf bytes.Buffer
	if err := metrics.WriteText(&buf, reg); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	text := buf.String()
	for _, want := range []string{
		`pgilab_operations_total{op="add",status="ok"} 1`,
		`pgilab_operations_total{op="add",status="error"} 1`,
		`pgilab_operations_total{op="delete",status="ok"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q:\n%s", want, text)
		}
	}
}

func TestRequestID(t *testing.T) {
	h := api.RequestID(newHandler(sampleStore()))

	rr := get(t, h, "/api/v1/health")
	if id := rr.Header().Get(api.RequestIDHeader); len(id) != 36 {
		t.Errorf("generated id: got %q, want a UUID", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(api.RequestIDHeader, "lab-42")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if id := rr.Header().Get(api.RequestIDHeader); id != "lab-42" {
		t.Errorf("echoed id: got %q, want lab-42", id)
	}

	// Error responses carry the id too.
	if rr := get(t, h, "/api/v1/records/99"); rr.Header().Get(api.RequestIDHeader) == "" {
		t.Error("404 response without request id")
	}
}
