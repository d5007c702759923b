package api

import (
	"github.com/pgilab/pgilab/pkg/types"
	"github.com/pgilab/pgilab/server/internal/checks"
	"github.com/pgilab/pgilab/server/internal/compute"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Records int    `json:"records"`
	Version uint64 `json:"version"`
}

// ImportResponse is the payload for POST /api/v1/import.
type ImportResponse struct {
	Mode     string           `json:"mode"`
	Imported int              `json:"imported"`
	Total    int              `json:"total"`
	Errors   []types.RowError `json:"errors"`
}

// NamesResponse is the payload for GET /api/v1/names.
type NamesResponse struct {
	Isolates []string `json:"isolates"`
	Fungi    []string `json:"fungi"`
}

// RankedResponse is the payload for GET /api/v1/pgi/effective and
// GET /api/v1/pgi/resistant. Result is omitted when Sufficient is false.
type RankedResponse struct {
	Fungus     string          `json:"fungus,omitempty"`
	Isolate    string          `json:"isolate,omitempty"`
	Sufficient bool            `json:"sufficient"`
	Result     *compute.Ranked `json:"result,omitempty"`
}

// SummaryResponse is the payload for GET /api/v1/summary and the data of
// every WebSocket message.
type SummaryResponse struct {
	compute.Summary
	Version     uint64 `json:"version"`
	Hints       []Hint `json:"hints"`
	GeneratedAt string `json:"generated_at"` // RFC3339
}

// ChecksResponse is the payload for GET /api/v1/checks.
type ChecksResponse struct {
	Rules    []checks.Rule    `json:"rules"`
	Findings []checks.Finding `json:"findings"`
}

// RecordRequest is the body of POST /api/v1/records and PUT
// /api/v1/records/{i}. Numeric fields are pointers so an omitted field is
// told apart from an explicit 0.
type RecordRequest struct {
	Fungus                string   `json:"fungus"`
	Isolate               string   `json:"isolate"`
	InhibitionZoneMm      *float64 `json:"inhibition_zone_mm"`
	ControlMm             *float64 `json:"control_mm"`
	ConcentrationCfuPerMl *float64 `json:"concentration_cfu_ml"`
	Notes                 string   `json:"notes,omitempty"`
	ImagePath             string   `json:"image_path,omitempty"`
}

// Record converts the request, failing with a *types.ValidationError that
// names the first absent numeric field.
func (q RecordRequest) Record() (types.Record, error) {
	nums := []struct {
		field string
		v     *float64
	}{
		{types.ColInhibitionMm, q.InhibitionZoneMm},
		{types.ColControlMm, q.ControlMm},
		{types.ColConcentration, q.ConcentrationCfuPerMl},
	}
	for _, n := range nums {
		if n.v == nil {
			return types.Record{}, &types.ValidationError{Field: n.field, Reason: "is required"}
		}
	}
	return types.Record{
		Fungus:                q.Fungus,
		Isolate:               q.Isolate,
		InhibitionZoneMm:      *q.InhibitionZoneMm,
		ControlMm:             *q.ControlMm,
		ConcentrationCfuPerMl: *q.ConcentrationCfuPerMl,
		Notes:                 q.Notes,
		ImagePath:             q.ImagePath,
	}, nil
}

// insufficientResponse answers a chart request with nothing to draw.
type insufficientResponse struct {
	Sufficient bool           `json:"sufficient"`
	Error      string         `json:"error"`
	Metric     compute.Metric `json:"metric"`
	Hint       string         `json:"hint,omitempty"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
