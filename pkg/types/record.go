package types

import (
	"math"
	"strings"
)

// CSV column names, in the fixed export order.
const (
	ColFungus        = "fungus"
	ColIsolate       = "isolate"
	ColInhibitionMm  = "inhibition_zone_mm"
	ColControlMm     = "control_mm"
	ColConcentration = "concentration_cfu_ml"

	ColNotes     = "notes"
	ColImagePath = "image_path"
)

// Columns is the header row written by every export and required by every import.
var Columns = []string{ColFungus, ColIsolate, ColInhibitionMm, ColControlMm, ColConcentration}

// OptionalColumns follow Columns when present. An export writes them only
// when at least one record carries a value.
var OptionalColumns = []string{ColNotes, ColImagePath}

// Diameter limits. A diameter above MaxDiameterMm, or a non-zero control
// below MinControlMm, is rejected so PGI and its aggregates stay finite.
const (
	MaxDiameterMm = 1e6
	MinControlMm  = 1e-3
)

// Record is one measurement: a bacterial isolate tested against a fungal species.
//
// Records have no natural key. Two records with the same (Fungus, Isolate)
// pair are independent replicates.
type Record struct {
	Fungus  string `json:"fungus"`
	Isolate string `json:"isolate"`

	// InhibitionZoneMm is the treated-plate radial growth (R1) in millimetres.
	InhibitionZoneMm float64 `json:"inhibition_zone_mm"`

	// ControlMm is the control-plate radial growth (KR) in millimetres.
	// Zero is accepted but leaves PGI undefined for this record.
	ControlMm float64 `json:"control_mm"`

	// ConcentrationCfuPerMl is the bacterial concentration. Descriptive only.
	ConcentrationCfuPerMl float64 `json:"concentration_cfu_ml"`

	// Notes is free text. ImagePath points at a plate photo; it is stored
	// and exported but never opened.
	Notes     string `json:"notes,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
}

// HasExtras reports whether r uses any of the OptionalColumns.
func (r Record) HasExtras() bool {
	return r.Notes != "" || r.ImagePath != ""
}

// Normalize returns a copy of r with surrounding whitespace trimmed from the
// text fields.
func (r Record) Normalize() Record {
	r.Fungus = strings.TrimSpace(r.Fungus)
	r.Isolate = strings.TrimSpace(r.Isolate)
	r.Notes = strings.TrimSpace(r.Notes)
	r.ImagePath = strings.TrimSpace(r.ImagePath)
	return r
}

// Validate reports the first field that violates the record rules.
// Name fields must be non-empty after trimming; numeric fields must be
// finite and not negative. Diameters are bounded by MaxDiameterMm and a
// non-zero control must reach MinControlMm.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Fungus) == "" {
		return &ValidationError{Field: ColFungus, Reason: "must not be empty"}
	}
	if strings.TrimSpace(r.Isolate) == "" {
		return &ValidationError{Field: ColIsolate, Reason: "must not be empty"}
	}
	nums := []struct {
		field string
		v     float64
	}{
		{ColInhibitionMm, r.InhibitionZoneMm},
		{ColControlMm, r.ControlMm},
		{ColConcentration, r.ConcentrationCfuPerMl},
	}
	for _, n := range nums {
		if err := checkNonNegative(n.field, n.v); err != nil {
			return err
		}
	}
	for _, n := range nums[:2] {
		if n.v > MaxDiameterMm {
			return &ValidationError{Field: n.field, Value: n.v, Reason: "exceeds the maximum diameter"}
		}
	}
	if r.ControlMm != 0 && r.ControlMm < MinControlMm {
		return &ValidationError{Field: ColControlMm, Value: r.ControlMm, Reason: "must be 0 or at least 0.001"}
	}
	return nil
}

func checkNonNegative(field string, v float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return &ValidationError{Field: field, Value: v, Reason: "must be finite"}
	case v < 0:
		return &ValidationError{Field: field, Value: v, Reason: "must not be negative"}
	}
	return nil
}
