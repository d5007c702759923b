package checks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pgilab/pgilab/pkg/types"
	"github.com/pgilab/pgilab/server/internal/compute"
)

// Condition is a parsed rule expression of the form "field op value".
//
// Supported expressions:
//
//	pgi < 0
//	pgi > 100
//	control_mm == 0
//	inhibition_zone_mm >= 30
//	concentration_cfu_ml < 1e5
//	fungus == Fusarium
//	isolate != B-12
//
// A pgi condition never matches a record whose PGI is undefined.
type Condition struct {
	Field string
	Op    string
	raw   string
	num   float64
}

var numericFields = map[string]bool{
	"pgi":                  true,
	types.ColInhibitionMm:  true,
	types.ColControlMm:     true,
	types.ColConcentration: true,
}

// ParseCondition parses s. The value may not contain spaces.
func ParseCondition(s string) (Condition, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return Condition{}, fmt.Errorf("checks: condition %q: want \"field op value\"", s)
	}
	c := Condition{Field: parts[0], Op: parts[1], raw: parts[2]}

	switch {
	case numericFields[c.Field]:
		switch c.Op {
		case ">", ">=", "<", "<=", "==", "!=":
		default:
			return Condition{}, fmt.Errorf("checks: condition %q: unknown operator %q", s, c.Op)
		}
		v, err := strconv.ParseFloat(c.raw, 64)
		if err != nil {
			return Condition{}, fmt.Errorf("checks: condition %q: value is not a number", s)
		}
		c.num = v
	case c.Field == types.ColFungus || c.Field == types.ColIsolate:
		if c.Op != "==" && c.Op != "!=" {
			return Condition{}, fmt.Errorf("checks: condition %q: %s supports == and != only", s, c.Field)
		}
	default:
		return Condition{}, fmt.Errorf("checks: condition %q: unknown field %q", s, c.Field)
	}
	return c, nil
}

// Match reports whether rec satisfies the condition and, for numeric
// fields, the value that was compared.
func (c Condition) Match(rec types.Record) (bool, float64) {
	switch c.Field {
	case types.ColFungus:
		return (rec.Fungus == c.raw) == (c.Op == "=="), 0
	case types.ColIsolate:
		return (rec.Isolate == c.raw) == (c.Op == "=="), 0
	}

	var v float64
	switch c.Field {
	case "pgi":
		pgi, ok := compute.PGI(rec)
		if !ok {
			return false, 0
		}
		v = pgi
	case types.ColInhibitionMm:
		v = rec.InhibitionZoneMm
	case types.ColControlMm:
		v = rec.ControlMm
	case types.ColConcentration:
		v = rec.ConcentrationCfuPerMl
	}
	return compareFloat(v, c.Op, c.num), v
}

func (c Condition) String() string {
	return c.Field + " " + c.Op + " " + c.raw
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
