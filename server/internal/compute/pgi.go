package compute

import (
	"math"

	"github.com/pgilab/pgilab/pkg/types"
)

// PGI returns the percentage growth inhibition for rec. The second result
// is false when the control diameter is 0 and the value is undefined, or
// when the inputs are too extreme for the result to be finite.
// A negative PGI is valid: the fungus grew larger than on the control plate.
func PGI(rec types.Record) (float64, bool) {
	if rec.ControlMm == 0 {
		return 0, false
	}
	v := (rec.ControlMm - rec.InhibitionZoneMm) / rec.ControlMm * 100
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
