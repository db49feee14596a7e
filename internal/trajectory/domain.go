package trajectory

import (
	"math"

	"github.com/banshee-data/trackfit/internal/bfield"
	"gonum.org/v1/gonum/spatial/r3"
)

// StepTuning holds the empirical constants of the domain splitter.
type StepTuning struct {
	InitialStep   float64 // ns, used when the field is close to nominal
	DiffStepScale float64 // scale of the step derived from |B - Bnom|
	GradStepScale float64 // scale of the step derived from dB/dt
	MinFieldDiff  float64 // T; below this the initial step is kept
}

// DefaultStepTuning returns the standard splitter constants.
func DefaultStepTuning() StepTuning {
	return StepTuning{InitialStep: 0.1, DiffStepScale: 0.2, GradStepScale: 0.5, MinFieldDiff: 1e-4}
}

// RangeInTolerance returns the domain starting at low over which the
// position distortion from using the nominal field instead of field stays
// below tol (mm). The domain never extends past the end of h. A tolerance
// or tuning that gives no positive finite step yields the rest of the range.
func (h *Helix) RangeInTolerance(low float64, field bfield.Field, tol float64, st StepTuning) TimeRange {
	return rangeInTolerance(h, low, h.trange.High, field, tol, st)
}

// RangeInTolerance returns the domain starting at low, using the segment
// active at low, bounded by the end of the piecewise trajectory.
func (p *Piecewise) RangeInTolerance(low float64, field bfield.Field, tol float64, st StepTuning) TimeRange {
	return rangeInTolerance(p.NearestPiece(low), low, p.Range().High, field, tol, st)
}

func rangeInTolerance(h *Helix, low, limit float64, field bfield.Field, tol float64, st StepTuning) TimeRange {
	drange := TimeRange{Low: low, High: low}
	if low >= limit {
		drange.High = limit
		return drange
	}
	bnom := h.BNom()
	spd := h.Speed()
	sfac := spd * spd / (r3.Norm(bnom) * h.PBar())

	tpos := h.Position(low)
	db := r3.Norm(r3.Sub(field.Value(tpos), bnom))
	tstep := st.InitialStep
	if db > st.MinFieldDiff {
		tstep = st.DiffStepScale * math.Sqrt(tol/(sfac*db))
	}
	if dbdt := r3.Norm(bfield.Deriv(field, tpos, h.Velocity(low))); dbdt > 0 {
		tstep = math.Min(tstep, st.GradStepScale*math.Cbrt(tol/(sfac*dbdt)))
	}
	if !(tstep > 0) || math.IsInf(tstep, 1) {
		drange.High = limit
		return drange
	}

	// advance until the distortion exceeds tol or the end is reached
	var dx float64
	for {
		drange.High += tstep
		if drange.High >= limit {
			drange.High = limit
			return drange
		}
		db = r3.Norm(r3.Sub(field.Value(h.Position(drange.High)), bnom))
		dx += sfac * drange.Span() * tstep * db
		if math.Abs(dx) >= tol {
			return drange
		}
	}
}
