package effect

import (
	"fmt"
	"math"

	"github.com/banshee-data/trackfit/internal/bfield"
	"github.com/banshee-data/trackfit/internal/kalman"
	"github.com/banshee-data/trackfit/internal/trajectory"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultAppendBuffer is the minimum spacing (ns) between the start of an
// appended segment and the start of the segment before it.
const DefaultAppendBuffer = 0.01

// FieldCorrection accounts for the difference between the true field and
// the nominal field of the helix over one domain. The momentum change it
// induces is applied as a parameter shift at the middle of the domain.
//
// The domain follows the particle: when the fitted time origin moves, the
// domain moves by the same amount, except that the first and last domains
// stay pinned to the ends of the fit range.
//
// No noise term is added for field map uncertainty.
type FieldCorrection struct {
	base
	field   bfield.Field
	nominal trajectory.TimeRange // domain as split from the seed
	offset  float64              // accumulated time origin shift
	drange  trajectory.TimeRange
	steps   int
	buffer  float64
	dpfrac r3.Vec          // momentum change over the domain, as a fraction of |p|
	corr   trajectory.DVec // parameter shift
}

// NewFieldCorrection returns a correction for the given domain. It stays
// inactive until its first update with field refresh enabled.
func NewFieldCorrection(field bfield.Field, drange trajectory.TimeRange, steps int, buffer float64) *FieldCorrection {
	return &FieldCorrection{
		base:    base{time: drange.Mid()},
		field:   field,
		nominal: drange,
		drange:  drange,
		steps:   steps,
		buffer:  buffer,
	}
}

// Range returns the domain.
func (fc *FieldCorrection) Range() trajectory.TimeRange { return fc.drange }

// ShiftTime moves the domain by dt. Interior boundaries are clamped to
// bounds; a boundary on the edge of bounds stays there.
func (fc *FieldCorrection) ShiftTime(dt float64, bounds trajectory.TimeRange) {
	fc.offset += dt
	clamp := func(t float64) float64 { return math.Min(math.Max(t, bounds.Low), bounds.High) }
	low, high := bounds.Low, bounds.High
	if fc.nominal.Low > bounds.Low {
		low = clamp(fc.nominal.Low + fc.offset)
	}
	if fc.nominal.High < bounds.High {
		high = clamp(fc.nominal.High + fc.offset)
	}
	fc.drange = trajectory.TimeRange{Low: low, High: high}
	fc.time = fc.nominal.Mid() + fc.offset
}

// Deviation returns the fractional momentum change over the domain.
func (fc *FieldCorrection) Deviation() r3.Vec { return fc.dpfrac }

// Correction returns the parameter shift applied at the domain midpoint.
func (fc *FieldCorrection) Correction() trajectory.DVec { return fc.corr }

// Update re-integrates the field deviation when cfg requests it, then
// projects the deviation onto the reference trajectory.
func (fc *FieldCorrection) Update(ref *trajectory.Piecewise, cfg IterationConfig) error {
	fc.resetStatus()
	if cfg.RefreshField {
		dp := bfield.Integrate(fc.field, ref, fc.drange.Low, fc.drange.High, fc.steps)
		fc.dpfrac = r3.Scale(1/ref.MomentumMag(fc.time), dp)
		fc.active = true
	}
	return fc.Refresh(ref)
}

// Refresh projects the stored deviation onto the local basis of ref at the
// domain midpoint without integrating the field again.
func (fc *FieldCorrection) Refresh(ref *trajectory.Piecewise) error {
	piece := ref.NearestPiece(fc.time)
	var corr trajectory.DVec
	for _, dir := range []trajectory.LocalDir{trajectory.PerpDir, trajectory.PhiDir} {
		u, err := piece.Direction(fc.time, dir)
		if err != nil {
			return fmt.Errorf("field correction at %g: %w", fc.time, err)
		}
		d, err := piece.MomDeriv(fc.time, dir)
		if err != nil {
			return fmt.Errorf("field correction at %g: %w", fc.time, err)
		}
		corr = corr.Add(d.Scale(r3.Dot(fc.dpfrac, u)))
	}
	fc.corr = corr
	return nil
}

// Process shifts the sweep state: forward sweeps add the correction,
// backward sweeps remove it.
func (fc *FieldCorrection) Process(acc *kalman.Accumulator, dir kalman.Direction) {
	if fc.active {
		if dir == kalman.Forward {
			acc.Shift(fc.corr)
		} else {
			acc.Shift(fc.corr.Scale(-1))
		}
	}
	fc.markProcessed(dir)
}

// Append adds a copy of the last segment of ptraj shifted by the correction,
// starting at the domain midpoint and running to the end of ptraj.
func (fc *FieldCorrection) Append(ptraj *trajectory.Piecewise) error {
	if !fc.active {
		return nil
	}
	back := ptraj.Back()
	high := ptraj.Range().High
	tlow := math.Max(fc.time, back.Range().Low+fc.buffer)
	if tlow >= high {
		return nil
	}
	pd := back.Params()
	pd.Params = pd.Params.Add(fc.corr)
	if err := ptraj.Append(back.WithParams(pd).WithRange(trajectory.TimeRange{Low: tlow, High: high})); err != nil {
		return fmt.Errorf("field correction at %g: %w", fc.time, err)
	}
	return nil
}
