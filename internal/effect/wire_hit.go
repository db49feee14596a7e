package effect

import (
	"fmt"
	"math"

	"github.com/banshee-data/trackfit/internal/bfield"
	"github.com/banshee-data/trackfit/internal/drift"
	"github.com/banshee-data/trackfit/internal/kalman"
	"github.com/banshee-data/trackfit/internal/poca"
	"github.com/banshee-data/trackfit/internal/trajectory"
	"gonum.org/v1/gonum/spatial/r3"
)

// Ambiguity is the side of the wire the particle passed.
type Ambiguity int

const (
	Left  Ambiguity = -1
	Null  Ambiguity = 0
	Right Ambiguity = 1
)

func (a Ambiguity) String() string {
	switch a {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "null"
	}
}

// WireHit is a drift-time measurement on a sense wire. The wire is the line
// along which the signal propagates: it passes the readout end at the
// measured time.
type WireHit struct {
	base
	wire     trajectory.Line
	field    bfield.Field
	d2t      drift.Relation
	pocaSet  poca.Settings
	cellSize float64
	nullVar  float64
	ambig    Ambiguity
	hint     poca.Hint

	poca  poca.Result
	resid Residual
	ref   trajectory.DVec // reference parameters at the particle poca
}

// NewWireHit returns an active hit with null ambiguity. hint seeds the
// first closest-approach solve and sets the initial ordering time.
func NewWireHit(wire trajectory.Line, field bfield.Field, d2t drift.Relation, cellSize float64, hint poca.Hint, ps poca.Settings) *WireHit {
	h := &WireHit{
		base:     base{time: hint.Particle, active: true},
		wire:     wire,
		field:    field,
		d2t:      d2t,
		pocaSet:  ps,
		cellSize: cellSize,
		hint:     hint,
	}
	h.SetNullVariance(cellSize)
	return h
}

// NDOF is the number of degrees of freedom a hit contributes.
func (h *WireHit) NDOF() int { return 1 }

// Wire returns the signal propagation line.
func (h *WireHit) Wire() trajectory.Line { return h.wire }

// CellSize returns the drift cell size (mm).
func (h *WireHit) CellSize() float64 { return h.cellSize }

// Ambiguity returns the current left/right assignment.
func (h *WireHit) Ambiguity() Ambiguity { return h.ambig }

// SetAmbiguity overrides the left/right assignment.
func (h *WireHit) SetAmbiguity(a Ambiguity) { h.ambig = a }

// NullVariance returns the variance used for a null-ambiguity residual.
func (h *WireHit) NullVariance() float64 { return h.nullVar }

// SetNullVariance sets the null variance from a size (mm), assuming a
// uniform distribution across it.
func (h *WireHit) SetNullVariance(size float64) { h.nullVar = size * size / 3 }

// Poca returns the closest approach from the last update.
func (h *WireHit) Poca() poca.Result { return h.poca }

// LastResidual returns the residual from the last update.
func (h *WireHit) LastResidual() Residual { return h.resid }

// Chi2 returns the chi² contribution of the last residual, or 0 if inactive.
func (h *WireHit) Chi2() float64 {
	if !h.active {
		return 0
	}
	return h.resid.Chi2()
}

// Update finds the closest approach to ref, applies the wire hit updater if
// cfg has one, and recomputes the residual. A failed closest-approach solve
// is an error.
func (h *WireHit) Update(ref *trajectory.Piecewise, cfg IterationConfig) error {
	h.resetStatus()
	res := poca.Solve(ref, h.wire, h.hint, h.pocaSet)
	doca, err := res.Doca()
	if err != nil {
		return fmt.Errorf("wire hit at %g: %w", h.time, err)
	}
	h.poca = res
	h.hint = res.Hint()
	h.time = h.hint.Particle

	if u, ok := cfg.WireHitUpdater(); ok {
		if math.Abs(doca) > u.MinDoca {
			h.ambig = Right
			if doca < 0 {
				h.ambig = Left
			}
		} else {
			h.ambig = Null
			h.SetNullVariance(math.Min(h.cellSize, u.MinDoca))
		}
		h.active = math.Abs(doca) < u.MaxDoca
	}

	resid, err := h.Residual(res)
	if err != nil {
		return err
	}
	h.resid = resid
	h.ref = ref.NearestPiece(h.time).Params().Params
	return nil
}

// Residual computes the residual for a closest-approach result using the
// current ambiguity. An unusable result is an error.
func (h *WireHit) Residual(res poca.Result) (Residual, error) {
	doca, err := res.Doca()
	if err != nil {
		return Residual{}, fmt.Errorf("wire hit residual: %w", err)
	}
	dDdP, err := res.DDocaDParams()
	if err != nil {
		return Residual{}, fmt.Errorf("wire hit residual: %w", err)
	}
	if h.ambig == Null {
		return Residual{Kind: DistanceResidual, Value: -doca, Variance: h.nullVar, Deriv: dDdP}, nil
	}

	dt, err := res.DeltaT()
	if err != nil {
		return Residual{}, fmt.Errorf("wire hit residual: %w", err)
	}
	dTdP, err := res.DDeltaTDParams()
	if err != nil {
		return Residual{}, fmt.Errorf("wire hit residual: %w", err)
	}
	pp, _ := res.ParticlePoca()
	delta, _ := res.Delta()

	// azimuth of the drift relative to the B x wire direction
	var phi float64
	pdir := r3.Cross(h.field.Value(pp.Pos), h.wire.Dir())
	if doca != 0 && r3.Norm(pdir) > 0 {
		s := r3.Dot(r3.Unit(delta), r3.Unit(pdir))
		phi = math.Asin(math.Max(-1, math.Min(1, s)))
	}
	amb := float64(h.ambig)
	tdrift, tvar, vdrift := h.d2t.DistanceToTime(doca*amb, phi)
	return Residual{
		Kind:     TimeResidual,
		Value:    dt - tdrift,
		Variance: tvar,
		Deriv:    dDdP.Scale(amb / vdrift).Sub(dTdP),
	}, nil
}

// ShiftTime moves the particle side of the closest-approach hint by dt.
func (h *WireHit) ShiftTime(dt float64, _ trajectory.TimeRange) {
	h.hint.Particle += dt
	h.time = h.hint.Particle
}

// Process adds the measurement to the sweep.
func (h *WireHit) Process(acc *kalman.Accumulator, dir kalman.Direction) {
	if h.active {
		acc.AddMeasurement(h.resid.Deriv, h.resid.Value, h.resid.Variance, h.ref)
	}
	h.markProcessed(dir)
}

func (h *WireHit) Append(*trajectory.Piecewise) error { return nil }
