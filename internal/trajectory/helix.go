package trajectory

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/trackfit/internal/units"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ConsistencyTolerance is the maximum position (mm) and momentum (MeV)
// mismatch allowed between a new helix and the inputs it was built from.
const ConsistencyTolerance = 1e-5

const twoPi = 2 * math.Pi

// Helix is a looping helix in a uniform nominal field, valid over a time
// range. Parameters are expressed in a local frame whose z axis is along the
// nominal field.
//
// A Helix is not modified once built, except for its range which the owning
// Piecewise adjusts on append. Parameter changes produce a new Helix.
type Helix struct {
	trange TimeRange
	pars   ParamData
	mass   float64 // MeV
	charge int     // proton charge units
	mbar   float64 // reduced mass in mm; carries the bending sign
	bnom   r3.Vec
	l2g    r3.Rotation
	g2l    r3.Rotation
}

// NewHelixBz builds a helix in a nominal field along z.
func NewHelixBz(pos Point4, mom Mom4, charge int, bz float64, trange TimeRange) (*Helix, error) {
	return NewHelix(pos, mom, charge, r3.Vec{Z: bz}, trange)
}

// NewHelix builds a helix from a space-time point, the momentum there, the
// particle charge and the nominal field vector. The parameter covariance is
// zero. An error wrapping ErrConstructionInconsistency is returned if the
// helix does not reproduce pos and mom within ConsistencyTolerance.
func NewHelix(pos0 Point4, mom0 Mom4, charge int, bnom r3.Vec, trange TimeRange) (*Helix, error) {
	bmag := r3.Norm(bnom)
	if charge == 0 || bmag == 0 {
		return nil, fmt.Errorf("%w: charge %d in field %g T cannot loop", ErrConstructionInconsistency, charge, bmag)
	}
	h := &Helix{
		trange: trange,
		mass:   mom0.Mass,
		charge: charge,
		bnom:   bnom,
	}
	// rotate about the origin so the nominal field lies along z
	bphi := azimuth(bnom)
	axis := r3.Vec{X: math.Sin(bphi), Y: -math.Cos(bphi)}
	h.g2l = r3.NewRotation(theta(bnom), axis)
	h.l2g = r3.NewRotation(-theta(bnom), axis)
	if lb := h.g2l.Rotate(bnom); math.Abs(theta(lb)) > 1e-6 {
		return nil, fmt.Errorf("%w: field rotation residual %g rad", ErrConstructionInconsistency, theta(lb))
	}
	pos := h.g2l.Rotate(pos0.Pos)
	mom := h.g2l.Rotate(mom0.P)
	if mom.Z == 0 {
		return nil, fmt.Errorf("%w: no momentum along the field", ErrConstructionInconsistency)
	}

	pt := math.Hypot(mom.X, mom.Y)
	phibar := math.Atan2(mom.Y, mom.X)
	// momentum to bend radius; signed by the charge
	momToRad := 1.0 / (units.CBar * float64(charge) * bmag)
	h.mbar = -h.mass * momToRad

	p := &h.pars.Params
	p[Rad] = -pt * momToRad
	p[Lam] = -mom.Z * momToRad
	om := h.Omega()
	p[T0] = pos0.T - pos.Z/(om*p[Lam])
	// winding that puts phi0 in the range -pi, pi
	nwind := math.RoundToEven((pos.Z/p[Lam] - phibar) / twoPi)
	p[Phi0] = phibar - om*(pos0.T-p[T0]) + twoPi*nwind
	p[CX] = pos.X + mom.Y*momToRad
	p[CY] = pos.Y - mom.X*momToRad
	h.pars.Cov = mat.NewSymDense(NParams, nil)

	dp := r3.Norm(r3.Sub(h.Position(pos0.T), pos0.Pos))
	dm := r3.Norm(r3.Sub(h.Momentum(pos0.T).P, mom0.P))
	if dp > ConsistencyTolerance || dm > ConsistencyTolerance {
		return nil, fmt.Errorf("%w: position mismatch %g mm, momentum mismatch %g MeV", ErrConstructionInconsistency, dp, dm)
	}
	return h, nil
}

// WithParams returns a copy of h carrying pd instead of its own parameters.
func (h *Helix) WithParams(pd ParamData) *Helix {
	c := *h
	c.pars = pd.Clone()
	return &c
}

// WithRange returns a copy of h valid over r.
func (h *Helix) WithRange(r TimeRange) *Helix {
	c := h.Clone()
	c.trange = r
	return c
}

// Clone returns a deep copy.
func (h *Helix) Clone() *Helix {
	c := *h
	c.pars = h.pars.Clone()
	return &c
}

// InvertCT flips the helix in charge and time. The result traces the same
// curve: Position(-t) of the inverted helix equals Position(t) of h.
func (h *Helix) InvertCT() *Helix {
	c := h.Clone()
	c.mbar = -c.mbar
	c.charge = -c.charge
	c.pars.Params[T0] = -c.pars.Params[T0]
	c.trange = TimeRange{Low: -h.trange.High, High: -h.trange.Low}
	return c
}

// Range returns the validity range.
func (h *Helix) Range() TimeRange { return h.trange }

// InRange reports whether t lies in the validity range.
func (h *Helix) InRange(t float64) bool { return h.trange.InRange(t) }

// Params returns a copy of the parameters and covariance.
func (h *Helix) Params() ParamData { return h.pars.Clone() }

// ParamVal returns a single parameter.
func (h *Helix) ParamVal(i ParamIndex) float64 { return h.pars.Params[i] }

func (h *Helix) Rad() float64  { return h.pars.Params[Rad] }
func (h *Helix) Lam() float64  { return h.pars.Params[Lam] }
func (h *Helix) CX() float64   { return h.pars.Params[CX] }
func (h *Helix) CY() float64   { return h.pars.Params[CY] }
func (h *Helix) Phi0() float64 { return h.pars.Params[Phi0] }
func (h *Helix) T0() float64   { return h.pars.Params[T0] }

// Mass returns the particle mass in MeV.
func (h *Helix) Mass() float64 { return h.mass }

// Charge returns the charge in proton units.
func (h *Helix) Charge() int { return h.charge }

// BNom returns the nominal field vector.
func (h *Helix) BNom() r3.Vec { return h.bnom }

// Sign is the combined bending sign of charge and field.
func (h *Helix) Sign() float64 { return math.Copysign(1.0, h.mbar) }

// PBar2 returns the squared momentum in mm².
func (h *Helix) PBar2() float64 { return h.Rad()*h.Rad() + h.Lam()*h.Lam() }

// PBar returns the momentum in mm.
func (h *Helix) PBar() float64 { return math.Sqrt(h.PBar2()) }

// EBar returns the energy in mm.
func (h *Helix) EBar() float64 { return math.Sqrt(h.PBar2() + h.mbar*h.mbar) }

// MBar returns the signed reduced mass in mm.
func (h *Helix) MBar() float64 { return h.mbar }

// Q returns the reduced charge.
func (h *Helix) Q() float64 { return h.mass / h.mbar }

// Omega returns the angular velocity (rad/ns); its sign follows the magnetic force.
func (h *Helix) Omega() float64 { return units.CLight * h.Sign() / h.EBar() }

// Beta returns the relativistic velocity.
func (h *Helix) Beta() float64 { return h.PBar() / h.EBar() }

// Gamma returns the relativistic gamma.
func (h *Helix) Gamma() float64 { return math.Abs(h.EBar() / h.mbar) }

// BetaGamma returns p/m.
func (h *Helix) BetaGamma() float64 { return math.Abs(h.PBar() / h.mbar) }

// Speed returns the particle speed in mm/ns.
func (h *Helix) Speed() float64 { return units.CLight * h.Beta() }

// MomentumMag returns |p| in MeV.
func (h *Helix) MomentumMag() float64 { return math.Abs(h.mass * h.BetaGamma()) }

// Energy returns the energy in MeV.
func (h *Helix) Energy() float64 { return math.Abs(h.mass * h.EBar() / h.mbar) }

func (h *Helix) dphi(t float64) float64 { return h.Omega() * (t - h.T0()) }

// Phi returns the azimuth of the momentum at time t in the local frame.
func (h *Helix) Phi(t float64) float64 { return h.dphi(t) + h.Phi0() }

// ZTime returns the time at which the helix crosses local z.
func (h *Helix) ZTime(z float64) float64 { return h.T0() + z/(h.Omega()*h.Lam()) }

// ZPhi returns the azimuth at local z.
func (h *Helix) ZPhi(z float64) float64 { return z/h.Lam() + h.Phi0() }

// Position returns the global position at time t.
func (h *Helix) Position(t float64) r3.Vec {
	df := h.dphi(t)
	phi := df + h.Phi0()
	return h.l2g.Rotate(r3.Vec{
		X: h.CX() + h.Rad()*math.Sin(phi),
		Y: h.CY() - h.Rad()*math.Cos(phi),
		Z: df * h.Lam(),
	})
}

// Pos4 returns the space-time point at time t.
func (h *Helix) Pos4(t float64) Point4 {
	return Point4{Pos: h.Position(t), T: t}
}

// Momentum returns the momentum at time t.
func (h *Helix) Momentum(t float64) Mom4 {
	bgm := h.BetaGamma() * h.mass
	return Mom4{P: r3.Scale(bgm, h.direction(t, MomDir)), Mass: h.mass}
}

// Velocity returns the velocity (mm/ns) at time t.
func (h *Helix) Velocity(t float64) r3.Vec {
	return r3.Scale(h.Speed(), h.direction(t, MomDir))
}

// MomentumVar returns the variance of |p| from the parameter covariance.
func (h *Helix) MomentumVar(float64) float64 {
	f := h.mass / (h.PBar() * h.mbar)
	d := DVec{h.Rad() * f, h.Lam() * f}
	return mat.Inner(d.Dense(), h.pars.Cov, d.Dense())
}

// Direction returns the unit vector of the requested local basis direction
// at time t.
func (h *Helix) Direction(t float64, dir LocalDir) (r3.Vec, error) {
	if !dir.Valid() {
		return r3.Vec{}, fmt.Errorf("%w: %v", ErrInvalidDirection, dir)
	}
	return h.direction(t, dir), nil
}

func (h *Helix) direction(t float64, dir LocalDir) r3.Vec {
	phi := h.Phi(t)
	invpb := h.Sign() / h.PBar()
	var v r3.Vec
	switch dir {
	case PerpDir:
		v = r3.Vec{X: h.Lam() * math.Cos(phi) * invpb, Y: h.Lam() * math.Sin(phi) * invpb, Z: -h.Rad() * invpb}
	case PhiDir:
		v = r3.Vec{X: -math.Sin(phi), Y: math.Cos(phi)}
	default:
		v = r3.Vec{X: h.Rad() * math.Cos(phi) * invpb, Y: h.Rad() * math.Sin(phi) * invpb, Z: h.Lam() * invpb}
	}
	return h.l2g.Rotate(v)
}

func (h *Helix) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %v parameters:", TrajName, h.trange)
	for i := ParamIndex(0); i < NParams; i++ {
		fmt.Fprintf(&b, " %s %g +- %g", i, h.pars.Params[i], h.pars.Sigma(i))
	}
	fmt.Fprintf(&b, " with rotation around Bnom (%g, %g, %g)", h.bnom.X, h.bnom.Y, h.bnom.Z)
	return b.String()
}
