package trajectory

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// MomDeriv returns the derivatives of the parameters with respect to a
// change of momentum along the given local direction, expressed as a
// fraction of the momentum magnitude:
//
//	MomDir:  fractional momentum change; position and direction unchanged
//	PerpDir: polar bend; momentum magnitude and position unchanged
//	PhiDir:  azimuthal bend; radius, lambda and t0 unchanged
//
// The position at time t is held fixed in all three cases.
func (h *Helix) MomDeriv(t float64, dir LocalDir) (DVec, error) {
	if !dir.Valid() {
		return DVec{}, fmt.Errorf("%w: %v", ErrInvalidDirection, dir)
	}
	return h.momDeriv(t, dir), nil
}

func (h *Helix) momDeriv(t float64, dir LocalDir) DVec {
	beta := h.Beta()
	om := h.Omega()
	pb := h.PBar() * h.Sign()
	dt := t - h.T0()
	phi := om*dt + h.Phi0()
	rad, lam := h.Rad(), h.Lam()
	var d DVec
	switch dir {
	case PerpDir:
		d[Rad] = lam
		d[Lam] = -rad
		d[T0] = -dt * rad / lam
		d[Phi0] = -om * dt * rad / lam
		d[CX] = -lam * math.Sin(phi)
		d[CY] = lam * math.Cos(phi)
	case PhiDir:
		d[Phi0] = pb / rad
		d[CX] = -pb * math.Cos(phi)
		d[CY] = -pb * math.Sin(phi)
	default:
		d[Rad] = rad
		d[Lam] = lam
		d[T0] = dt * (1.0 - beta*beta)
		d[Phi0] = om * dt
		d[CX] = -rad * math.Sin(phi)
		d[CY] = rad * math.Cos(phi)
	}
	return d
}

// PosDeriv returns the derivative of the global position at time t with
// respect to each parameter, one column per parameter.
func (h *Helix) PosDeriv(t float64) [NParams]r3.Vec {
	rad, lam := h.Rad(), h.Lam()
	om := h.Omega()
	eb2 := h.EBar() * h.EBar()
	dt := t - h.T0()
	phi := om*dt + h.Phi0()
	sphi, cphi := math.Sincos(phi)

	// omega depends on rad and lam through ebar
	domdr := -om * rad / eb2
	domdl := -om * lam / eb2
	dphidr := dt * domdr
	dphidl := dt * domdl

	var local [NParams]r3.Vec
	local[Rad] = r3.Vec{
		X: sphi + rad*cphi*dphidr,
		Y: -cphi + rad*sphi*dphidr,
		Z: dt * lam * domdr,
	}
	local[Lam] = r3.Vec{
		X: rad * cphi * dphidl,
		Y: rad * sphi * dphidl,
		Z: dt * (om + lam*domdl),
	}
	local[CX] = r3.Vec{X: 1}
	local[CY] = r3.Vec{Y: 1}
	local[Phi0] = r3.Vec{X: rad * cphi, Y: rad * sphi}
	local[T0] = r3.Vec{X: -om * rad * cphi, Y: -om * rad * sphi, Z: -om * lam}

	var out [NParams]r3.Vec
	for i, v := range local {
		out[i] = h.l2g.Rotate(v)
	}
	return out
}
