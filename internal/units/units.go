// Package units provides the physical constants and unit labels shared by the
// trajectory fit. Lengths are in mm, times in ns, momenta and masses in MeV
// (c = 1 inside four-vectors), and magnetic fields in Tesla.
package units

import "math"

// Unit labels used in parameter tables and printed output.
const (
	MM      = "mm"
	NS      = "ns"
	MeV     = "MeV"
	Tesla   = "T"
	Radians = "radians"
)

// ValidUnits contains all unit labels used by the fit parameter tables.
var ValidUnits = []string{MM, NS, MeV, Tesla, Radians}

// CLight is the speed of light in mm/ns.
const CLight = 299.792458

// CBar converts between momentum and curvature: a particle with charge q
// (proton units) and transverse momentum pt (MeV/c) in a field B (Tesla)
// has a bend radius of pt/(CBar*q*B) mm.
const CBar = CLight / 1000.0

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// BendRadius returns the signed bend radius (mm) of a particle with the given
// transverse momentum (MeV/c), charge and field magnitude (T).
func BendRadius(pt float64, charge int, bmag float64) float64 {
	return pt / (CBar * float64(charge) * bmag)
}

// Beta returns the relativistic velocity of a particle with momentum p and mass m.
func Beta(p, m float64) float64 {
	if p == 0 {
		return 0
	}
	e := math.Sqrt(p*p + m*m)
	return p / e
}
