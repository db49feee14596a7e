// Package drift maps a drift distance to a drift time for wire hits.
package drift

import "fmt"

// Relation converts a signed drift distance rho (mm) at azimuth phi
// (radians, relative to the field-cross-wire direction) into the expected
// drift time (ns), its variance (ns²) and the local drift speed (mm/ns).
type Relation interface {
	DistanceToTime(rho, phi float64) (time, variance, speed float64)
}

// Constant is a linear relation with a fixed drift speed and time resolution.
type Constant struct {
	Speed float64 // mm/ns
	Sigma float64 // ns
}

// NewConstant returns a constant-speed relation. Both values must be positive.
func NewConstant(speed, sigma float64) (Constant, error) {
	if speed <= 0 || sigma <= 0 {
		return Constant{}, fmt.Errorf("drift speed %g and resolution %g must be positive", speed, sigma)
	}
	return Constant{Speed: speed, Sigma: sigma}, nil
}

func (c Constant) DistanceToTime(rho, _ float64) (float64, float64, float64) {
	return rho / c.Speed, c.Sigma * c.Sigma, c.Speed
}
