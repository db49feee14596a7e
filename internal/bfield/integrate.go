package bfield

import (
	"github.com/banshee-data/trackfit/internal/units"
	"gonum.org/v1/gonum/spatial/r3"
)

// Path is the part of a trajectory needed to integrate the field along it.
type Path interface {
	Position(t float64) r3.Vec
	Velocity(t float64) r3.Vec
	Charge() int
	BNom() r3.Vec
}

// Integrate returns the momentum change (MeV/c) accumulated along path
// between low and high from the difference between f and the path's nominal
// field: dp = CBar * q * ∫ v × (B - Bnom) dt. Simpson's rule is used with
// nsteps intervals (rounded up to an even number).
func Integrate(f Field, path Path, low, high float64, nsteps int) r3.Vec {
	if high <= low {
		return r3.Vec{}
	}
	if nsteps < 2 {
		nsteps = 2
	}
	if nsteps%2 == 1 {
		nsteps++
	}
	bnom := path.BNom()
	force := func(t float64) r3.Vec {
		db := r3.Sub(f.Value(path.Position(t)), bnom)
		return r3.Cross(path.Velocity(t), db)
	}
	h := (high - low) / float64(nsteps)
	sum := r3.Add(force(low), force(high))
	for i := 1; i < nsteps; i++ {
		w := 2.0
		if i%2 == 1 {
			w = 4.0
		}
		sum = r3.Add(sum, r3.Scale(w, force(low+float64(i)*h)))
	}
	return r3.Scale(units.CBar*float64(path.Charge())*h/3.0, sum)
}
