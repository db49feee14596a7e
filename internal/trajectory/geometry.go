package trajectory

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// TimeRange is a closed time interval in ns.
type TimeRange struct {
	Low  float64
	High float64
}

// Mid returns the midpoint of the range.
func (r TimeRange) Mid() float64 { return 0.5 * (r.Low + r.High) }

// Span returns High - Low.
func (r TimeRange) Span() float64 { return r.High - r.Low }

// InRange reports whether t lies within [Low, High].
func (r TimeRange) InRange(t float64) bool { return t >= r.Low && t <= r.High }

// Overlaps reports whether the two ranges share more than an end point.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Low < o.High && o.Low < r.High
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%g, %g]", r.Low, r.High)
}

// LocalDir selects a direction of the local basis attached to the momentum.
type LocalDir int

const (
	// MomDir is along the momentum.
	MomDir LocalDir = iota
	// PerpDir is perpendicular to the momentum in the plane containing the
	// field axis (polar bending).
	PerpDir
	// PhiDir is perpendicular to both the momentum and the field axis
	// (azimuthal bending).
	PhiDir
)

// Valid reports whether d is one of the three basis directions.
func (d LocalDir) Valid() bool {
	return d == MomDir || d == PerpDir || d == PhiDir
}

func (d LocalDir) String() string {
	switch d {
	case MomDir:
		return "momdir"
	case PerpDir:
		return "perpdir"
	case PhiDir:
		return "phidir"
	default:
		return fmt.Sprintf("LocalDir(%d)", int(d))
	}
}

// Point4 is a space-time point.
type Point4 struct {
	Pos r3.Vec
	T   float64
}

// Mom4 is a momentum 3-vector with the particle mass (MeV).
type Mom4 struct {
	P    r3.Vec
	Mass float64
}

// Energy returns sqrt(|p|² + m²).
func (m Mom4) Energy() float64 {
	return math.Sqrt(r3.Norm2(m.P) + m.Mass*m.Mass)
}

// Mag returns |p|.
func (m Mom4) Mag() float64 { return r3.Norm(m.P) }

// theta returns the polar angle of v with respect to the z axis.
func theta(v r3.Vec) float64 {
	n := r3.Norm(v)
	if n == 0 {
		return 0
	}
	c := v.Z / n
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c)
}

// azimuth returns the azimuthal angle of v in the xy plane.
func azimuth(v r3.Vec) float64 {
	return math.Atan2(v.Y, v.X)
}
