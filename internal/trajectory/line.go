package trajectory

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Line is a straight trajectory moving at constant velocity: the signal
// propagating along a sense wire, or a field-free track.
type Line struct {
	pos0   r3.Vec // position at time t0
	vel    r3.Vec // mm/ns
	t0     float64
	trange TimeRange
}

// NewLine returns a line passing pos0 at time t0 with velocity vel.
func NewLine(pos0, vel r3.Vec, t0 float64, trange TimeRange) Line {
	return Line{pos0: pos0, vel: vel, t0: t0, trange: trange}
}

// NewLineBetween returns a line running from p0 towards p1 at the given
// speed, passing p0 at time t0. Its range covers the p0-p1 segment.
func NewLineBetween(p0, p1 r3.Vec, speed, t0 float64) Line {
	d := r3.Sub(p1, p0)
	length := r3.Norm(d)
	vel := r3.Scale(speed/length, d)
	return Line{pos0: p0, vel: vel, t0: t0, trange: TimeRange{Low: t0, High: t0 + length/speed}}
}

// Position returns the position at time t.
func (l Line) Position(t float64) r3.Vec {
	return r3.Add(l.pos0, r3.Scale(t-l.t0, l.vel))
}

// Velocity returns the constant velocity.
func (l Line) Velocity(float64) r3.Vec { return l.vel }

// Dir returns the unit direction of motion.
func (l Line) Dir() r3.Vec { return r3.Unit(l.vel) }

// Speed returns |velocity|.
func (l Line) Speed() float64 { return r3.Norm(l.vel) }

// T0 returns the reference time.
func (l Line) T0() float64 { return l.t0 }

// Pos0 returns the position at T0.
func (l Line) Pos0() r3.Vec { return l.pos0 }

// Range returns the validity range.
func (l Line) Range() TimeRange { return l.trange }
