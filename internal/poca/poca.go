// Package poca finds the point of closest approach between a particle
// trajectory and a straight reference line, with the derivatives of the
// distance and time difference with respect to the trajectory parameters.
package poca

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/trackfit/internal/trajectory"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnusable is returned when a result from a failed solve is consumed.
var ErrUnusable = errors.New("poca not usable")

// Trajectory is the particle side of the solve.
type Trajectory interface {
	Position(t float64) r3.Vec
	Velocity(t float64) r3.Vec
	PosDeriv(t float64) [trajectory.NParams]r3.Vec
}

// Hint holds the starting times of the iteration.
type Hint struct {
	Particle float64
	Line     float64
}

// Settings controls the iterative solve.
type Settings struct {
	MaxIterations int
	Tolerance     float64 // ns
}

// DefaultSettings returns the standard solver settings.
func DefaultSettings() Settings {
	return Settings{MaxIterations: 10, Tolerance: 1e-8}
}

// Result is the closest approach between a trajectory and a line. Only
// Usable, Status and the hint accessors are meaningful when the solve
// failed; every other accessor then returns ErrUnusable.
type Result struct {
	usable bool
	status string

	particle trajectory.Point4
	line     trajectory.Point4
	delta    r3.Vec // line point minus particle point
	doca     float64
	sign     float64
	dDdP     trajectory.DVec
	dTdP     trajectory.DVec
	iters    int
}

// Usable reports whether the solve converged to a non-degenerate solution.
func (r Result) Usable() bool { return r.usable }

// Status describes the outcome of the solve.
func (r Result) Status() string { return r.status }

// Iterations returns the number of iterations used.
func (r Result) Iterations() int { return r.iters }

// Hint returns the solved times, suitable as the start of the next solve.
func (r Result) Hint() Hint { return Hint{Particle: r.particle.T, Line: r.line.T} }

func (r Result) check() error {
	if !r.usable {
		return fmt.Errorf("%w: %s", ErrUnusable, r.status)
	}
	return nil
}

// ParticlePoca returns the closest point on the trajectory.
func (r Result) ParticlePoca() (trajectory.Point4, error) { return r.particle, r.check() }

// LinePoca returns the closest point on the line.
func (r Result) LinePoca() (trajectory.Point4, error) { return r.line, r.check() }

// Delta returns the separation vector from the particle to the line.
func (r Result) Delta() (r3.Vec, error) { return r.delta, r.check() }

// Doca returns the signed distance of closest approach. The sign is positive
// when the line passes on the side of particle-direction × line-direction.
func (r Result) Doca() (float64, error) { return r.doca, r.check() }

// DeltaT returns line time minus particle time at closest approach.
func (r Result) DeltaT() (float64, error) { return r.line.T - r.particle.T, r.check() }

// DDocaDParams returns d(doca)/d(parameters).
func (r Result) DDocaDParams() (trajectory.DVec, error) { return r.dDdP, r.check() }

// DDeltaTDParams returns d(line time - particle time)/d(parameters). It is
// first order in the separation: the terms in Delta·dv/dt and Delta·dv/dp
// are dropped, so the relative error grows as doca over the local radius of
// curvature and vanishes for a line through the trajectory.
func (r Result) DDeltaTDParams() (trajectory.DVec, error) { return r.dTdP, r.check() }

// Solve finds the closest approach between traj and line, starting from hint.
// A degenerate geometry or a failure to converge produces an unusable result,
// not an error.
func Solve(traj Trajectory, line trajectory.Line, hint Hint, s Settings) Result {
	tp, tl := hint.Particle, hint.Line
	vl := line.Velocity(tl)
	c := r3.Dot(vl, vl)
	res := Result{status: "converged"}
	var vp r3.Vec
	var a, b, denom float64

	converged := false
	for res.iters = 1; res.iters <= s.MaxIterations; res.iters++ {
		pp := traj.Position(tp)
		vp = traj.Velocity(tp)
		delta := r3.Sub(line.Position(tl), pp)
		a = r3.Dot(vp, vp)
		b = r3.Dot(vp, vl)
		denom = a*c - b*b
		if a == 0 || c == 0 || denom <= 1e-12*a*c {
			res.status = "trajectory parallel to line"
			return res
		}
		u := -r3.Dot(delta, vp)
		w := -r3.Dot(delta, vl)
		dtp := (b*w - c*u) / denom
		dtl := (a*w - b*u) / denom
		tp += dtp
		tl += dtl
		if math.IsNaN(tp) || math.IsNaN(tl) {
			res.status = "solve diverged"
			return res
		}
		if math.Abs(dtp) < s.Tolerance && math.Abs(dtl) < s.Tolerance {
			converged = true
			break
		}
	}
	if !converged {
		res.iters = s.MaxIterations
		res.status = fmt.Sprintf("not converged after %d iterations", s.MaxIterations)
		return res
	}

	pp := traj.Position(tp)
	vp = traj.Velocity(tp)
	a = r3.Dot(vp, vp)
	b = r3.Dot(vp, vl)
	denom = a*c - b*b
	res.particle = trajectory.Point4{Pos: pp, T: tp}
	res.line = trajectory.Point4{Pos: line.Position(tl), T: tl}
	res.delta = r3.Sub(res.line.Pos, pp)
	dist := r3.Norm(res.delta)
	res.sign = 1
	if r3.Dot(r3.Cross(vp, vl), res.delta) < 0 {
		res.sign = -1
	}
	res.doca = res.sign * dist

	jac := traj.PosDeriv(tp)
	var dhat r3.Vec
	if dist > 0 {
		dhat = r3.Scale(1/dist, res.delta)
	}
	for k, j := range jac {
		res.dDdP[k] = -res.sign * r3.Dot(dhat, j)
		jp := r3.Dot(j, vp)
		jl := r3.Dot(j, vl)
		res.dTdP[k] = (a*jl - b*jp - b*jl + c*jp) / denom
	}
	res.usable = true
	return res
}
