package poca

import (
	"math"
	"testing"

	"github.com/banshee-data/trackfit/internal/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// straight is a field-free particle for closed-form checks.
type straight struct {
	trajectory.Line
}

// PosDeriv treats the line origin as parameters 2 and 3 (x, y).
func (s straight) PosDeriv(float64) [trajectory.NParams]r3.Vec {
	var j [trajectory.NParams]r3.Vec
	j[trajectory.CX] = r3.Vec{X: 1}
	j[trajectory.CY] = r3.Vec{Y: 1}
	return j
}

func testHelix(t *testing.T) *trajectory.Helix {
	t.Helper()
	h, err := trajectory.NewHelixBz(
		trajectory.Point4{Pos: r3.Vec{X: 10, Y: -5, Z: 20}, T: 0},
		trajectory.Mom4{P: r3.Vec{X: 70, Y: 40, Z: 50}, Mass: 0.511},
		-1, 1, trajectory.TimeRange{Low: -10, High: 10})
	require.NoError(t, err)
	return h
}

// wireNear returns a wire crossing the helix at time tp with signed
// distance d, running along the local z-cross-velocity direction tilted by
// the given stereo angle, and a signal speed of 200 mm/ns.
func wireNear(h *trajectory.Helix, tp, d, stereo float64) trajectory.Line {
	v := r3.Unit(h.Velocity(tp))
	perp := r3.Unit(r3.Cross(r3.Vec{Z: 1}, v))
	wdir := r3.Unit(r3.Add(r3.Scale(math.Cos(stereo), perp), r3.Scale(math.Sin(stereo), r3.Vec{Z: 1})))
	n := r3.Unit(r3.Cross(v, wdir))
	mid := r3.Add(h.Position(tp), r3.Scale(d, n))
	return trajectory.NewLine(mid, r3.Scale(200, wdir), tp+3, trajectory.TimeRange{Low: tp, High: tp + 6})
}

func TestSolveCrossingLines(t *testing.T) {
	t.Parallel()
	particle := straight{trajectory.NewLine(r3.Vec{}, r3.Vec{X: 300}, 0, trajectory.TimeRange{Low: -5, High: 5})}
	// wire along y, 2 mm above the particle path at x = 150
	line := trajectory.NewLine(r3.Vec{X: 150, Z: 2}, r3.Vec{Y: 200}, 7, trajectory.TimeRange{Low: 0, High: 10})

	res := Solve(particle, line, Hint{Particle: 0, Line: 0}, DefaultSettings())
	require.True(t, res.Usable(), res.Status())

	pp, err := res.ParticlePoca()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pp.T, 1e-9)
	lp, err := res.LinePoca()
	require.NoError(t, err)
	assert.InDelta(t, 7.0, lp.T, 1e-9)

	doca, err := res.Doca()
	require.NoError(t, err)
	// (x × y)·z = +1
	assert.InDelta(t, 2.0, doca, 1e-9)
	dt, err := res.DeltaT()
	require.NoError(t, err)
	assert.InDelta(t, 6.5, dt, 1e-9)
	delta, err := res.Delta()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, delta.Z, 1e-9)

	// moving the particle along +x makes it arrive earlier
	dTdP, err := res.DDeltaTDParams()
	require.NoError(t, err)
	assert.InDelta(t, 1.0/300, dTdP[trajectory.CX], 1e-12)
	dDdP, err := res.DDocaDParams()
	require.NoError(t, err)
	assert.InDelta(t, 0.0, dDdP[trajectory.CX], 1e-12)
	assert.Equal(t, Hint{Particle: pp.T, Line: lp.T}, res.Hint())
}

func TestSolveParallelIsUnusable(t *testing.T) {
	t.Parallel()
	particle := straight{trajectory.NewLine(r3.Vec{}, r3.Vec{X: 300}, 0, trajectory.TimeRange{Low: -5, High: 5})}
	line := trajectory.NewLine(r3.Vec{Y: 3}, r3.Vec{X: 200}, 0, trajectory.TimeRange{Low: -5, High: 5})

	res := Solve(particle, line, Hint{}, DefaultSettings())
	assert.False(t, res.Usable())
	assert.Contains(t, res.Status(), "parallel")

	_, err := res.Doca()
	assert.ErrorIs(t, err, ErrUnusable)
	_, err = res.DeltaT()
	assert.ErrorIs(t, err, ErrUnusable)
	_, err = res.DDocaDParams()
	assert.ErrorIs(t, err, ErrUnusable)
	_, err = res.ParticlePoca()
	assert.ErrorIs(t, err, ErrUnusable)
}

func TestSolveNotConverged(t *testing.T) {
	t.Parallel()
	h := testHelix(t)
	line := wireNear(h, 1, 2, 0.1)
	res := Solve(h, line, Hint{Particle: 0, Line: 0}, Settings{MaxIterations: 1, Tolerance: 1e-12})
	assert.False(t, res.Usable())
	assert.Contains(t, res.Status(), "not converged")
}

func TestSolveHelix(t *testing.T) {
	t.Parallel()
	h := testHelix(t)
	for _, d := range []float64{-2, 0.5, 3} {
		line := wireNear(h, 1.2, d, 0.2)
		res := Solve(h, line, Hint{Particle: 1.0, Line: line.T0()}, DefaultSettings())
		require.True(t, res.Usable(), res.Status())

		pp, err := res.ParticlePoca()
		require.NoError(t, err)
		assert.InDelta(t, 1.2, pp.T, 1e-6)
		doca, err := res.Doca()
		require.NoError(t, err)
		assert.InDelta(t, d, doca, 1e-6)
		// separation is perpendicular to both directions
		delta, _ := res.Delta()
		assert.InDelta(t, 0.0, r3.Dot(delta, h.Velocity(pp.T)), 1e-6)
		assert.InDelta(t, 0.0, r3.Dot(delta, line.Dir()), 1e-6)
	}
}

func TestDocaDerivativeMatchesFiniteDifference(t *testing.T) {
	t.Parallel()
	h := testHelix(t)
	line := wireNear(h, 1.2, 2.5, 0.3)
	hint := Hint{Particle: 1.2, Line: line.T0()}
	res := Solve(h, line, hint, DefaultSettings())
	require.True(t, res.Usable(), res.Status())
	dDdP, err := res.DDocaDParams()
	require.NoError(t, err)

	for i := trajectory.ParamIndex(0); i < trajectory.NParams; i++ {
		step := 1e-4
		doca := func(f float64) float64 {
			pd := h.Params()
			pd.Params[i] += f * step
			r := Solve(h.WithParams(pd), line, hint, DefaultSettings())
			require.True(t, r.Usable(), r.Status())
			d, _ := r.Doca()
			return d
		}
		fd := (doca(1) - doca(-1)) / (2 * step)
		assert.InDelta(t, dDdP[i], fd, 1e-4*(1+math.Abs(fd)), "d doca / d %s", i)
	}
}

func TestDeltaTDerivativeMatchesFiniteDifference(t *testing.T) {
	t.Parallel()
	h := testHelix(t)
	// a wire through the trajectory removes the curvature term
	line := wireNear(h, -0.7, 0, 0.4)
	hint := Hint{Particle: -0.7, Line: line.T0()}
	res := Solve(h, line, hint, DefaultSettings())
	require.True(t, res.Usable(), res.Status())
	dTdP, err := res.DDeltaTDParams()
	require.NoError(t, err)

	for i := trajectory.ParamIndex(0); i < trajectory.NParams; i++ {
		step := 1e-4
		deltaT := func(f float64) float64 {
			pd := h.Params()
			pd.Params[i] += f * step
			r := Solve(h.WithParams(pd), line, hint, DefaultSettings())
			require.True(t, r.Usable(), r.Status())
			dt, _ := r.DeltaT()
			return dt
		}
		fd := (deltaT(1) - deltaT(-1)) / (2 * step)
		assert.InDelta(t, dTdP[i], fd, 1e-3*(1+math.Abs(fd)), "d deltaT / d %s", i)
	}
}

func TestDeltaTDerivativeOffTrajectory(t *testing.T) {
	t.Parallel()
	h := testHelix(t)
	// the dropped curvature term is of order doca/radius (radius ~270 mm)
	for _, d := range []float64{1, -2.5, 5} {
		line := wireNear(h, -0.7, d, 0.4)
		hint := Hint{Particle: -0.7, Line: line.T0()}
		res := Solve(h, line, hint, DefaultSettings())
		require.True(t, res.Usable(), res.Status())
		doca, err := res.Doca()
		require.NoError(t, err)
		require.InDelta(t, math.Abs(d), math.Abs(doca), 0.1)
		dTdP, err := res.DDeltaTDParams()
		require.NoError(t, err)

		for i := trajectory.ParamIndex(0); i < trajectory.NParams; i++ {
			step := 1e-4
			deltaT := func(f float64) float64 {
				pd := h.Params()
				pd.Params[i] += f * step
				r := Solve(h.WithParams(pd), line, hint, DefaultSettings())
				require.True(t, r.Usable(), r.Status())
				dt, _ := r.DeltaT()
				return dt
			}
			fd := (deltaT(1) - deltaT(-1)) / (2 * step)
			assert.InDelta(t, fd, dTdP[i], 1e-3*(1+math.Abs(fd)), "doca %g: d deltaT / d %s", d, i)
		}
	}
}
