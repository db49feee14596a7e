// Package kalman holds the weight-space state folded by the forward and
// backward sweeps of the fit.
//
// The state is kept as a weight matrix W (inverse covariance) and a weighted
// parameter vector w = W·p, so that independent information adds.
package kalman

import (
	"errors"
	"fmt"

	"github.com/banshee-data/trackfit/internal/trajectory"
	"gonum.org/v1/gonum/mat"
)

// ErrSingularWeight is returned when the accumulated weight cannot be inverted.
var ErrSingularWeight = errors.New("weight matrix not positive definite")

// Direction is a sweep direction.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Accumulator is the running weight-space state of one sweep.
type Accumulator struct {
	weight *mat.SymDense // W
	wvec   *mat.VecDense // w = W·p
	dir    Direction
	count  int // measurements folded
}

// NewAccumulator seeds a sweep with the given parameters, weighted by the
// inverse of cov scaled up by deweight so the seed carries little
// information.
func NewAccumulator(dir Direction, seed trajectory.DVec, cov *mat.SymDense, deweight float64) (*Accumulator, error) {
	scaled := mat.NewSymDense(trajectory.NParams, nil)
	scaled.ScaleSym(deweight, cov)
	var chol mat.Cholesky
	if ok := chol.Factorize(scaled); !ok {
		return nil, fmt.Errorf("%w: seed covariance", ErrSingularWeight)
	}
	w := mat.NewSymDense(trajectory.NParams, nil)
	if err := chol.InverseTo(w); err != nil {
		return nil, fmt.Errorf("%w: seed covariance: %v", ErrSingularWeight, err)
	}
	acc := &Accumulator{weight: w, wvec: mat.NewVecDense(trajectory.NParams, nil), dir: dir}
	acc.wvec.MulVec(w, seed.Dense())
	return acc, nil
}

// Direction returns the sweep direction.
func (a *Accumulator) Direction() Direction { return a.dir }

// Measurements returns the number of measurements folded so far.
func (a *Accumulator) Measurements() int { return a.count }

// Shift moves the state by delta in parameter space with no change in weight:
// p -> p + delta.
func (a *Accumulator) Shift(delta trajectory.DVec) {
	var wd mat.VecDense
	wd.MulVec(a.weight, delta.Dense())
	a.wvec.AddVec(a.wvec, &wd)
}

// AddMeasurement folds a scalar measurement linearized about ref: the
// residual is resid at ref and changes by -deriv·(p-ref) away from it.
func (a *Accumulator) AddMeasurement(deriv trajectory.DVec, resid, variance float64, ref trajectory.DVec) {
	d := deriv.Dense()
	a.weight.SymRankOne(a.weight, 1/variance, d)
	a.wvec.AddScaledVec(a.wvec, (resid+deriv.Dot(ref))/variance, d)
	a.count++
}

// AddWeight folds information expressed as a weight matrix about target.
func (a *Accumulator) AddWeight(weight *mat.SymDense, target trajectory.DVec) {
	var wt mat.VecDense
	wt.MulVec(weight, target.Dense())
	a.weight.AddSym(a.weight, weight)
	a.wvec.AddVec(a.wvec, &wt)
}

// Weight returns a copy of the weight matrix.
func (a *Accumulator) Weight() *mat.SymDense {
	w := mat.NewSymDense(trajectory.NParams, nil)
	w.CopySym(a.weight)
	return w
}

// Estimate inverts the weight to return the parameters and covariance.
func (a *Accumulator) Estimate() (trajectory.ParamData, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a.weight); !ok {
		return trajectory.ParamData{}, fmt.Errorf("%w: %s sweep after %d measurements", ErrSingularWeight, a.dir, a.count)
	}
	cov := mat.NewSymDense(trajectory.NParams, nil)
	if err := chol.InverseTo(cov); err != nil {
		return trajectory.ParamData{}, fmt.Errorf("%w: %v", ErrSingularWeight, err)
	}
	var p mat.VecDense
	p.MulVec(cov, a.wvec)
	return trajectory.NewParamData(trajectory.DVecFrom(&p), cov), nil
}
