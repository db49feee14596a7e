package effect

import (
	"fmt"

	"github.com/banshee-data/trackfit/internal/kalman"
	"github.com/banshee-data/trackfit/internal/trajectory"
	"gonum.org/v1/gonum/mat"
)

// Mask selects parameters.
type Mask [trajectory.NParams]bool

// Constraint pulls the selected parameters toward a target, with the
// target's covariance restricted to those parameters.
type Constraint struct {
	base
	target trajectory.ParamData
	mask   Mask
	weight *mat.SymDense
}

// NewConstraint builds a constraint acting at time t. The covariance of the
// masked parameters must be positive definite.
func NewConstraint(t float64, target trajectory.ParamData, mask Mask) (*Constraint, error) {
	var idx []int
	for i, on := range mask {
		if on {
			idx = append(idx, i)
		}
	}
	weight := mat.NewSymDense(trajectory.NParams, nil)
	if len(idx) > 0 {
		sub := mat.NewSymDense(len(idx), nil)
		for i, pi := range idx {
			for j, pj := range idx[i:] {
				sub.SetSym(i, i+j, target.Cov.At(pi, pj))
			}
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(sub); !ok {
			return nil, fmt.Errorf("constraint at %g: %w", t, kalman.ErrSingularWeight)
		}
		var inv mat.SymDense
		if err := chol.InverseTo(&inv); err != nil {
			return nil, fmt.Errorf("constraint at %g: %w", t, err)
		}
		for i, pi := range idx {
			for j, pj := range idx {
				weight.SetSym(pi, pj, inv.At(i, j))
			}
		}
	}
	return &Constraint{
		base:   base{time: t, active: true},
		target: target.Clone(),
		mask:   mask,
		weight: weight,
	}, nil
}

// Weight returns a copy of the masked weight matrix.
func (c *Constraint) Weight() *mat.SymDense {
	w := mat.NewSymDense(trajectory.NParams, nil)
	w.CopySym(c.weight)
	return w
}

// Update resets the processing state. Constraints do not depend on the
// reference trajectory.
func (c *Constraint) Update(*trajectory.Piecewise, IterationConfig) error {
	c.resetStatus()
	return nil
}

// Process adds the constraint information to the sweep.
func (c *Constraint) Process(acc *kalman.Accumulator, dir kalman.Direction) {
	if c.active {
		acc.AddWeight(c.weight, c.target.Params)
	}
	c.markProcessed(dir)
}

func (c *Constraint) Append(*trajectory.Piecewise) error { return nil }
