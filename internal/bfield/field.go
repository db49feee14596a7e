// Package bfield defines the magnetic field contract consumed by the fit and
// a few analytic field models used for testing and simulation.
//
// Field models are shared read-only by every effect of a fit; they are
// referenced, never owned, and must outlive the effect chain.
package bfield

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Field is a static magnetic field map. Values are in Tesla, positions in mm.
type Field interface {
	// Value returns the field vector at pos.
	Value(pos r3.Vec) r3.Vec
	// Gradient returns G with G(i,j) = dB_i/dx_j at pos.
	Gradient(pos r3.Vec) *r3.Mat
}

// Deriv returns the time derivative of the field seen by a particle at pos
// moving with velocity vel (T/ns).
func Deriv(f Field, pos, vel r3.Vec) r3.Vec {
	return f.Gradient(pos).MulVec(vel)
}

// Uniform is a constant field.
type Uniform struct {
	B r3.Vec
}

// NewUniform returns a constant field with vector b.
func NewUniform(b r3.Vec) Uniform { return Uniform{B: b} }

// NewUniformBz returns a constant field along z.
func NewUniformBz(bz float64) Uniform { return Uniform{B: r3.Vec{Z: bz}} }

func (u Uniform) Value(r3.Vec) r3.Vec { return u.B }

func (u Uniform) Gradient(r3.Vec) *r3.Mat { return r3.NewMat(nil) }

// Composite is the superposition of several fields.
type Composite struct {
	fields []Field
}

// NewComposite builds a composite from the given fields.
func NewComposite(fields ...Field) *Composite {
	c := &Composite{}
	for _, f := range fields {
		c.Add(f)
	}
	return c
}

// Add appends a field to the superposition. The field is referenced, not copied.
func (c *Composite) Add(f Field) {
	c.fields = append(c.fields, f)
}

func (c *Composite) Value(pos r3.Vec) r3.Vec {
	var b r3.Vec
	for _, f := range c.fields {
		b = r3.Add(b, f.Value(pos))
	}
	return b
}

func (c *Composite) Gradient(pos r3.Vec) *r3.Mat {
	g := r3.NewMat(nil)
	for _, f := range c.fields {
		g.Add(g, f.Gradient(pos))
	}
	return g
}

// Gradient is an axial field that ramps linearly from B0 at z=Z0 to B1 at
// z=Z1 and is constant outside. The radial components keep it divergence-free.
type Gradient struct {
	B0, B1 float64
	Z0, Z1 float64
	grad   float64 // T/mm
}

// NewGradient returns a z-gradient field. z1 must differ from z0.
func NewGradient(b0, b1, z0, z1 float64) Gradient {
	return Gradient{B0: b0, B1: b1, Z0: z0, Z1: z1, grad: (b1 - b0) / (z1 - z0)}
}

func (g Gradient) Value(pos r3.Vec) r3.Vec {
	switch {
	case pos.Z < g.Z0:
		return r3.Vec{Z: g.B0}
	case pos.Z > g.Z1:
		return r3.Vec{Z: g.B1}
	default:
		return r3.Vec{
			X: -0.5 * g.grad * pos.X,
			Y: -0.5 * g.grad * pos.Y,
			Z: g.B0 + g.grad*(pos.Z-g.Z0),
		}
	}
}

func (g Gradient) Gradient(pos r3.Vec) *r3.Mat {
	if pos.Z <= g.Z0 || pos.Z >= g.Z1 {
		return r3.NewMat(nil)
	}
	return r3.NewMat([]float64{
		-0.5 * g.grad, 0, 0,
		0, -0.5 * g.grad, 0,
		0, 0, g.grad,
	})
}
