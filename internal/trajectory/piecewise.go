package trajectory

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Piecewise is a time-ordered, contiguous sequence of helix segments. For
// any time exactly one segment is active: the last one whose range starts at
// or before that time. Times outside the overall range use the first or last
// segment.
//
// A Piecewise owns its segments. Segments are only ever added at the end.
type Piecewise struct {
	pieces []*Helix
}

// NewPiecewise starts a piecewise trajectory from a single segment. The
// segment is owned by the result.
func NewPiecewise(first *Helix) *Piecewise {
	return &Piecewise{pieces: []*Helix{first}}
}

// Clone returns a deep copy.
func (p *Piecewise) Clone() *Piecewise {
	c := &Piecewise{pieces: make([]*Helix, len(p.pieces))}
	for i, piece := range p.pieces {
		c.pieces[i] = piece.Clone()
	}
	return c
}

// Append adds a copy of piece at the end. The piece must start after the
// start of the current last segment; the last segment is replaced by a copy
// truncated (or extended, when the new piece starts beyond the current end)
// so that it ends where the new one begins. The overall end time never
// shrinks. Neither piece nor segments previously returned by p are modified.
func (p *Piecewise) Append(piece *Helix) error {
	if len(p.pieces) == 0 {
		p.pieces = append(p.pieces, piece.Clone())
		return nil
	}
	back := p.Back()
	if piece.trange.Low <= back.trange.Low {
		return fmt.Errorf("%w: new segment starts at %g, last segment starts at %g",
			ErrNotAppendable, piece.trange.Low, back.trange.Low)
	}
	next := piece.WithRange(TimeRange{Low: piece.trange.Low, High: math.Max(piece.trange.High, back.trange.High)})
	p.pieces[len(p.pieces)-1] = back.WithRange(TimeRange{Low: back.trange.Low, High: piece.trange.Low})
	p.pieces = append(p.pieces, next)
	return nil
}

// Range returns the overall time range.
func (p *Piecewise) Range() TimeRange {
	return TimeRange{Low: p.Front().trange.Low, High: p.Back().trange.High}
}

// Len returns the number of segments.
func (p *Piecewise) Len() int { return len(p.pieces) }

// Pieces returns the segments in time order. The slice is a copy; the
// segments are shared and must not be modified.
func (p *Piecewise) Pieces() []*Helix {
	out := make([]*Helix, len(p.pieces))
	copy(out, p.pieces)
	return out
}

// Front returns the first segment.
func (p *Piecewise) Front() *Helix { return p.pieces[0] }

// Back returns the last segment.
func (p *Piecewise) Back() *Helix { return p.pieces[len(p.pieces)-1] }

// NearestIndex returns the index of the segment active at time t.
func (p *Piecewise) NearestIndex(t float64) int {
	i := sort.Search(len(p.pieces), func(i int) bool {
		return p.pieces[i].trange.Low > t
	}) - 1
	if i < 0 {
		return 0
	}
	return i
}

// NearestPiece returns the segment active at time t.
func (p *Piecewise) NearestPiece(t float64) *Helix {
	return p.pieces[p.NearestIndex(t)]
}

// Position returns the position at time t.
func (p *Piecewise) Position(t float64) r3.Vec { return p.NearestPiece(t).Position(t) }

// Velocity returns the velocity at time t.
func (p *Piecewise) Velocity(t float64) r3.Vec { return p.NearestPiece(t).Velocity(t) }

// Momentum returns the momentum at time t.
func (p *Piecewise) Momentum(t float64) Mom4 { return p.NearestPiece(t).Momentum(t) }

// MomentumMag returns |p| at time t.
func (p *Piecewise) MomentumMag(t float64) float64 { return p.NearestPiece(t).MomentumMag() }

// Speed returns the speed at time t.
func (p *Piecewise) Speed(t float64) float64 { return p.NearestPiece(t).Speed() }

// Direction returns a local basis direction at time t.
func (p *Piecewise) Direction(t float64, dir LocalDir) (r3.Vec, error) {
	return p.NearestPiece(t).Direction(t, dir)
}

// Charge returns the particle charge.
func (p *Piecewise) Charge() int { return p.Front().Charge() }

// BNom returns the nominal field of the first segment.
func (p *Piecewise) BNom() r3.Vec { return p.Front().BNom() }

// PosDeriv returns the position Jacobian of the segment active at time t.
func (p *Piecewise) PosDeriv(t float64) [NParams]r3.Vec { return p.NearestPiece(t).PosDeriv(t) }
