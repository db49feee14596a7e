package trajectory

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func assertContiguous(t *testing.T, p *Piecewise) {
	t.Helper()
	pieces := p.Pieces()
	for i := 1; i < len(pieces); i++ {
		prev, cur := pieces[i-1].Range(), pieces[i].Range()
		assert.Less(t, prev.Low, cur.Low, "segment %d does not start after segment %d", i, i-1)
		assert.Equal(t, prev.High, cur.Low, "gap or overlap between segments %d and %d", i-1, i)
	}
}

func TestPiecewiseAppend(t *testing.T) {
	t.Parallel()
	h := testHelix(t)
	p := NewPiecewise(h.WithRange(TimeRange{Low: 0, High: 10}))

	// inside the current range: truncates the last segment
	require.NoError(t, p.Append(h.WithRange(TimeRange{Low: 4, High: 6})))
	assert.Equal(t, TimeRange{Low: 0, High: 10}, p.Range())
	assert.Equal(t, 4.0, p.Front().Range().High)
	assert.Equal(t, TimeRange{Low: 4, High: 10}, p.Back().Range())

	// beyond the current end: the last segment is extended to close the gap
	require.NoError(t, p.Append(h.WithRange(TimeRange{Low: 12, High: 15})))
	assert.Equal(t, TimeRange{Low: 0, High: 15}, p.Range())
	assert.Equal(t, 3, p.Len())
	assertContiguous(t, p)
}

func TestPiecewiseAppendRejected(t *testing.T) {
	t.Parallel()
	h := testHelix(t)
	p := NewPiecewise(h.WithRange(TimeRange{Low: 0, High: 10}))
	require.NoError(t, p.Append(h.WithRange(TimeRange{Low: 5, High: 10})))

	err := p.Append(h.WithRange(TimeRange{Low: 5, High: 10}))
	assert.ErrorIs(t, err, ErrNotAppendable)
	err = p.Append(h.WithRange(TimeRange{Low: 2, High: 10}))
	assert.ErrorIs(t, err, ErrNotAppendable)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, TimeRange{Low: 5, High: 10}, p.Back().Range())
}

func TestPiecewiseAppendLeavesInputsUntouched(t *testing.T) {
	t.Parallel()
	h := testHelix(t)
	p := NewPiecewise(h.WithRange(TimeRange{Low: 0, High: 10}))
	shared := p.Pieces()[0]

	piece := h.WithRange(TimeRange{Low: 4, High: 6})
	require.NoError(t, p.Append(piece))
	assert.Equal(t, TimeRange{Low: 4, High: 6}, piece.Range())
	assert.Equal(t, TimeRange{Low: 0, High: 10}, shared.Range())
	assert.NotSame(t, piece, p.Back())
	assert.Equal(t, TimeRange{Low: 4, High: 10}, p.Back().Range())
	assert.Equal(t, 4.0, p.Front().Range().High)

	// a segment handed out before the next append keeps its range
	middle := p.Back()
	require.NoError(t, p.Append(h.WithRange(TimeRange{Low: 8, High: 9})))
	assert.Equal(t, TimeRange{Low: 4, High: 10}, middle.Range())
	assert.Equal(t, TimeRange{Low: 4, High: 8}, p.Pieces()[1].Range())
	assertContiguous(t, p)
}

func TestPiecewiseAppendRandom(t *testing.T) {
	t.Parallel()
	h := testHelix(t)
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		p := NewPiecewise(h.WithRange(TimeRange{Low: -5, High: 5}))
		high := 5.0
		for i := 0; i < 40; i++ {
			back := p.Back().Range()
			low := back.Low + rng.Float64()*(back.Span()+2)
			if low == back.Low {
				continue
			}
			end := low + rng.Float64()*3
			require.NoError(t, p.Append(h.WithRange(TimeRange{Low: low, High: end})))
			if end > high {
				high = end
			}
			if low > high {
				high = low
			}
		}
		assertContiguous(t, p)
		assert.Equal(t, -5.0, p.Range().Low)
		assert.Equal(t, high, p.Range().High)
	}
}

func TestPiecewiseNearestPiece(t *testing.T) {
	t.Parallel()
	h := testHelix(t)
	p := NewPiecewise(h.WithRange(TimeRange{Low: 0, High: 10}))
	for _, low := range []float64{2, 5, 7} {
		require.NoError(t, p.Append(h.WithRange(TimeRange{Low: low, High: 10})))
	}

	tests := []struct {
		t    float64
		want int
	}{
		{-3, 0},
		{0, 0},
		{1.99, 0},
		{2, 1},
		{4.5, 1},
		{5, 2},
		{7, 3},
		{10, 3},
		{25, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.NearestIndex(tt.t), "t=%g", tt.t)
		assert.Same(t, p.Pieces()[tt.want], p.NearestPiece(tt.t))
	}
}

func TestPiecewiseDelegates(t *testing.T) {
	t.Parallel()
	h := testHelix(t)
	p := NewPiecewise(h.WithRange(TimeRange{Low: -10, High: 10}))

	shifted := h.Params()
	shifted.Params[CX] += 3
	require.NoError(t, p.Append(h.WithParams(shifted).WithRange(TimeRange{Low: 1, High: 10})))

	assert.Equal(t, h.Position(0), p.Position(0))
	assert.InDelta(t, h.Position(2).X+3, p.Position(2).X, 1e-12)
	assert.Equal(t, h.Velocity(-1), p.Velocity(-1))
	assert.Equal(t, h.Momentum(-1), p.Momentum(-1))
	assert.Equal(t, h.Charge(), p.Charge())
	assert.Equal(t, h.BNom(), p.BNom())
	assert.InDelta(t, h.Speed(), p.Speed(4), 1e-12)
	assert.InDelta(t, h.MomentumMag(), p.MomentumMag(4), 1e-12)

	d, err := p.Direction(3, PhiDir)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r3.Norm(d), 1e-12)
}

func TestPiecewiseClone(t *testing.T) {
	t.Parallel()
	h := testHelix(t)
	p := NewPiecewise(h.WithRange(TimeRange{Low: 0, High: 10}))
	c := p.Clone()
	require.NoError(t, c.Append(h.WithRange(TimeRange{Low: 5, High: 10})))

	assert.Equal(t, 1, p.Len())
	assert.Equal(t, TimeRange{Low: 0, High: 10}, p.Back().Range())
	assert.Equal(t, 2, c.Len())
}

func TestLine(t *testing.T) {
	t.Parallel()
	l := NewLineBetween(r3.Vec{X: 1}, r3.Vec{X: 1, Y: 10}, 5, 2)

	assert.Equal(t, r3.Vec{X: 1, Y: 5}, l.Position(3))
	assert.Equal(t, r3.Vec{Y: 1}, l.Dir())
	assert.Equal(t, 5.0, l.Speed())
	assert.Equal(t, TimeRange{Low: 2, High: 4}, l.Range())
	assert.Equal(t, r3.Vec{Y: 5}, l.Velocity(100))
}
