package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/banshee-data/trackfit/internal/bfield"
	"github.com/banshee-data/trackfit/internal/poca"
	"github.com/banshee-data/trackfit/internal/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestGenerateHitsMatchTruth(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	ev, err := Generate(cfg, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	require.Len(t, ev.Hits, cfg.NHits)
	assert.Equal(t, 1, ev.Truth.Len())

	prev := math.Inf(-1)
	for i, h := range ev.Hits {
		assert.GreaterOrEqual(t, h.Time, prev, "hits are time ordered")
		prev = h.Time
		assert.True(t, cfg.Range.InRange(h.Time))
		assert.GreaterOrEqual(t, math.Abs(h.Distance), cfg.MinDist)
		assert.Less(t, math.Abs(h.Distance), cfg.CellSize)

		res := poca.Solve(ev.Truth, h.Wire, poca.Hint{Particle: h.Time, Line: h.LineTime}, poca.DefaultSettings())
		require.True(t, res.Usable(), "hit %d: %s", i, res.Status())
		doca, err := res.Doca()
		require.NoError(t, err)
		pp, err := res.ParticlePoca()
		require.NoError(t, err)
		assert.InDelta(t, h.Distance, doca, 1e-6, "hit %d", i)
		assert.InDelta(t, h.Time, pp.T, 1e-6, "hit %d", i)
	}
}

func TestGenerateIsReproducible(t *testing.T) {
	t.Parallel()
	a, err := Generate(DefaultConfig(), rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	b, err := Generate(DefaultConfig(), rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	assert.Equal(t, a.Hits, b.Hits)
}

func TestGradientTruthIsContinuous(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Field = bfield.NewGradient(1.05, 0.95, -1000, 1000)
	ev, err := Generate(cfg, rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	pieces := ev.Truth.Pieces()
	require.Greater(t, len(pieces), 10)
	assert.Equal(t, cfg.Range, ev.Truth.Range())
	for i := 1; i < len(pieces); i++ {
		tb := pieces[i].Range().Low
		require.Equal(t, pieces[i-1].Range().High, tb)
		assert.InDelta(t, 0, r3.Norm(r3.Sub(pieces[i-1].Position(tb), pieces[i].Position(tb))), 1e-4, "piece %d", i)
		dp := r3.Sub(pieces[i-1].Momentum(tb).P, pieces[i].Momentum(tb).P)
		assert.InDelta(t, 0, r3.Norm(dp), 1e-4, "piece %d", i)
	}
	// the field changes the bending between the first and last piece
	assert.NotEqual(t, pieces[0].BNom(), pieces[len(pieces)-1].BNom())
}

func TestSeedSmearing(t *testing.T) {
	t.Parallel()
	ev, err := Generate(DefaultConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	truth := ev.Truth.Front().Params().Params

	exact, err := ev.Seed(r3.Vec{Z: 1}, trajectory.DVec{}, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	for i := range truth {
		assert.InDelta(t, truth[i], exact.Params().Params[i], 1e-9)
	}

	smeared, err := ev.Seed(r3.Vec{Z: 1}, trajectory.DVec{1, 1, 1, 1, 0.01, 0.1}, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	assert.NotEqual(t, truth, smeared.Params().Params)
	assert.Equal(t, ev.Config.Range, smeared.Range())
}

func TestWireHitsAreIndependent(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	ev, err := Generate(cfg, rand.New(rand.NewSource(4)))
	require.NoError(t, err)
	d2t, err := cfg.Relation()
	require.NoError(t, err)

	a := ev.WireHits(ev.Field(), d2t, poca.DefaultSettings())
	b := ev.WireHits(ev.Field(), d2t, poca.DefaultSettings())
	require.Len(t, a, cfg.NHits)
	for i := range a {
		assert.NotSame(t, a[i], b[i])
		assert.Equal(t, ev.Hits[i].Wire, a[i].Wire())
		assert.Equal(t, ev.Hits[i].Time, a[i].Time())
	}
}

func TestFieldDefaultsToUniform(t *testing.T) {
	t.Parallel()
	ev := Event{Config: DefaultConfig()}
	assert.Equal(t, r3.Vec{Z: 1}, ev.Field().Value(r3.Vec{X: 100, Z: -40}))
}
