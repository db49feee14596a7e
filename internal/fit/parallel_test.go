package fit

import (
	"context"
	"testing"

	"github.com/banshee-data/trackfit/internal/bfield"
	"github.com/banshee-data/trackfit/internal/effect"
	"github.com/banshee-data/trackfit/internal/monitoring"
	"github.com/banshee-data/trackfit/internal/sim"
	"github.com/banshee-data/trackfit/internal/trajectory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	goleak.VerifyTestMain(m)
}

func candidates(t *testing.T, n int) ([]Candidate, []sim.Event) {
	t.Helper()
	cands := make([]Candidate, 0, n)
	events := make([]sim.Event, 0, n)
	for i := 0; i < n; i++ {
		ev, start, hits := simulate(t, sim.DefaultConfig(), int64(100+i))
		cands = append(cands, NewCandidate(start, hits...))
		events = append(events, ev)
	}
	return cands, events
}

func TestFitAll(t *testing.T) {
	cands, events := candidates(t, 4)
	res, err := FitAll(context.Background(), cands, events[0].Field(), DefaultSettings(), defaultSchedule(t), 2)
	require.NoError(t, err)
	require.Len(t, res, len(cands))

	for i, r := range res {
		assert.Equal(t, cands[i].ID, r.ID)
		assert.NotEqual(t, uuid.Nil, r.ID)
		require.NoError(t, r.Err, "candidate %d", i)
		assert.Equal(t, 1, r.Domains)
		assert.Len(t, r.Result.Iterations, 3)
		assert.Less(t, r.Result.Final.Chi2PerNDOF(), 3.0, "candidate %d", i)
	}
}

func TestFitAllMatchesSerialFit(t *testing.T) {
	cands, events := candidates(t, 1)
	par, err := FitAll(context.Background(), cands, events[0].Field(), DefaultSettings(), defaultSchedule(t), 0)
	require.NoError(t, err)
	require.NoError(t, par[0].Err)

	_, start, hits := simulate(t, sim.DefaultConfig(), 100)
	e, err := NewEngine(start, events[0].Field(), DefaultSettings())
	require.NoError(t, err)
	e.Add(hits...)
	serial, err := e.Run(defaultSchedule(t))
	require.NoError(t, err)

	assert.Equal(t, serial.Final, par[0].Result.Final)
	assert.Equal(t, serial.Trajectory.Front().Params().Params, par[0].Result.Trajectory.Front().Params().Params)
}

func TestFitAllReportsCandidateErrors(t *testing.T) {
	cands, _ := candidates(t, 2)
	s := DefaultSettings()
	s.DomainTolerance = 1e-12

	res, err := FitAll(context.Background(), cands, bfield.NewUniformBz(2), s, defaultSchedule(t), 2)
	require.NoError(t, err)
	for _, r := range res {
		assert.ErrorIs(t, r.Err, ErrTooManyDomains)
	}
}

func TestFitAllCancelled(t *testing.T) {
	cands, events := candidates(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := FitAll(ctx, cands, events[0].Field(), DefaultSettings(), defaultSchedule(t), 1)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res, len(cands))
	for _, r := range res {
		assert.Empty(t, r.Result.Iterations)
	}
}

func TestFitAllEmpty(t *testing.T) {
	res, err := FitAll(context.Background(), nil, nil, DefaultSettings(), []effect.IterationConfig{{}}, 4)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestNewCandidateIDs(t *testing.T) {
	h := testHelix(t, trajectory.TimeRange{Low: -1, High: 1})
	a, b := NewCandidate(h), NewCandidate(h)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Empty(t, a.Effects)
}
