// Package fit runs the iterative Kalman fit of a track: the effect chain,
// the forward and backward sweeps, and the reconstruction of the piecewise
// trajectory between iterations.
//
// An Engine is driven by a single goroutine. Independent candidates may be
// fitted in parallel with FitAll.
package fit

import (
	"errors"
	"fmt"
	"sort"

	"github.com/banshee-data/trackfit/internal/bfield"
	"github.com/banshee-data/trackfit/internal/effect"
	"github.com/banshee-data/trackfit/internal/kalman"
	"github.com/banshee-data/trackfit/internal/monitoring"
	"github.com/banshee-data/trackfit/internal/trajectory"
	"gonum.org/v1/gonum/floats"
)

// MaxDomains bounds the number of field domains of one fit.
const MaxDomains = 10000

// ErrTooManyDomains is returned when the field tolerance would split the fit
// range into more than MaxDomains domains.
var ErrTooManyDomains = errors.New("too many field domains")

// hitLike is implemented by measurement effects.
type hitLike interface {
	effect.Effect
	Chi2() float64
	NDOF() int
}

// IterationSummary describes one completed iteration.
type IterationSummary struct {
	Iteration    int
	RefreshField bool
	Chi2         float64 // over active measurements, against the reference
	NDOF         int
	ActiveHits   int
	Segments     int // segments of the reconstructed trajectory
}

// Chi2PerNDOF returns Chi2/NDOF, or 0 when NDOF is not positive.
func (s IterationSummary) Chi2PerNDOF() float64 {
	if s.NDOF <= 0 {
		return 0
	}
	return s.Chi2 / float64(s.NDOF)
}

// Result is the outcome of a completed schedule.
type Result struct {
	Trajectory *trajectory.Piecewise
	Forward    trajectory.ParamData // end-of-sweep estimate at the back of the trajectory
	Backward   trajectory.ParamData // end-of-sweep estimate at the front of the trajectory
	Iterations []IterationSummary
	Final      IterationSummary // residuals against the final trajectory
}

// Engine owns the effect chain and the current trajectory estimate of one
// track.
type Engine struct {
	settings Settings
	field    bfield.Field
	ptraj    *trajectory.Piecewise
	domains  []trajectory.TimeRange
	effects  []effect.Effect

	forward  trajectory.ParamData
	backward trajectory.ParamData
	history  []IterationSummary
}

// NewEngine starts a fit from a seed helix. When field is not nil, the seed
// range is split into domains over which the deviation from the seed's
// nominal field stays within tolerance, with one field correction per
// domain. The field is referenced by the engine for its whole life.
// Settings that fail Validate return an error wrapping ErrInvalidSettings.
func NewEngine(seed *trajectory.Helix, field bfield.Field, s Settings) (*Engine, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		settings: s,
		field:    field,
		ptraj:    trajectory.NewPiecewise(seed.Clone()),
	}
	if field == nil {
		return e, nil
	}
	trange := seed.Range()
	for low := trange.Low; low < trange.High; {
		if len(e.domains) == MaxDomains {
			return nil, fmt.Errorf("%w: tolerance %g mm over %v", ErrTooManyDomains, s.DomainTolerance, trange)
		}
		d := seed.RangeInTolerance(low, field, s.DomainTolerance, s.Step)
		e.domains = append(e.domains, d)
		e.effects = append(e.effects, effect.NewFieldCorrection(field, d, s.IntegrationSteps, s.AppendBuffer))
		low = d.High
	}
	monitoring.Debugf("fit: %d field domains over %v", len(e.domains), trange)
	return e, nil
}

// Add puts effects in the chain. Ordering is by time and is restored at
// every iteration.
func (e *Engine) Add(effects ...effect.Effect) {
	e.effects = append(e.effects, effects...)
	e.sortEffects()
}

func (e *Engine) sortEffects() {
	sort.SliceStable(e.effects, func(i, j int) bool {
		return e.effects[i].Time() < e.effects[j].Time()
	})
}

// Trajectory returns the current estimate.
func (e *Engine) Trajectory() *trajectory.Piecewise { return e.ptraj }

// Domains returns the field domains as split from the seed. The domains of
// the field corrections follow the fitted time origin from there.
func (e *Engine) Domains() []trajectory.TimeRange {
	out := make([]trajectory.TimeRange, len(e.domains))
	copy(out, e.domains)
	return out
}

// Effects returns the chain in time order.
func (e *Engine) Effects() []effect.Effect {
	out := make([]effect.Effect, len(e.effects))
	copy(out, e.effects)
	return out
}

// History returns the summaries of completed iterations.
func (e *Engine) History() []IterationSummary {
	out := make([]IterationSummary, len(e.history))
	copy(out, e.history)
	return out
}

// ForwardEstimate returns the estimate at the end of the last forward sweep.
func (e *Engine) ForwardEstimate() trajectory.ParamData { return e.forward.Clone() }

// BackwardEstimate returns the estimate at the end of the last backward sweep.
func (e *Engine) BackwardEstimate() trajectory.ParamData { return e.backward.Clone() }

// update runs the update pass and sums the measurement chi².
func (e *Engine) update(cfg effect.IterationConfig) (IterationSummary, error) {
	var s IterationSummary
	var chis []float64
	for _, ef := range e.effects {
		if err := ef.Update(e.ptraj, cfg); err != nil {
			return s, err
		}
		if h, ok := ef.(hitLike); ok && h.Active() {
			chis = append(chis, h.Chi2())
			s.NDOF += h.NDOF()
			s.ActiveHits++
		}
	}
	e.sortEffects()
	s.Chi2 = floats.Sum(chis)
	s.NDOF -= trajectory.NParams
	s.RefreshField = cfg.RefreshField
	return s, nil
}

func (e *Engine) sweep(dir kalman.Direction) (trajectory.ParamData, error) {
	seed := e.ptraj.Front()
	if dir == kalman.Backward {
		seed = e.ptraj.Back()
	}
	acc, err := kalman.NewAccumulator(dir, seed.Params().Params, trajectory.DiagonalCov(e.settings.SeedErrors), e.settings.SeedDeweight)
	if err != nil {
		return trajectory.ParamData{}, err
	}
	n := len(e.effects)
	for i := 0; i < n; i++ {
		ef := e.effects[i]
		if dir == kalman.Backward {
			ef = e.effects[n-1-i]
		}
		ef.Process(acc, dir)
	}
	return acc.Estimate()
}

// Iterate runs one update, forward sweep, backward sweep and reconstruction.
func (e *Engine) Iterate(cfg effect.IterationConfig) (IterationSummary, error) {
	iter := len(e.history)
	summary, err := e.update(cfg)
	if err != nil {
		return summary, fmt.Errorf("iteration %d update: %w", iter, err)
	}
	summary.Iteration = iter

	fwd, err := e.sweep(kalman.Forward)
	if err != nil {
		return summary, fmt.Errorf("iteration %d forward sweep: %w", iter, err)
	}
	bwd, err := e.sweep(kalman.Backward)
	if err != nil {
		return summary, fmt.Errorf("iteration %d backward sweep: %w", iter, err)
	}

	e.followTimeOrigin(bwd.Params[trajectory.T0] - e.ptraj.Front().T0())
	next := trajectory.NewPiecewise(e.ptraj.Front().WithParams(bwd).WithRange(e.ptraj.Range()))
	for _, ef := range e.effects {
		if err := ef.Append(next); err != nil {
			return summary, fmt.Errorf("iteration %d reconstruction: %w", iter, err)
		}
	}
	e.forward, e.backward = fwd, bwd
	e.ptraj = next
	summary.Segments = next.Len()
	e.history = append(e.history, summary)

	monitoring.Debugf("fit: iteration %d chi2 %.3f ndof %d hits %d segments %d",
		iter, summary.Chi2, summary.NDOF, summary.ActiveHits, summary.Segments)
	return summary, nil
}

// followTimeOrigin moves path-anchored effects by the change dt of the
// fitted time origin, so segment boundaries stay at the same points along
// the path when the estimate is rebuilt.
func (e *Engine) followTimeOrigin(dt float64) {
	if dt == 0 {
		return
	}
	bounds := e.ptraj.Range()
	for _, ef := range e.effects {
		if ts, ok := ef.(effect.TimeShifter); ok {
			ts.ShiftTime(dt, bounds)
		}
	}
	e.sortEffects()
}

// Evaluate recomputes residuals against the current trajectory without
// changing ambiguities, activity or field deviations.
func (e *Engine) Evaluate() (IterationSummary, error) {
	s, err := e.update(effect.IterationConfig{})
	if err != nil {
		return s, fmt.Errorf("evaluate: %w", err)
	}
	s.Iteration = len(e.history)
	s.Segments = e.ptraj.Len()
	return s, nil
}

// Run applies the schedule in order and evaluates the final trajectory.
func (e *Engine) Run(schedule []effect.IterationConfig) (Result, error) {
	for _, cfg := range schedule {
		if _, err := e.Iterate(cfg); err != nil {
			return Result{}, err
		}
	}
	final, err := e.Evaluate()
	if err != nil {
		return Result{}, err
	}
	return Result{
		Trajectory: e.ptraj,
		Forward:    e.ForwardEstimate(),
		Backward:   e.BackwardEstimate(),
		Iterations: e.History(),
		Final:      final,
	}, nil
}
