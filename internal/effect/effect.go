// Package effect defines the contributions folded into a track fit: field
// corrections, parameter constraints and drift-wire measurements.
//
// Every effect sits at a time along the trajectory. Each fit iteration first
// updates all effects against the current trajectory estimate, then folds
// them into a forward and a backward sweep, and finally lets them append
// corrected segments to the next estimate.
//
// Effects reference their field model and drift relation; they never own
// them. Callers keep those alive for as long as the effects are in use.
package effect

import (
	"errors"
	"fmt"

	"github.com/banshee-data/trackfit/internal/kalman"
	"github.com/banshee-data/trackfit/internal/trajectory"
)

// ErrConfigConflict is returned when an iteration config carries more than
// one updater for the same kind of effect.
var ErrConfigConflict = errors.New("conflicting updater configuration")

// Effect is one contribution to the fit.
type Effect interface {
	// Time returns the time at which the effect acts.
	Time() float64
	// Active reports whether the effect contributes to the sweeps.
	Active() bool
	// Update recomputes the effect against the reference trajectory.
	Update(ref *trajectory.Piecewise, cfg IterationConfig) error
	// Process folds the effect into a sweep.
	Process(acc *kalman.Accumulator, dir kalman.Direction)
	// Append adds any segment the effect contributes to the next estimate.
	Append(ptraj *trajectory.Piecewise) error
}

// TimeShifter is implemented by effects tied to a point along the particle
// path rather than to a fixed time. When a fit moves the time origin of the
// trajectory by dt, ShiftTime moves the effect with it, staying within
// bounds.
type TimeShifter interface {
	ShiftTime(dt float64, bounds trajectory.TimeRange)
}

// Status is the per-direction processing state of an effect.
type Status int

const (
	Unprocessed Status = iota
	Processed
)

func (s Status) String() string {
	if s == Processed {
		return "processed"
	}
	return "unprocessed"
}

// base carries the bookkeeping shared by all effects.
type base struct {
	time   float64
	active bool
	status [2]Status
}

func (b *base) Time() float64 { return b.time }
func (b *base) Active() bool  { return b.active }

// Status returns the processing state for a sweep direction.
func (b *base) Status(dir kalman.Direction) Status { return b.status[dir] }

func (b *base) markProcessed(dir kalman.Direction) { b.status[dir] = Processed }

func (b *base) resetStatus() { b.status = [2]Status{} }

// UpdaterKind tags the kind of effect an updater applies to.
type UpdaterKind int

const (
	WireHitUpdaterKind UpdaterKind = iota + 1
)

func (k UpdaterKind) String() string {
	switch k {
	case WireHitUpdaterKind:
		return "wirehit"
	default:
		return fmt.Sprintf("UpdaterKind(%d)", int(k))
	}
}

// Updater is per-iteration configuration for one kind of effect.
type Updater interface {
	Kind() UpdaterKind
}

// WireHitUpdater resolves the left/right ambiguity and activity of wire hits.
type WireHitUpdater struct {
	MinDoca float64 // mm; below this the ambiguity is null
	MaxDoca float64 // mm; above this the hit is deactivated
}

func (WireHitUpdater) Kind() UpdaterKind { return WireHitUpdaterKind }

// IterationConfig holds the options of one fit iteration. Effects without an
// updater of their kind keep their state from the previous iteration.
type IterationConfig struct {
	RefreshField bool
	updaters     map[UpdaterKind]Updater
}

// NewIterationConfig builds a config. Two updaters of the same kind return
// an error wrapping ErrConfigConflict.
func NewIterationConfig(refreshField bool, updaters ...Updater) (IterationConfig, error) {
	cfg := IterationConfig{RefreshField: refreshField, updaters: make(map[UpdaterKind]Updater, len(updaters))}
	for _, u := range updaters {
		if _, dup := cfg.updaters[u.Kind()]; dup {
			return IterationConfig{}, fmt.Errorf("%w: %s updater given twice", ErrConfigConflict, u.Kind())
		}
		if wu, ok := u.(WireHitUpdater); ok && (wu.MinDoca < 0 || wu.MaxDoca <= wu.MinDoca) {
			return IterationConfig{}, fmt.Errorf("wire hit updater doca cuts %g/%g out of order", wu.MinDoca, wu.MaxDoca)
		}
		cfg.updaters[u.Kind()] = u
	}
	return cfg, nil
}

// WireHitUpdater returns the wire hit updater, if any.
func (c IterationConfig) WireHitUpdater() (WireHitUpdater, bool) {
	u, ok := c.updaters[WireHitUpdaterKind].(WireHitUpdater)
	return u, ok
}

// ResidualKind tells what a residual measures.
type ResidualKind int

const (
	DistanceResidual ResidualKind = iota
	TimeResidual
)

func (k ResidualKind) String() string {
	if k == TimeResidual {
		return "time"
	}
	return "distance"
}

// Residual is a measurement residual linearized about the reference
// trajectory. Deriv is the derivative of the predicted value, so the
// residual moves by -Deriv·dp under a parameter change dp.
type Residual struct {
	Kind     ResidualKind
	Value    float64
	Variance float64
	Deriv    trajectory.DVec
}

// Chi2 returns Value²/Variance.
func (r Residual) Chi2() float64 { return r.Value * r.Value / r.Variance }
