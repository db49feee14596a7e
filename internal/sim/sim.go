// Package sim generates synthetic drift-wire events for tests and demos: a
// true trajectory, wires crossing it at known distances, and smeared drift
// times.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/banshee-data/trackfit/internal/bfield"
	"github.com/banshee-data/trackfit/internal/drift"
	"github.com/banshee-data/trackfit/internal/effect"
	"github.com/banshee-data/trackfit/internal/poca"
	"github.com/banshee-data/trackfit/internal/trajectory"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config describes the particle and detector of a synthetic event.
type Config struct {
	// Particle at the start of the range
	Momentum float64 // MeV/c
	CosTheta float64 // cosine of the polar angle to z
	Azimuth  float64 // radians
	Mass     float64 // MeV
	Charge   int
	Origin   r3.Vec
	Range    trajectory.TimeRange

	// Field. A nil Field is uniform at Bz along z.
	Field    bfield.Field
	Bz       float64 // Tesla
	StepTime float64 // ns per true segment in a non-uniform field

	// Wires
	NHits          int
	CellSize       float64 // mm
	MinDist        float64 // mm, smallest |distance| of a wire to the track
	WireHalfLength float64 // mm
	SignalSpeed    float64 // mm/ns along the wire
	DriftSpeed     float64 // mm/ns
	DriftSigma     float64 // ns
}

// DefaultConfig returns a 100 MeV/c electron in a 1 T field crossing 40
// straw-like wires.
func DefaultConfig() Config {
	return Config{
		Momentum:       100,
		CosTheta:       0.5,
		Azimuth:        0.3,
		Mass:           0.511,
		Charge:         -1,
		Range:          trajectory.TimeRange{Low: -3, High: 3},
		Bz:             1,
		StepTime:       0.05,
		NHits:          40,
		CellSize:       2.5,
		MinDist:        0.1,
		WireHalfLength: 500,
		SignalSpeed:    200,
		DriftSpeed:     0.05,
		DriftSigma:     2,
	}
}

// Relation returns the drift relation matching the config.
func (c Config) Relation() (drift.Constant, error) {
	return drift.NewConstant(c.DriftSpeed, c.DriftSigma)
}

// Hit is one simulated wire crossing.
type Hit struct {
	Wire     trajectory.Line // signal line, passing the readout end at the measured time
	Time     float64         // true particle time at closest approach
	Distance float64         // true signed distance of closest approach
	LineTime float64         // true line time at closest approach
}

// Event is a simulated track.
type Event struct {
	Config Config
	Truth  *trajectory.Piecewise
	Hits   []Hit
}

// Generate simulates one event.
func Generate(cfg Config, rng *rand.Rand) (Event, error) {
	truth, err := trueTrajectory(cfg)
	if err != nil {
		return Event{}, err
	}
	ev := Event{Config: cfg, Truth: truth}

	margin := 0.05 * cfg.Range.Span()
	times := make([]float64, cfg.NHits)
	for i := range times {
		times[i] = cfg.Range.Low + margin + rng.Float64()*(cfg.Range.Span()-2*margin)
	}
	sort.Float64s(times)

	maxDist := 0.95 * cfg.CellSize
	for _, tp := range times {
		v := r3.Unit(truth.Velocity(tp))
		normal := r3.Unit(r3.Cross(r3.Vec{Z: 1}, v))
		alpha := (rng.Float64() - 0.5) * math.Pi
		wdir := r3.Unit(r3.Add(r3.Scale(math.Cos(alpha), r3.Vec{Z: 1}), r3.Scale(math.Sin(alpha), normal)))
		n := r3.Unit(r3.Cross(v, wdir))

		d := cfg.MinDist + rng.Float64()*(maxDist-cfg.MinDist)
		if rng.Intn(2) == 0 {
			d = -d
		}
		mid := r3.Add(truth.Position(tp), r3.Scale(d, n))
		lineTime := tp + math.Abs(d)/cfg.DriftSpeed
		transit := cfg.WireHalfLength / cfg.SignalSpeed
		measured := lineTime + transit + rng.NormFloat64()*cfg.DriftSigma

		end := r3.Add(mid, r3.Scale(cfg.WireHalfLength, wdir))
		wire := trajectory.NewLine(end, r3.Scale(cfg.SignalSpeed, wdir), measured,
			trajectory.TimeRange{Low: measured - 2*transit, High: measured})
		ev.Hits = append(ev.Hits, Hit{Wire: wire, Time: tp, Distance: d, LineTime: lineTime})
	}
	return ev, nil
}

func (c Config) fieldAt(pos r3.Vec) r3.Vec {
	if c.Field == nil {
		return r3.Vec{Z: c.Bz}
	}
	return c.Field.Value(pos)
}

// trueTrajectory follows the particle through the field. In a non-uniform
// field each segment uses the local field at its start.
func trueTrajectory(cfg Config) (*trajectory.Piecewise, error) {
	sinTheta := math.Sqrt(1 - cfg.CosTheta*cfg.CosTheta)
	mom := trajectory.Mom4{
		P: r3.Scale(cfg.Momentum, r3.Vec{
			X: sinTheta * math.Cos(cfg.Azimuth),
			Y: sinTheta * math.Sin(cfg.Azimuth),
			Z: cfg.CosTheta,
		}),
		Mass: cfg.Mass,
	}
	pos := trajectory.Point4{Pos: cfg.Origin, T: cfg.Range.Low}
	first, err := trajectory.NewHelix(pos, mom, cfg.Charge, cfg.fieldAt(pos.Pos), cfg.Range)
	if err != nil {
		return nil, fmt.Errorf("true trajectory: %w", err)
	}
	truth := trajectory.NewPiecewise(first)
	if cfg.Field == nil || cfg.StepTime <= 0 {
		return truth, nil
	}
	for t := cfg.Range.Low + cfg.StepTime; t < cfg.Range.High; t += cfg.StepTime {
		back := truth.Back()
		p := back.Pos4(t)
		next, err := trajectory.NewHelix(p, back.Momentum(t), cfg.Charge, cfg.fieldAt(p.Pos),
			trajectory.TimeRange{Low: t, High: cfg.Range.High})
		if err != nil {
			return nil, fmt.Errorf("true trajectory at %g: %w", t, err)
		}
		if err := truth.Append(next); err != nil {
			return nil, fmt.Errorf("true trajectory at %g: %w", t, err)
		}
	}
	return truth, nil
}

// WireHits builds fit effects for the event hits. Each call returns new
// effects; they must not be shared between fits.
func (ev Event) WireHits(field bfield.Field, d2t drift.Relation, ps poca.Settings) []*effect.WireHit {
	out := make([]*effect.WireHit, 0, len(ev.Hits))
	transit := ev.Config.WireHalfLength / ev.Config.SignalSpeed
	for _, h := range ev.Hits {
		hint := poca.Hint{Particle: h.Time, Line: h.Wire.T0() - transit}
		out = append(out, effect.NewWireHit(h.Wire, field, d2t, ev.Config.CellSize, hint, ps))
	}
	return out
}

// Seed returns a helix in the nominal field bnom, built from the true state
// at the start of the range and smeared by sigmas.
func (ev Event) Seed(bnom r3.Vec, sigmas trajectory.DVec, rng *rand.Rand) (*trajectory.Helix, error) {
	t0 := ev.Config.Range.Low
	start := ev.Truth.Front()
	h, err := trajectory.NewHelix(start.Pos4(t0), start.Momentum(t0), ev.Config.Charge, bnom, ev.Config.Range)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	pd := h.Params()
	for i, s := range sigmas {
		pd.Params[i] += rng.NormFloat64() * s
	}
	return h.WithParams(pd), nil
}

// Field returns the field the event was simulated in.
func (ev Event) Field() bfield.Field {
	if ev.Config.Field == nil {
		return bfield.NewUniformBz(ev.Config.Bz)
	}
	return ev.Config.Field
}
