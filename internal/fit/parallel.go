package fit

import (
	"context"
	"fmt"

	"github.com/banshee-data/trackfit/internal/bfield"
	"github.com/banshee-data/trackfit/internal/effect"
	"github.com/banshee-data/trackfit/internal/trajectory"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Candidate is one track to fit. Its effects belong to the candidate and
// must not be shared with another.
type Candidate struct {
	ID      uuid.UUID
	Seed    *trajectory.Helix
	Effects []effect.Effect
}

// NewCandidate returns a candidate with a fresh ID.
func NewCandidate(seed *trajectory.Helix, effects ...effect.Effect) Candidate {
	return Candidate{ID: uuid.New(), Seed: seed, Effects: effects}
}

// CandidateResult is the outcome of fitting one candidate. A failed fit
// carries its error in Err.
type CandidateResult struct {
	ID      uuid.UUID
	Result  Result
	Domains int
	Err     error
}

// FitAll fits independent candidates in parallel using at most workers
// goroutines. Per-candidate failures are reported in the results; the
// returned error is only set when ctx is cancelled. The field is shared
// read-only by all fits.
func FitAll(ctx context.Context, cands []Candidate, field bfield.Field, s Settings, schedule []effect.IterationConfig, workers int) ([]CandidateResult, error) {
	results := make([]CandidateResult, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, c := range cands {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = fitOne(c, field, s, schedule)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("fit candidates: %w", err)
	}
	return results, nil
}

func fitOne(c Candidate, field bfield.Field, s Settings, schedule []effect.IterationConfig) CandidateResult {
	res := CandidateResult{ID: c.ID}
	eng, err := NewEngine(c.Seed, field, s)
	if err != nil {
		res.Err = err
		return res
	}
	eng.Add(c.Effects...)
	res.Domains = len(eng.Domains())
	res.Result, res.Err = eng.Run(schedule)
	return res
}
