package fit

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/trackfit/internal/config"
	"github.com/banshee-data/trackfit/internal/effect"
	"github.com/banshee-data/trackfit/internal/poca"
	"github.com/banshee-data/trackfit/internal/trajectory"
)

// Settings holds the engine parameters that do not change between iterations.
type Settings struct {
	DomainTolerance  float64 // mm
	Step             trajectory.StepTuning
	AppendBuffer     float64 // ns
	IntegrationSteps int
	Poca             poca.Settings
	SeedErrors       trajectory.DVec
	SeedDeweight     float64
}

// DefaultSettings returns settings built from the built-in tuning defaults.
func DefaultSettings() Settings {
	return SettingsFromTuning(config.DefaultTuningConfig())
}

// SettingsFromTuning builds engine settings from a loaded TuningConfig.
func SettingsFromTuning(cfg *config.TuningConfig) Settings {
	var seed trajectory.DVec
	copy(seed[:], cfg.GetSeedErrors())
	return Settings{
		DomainTolerance: cfg.GetDomainTolerance(),
		Step: trajectory.StepTuning{
			InitialStep:   cfg.GetInitialStep(),
			DiffStepScale: cfg.GetDiffStepScale(),
			GradStepScale: cfg.GetGradStepScale(),
			MinFieldDiff:  cfg.GetMinFieldDiff(),
		},
		AppendBuffer:     cfg.GetAppendBuffer(),
		IntegrationSteps: cfg.GetIntegrationSteps(),
		Poca: poca.Settings{
			MaxIterations: cfg.GetPocaMaxIterations(),
			Tolerance:     cfg.GetPocaTolerance(),
		},
		SeedErrors:   seed,
		SeedDeweight: cfg.GetSeedDeweight(),
	}
}

// ErrInvalidSettings is returned by NewEngine for settings that cannot drive
// a fit.
var ErrInvalidSettings = errors.New("invalid fit settings")

func positiveFinite(v float64) bool { return v > 0 && !math.IsInf(v, 1) }

// Validate checks the field domain parameters: the tolerance and the step
// scales must be positive and finite.
func (s Settings) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"domain tolerance", s.DomainTolerance},
		{"initial step", s.Step.InitialStep},
		{"diff step scale", s.Step.DiffStepScale},
		{"grad step scale", s.Step.GradStepScale},
	}
	for _, c := range checks {
		if !positiveFinite(c.v) {
			return fmt.Errorf("%w: %s %g", ErrInvalidSettings, c.name, c.v)
		}
	}
	if !(s.Step.MinFieldDiff >= 0) {
		return fmt.Errorf("%w: min field diff %g", ErrInvalidSettings, s.Step.MinFieldDiff)
	}
	return nil
}

// ScheduleFromTuning turns the iteration list of cfg into iteration configs.
// Iterations with hit updates carry a wire hit updater with the configured
// doca cuts.
func ScheduleFromTuning(cfg *config.TuningConfig) ([]effect.IterationConfig, error) {
	specs := cfg.GetIterations()
	schedule := make([]effect.IterationConfig, 0, len(specs))
	for i, spec := range specs {
		var updaters []effect.Updater
		if spec.GetUpdateHits() {
			updaters = append(updaters, effect.WireHitUpdater{MinDoca: cfg.GetMinDoca(), MaxDoca: cfg.GetMaxDoca()})
		}
		ic, err := effect.NewIterationConfig(spec.GetRefreshField(), updaters...)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		schedule = append(schedule, ic)
	}
	return schedule, nil
}
