package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// IterationSpec describes one entry of the iteration schedule. Each entry
// becomes one update/sweep/reconstruct cycle of the fit engine.
type IterationSpec struct {
	// RefreshField re-integrates the field deviation of every domain.
	RefreshField *bool `json:"refresh_field,omitempty"`
	// UpdateHits enables the wire hit updater (ambiguity and activity cuts).
	// When false the hits keep the ambiguity of the previous iteration.
	UpdateHits *bool `json:"update_hits,omitempty"`
}

// GetRefreshField returns refresh_field or the default (true).
func (s IterationSpec) GetRefreshField() bool {
	if s.RefreshField == nil {
		return true
	}
	return *s.RefreshField
}

// GetUpdateHits returns update_hits or the default (true).
func (s IterationSpec) GetUpdateHits() bool {
	if s.UpdateHits == nil {
		return true
	}
	return *s.UpdateHits
}

// TuningConfig represents the root configuration for fit tuning parameters.
// Every field is optional; the Get* accessors supply defaults.
type TuningConfig struct {
	// Domain splitter params
	DomainTolerance *float64 `json:"domain_tolerance,omitempty"` // mm of position distortion per domain
	InitialStep     *float64 `json:"initial_step,omitempty"`     // ns
	DiffStepScale   *float64 `json:"diff_step_scale,omitempty"`
	GradStepScale   *float64 `json:"grad_step_scale,omitempty"`
	MinFieldDiff    *float64 `json:"min_field_diff,omitempty"` // Tesla

	// Field correction params
	AppendBuffer     *float64 `json:"append_buffer,omitempty"` // ns
	IntegrationSteps *int     `json:"integration_steps,omitempty"`

	// POCA solver params
	PocaMaxIterations *int     `json:"poca_max_iterations,omitempty"`
	PocaTolerance     *float64 `json:"poca_tolerance,omitempty"` // ns

	// Seed params
	SeedErrors   []float64 `json:"seed_errors,omitempty"` // one sigma per helix parameter
	SeedDeweight *float64  `json:"seed_deweight,omitempty"`

	// Wire hit updater params
	MinDoca *float64 `json:"min_doca,omitempty"` // mm
	MaxDoca *float64 `json:"max_doca,omitempty"` // mm

	// Iteration schedule
	Iterations []IterationSpec `json:"iterations,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated with
// its built-in default. It matches config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		DomainTolerance:   ptrFloat64(e.GetDomainTolerance()),
		InitialStep:       ptrFloat64(e.GetInitialStep()),
		DiffStepScale:     ptrFloat64(e.GetDiffStepScale()),
		GradStepScale:     ptrFloat64(e.GetGradStepScale()),
		MinFieldDiff:      ptrFloat64(e.GetMinFieldDiff()),
		AppendBuffer:      ptrFloat64(e.GetAppendBuffer()),
		IntegrationSteps:  ptrInt(e.GetIntegrationSteps()),
		PocaMaxIterations: ptrInt(e.GetPocaMaxIterations()),
		PocaTolerance:     ptrFloat64(e.GetPocaTolerance()),
		SeedErrors:        e.GetSeedErrors(),
		SeedDeweight:      ptrFloat64(e.GetSeedDeweight()),
		MinDoca:           ptrFloat64(e.GetMinDoca()),
		MaxDoca:           ptrFloat64(e.GetMaxDoca()),
		Iterations:        e.GetIterations(),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/storage/sqlite/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	positive := []struct {
		name string
		val  *float64
	}{
		{"domain_tolerance", c.DomainTolerance},
		{"initial_step", c.InitialStep},
		{"diff_step_scale", c.DiffStepScale},
		{"grad_step_scale", c.GradStepScale},
		{"append_buffer", c.AppendBuffer},
		{"poca_tolerance", c.PocaTolerance},
		{"seed_deweight", c.SeedDeweight},
		{"min_doca", c.MinDoca},
		{"max_doca", c.MaxDoca},
	}
	for _, p := range positive {
		if p.val != nil && *p.val <= 0 {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.val)
		}
	}

	if c.MinFieldDiff != nil && *c.MinFieldDiff < 0 {
		return fmt.Errorf("min_field_diff must be non-negative, got %f", *c.MinFieldDiff)
	}
	if c.IntegrationSteps != nil && *c.IntegrationSteps < 1 {
		return fmt.Errorf("integration_steps must be at least 1, got %d", *c.IntegrationSteps)
	}
	if c.PocaMaxIterations != nil && *c.PocaMaxIterations < 1 {
		return fmt.Errorf("poca_max_iterations must be at least 1, got %d", *c.PocaMaxIterations)
	}

	if c.SeedErrors != nil {
		if len(c.SeedErrors) != 6 {
			return fmt.Errorf("seed_errors must have 6 entries, got %d", len(c.SeedErrors))
		}
		for i, v := range c.SeedErrors {
			if v <= 0 {
				return fmt.Errorf("seed_errors[%d] must be positive, got %f", i, v)
			}
		}
	}

	if c.GetMaxDoca() <= c.GetMinDoca() {
		return fmt.Errorf("max_doca (%f) must exceed min_doca (%f)", c.GetMaxDoca(), c.GetMinDoca())
	}

	return nil
}

// GetDomainTolerance returns the domain_tolerance value or the default.
func (c *TuningConfig) GetDomainTolerance() float64 {
	if c.DomainTolerance == nil {
		return 0.01
	}
	return *c.DomainTolerance
}

// GetInitialStep returns the initial_step value or the default.
func (c *TuningConfig) GetInitialStep() float64 {
	if c.InitialStep == nil {
		return 0.1
	}
	return *c.InitialStep
}

// GetDiffStepScale returns the diff_step_scale value or the default.
func (c *TuningConfig) GetDiffStepScale() float64 {
	if c.DiffStepScale == nil {
		return 0.2
	}
	return *c.DiffStepScale
}

// GetGradStepScale returns the grad_step_scale value or the default.
func (c *TuningConfig) GetGradStepScale() float64 {
	if c.GradStepScale == nil {
		return 0.5
	}
	return *c.GradStepScale
}

// GetMinFieldDiff returns the min_field_diff value or the default.
func (c *TuningConfig) GetMinFieldDiff() float64 {
	if c.MinFieldDiff == nil {
		return 1e-4
	}
	return *c.MinFieldDiff
}

// GetAppendBuffer returns the append_buffer value or the default.
func (c *TuningConfig) GetAppendBuffer() float64 {
	if c.AppendBuffer == nil {
		return 0.01
	}
	return *c.AppendBuffer
}

// GetIntegrationSteps returns the integration_steps value or the default.
func (c *TuningConfig) GetIntegrationSteps() int {
	if c.IntegrationSteps == nil {
		return 20
	}
	return *c.IntegrationSteps
}

// GetPocaMaxIterations returns the poca_max_iterations value or the default.
func (c *TuningConfig) GetPocaMaxIterations() int {
	if c.PocaMaxIterations == nil {
		return 10
	}
	return *c.PocaMaxIterations
}

// GetPocaTolerance returns the poca_tolerance value or the default.
func (c *TuningConfig) GetPocaTolerance() float64 {
	if c.PocaTolerance == nil {
		return 1e-8
	}
	return *c.PocaTolerance
}

// GetSeedErrors returns the seed_errors value or the default.
func (c *TuningConfig) GetSeedErrors() []float64 {
	if len(c.SeedErrors) != 6 {
		return []float64{10, 10, 10, 10, 0.1, 1}
	}
	out := make([]float64, 6)
	copy(out, c.SeedErrors)
	return out
}

// GetSeedDeweight returns the seed_deweight value or the default.
func (c *TuningConfig) GetSeedDeweight() float64 {
	if c.SeedDeweight == nil {
		return 1e4
	}
	return *c.SeedDeweight
}

// GetMinDoca returns the min_doca value or the default.
func (c *TuningConfig) GetMinDoca() float64 {
	if c.MinDoca == nil {
		return 1.0
	}
	return *c.MinDoca
}

// GetMaxDoca returns the max_doca value or the default.
func (c *TuningConfig) GetMaxDoca() float64 {
	if c.MaxDoca == nil {
		return 5.0
	}
	return *c.MaxDoca
}

// GetIterations returns the iteration schedule or the default three-pass
// schedule: a frozen first pass, then two passes with hit updates.
func (c *TuningConfig) GetIterations() []IterationSpec {
	if len(c.Iterations) == 0 {
		return []IterationSpec{
			{RefreshField: ptrBool(true), UpdateHits: ptrBool(false)},
			{RefreshField: ptrBool(true), UpdateHits: ptrBool(true)},
			{RefreshField: ptrBool(false), UpdateHits: ptrBool(true)},
		}
	}
	out := make([]IterationSpec, len(c.Iterations))
	copy(out, c.Iterations)
	return out
}
