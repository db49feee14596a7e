package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	if cfg.DomainTolerance == nil || *cfg.DomainTolerance != 0.01 {
		t.Errorf("Expected DomainTolerance 0.01, got %v", cfg.DomainTolerance)
	}
	if cfg.InitialStep == nil || *cfg.InitialStep != 0.1 {
		t.Errorf("Expected InitialStep 0.1, got %v", cfg.InitialStep)
	}
	if cfg.AppendBuffer == nil || *cfg.AppendBuffer != 0.01 {
		t.Errorf("Expected AppendBuffer 0.01, got %v", cfg.AppendBuffer)
	}

	if cfg.GetDiffStepScale() != 0.2 {
		t.Errorf("GetDiffStepScale() = %f, want 0.2", cfg.GetDiffStepScale())
	}
	if cfg.GetGradStepScale() != 0.5 {
		t.Errorf("GetGradStepScale() = %f, want 0.5", cfg.GetGradStepScale())
	}
	if cfg.GetPocaMaxIterations() != 10 {
		t.Errorf("GetPocaMaxIterations() = %d, want 10", cfg.GetPocaMaxIterations())
	}
	assert.Len(t, cfg.GetSeedErrors(), 6)
	assert.Len(t, cfg.GetIterations(), 3)
	require.NoError(t, cfg.Validate())
}

func TestDefaultsFileMatchesBuiltins(t *testing.T) {
	fromFile := MustLoadDefaultConfig()
	builtin := DefaultTuningConfig()

	assert.Equal(t, builtin.GetDomainTolerance(), fromFile.GetDomainTolerance())
	assert.Equal(t, builtin.GetInitialStep(), fromFile.GetInitialStep())
	assert.Equal(t, builtin.GetDiffStepScale(), fromFile.GetDiffStepScale())
	assert.Equal(t, builtin.GetGradStepScale(), fromFile.GetGradStepScale())
	assert.Equal(t, builtin.GetMinFieldDiff(), fromFile.GetMinFieldDiff())
	assert.Equal(t, builtin.GetAppendBuffer(), fromFile.GetAppendBuffer())
	assert.Equal(t, builtin.GetIntegrationSteps(), fromFile.GetIntegrationSteps())
	assert.Equal(t, builtin.GetPocaTolerance(), fromFile.GetPocaTolerance())
	assert.Equal(t, builtin.GetSeedErrors(), fromFile.GetSeedErrors())
	assert.Equal(t, builtin.GetSeedDeweight(), fromFile.GetSeedDeweight())
	assert.Equal(t, builtin.GetMinDoca(), fromFile.GetMinDoca())
	assert.Equal(t, builtin.GetMaxDoca(), fromFile.GetMaxDoca())

	fileIters := fromFile.GetIterations()
	builtinIters := builtin.GetIterations()
	require.Len(t, fileIters, len(builtinIters))
	for i := range fileIters {
		assert.Equal(t, builtinIters[i].GetRefreshField(), fileIters[i].GetRefreshField(), "iteration %d", i)
		assert.Equal(t, builtinIters[i].GetUpdateHits(), fileIters[i].GetUpdateHits(), "iteration %d", i)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "domain_tolerance": 0.05,
  "min_doca": 0.5,
  "max_doca": 3.0,
  "iterations": [{"refresh_field": false}]
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetDomainTolerance() != 0.05 {
		t.Errorf("Expected DomainTolerance 0.05, got %f", cfg.GetDomainTolerance())
	}
	if cfg.GetMinDoca() != 0.5 || cfg.GetMaxDoca() != 3.0 {
		t.Errorf("Expected doca cuts 0.5/3.0, got %f/%f", cfg.GetMinDoca(), cfg.GetMaxDoca())
	}
	// Omitted fields fall back to defaults.
	if cfg.GetInitialStep() != 0.1 {
		t.Errorf("Expected default InitialStep 0.1, got %f", cfg.GetInitialStep())
	}
	iters := cfg.GetIterations()
	require.Len(t, iters, 1)
	assert.False(t, iters[0].GetRefreshField())
	assert.True(t, iters[0].GetUpdateHits(), "omitted update_hits defaults to true")
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigWrongExtension(t *testing.T) {
	_, err := LoadTuningConfig("/tmp/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".json extension")
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	if err := os.WriteFile(configPath, []byte(`{"domain_tolerance": "wide"`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr string
	}{
		{"empty config is valid", EmptyTuningConfig(), ""},
		{"defaults are valid", DefaultTuningConfig(), ""},
		{"negative tolerance", &TuningConfig{DomainTolerance: ptrFloat64(-1)}, "domain_tolerance"},
		{"zero append buffer", &TuningConfig{AppendBuffer: ptrFloat64(0)}, "append_buffer"},
		{"negative field diff", &TuningConfig{MinFieldDiff: ptrFloat64(-0.1)}, "min_field_diff"},
		{"zero integration steps", &TuningConfig{IntegrationSteps: ptrInt(0)}, "integration_steps"},
		{"zero poca iterations", &TuningConfig{PocaMaxIterations: ptrInt(0)}, "poca_max_iterations"},
		{"short seed errors", &TuningConfig{SeedErrors: []float64{1, 2}}, "seed_errors"},
		{"non-positive seed error", &TuningConfig{SeedErrors: []float64{1, 1, 1, 1, 0, 1}}, "seed_errors[4]"},
		{"max doca below min doca", &TuningConfig{MinDoca: ptrFloat64(3), MaxDoca: ptrFloat64(2)}, "max_doca"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should mention %q", err, tt.wantErr)
		})
	}
}

func TestGetSeedErrorsReturnsCopy(t *testing.T) {
	cfg := &TuningConfig{SeedErrors: []float64{1, 2, 3, 4, 5, 6}}
	errs := cfg.GetSeedErrors()
	errs[0] = 100
	assert.Equal(t, 1.0, cfg.SeedErrors[0])
}
