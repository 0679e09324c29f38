package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "both", cfg.Logging.Output)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "data", cfg.Paths.DataDir)
}

func TestDefaultStudy(t *testing.T) {
	study := DefaultStudy()

	assert.Equal(t, "stkcd", study.FirmCol)
	assert.Equal(t, "year", study.YearCol)
	assert.Equal(t, "gia", study.Dependent)
	assert.Equal(t, "esg", study.KeyVar)
	assert.Equal(t, []string{"env", "soc", "gov"}, study.Pillars)
	assert.Equal(t, 0.01, study.WinsorLower)
	assert.Equal(t, 0.99, study.WinsorUpper)
	assert.Equal(t, 2018, study.EventYear)
	assert.Len(t, study.Quantiles, 3)
}

func TestStudyValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config is valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "quantile outside unit interval rejected",
			mutate: func(c *Config) {
				c.Study.Quantiles = []float64{0.5, 1.5}
			},
			wantErr: true,
		},
		{
			name: "missing dependent rejected",
			mutate: func(c *Config) {
				c.Study.Dependent = ""
			},
			wantErr: true,
		},
		{
			name: "invalid logging output rejected",
			mutate: func(c *Config) {
				c.Logging.Output = "syslog"
			},
			wantErr: true,
		},
		{
			name: "caliper above cap rejected",
			mutate: func(c *Config) {
				c.Study.PSMCaliper = 0.9
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaultsFillsGaps(t *testing.T) {
	partial := StudyConfig{InputFile: "custom.xlsx", EventYear: 2020}
	partial.applyDefaults()

	assert.Equal(t, "custom.xlsx", partial.InputFile)
	assert.Equal(t, 2020, partial.EventYear)
	assert.Equal(t, "gia", partial.Dependent)
	assert.Equal(t, 0.01, partial.WinsorLower)
	assert.NotEmpty(t, partial.Controls)
}

func TestContinuousVarsOrder(t *testing.T) {
	study := DefaultStudy()
	vars := study.ContinuousVars()

	require.Greater(t, len(vars), 5)
	assert.Equal(t, "gia", vars[0])
	assert.Equal(t, "esg", vars[1])
	assert.Equal(t, "env", vars[2])
}

// chdirWithConfig writes a config.yaml into a temp directory and makes it
// the working directory so Load picks it up.
func chdirWithConfig(t *testing.T, content string) {
	t.Helper()
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	originalDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tempDir))
	t.Cleanup(func() { os.Chdir(originalDir) })
}

func TestLoadMergesAllFileSections(t *testing.T) {
	chdirWithConfig(t, `
logging:
  level: debug
tracing:
  enabled: true
paths:
  plots_dir: figures
study:
  event_year: 2019
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "figures", cfg.Paths.PlotsDir)
	assert.Equal(t, 2019, cfg.Study.EventYear)

	// Sections the file omits keep their defaults.
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "logs/traces.jsonl", cfg.Tracing.FilePath)
	assert.Equal(t, "data", cfg.Paths.DataDir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("ESG_LOGGING_LEVEL", "warn")
	t.Setenv("ESG_TRACING_ENABLED", "false")
	chdirWithConfig(t, `
logging:
  level: error
tracing:
  enabled: true
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestNewPathsWithExplicitBase(t *testing.T) {
	dir := t.TempDir()
	paths, err := NewPaths(PathsConfig{BaseDir: dir})
	require.NoError(t, err)

	assert.Equal(t, dir, paths.BaseDir)
	assert.Contains(t, paths.RawPanelCSV, dir)
	assert.Contains(t, paths.ResultsJSON, "results.json")

	require.NoError(t, paths.EnsureDirectories())
	assert.DirExists(t, paths.DataDir)
	assert.DirExists(t, paths.ReportsDir)
	assert.DirExists(t, paths.PlotsDir)
	assert.DirExists(t, paths.LogsDir)
}
