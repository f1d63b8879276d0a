package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "esg-pipeline.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Dataset.Engine)
	assert.InDelta(t, 0.15, cfg.Dataset.ValidationRatio, 0.001)
	assert.InDelta(t, 0.15, cfg.Dataset.TestRatio, 0.001)
	assert.Equal(t, 30, cfg.Dataset.RetentionDays)
	assert.Equal(t, 1, cfg.Pipeline.LookbackDays)
	assert.Equal(t, "confidence", cfg.Pipeline.Strategy)
	assert.Equal(t, "esg", cfg.Pipeline.DatasetPrefix)
	assert.Equal(t, 600, cfg.Pipeline.CycleTimeoutSecs)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrentSources)
	assert.InDelta(t, 0.80, cfg.Quality.Overall, 0.001)
	assert.InDelta(t, 0.95, cfg.Quality.Completeness, 0.001)
	assert.InDelta(t, 0.90, cfg.Quality.Validity, 0.001)
	assert.InDelta(t, 0.90, cfg.Quality.Authenticity, 0.001)
	assert.Equal(t, int64(1024), cfg.Oracle.MaxTokens)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/esg
log:
  level: debug
  format: console
pipeline:
  strategy: ai
  company_ids: [AAPL, MSFT]
sources:
  refinitiv:
    enabled: true
    base_url: https://api.refinitiv.example
    key: abc
    per_minute: 60
  sustainalytics:
    enabled: true
    ftp_url: ftp://feeds.example.com/scores.csv
    latin1: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "ai", cfg.Pipeline.Strategy)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Pipeline.CompanyIDs)

	require.Contains(t, cfg.Sources, "refinitiv")
	assert.True(t, cfg.Sources["refinitiv"].Enabled)
	assert.Equal(t, 60, cfg.Sources["refinitiv"].PerMinute)
	assert.True(t, cfg.Sources["sustainalytics"].Latin1)

	// Defaults still apply for unset values.
	assert.Equal(t, "esg", cfg.Pipeline.DatasetPrefix)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
log:
  level: info
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("ESG_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestRateLimits(t *testing.T) {
	cfg := &Config{Sources: map[string]SourceConfig{
		"refinitiv": {Enabled: true, PerMinute: 60},
		"bloomberg": {Enabled: false, PerMinute: 30},
		"msci":      {Enabled: true},
	}}

	limits := cfg.RateLimits()
	assert.Equal(t, map[string]int{"refinitiv": 60}, limits)
}

func TestCycleTimeout(t *testing.T) {
	cfg := PipelineConfig{CycleTimeoutSecs: 90}
	assert.Equal(t, "1m30s", cfg.CycleTimeout().String())
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
