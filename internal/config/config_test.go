package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://clinicaltrials.gov/api/v2", cfg.CTGov.BaseURL)
	assert.Equal(t, 1200, cfg.CTGov.MinIntervalMs)
	assert.Equal(t, 3, cfg.CTGov.RetryAttempts)
	assert.Equal(t, "https://eutils.ncbi.nlm.nih.gov/entrez/eutils", cfg.PubMed.BaseURL)
	assert.Equal(t, "sonar-pro", cfg.WebSearch.Model)
	assert.Equal(t, 5, cfg.WebSearch.BreakerFailures)
	assert.Equal(t, 30, cfg.WebSearch.BreakerResetSecs)
	assert.InDelta(t, 0.4, cfg.Scoring.CompletenessWeight, 0.001)
	assert.InDelta(t, 0.3, cfg.Scoring.SourceWeight, 0.001)
	assert.InDelta(t, 0.2, cfg.Scoring.SignificanceWeight, 0.001)
	assert.InDelta(t, 0.1, cfg.Scoring.QualityWeight, 0.001)
	assert.InDelta(t, 0.7, cfg.Scoring.ReviewThreshold, 0.001)
	assert.InDelta(t, 25.0, cfg.Aggregate.CVHighMax, 0.001)
	assert.InDelta(t, 50.0, cfg.Aggregate.CVModerateMax, 0.001)
	assert.Equal(t, 3, cfg.Session.InterDrugDelaySecs)
	assert.Equal(t, 3, cfg.Session.MinPublicationPoints)
	assert.Equal(t, 5, cfg.Session.MaxSecondaryOutcomes)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
scoring:
  review_threshold: 0.8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 0.8, cfg.Scoring.ReviewThreshold, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 1200, cfg.CTGov.MinIntervalMs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("EVIDENCE_STORE_DRIVER", "postgres")
	t.Setenv("EVIDENCE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("EVIDENCE_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config populated like Load's defaults for
// validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Scoring.ReviewThreshold = 0.7
	cfg.Aggregate.CVHighMax = 25
	cfg.Aggregate.CVModerateMax = 50
	cfg.Session.InterDrugDelaySecs = 3
	return cfg
}

func TestValidateBenchmark_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Anthropic.Key = "sk-ant-key"

	assert.NoError(t, cfg.Validate("benchmark"))
}

func TestValidateBenchmark_MissingFields(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("benchmark")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateBenchmark_BadThreshold(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Scoring.ReviewThreshold = 1.5

	err := cfg.Validate("benchmark")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "scoring.review_threshold")
}

func TestValidateAggregate_CVOrdering(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Aggregate.CVModerateMax = 10 // below CVHighMax

	err := cfg.Validate("aggregate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cv_high_max < cv_moderate_max")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
