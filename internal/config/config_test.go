package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7411", cfg.Server.APIAddress)
	assert.Equal(t, ":2112", cfg.Server.MetricsAddress)
	assert.Equal(t, time.Minute, cfg.Cycle.Interval)
	assert.Equal(t, 70, cfg.Correlation.MinConfidence)
	assert.Equal(t, 70, cfg.Correlation.SingleSignalConfidence)
	assert.Equal(t, 50, cfg.Correlation.MaxTracked)
	assert.Equal(t, 85.0, cfg.Thresholds.DiskWarningPercent)
	assert.Equal(t, 95.0, cfg.Thresholds.DiskCriticalPercent)
	assert.Equal(t, 7*24*time.Hour, cfg.History.Retention)
	assert.Equal(t, 10, cfg.Display.MaxIssues)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.yaml")
	content := `
server:
  apiAddress: ":9000"
cycle:
  interval: 30s
correlation:
  minConfidence: 80
thresholds:
  diskWarningPercent: 75
logging:
  level: debug
  json: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.APIAddress)
	assert.Equal(t, 30*time.Second, cfg.Cycle.Interval)
	assert.Equal(t, 80, cfg.Correlation.MinConfidence)
	assert.Equal(t, 75.0, cfg.Thresholds.DiskWarningPercent)
	assert.True(t, cfg.Logging.JSON)

	// Untouched sections keep their defaults.
	assert.Equal(t, ":2112", cfg.Server.MetricsAddress)
	assert.Equal(t, 95.0, cfg.Thresholds.DiskCriticalPercent)
}

func TestLoadMissingExplicitFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VIGIL_API_ADDRESS", ":8080")
	t.Setenv("VIGIL_LOG_LEVEL", "debug")
	t.Setenv("VIGIL_CYCLE_INTERVAL", "5m")
	t.Setenv("VIGIL_MIN_CONFIDENCE", "85")
	t.Setenv("VIGIL_HISTORY_PATH", "/tmp/vigil-test.db")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.APIAddress)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5*time.Minute, cfg.Cycle.Interval)
	assert.Equal(t, 85, cfg.Correlation.MinConfidence)
	assert.Equal(t, "/tmp/vigil-test.db", cfg.History.Path)
}

func TestEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("VIGIL_CYCLE_INTERVAL", "not-a-duration")
	t.Setenv("VIGIL_MIN_CONFIDENCE", "many")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Cycle.Interval)
	assert.Equal(t, 70, cfg.Correlation.MinConfidence)
}
