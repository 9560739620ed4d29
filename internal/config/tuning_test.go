package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustLoadDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := MustLoadDefaultConfig()

	// The defaults file must agree with the built-in Get* fallbacks.
	empty := EmptyTuningConfig()
	assert.Equal(t, empty.GetMaxDisappeared(), cfg.GetMaxDisappeared())
	assert.Equal(t, empty.GetMaxDistance(), cfg.GetMaxDistance())
	assert.Equal(t, empty.GetTrackHistoryLength(), cfg.GetTrackHistoryLength())
	assert.Equal(t, empty.GetMaxTracks(), cfg.GetMaxTracks())
	assert.Equal(t, empty.GetAlertCooldown(), cfg.GetAlertCooldown())
	assert.Equal(t, empty.GetMaxAlertsPerMinute(), cfg.GetMaxAlertsPerMinute())
	assert.Equal(t, empty.GetRateLimitPerKey(), cfg.GetRateLimitPerKey())
	assert.Equal(t, empty.GetAlertHistoryLimit(), cfg.GetAlertHistoryLimit())
	assert.Equal(t, empty.GetLimiterScope(), cfg.GetLimiterScope())
	assert.Equal(t, empty.GetWindowSize(), cfg.GetWindowSize())
	assert.Equal(t, empty.GetDatabasePath(), cfg.GetDatabasePath())
	assert.Equal(t, empty.GetRetentionDays(), cfg.GetRetentionDays())
	assert.Equal(t, empty.GetListen(), cfg.GetListen())
	assert.Equal(t, empty.GetLogLevel(), cfg.GetLogLevel())
	assert.Equal(t, empty.GetLogFormat(), cfg.GetLogFormat())
	assert.True(t, cfg.GetAlertsEnabled())
}

func TestEmptyConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := EmptyTuningConfig()

	assert.Equal(t, 30, cfg.GetMaxDisappeared())
	assert.Equal(t, 50.0, cfg.GetMaxDistance())
	assert.Equal(t, 5*time.Second, cfg.GetAlertCooldown())
	assert.Equal(t, 10, cfg.GetMaxAlertsPerMinute())
	assert.Equal(t, 300, cfg.GetWindowSize())
	assert.Equal(t, ScopeCamera, cfg.GetLimiterScope())
	require.NoError(t, cfg.Validate())
}

func TestLoadTuningConfig(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "max_disappeared": 10,
  "max_distance": 80.5,
  "alert_cooldown": "2s",
  "max_alerts_per_minute": 0,
  "limiter_scope": "global",
  "window_size": 60
}`
	require.NoError(t, os.WriteFile(configPath, []byte(testJSON), 0644))

	cfg, err := LoadTuningConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.GetMaxDisappeared())
	assert.Equal(t, 80.5, cfg.GetMaxDistance())
	assert.Equal(t, 2*time.Second, cfg.GetAlertCooldown())
	assert.Equal(t, 0, cfg.GetMaxAlertsPerMinute())
	assert.Equal(t, ScopeGlobal, cfg.GetLimiterScope())
	assert.Equal(t, 60, cfg.GetWindowSize())

	// Omitted fields keep their defaults.
	assert.Nil(t, cfg.TrackHistoryLength)
	assert.Equal(t, 64, cfg.GetTrackHistoryLength())
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("cfg.yaml", "{}"), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "missing.json"), "failed to stat"},
		{"bad json", write("bad.json", "{not json"), "failed to parse"},
		{"negative distance", write("dist.json", `{"max_distance": -1}`), "max_distance"},
		{"bad cooldown", write("cool.json", `{"alert_cooldown": "soon"}`), "alert_cooldown"},
		{"bad scope", write("scope.json", `{"limiter_scope": "planet"}`), "limiter_scope"},
		{"zero window", write("win.json", `{"window_size": 0}`), "window_size"},
		{"bad level", write("lvl.json", `{"log_level": "loud"}`), "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadTuningConfig_TooLarge(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "big.json")
	body := `{"listen": "` + strings.Repeat("x", 1024*1024) + `"}`
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))

	_, err := LoadTuningConfig(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestGetAlertCooldown_InvalidFallsBack(t *testing.T) {
	t.Parallel()
	cfg := &TuningConfig{AlertCooldown: ptrString("garbage")}
	assert.Equal(t, 5*time.Second, cfg.GetAlertCooldown())
}

// ApplyEnv tests mutate the process environment and cannot run in parallel.

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvMaxDisappeared, "12")
	t.Setenv(EnvMaxDistance, "33.5")
	t.Setenv(EnvAlertCooldown, "1500ms")
	t.Setenv(EnvLimiterScope, ScopeGlobal)
	t.Setenv(EnvListen, ":9090")

	cfg := EmptyTuningConfig()
	require.NoError(t, cfg.ApplyEnv(filepath.Join(t.TempDir(), "absent.env")))

	assert.Equal(t, 12, cfg.GetMaxDisappeared())
	assert.Equal(t, 33.5, cfg.GetMaxDistance())
	assert.Equal(t, 1500*time.Millisecond, cfg.GetAlertCooldown())
	assert.Equal(t, ScopeGlobal, cfg.GetLimiterScope())
	assert.Equal(t, ":9090", cfg.GetListen())
}

func TestApplyEnv_DotenvFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(p, []byte("AREA_WINDOW_SIZE=42\nAREA_DB_PATH=/tmp/area.db\n"), 0644))
	// godotenv.Load never overrides variables that are already set. Setenv
	// registers restore-on-cleanup, then the vars are cleared for the load.
	t.Setenv(EnvWindowSize, "")
	t.Setenv(EnvDatabasePath, "")
	os.Unsetenv(EnvWindowSize)
	os.Unsetenv(EnvDatabasePath)

	cfg := EmptyTuningConfig()
	require.NoError(t, cfg.ApplyEnv(p))

	assert.Equal(t, 42, cfg.GetWindowSize())
	assert.Equal(t, "/tmp/area.db", cfg.GetDatabasePath())
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv(EnvMaxDisappeared, "many")
	cfg := EmptyTuningConfig()
	err := cfg.ApplyEnv(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvMaxDisappeared)
}

func TestApplyEnv_ValidatesResult(t *testing.T) {
	t.Setenv(EnvWindowSize, "0")
	cfg := EmptyTuningConfig()
	require.Error(t, cfg.ApplyEnv(filepath.Join(t.TempDir(), "absent.env")))
}
