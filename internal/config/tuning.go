package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Alert limiter scopes.
const (
	ScopeCamera = "camera" // each camera pipeline owns its cooldown/rate-limit state
	ScopeGlobal = "global" // all cameras share one limiter
)

// TuningConfig represents the root configuration for the monitoring
// pipeline. The schema matches the /api/config endpoint so the same JSON
// can be used for both startup configuration and inspection.
type TuningConfig struct {
	// Tracker params
	MaxDisappeared     *int     `json:"max_disappeared,omitempty"`
	MaxDistance        *float64 `json:"max_distance,omitempty"`
	TrackHistoryLength *int     `json:"track_history_length,omitempty"`
	MaxTracks          *int     `json:"max_tracks,omitempty"`

	// Alert params
	AlertsEnabled      *bool   `json:"alerts_enabled,omitempty"`
	AlertCooldown      *string `json:"alert_cooldown,omitempty"` // duration string like "5s"
	MaxAlertsPerMinute *int    `json:"max_alerts_per_minute,omitempty"`
	RateLimitPerKey    *bool   `json:"rate_limit_per_key,omitempty"`
	AlertHistoryLimit  *int    `json:"alert_history_limit,omitempty"`
	LimiterScope       *string `json:"limiter_scope,omitempty"`

	// Analytics params
	WindowSize *int `json:"window_size,omitempty"`

	// Storage params
	DatabasePath  *string `json:"database_path,omitempty"`
	RetentionDays *int    `json:"retention_days,omitempty"`

	// Server and logging
	Listen    *string `json:"listen,omitempty"`
	LogLevel  *string `json:"log_level,omitempty"`
	LogFormat *string `json:"log_format,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
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
		"../" + DefaultConfigPath,       // from cmd/
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // deeper packages
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
	if c.MaxDisappeared != nil && *c.MaxDisappeared < 0 {
		return fmt.Errorf("max_disappeared must be non-negative, got %d", *c.MaxDisappeared)
	}
	if c.MaxDistance != nil {
		if *c.MaxDistance < 0 || math.IsNaN(*c.MaxDistance) || math.IsInf(*c.MaxDistance, 0) {
			return fmt.Errorf("max_distance must be a finite non-negative number, got %f", *c.MaxDistance)
		}
	}
	if c.TrackHistoryLength != nil && *c.TrackHistoryLength < 1 {
		return fmt.Errorf("track_history_length must be at least 1, got %d", *c.TrackHistoryLength)
	}
	if c.MaxTracks != nil && *c.MaxTracks < 0 {
		return fmt.Errorf("max_tracks must be non-negative, got %d", *c.MaxTracks)
	}

	if c.AlertCooldown != nil && *c.AlertCooldown != "" {
		d, err := time.ParseDuration(*c.AlertCooldown)
		if err != nil {
			return fmt.Errorf("invalid alert_cooldown '%s': %w", *c.AlertCooldown, err)
		}
		if d < 0 {
			return fmt.Errorf("alert_cooldown must be non-negative, got %s", d)
		}
	}
	if c.MaxAlertsPerMinute != nil && *c.MaxAlertsPerMinute < 0 {
		return fmt.Errorf("max_alerts_per_minute must be non-negative, got %d", *c.MaxAlertsPerMinute)
	}
	if c.AlertHistoryLimit != nil && *c.AlertHistoryLimit < 1 {
		return fmt.Errorf("alert_history_limit must be at least 1, got %d", *c.AlertHistoryLimit)
	}
	if c.LimiterScope != nil {
		switch *c.LimiterScope {
		case ScopeCamera, ScopeGlobal:
		default:
			return fmt.Errorf("limiter_scope must be %q or %q, got %q", ScopeCamera, ScopeGlobal, *c.LimiterScope)
		}
	}

	if c.WindowSize != nil && *c.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1, got %d", *c.WindowSize)
	}
	if c.RetentionDays != nil && *c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must be non-negative, got %d", *c.RetentionDays)
	}

	if c.LogLevel != nil {
		switch *c.LogLevel {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", *c.LogLevel)
		}
	}
	if c.LogFormat != nil {
		switch *c.LogFormat {
		case "json", "console":
		default:
			return fmt.Errorf("log_format must be json or console, got %q", *c.LogFormat)
		}
	}

	return nil
}

// GetMaxDisappeared returns the max_disappeared value or the default.
func (c *TuningConfig) GetMaxDisappeared() int {
	if c.MaxDisappeared == nil {
		return 30
	}
	return *c.MaxDisappeared
}

// GetMaxDistance returns the max_distance value (pixels) or the default.
func (c *TuningConfig) GetMaxDistance() float64 {
	if c.MaxDistance == nil {
		return 50.0
	}
	return *c.MaxDistance
}

// GetTrackHistoryLength returns the track_history_length value or the default.
func (c *TuningConfig) GetTrackHistoryLength() int {
	if c.TrackHistoryLength == nil {
		return 64
	}
	return *c.TrackHistoryLength
}

// GetMaxTracks returns the max_tracks value or the default. Zero means unlimited.
func (c *TuningConfig) GetMaxTracks() int {
	if c.MaxTracks == nil {
		return 100
	}
	return *c.MaxTracks
}

// GetAlertsEnabled returns the alerts_enabled value or the default.
func (c *TuningConfig) GetAlertsEnabled() bool {
	if c.AlertsEnabled == nil {
		return true
	}
	return *c.AlertsEnabled
}

// GetAlertCooldown parses and returns the AlertCooldown as a time.Duration.
func (c *TuningConfig) GetAlertCooldown() time.Duration {
	if c.AlertCooldown == nil || *c.AlertCooldown == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.AlertCooldown)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetMaxAlertsPerMinute returns the max_alerts_per_minute value or the
// default. Zero disables the rate limit.
func (c *TuningConfig) GetMaxAlertsPerMinute() int {
	if c.MaxAlertsPerMinute == nil {
		return 10
	}
	return *c.MaxAlertsPerMinute
}

// GetRateLimitPerKey returns the rate_limit_per_key value or the default.
func (c *TuningConfig) GetRateLimitPerKey() bool {
	if c.RateLimitPerKey == nil {
		return false
	}
	return *c.RateLimitPerKey
}

// GetAlertHistoryLimit returns the alert_history_limit value or the default.
func (c *TuningConfig) GetAlertHistoryLimit() int {
	if c.AlertHistoryLimit == nil {
		return 1000
	}
	return *c.AlertHistoryLimit
}

// GetLimiterScope returns the limiter_scope value or the default.
func (c *TuningConfig) GetLimiterScope() string {
	if c.LimiterScope == nil {
		return ScopeCamera
	}
	return *c.LimiterScope
}

// GetWindowSize returns the window_size value (frames) or the default.
func (c *TuningConfig) GetWindowSize() int {
	if c.WindowSize == nil {
		return 300
	}
	return *c.WindowSize
}

// GetDatabasePath returns the database_path value or the default.
func (c *TuningConfig) GetDatabasePath() string {
	if c.DatabasePath == nil || *c.DatabasePath == "" {
		return "area_monitor.db"
	}
	return *c.DatabasePath
}

// GetRetentionDays returns the retention_days value or the default.
func (c *TuningConfig) GetRetentionDays() int {
	if c.RetentionDays == nil {
		return 30
	}
	return *c.RetentionDays
}

// GetListen returns the listen value or the default.
func (c *TuningConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return ":8080"
	}
	return *c.Listen
}

// GetLogLevel returns the log_level value or the default.
func (c *TuningConfig) GetLogLevel() string {
	if c.LogLevel == nil {
		return "info"
	}
	return *c.LogLevel
}

// GetLogFormat returns the log_format value or the default.
func (c *TuningConfig) GetLogFormat() string {
	if c.LogFormat == nil {
		return "console"
	}
	return *c.LogFormat
}
