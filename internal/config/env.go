package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables recognised by ApplyEnv.
const (
	EnvMaxDisappeared     = "AREA_MAX_DISAPPEARED"
	EnvMaxDistance        = "AREA_MAX_DISTANCE"
	EnvAlertCooldown      = "AREA_ALERT_COOLDOWN"
	EnvMaxAlertsPerMinute = "AREA_MAX_ALERTS_PER_MINUTE"
	EnvLimiterScope       = "AREA_LIMITER_SCOPE"
	EnvWindowSize         = "AREA_WINDOW_SIZE"
	EnvDatabasePath       = "AREA_DB_PATH"
	EnvListen             = "AREA_LISTEN"
	EnvLogLevel           = "AREA_LOG_LEVEL"
)

// ApplyEnv overlays AREA_* environment variables onto c. The given dotenv
// files are loaded first (".env" when none are named); a missing file is
// not an error, and variables already set in the process environment win
// over the file.
func (c *TuningConfig) ApplyEnv(envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	if err := envInt(EnvMaxDisappeared, &c.MaxDisappeared); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(EnvMaxDistance); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxDistance, v, err)
		}
		c.MaxDistance = ptrFloat64(f)
	}
	envString(EnvAlertCooldown, &c.AlertCooldown)
	if err := envInt(EnvMaxAlertsPerMinute, &c.MaxAlertsPerMinute); err != nil {
		return err
	}
	envString(EnvLimiterScope, &c.LimiterScope)
	if err := envInt(EnvWindowSize, &c.WindowSize); err != nil {
		return err
	}
	envString(EnvDatabasePath, &c.DatabasePath)
	envString(EnvListen, &c.Listen)
	envString(EnvLogLevel, &c.LogLevel)

	return c.Validate()
}

func envInt(key string, dst **int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = ptrInt(n)
	return nil
}

func envString(key string, dst **string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = ptrString(v)
	}
}
