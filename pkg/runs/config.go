package runs

import (
	"os"
	"strconv"
	"time"
)

// RunConfig controls run tracking and janitor behavior.
type RunConfig struct {
	ClaimTimeout    time.Duration // Max time a run can be "running" before considered stuck. Default 30m.
	RetentionDays   int           // How long to keep terminal runs. Default 30.
	JanitorInterval time.Duration // How often the janitor sweeps. Default 1m.
	Enabled         bool          // Whether background tracking is active. Default true.
}

// DefaultRunConfig returns the default run configuration.
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		ClaimTimeout:    30 * time.Minute,
		RetentionDays:   30,
		JanitorInterval: time.Minute,
		Enabled:         true,
	}
}

// RunConfigFromEnv loads config from environment variables.
// PIPELINE_RUN_CLAIM_TIMEOUT_MINUTES, PIPELINE_RUN_RETENTION_DAYS,
// PIPELINE_RUN_JANITOR_INTERVAL_SECONDS, PIPELINE_RUN_ENABLED
func RunConfigFromEnv() *RunConfig {
	cfg := DefaultRunConfig()

	if v := os.Getenv("PIPELINE_RUN_CLAIM_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ClaimTimeout = time.Duration(n) * time.Minute
		}
	}

	if v := os.Getenv("PIPELINE_RUN_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetentionDays = n
		}
	}

	if v := os.Getenv("PIPELINE_RUN_JANITOR_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.JanitorInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("PIPELINE_RUN_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	return cfg
}
