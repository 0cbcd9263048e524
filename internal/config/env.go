package config

import (
	"fmt"
	"os"
	"strconv"
)

// ApplyEnvOverrides reads configuration values from environment variables and
// overrides fields in the provided Config. Returns an error if parsing fails.
//
// Environment variables supported:
// - PODHAWK_RUNTIME_MODE ("cli" or "api")
// - PODHAWK_PODMAN_PATH (string, e.g. "/usr/bin/podman")
// - PODHAWK_HEALTHCHECK_RETRIES (int, e.g. 3)
// - PODHAWK_DRY_RUN (bool)
// - PODHAWK_DIGEST_PRECHECK (bool)
// - PODHAWK_METRICS_ENABLED (bool)
// - PODHAWK_METRICS_PORT (int, e.g. 9090)
// - PODHAWK_LOG_LEVEL ("debug", "info", "warn", "error")
// - PODHAWK_LOG_FILE (path)
// - PODHAWK_STATE_DIR (path)
func ApplyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PODHAWK_RUNTIME_MODE"); v != "" {
		cfg.RuntimeMode = v
	}
	if v := os.Getenv("PODHAWK_PODMAN_PATH"); v != "" {
		cfg.PodmanPath = v
	}
	if v := os.Getenv("PODHAWK_HEALTHCHECK_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PODHAWK_HEALTHCHECK_RETRIES: %w", err)
		}
		cfg.HealthcheckRetries = n
	}
	if err := setBoolEnv("PODHAWK_DRY_RUN", func(b bool) { cfg.DryRun = b }); err != nil {
		return err
	}
	if err := setBoolEnv("PODHAWK_DIGEST_PRECHECK", func(b bool) { cfg.DigestPrecheck = b }); err != nil {
		return err
	}
	if err := setBoolEnv("PODHAWK_METRICS_ENABLED", func(b bool) { cfg.MetricsEnabled = b }); err != nil {
		return err
	}
	if v := os.Getenv("PODHAWK_METRICS_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PODHAWK_METRICS_PORT: %w", err)
		}
		cfg.MetricsPort = p
	}
	if v := os.Getenv("PODHAWK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PODHAWK_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("PODHAWK_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	return nil
}

// setBoolEnv is a small helper to parse boolean environment variables
func setBoolEnv(env string, setter func(bool)) error {
	if v := os.Getenv(env); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		setter(b)
	}
	return nil
}
