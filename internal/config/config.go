package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Runtime adapter selection values for Config.RuntimeMode.
const (
	RuntimeModeCLI = "cli"
	RuntimeModeAPI = "api"
)

// Config holds runtime configuration for Podhawk
type Config struct {
	// RuntimeMode selects the container runtime adapter: "cli" shells out to
	// the podman binary, "api" talks to a Docker-compatible engine socket
	// (dockerd or podman's compatibility socket).
	RuntimeMode string `json:"runtime_mode" yaml:"runtime_mode"`

	// PodmanPath is the podman binary invoked by the CLI adapter.
	PodmanPath string `json:"podman_path" yaml:"podman_path"`

	// HealthcheckRetries is the probe attempt budget per new container.
	HealthcheckRetries int `json:"healthcheck_retries" yaml:"healthcheck_retries"`

	// DryRun reports which containers would be recreated without touching them.
	DryRun bool `json:"dry_run" yaml:"dry_run"`

	// DigestPrecheck skips pulling an image when the remote manifest digest
	// matches the locally recorded one.
	DigestPrecheck bool `json:"digest_precheck" yaml:"digest_precheck"`

	// Policies maps an image repository (name without tag) to a semver
	// constraint, e.g. "docker.io/library/postgres": "14.x". Matching images
	// are upgraded to the highest tag satisfying the constraint.
	Policies map[string]string `json:"policies" yaml:"policies"`

	// Metrics
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsPort    int  `json:"metrics_port" yaml:"metrics_port"`

	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file"`

	// StateDir holds the swap journal; empty selects the default location.
	StateDir string `json:"state_dir" yaml:"state_dir"`
}

// DefaultConfig returns a sane default configuration
func DefaultConfig() *Config {
	return &Config{
		RuntimeMode:        RuntimeModeCLI,
		PodmanPath:         "podman",
		HealthcheckRetries: 3,
		DryRun:             false,
		DigestPrecheck:     false,

		// Metrics defaults (opt-in)
		MetricsEnabled: false,
		MetricsPort:    9090,

		LogLevel: "info",
	}
}

// Validate returns a list of non-fatal configuration warnings.
func (c *Config) Validate() []string {
	var warnings []string
	checks := []struct {
		cond bool
		msg  string
	}{
		{c.RuntimeMode != RuntimeModeCLI && c.RuntimeMode != RuntimeModeAPI,
			fmt.Sprintf("unknown runtime_mode %q (expected %q or %q); falling back to %q", c.RuntimeMode, RuntimeModeCLI, RuntimeModeAPI, RuntimeModeCLI)},
		{c.HealthcheckRetries < 1, "healthcheck_retries must be at least 1; using 1"},
		{c.MetricsEnabled && (c.MetricsPort <= 0 || c.MetricsPort > 65535),
			fmt.Sprintf("invalid metrics_port %d", c.MetricsPort)},
		{c.PodmanPath == "" && c.RuntimeMode == RuntimeModeCLI, "podman_path is empty while runtime_mode is cli"},
	}
	for _, ch := range checks {
		if ch.cond {
			warnings = append(warnings, ch.msg)
		}
	}
	for repo, policy := range c.Policies {
		if policy == "" {
			warnings = append(warnings, fmt.Sprintf("empty semver policy for repository %q", repo))
		}
	}
	return warnings
}

// LoadConfigFromFile loads config from a YAML/JSON file
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
