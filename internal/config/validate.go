package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir is required")
	}
	if c.Cache.MaxMiB <= 0 {
		problems = append(problems, "cache.max_mib must be positive")
	}
	if c.Cache.FreeSpaceFloor < 0 || c.Cache.FreeSpaceFloor >= 1 {
		problems = append(problems, "cache.free_space_floor must be in [0, 1)")
	}
	if c.Sync.Workers <= 0 {
		problems = append(problems, "sync.workers must be positive")
	}
	if c.Sync.BaseDelay <= 0 {
		problems = append(problems, "sync.base_delay must be positive")
	}
	if c.Sync.MaxDelay < c.Sync.BaseDelay {
		problems = append(problems, "sync.max_delay must be >= sync.base_delay")
	}
	if c.Sync.MaxAttempts <= 0 {
		problems = append(problems, "sync.max_attempts must be positive")
	}
	if c.Sync.DeadLetterCap <= 0 {
		problems = append(problems, "sync.dead_letter_cap must be positive")
	}
	if c.Connectivity.ProbeInterval <= 0 {
		problems = append(problems, "connectivity.probe_interval must be positive")
	}
	if c.Connectivity.ProbeTimeout <= 0 {
		problems = append(problems, "connectivity.probe_timeout must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported (console, json)", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
