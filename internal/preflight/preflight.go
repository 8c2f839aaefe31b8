// Package preflight validates the runtime environment before the daemon
// starts accepting work: required directories exist and are writable, and
// the content backend is configured.
package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"marquee/internal/config"
)

// Result captures one environment check outcome.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// CheckDirectory verifies the path exists, is a directory, and grants
// read/write/traverse access.
func CheckDirectory(name, path string) Result {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(trimmed)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", trimmed, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s is not a directory", trimmed)}
	}
	if err := unix.Access(trimmed, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", trimmed, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", trimmed)}
}

// CheckBackend verifies the content backend is configured. Reachability is
// the connectivity monitor's job; an offline boot is a supported state.
func CheckBackend(cfg *config.Config) Result {
	const name = "Content backend"
	if strings.TrimSpace(cfg.Server.BaseURL) == "" {
		return Result{Name: name, Detail: "server.base_url is not configured"}
	}
	if strings.TrimSpace(cfg.Server.DeviceID) == "" {
		return Result{Name: name, Detail: "server.device_id is not configured"}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Server.BaseURL}
}

// Run executes every check for the given config.
func Run(cfg *config.Config) []Result {
	return []Result{
		CheckDirectory("Data directory", cfg.Paths.DataDir),
		CheckDirectory("Payload directory", cfg.Paths.PayloadDir),
		CheckDirectory("Log directory", cfg.Paths.LogDir),
		CheckBackend(cfg),
	}
}

// FirstFailure returns an error describing the first failed check, or nil
// when everything passed.
func FirstFailure(results []Result) error {
	for _, result := range results {
		if !result.Passed {
			return fmt.Errorf("preflight: %s: %s", result.Name, result.Detail)
		}
	}
	return nil
}
