package testsupport

import (
	"path/filepath"
	"testing"

	"marquee/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "state")
	cfg.Paths.PayloadDir = filepath.Join(base, "state", "payloads")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Server.BaseURL = "http://127.0.0.1:0"
	cfg.Server.DeviceID = "test-device"
	cfg.Sync.BaseDelay = 1
	cfg.Sync.MaxDelay = 30
	cfg.Sync.QueuePollInterval = 1
	cfg.Connectivity.ProbeInterval = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithWorkers overrides the orchestrator worker count on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sync.Workers = workers
	}
}

// WithCacheBudget overrides the cache byte budget on the test config.
func WithCacheBudget(maxMiB int64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Cache.MaxMiB = maxMiB
	}
}
