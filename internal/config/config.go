package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir" env:"DATA_DIR"`
	PayloadDir string `toml:"payload_dir" env:"PAYLOAD_DIR"`
	LogDir     string `toml:"log_dir" env:"LOG_DIR"`
	APIBind    string `toml:"api_bind" env:"API_BIND"`
	APIToken   string `toml:"api_token" env:"API_TOKEN"`
}

// Server contains configuration for the content backend.
type Server struct {
	BaseURL        string `toml:"base_url" env:"SERVER_BASE_URL"`
	EventsURL      string `toml:"events_url" env:"SERVER_EVENTS_URL"`
	DeviceID       string `toml:"device_id" env:"DEVICE_ID"`
	HealthPath     string `toml:"health_path"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Cache contains configuration for the offline content cache.
type Cache struct {
	MaxMiB         int64   `toml:"max_mib"`
	FreeSpaceFloor float64 `toml:"free_space_floor"`
	SweepInterval  int     `toml:"sweep_interval"`
}

// Sync contains configuration for the sync queue and orchestrator.
type Sync struct {
	Workers           int `toml:"workers"`
	QueuePollInterval int `toml:"queue_poll_interval"`
	BaseDelay         int `toml:"base_delay"`
	MaxDelay          int `toml:"max_delay"`
	MaxAttempts       int `toml:"max_attempts"`
	SucceededGrace    int `toml:"succeeded_grace"`
	DeadLetterCap     int `toml:"dead_letter_cap"`
}

// Connectivity contains configuration for reachability probing.
type Connectivity struct {
	ProbeInterval int `toml:"probe_interval"`
	ProbeTimeout  int `toml:"probe_timeout"`
}

// Logging contains configuration for log output and rotation.
type Logging struct {
	Format     string `toml:"format" env:"LOG_FORMAT"`
	Level      string `toml:"level" env:"LOG_LEVEL"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Notifications contains configuration for ntfy operator alerts.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" env:"NTFY_TOPIC"`
	RequestTimeout int    `toml:"request_timeout"`
	DeadLetter     bool   `toml:"dead_letter"`
	Integrity      bool   `toml:"integrity"`
}

// Config encapsulates all configuration values for marquee.
//
// Configuration sections by subsystem:
//   - Paths: data, payload, and log directories plus the API bind address
//   - Server: content backend endpoints and device identity
//   - Cache: offline cache capacity and sweep cadence
//   - Sync: worker count, retry backoff, and retention policy
//   - Connectivity: reachability probe cadence
//   - Logging: log format, level, and rotation
//   - Notifications: ntfy operator alert settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Cache         Cache         `toml:"cache"`
	Sync          Sync          `toml:"sync"`
	Connectivity  Connectivity  `toml:"connectivity"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/marquee/config.toml")
}

// Load locates, parses, and validates a configuration file. Environment
// variables prefixed with MARQUEE_ override file values. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "MARQUEE_"}); err != nil {
		return nil, "", false, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("marquee.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.DataDir, &c.Paths.PayloadDir, &c.Paths.LogDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	if strings.TrimSpace(c.Paths.PayloadDir) == "" && strings.TrimSpace(c.Paths.DataDir) != "" {
		c.Paths.PayloadDir = filepath.Join(c.Paths.DataDir, "payloads")
	}
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	c.Server.EventsURL = strings.TrimSpace(c.Server.EventsURL)
	c.Server.DeviceID = strings.TrimSpace(c.Server.DeviceID)
	if c.Server.HealthPath == "" {
		c.Server.HealthPath = "/healthz"
	}
	if !strings.HasPrefix(c.Server.HealthPath, "/") {
		c.Server.HealthPath = "/" + c.Server.HealthPath
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.PayloadDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogFilePath returns the daemon log file location.
func (c *Config) LogFilePath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "marqueed.log")
}

// DatabasePath returns the local store database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "marquee.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
