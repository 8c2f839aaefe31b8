package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"marquee/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Sync.Workers != 2 {
		t.Fatalf("expected default worker count, got %d", cfg.Sync.Workers)
	}
	if cfg.Cache.MaxMiB != 2048 {
		t.Fatalf("expected default cache budget, got %d", cfg.Cache.MaxMiB)
	}
}

func TestLoadParsesFileAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
data_dir = "` + dir + `/state"

[server]
base_url = "https://content.example.com/api/v1/"
device_id = " lobby-tv-3 "
health_path = "healthz"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: exists=%v path=%s", exists, resolved)
	}
	if strings.HasSuffix(cfg.Server.BaseURL, "/") {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Server.BaseURL)
	}
	if cfg.Server.DeviceID != "lobby-tv-3" {
		t.Fatalf("expected device id trimmed, got %q", cfg.Server.DeviceID)
	}
	if cfg.Server.HealthPath != "/healthz" {
		t.Fatalf("expected leading slash added, got %q", cfg.Server.HealthPath)
	}
	if cfg.Paths.PayloadDir != filepath.Join(cfg.Paths.DataDir, "payloads") {
		t.Fatalf("expected payload dir derived from data dir, got %q", cfg.Paths.PayloadDir)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MARQUEE_LOG_LEVEL", "debug")
	t.Setenv("MARQUEE_DEVICE_ID", "kiosk-9")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected env override for log level, got %q", cfg.Logging.Level)
	}
	if cfg.Server.DeviceID != "kiosk-9" {
		t.Fatalf("expected env override for device id, got %q", cfg.Server.DeviceID)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := config.Default()
	cfg.Sync.Workers = 0
	cfg.Cache.FreeSpaceFloor = 1.5
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "sync.workers") {
		t.Fatalf("expected workers problem in %v", err)
	}
	if !strings.Contains(err.Error(), "free_space_floor") {
		t.Fatalf("expected free_space_floor problem in %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[sync]") {
		t.Fatal("sample config missing [sync] section")
	}
}
