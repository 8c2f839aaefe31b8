package preflight_test

import (
	"path/filepath"
	"testing"

	"marquee/internal/preflight"
	"marquee/internal/testsupport"
)

func TestCheckDirectory(t *testing.T) {
	dir := t.TempDir()

	if result := preflight.CheckDirectory("data", dir); !result.Passed {
		t.Fatalf("expected pass for %s, got %q", dir, result.Detail)
	}
	if result := preflight.CheckDirectory("data", filepath.Join(dir, "missing")); result.Passed {
		t.Fatal("expected failure for missing directory")
	}
	if result := preflight.CheckDirectory("data", ""); result.Passed {
		t.Fatal("expected failure for unconfigured directory")
	}
}

func TestRunReportsBackendConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := preflight.Run(cfg)
	if err := preflight.FirstFailure(results); err != nil {
		t.Fatalf("expected all checks to pass: %v", err)
	}

	cfg.Server.BaseURL = ""
	if err := preflight.FirstFailure(preflight.Run(cfg)); err == nil {
		t.Fatal("expected failure without a backend url")
	}
}
