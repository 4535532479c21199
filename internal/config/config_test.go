package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Collector.SnapshotInterval != 200*time.Millisecond {
		t.Errorf("snapshot interval default = %v", cfg.Collector.SnapshotInterval)
	}
	if !cfg.API.Enabled {
		t.Error("API should be enabled by default")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
log_level: DEBUG
collector:
  snapshot_interval: 50ms
files:
  roots: ["/tmp/stuff"]
  watch: false
plugins:
  disabled: [roll]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
	if cfg.Collector.SnapshotInterval != 50*time.Millisecond {
		t.Errorf("snapshot_interval = %v", cfg.Collector.SnapshotInterval)
	}
	if len(cfg.Files.Roots) != 1 || cfg.Files.Roots[0] != "/tmp/stuff" {
		t.Errorf("roots = %v", cfg.Files.Roots)
	}
	if cfg.PluginEnabled("roll") {
		t.Error("roll should be disabled")
	}
	if !cfg.PluginEnabled("control") {
		t.Error("control should stay enabled")
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("PERCH_TEST_ROOT", "/srv/files")
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "files:\n  roots: [\"${PERCH_TEST_ROOT}\"]\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Files.Roots[0] != "/srv/files" {
		t.Errorf("roots = %v", cfg.Files.Roots)
	}
}

func TestIndexFingerprintTracksFilesSection(t *testing.T) {
	a := Defaults()
	b := Defaults()
	if a.IndexFingerprint() != b.IndexFingerprint() {
		t.Fatal("identical configs must fingerprint identically")
	}
	b.Files.Roots = append(b.Files.Roots, "/elsewhere")
	if a.IndexFingerprint() == b.IndexFingerprint() {
		t.Fatal("changed roots must change the fingerprint")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "collector:\n  snapshot_interval: -5ms\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for negative snapshot interval")
	}
}
