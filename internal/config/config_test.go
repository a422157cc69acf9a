package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 || cfg.Difficulty != 2 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadMergesUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annalink.yaml")
	if err := os.WriteFile(path, []byte("port: 12345\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 12345 {
		t.Fatalf("Port = %d, want 12345 from user file", cfg.Port)
	}
	if cfg.Host != "0.0.0.0" {
		t.Fatalf("Host = %q, want default preserved when user file omits it", cfg.Host)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annalink.yaml")
	if err := os.WriteFile(path, []byte("port: 12345\nhost: 1.2.3.4\ndifficulty: 4\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("ANNALINK_HOST", "9.9.9.9")
	t.Setenv("ANNALINK_PORT", "7777")
	t.Setenv("ANNALINK_DIFFICULTY", "9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "9.9.9.9" || cfg.Port != 7777 || cfg.Difficulty != 9 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadMissingUserFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("Load: want error for missing user config file")
	}
}
