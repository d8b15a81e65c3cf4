package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Mode != string(ModeFuzz) {
		t.Errorf("Mode = %q, want %q", cfg.Mode, ModeFuzz)
	}

	if cfg.Executors != 4 {
		t.Errorf("Executors = %d, want 4", cfg.Executors)
	}

	if cfg.MutatorThreads != 2 {
		t.Errorf("MutatorThreads = %d, want 2", cfg.MutatorThreads)
	}

	if cfg.NumFeatures != 64 {
		t.Errorf("NumFeatures = %d, want 64", cfg.NumFeatures)
	}
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Scoring != "pf-idf" {
		t.Errorf("Scoring = %q, want pf-idf", cfg.Scoring)
	}
}

func TestLoadOverlaysTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jitfuzz.toml")

	contents := "executors = 8\nmutator_policy = \"bandit\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Executors != 8 {
		t.Errorf("Executors = %d, want 8", cfg.Executors)
	}

	if cfg.MutatorPolicy != "bandit" {
		t.Errorf("MutatorPolicy = %q, want bandit", cfg.MutatorPolicy)
	}

	if cfg.Scoring != "pf-idf" {
		t.Errorf("Scoring should keep default value, got %q", cfg.Scoring)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jitfuzz.toml")

	if err := os.WriteFile(path, []byte("executors = 8\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PROG_EXECUTORS", "16")
	t.Setenv("PROG_DEBUG", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Executors != 16 {
		t.Errorf("Executors = %d, want 16 (env should win over file)", cfg.Executors)
	}

	if !cfg.Debug {
		t.Error("Debug should be true from PROG_DEBUG")
	}
}

func TestLoadRejectsMalformedEnvInt(t *testing.T) {
	t.Setenv("PROG_EXECUTORS", "not-a-number")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for malformed PROG_EXECUTORS")
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
