package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfigWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected resolved path %s, got %s", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if cfg.TypingTTL != Default().TypingTTL {
		t.Fatalf("expected default typing ttl, got %v", cfg.TypingTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("addr: \":9090\"\ntyping_ttl: 3s\nauthz_mode: enrollment\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CAMPUSCHAT_ADDR", ":7070")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" {
		t.Fatalf("expected env to override addr, got %s", cfg.Addr)
	}
	if cfg.TypingTTL != 3*time.Second {
		t.Fatalf("expected typing ttl from file, got %v", cfg.TypingTTL)
	}
	if cfg.AuthzMode != AuthzModeEnrollment {
		t.Fatalf("expected enrollment authz mode, got %s", cfg.AuthzMode)
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("expected default history limit, got %d", cfg.HistoryLimit)
	}
}

func TestValidateRejectsUnknownModes(t *testing.T) {
	cfg := Default()
	cfg.AuthzMode = "sometimes"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown authz mode")
	}

	cfg = Default()
	cfg.Sequencer = "etcd"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown sequencer")
	}
}
