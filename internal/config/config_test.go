package config

import (
	"testing"
)

func TestDefaultConfigHasSaneTapesPath(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Tapes.Path == "" {
		t.Fatalf("expected a non-empty default tapes path")
	}
	if !cfg.Tapes.Redact {
		t.Fatalf("expected redaction to default on")
	}
	if cfg.Session.AppName != "controltape" {
		t.Fatalf("expected default app name controltape, got %q", cfg.Session.AppName)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("CONTROLTAPE_TAPES_PATH", "/tmp/my-tapes")
	t.Setenv("CONTROLTAPE_MAX_SESSIONS", "5")
	t.Setenv("CONTROLTAPE_SESSION_TIMEOUT", "\x1b[32m45\x1b[0m")
	t.Setenv("CONTROLTAPE_REDACT", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tapes.Path != "/tmp/my-tapes" {
		t.Fatalf("expected tapes path override, got %q", cfg.Tapes.Path)
	}
	if cfg.Session.MaxSessions != 5 {
		t.Fatalf("expected max_sessions 5, got %d", cfg.Session.MaxSessions)
	}
	if cfg.Session.TimeoutSeconds != 45 {
		t.Fatalf("expected ANSI-stripped timeout 45, got %d", cfg.Session.TimeoutSeconds)
	}
	if cfg.Tapes.Redact {
		t.Fatalf("expected redact=false override to stick")
	}
}

func TestLoadRejectsInvalidMaxSessions(t *testing.T) {
	t.Setenv("CONTROLTAPE_MAX_SESSIONS", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatalf("expected an error for invalid CONTROLTAPE_MAX_SESSIONS")
	}
}
