package execenv

import (
	"context"
	"testing"
)

func TestLocalBackendCommandRunsInCwd(t *testing.T) {
	b := NewLocalBackend()
	dir := t.TempDir()

	cmd, err := b.Command(context.Background(), "pwd", nil, dir)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if cmd.Dir != dir {
		t.Fatalf("expected Dir %q, got %q", dir, cmd.Dir)
	}
	if b.Kind() != TypeLocal {
		t.Fatalf("expected TypeLocal, got %v", b.Kind())
	}
}

func TestFactoryBuildsLocalByDefault(t *testing.T) {
	b, err := New("", "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.Kind() != TypeLocal {
		t.Fatalf("expected TypeLocal backend for empty kind, got %v", b.Kind())
	}
}

func TestFactoryRejectsUnknownKind(t *testing.T) {
	if _, err := New("bogus", "", ""); err == nil {
		t.Fatalf("expected an error for an unknown backend kind")
	}
}
