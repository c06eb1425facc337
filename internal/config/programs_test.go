package config

import (
	"testing"
)

func TestProgramsSaveGetList(t *testing.T) {
	p := NewPrograms(t.TempDir())

	cfg := ProgramConfig{Name: "demo", Command: "demo --interactive", ExpectSequence: []string{"login:", "password:"}}
	if err := p.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := p.Get("demo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Command != cfg.Command || len(got.ExpectSequence) != 2 {
		t.Fatalf("got %+v, want %+v", got, cfg)
	}

	names, err := p.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "demo" {
		t.Fatalf("expected [demo], got %v", names)
	}

	if err := p.Delete("demo"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := p.Get("demo"); err == nil {
		t.Fatalf("expected an error after delete")
	}
}

func TestProgramsRejectsPathTraversalName(t *testing.T) {
	p := NewPrograms(t.TempDir())
	if err := p.Save(ProgramConfig{Name: "../escape"}); err == nil {
		t.Fatalf("expected an error for a path-traversal name")
	}
}
