package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tapehouse/controltape/internal/match"
	"github.com/tapehouse/controltape/internal/tape"
)

func sampleTape(prompt, input, output string) *tape.Tape {
	return &tape.Tape{
		Meta: tape.TapeMeta{
			Program: "demo",
			Args:    []string{"--flag"},
			Env:     map[string]string{"PATH": "/bin"},
			Cwd:     "/work",
		},
		Session: tape.SessionInfo{Platform: "linux", Version: "1.0"},
		Exchanges: []tape.Exchange{
			{
				Pre:    tape.ExchangePre{Prompt: prompt},
				Input:  tape.NewInput(tape.InputLine, []byte(input)),
				Output: tape.IOOutput{Chunks: []tape.Chunk{tape.NewChunk(0, []byte(output))}},
			},
		},
	}
}

func TestLoadAllAndBuildIndexExactMatch(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	path := filepath.Join(dir, "demo", "unnamed-aaaaaaaa.json5")
	if err := s.WriteTape(path, sampleTape("$ ", "status\n", "ok\n"), true); err != nil {
		t.Fatalf("WriteTape: %v", err)
	}

	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(s.Tapes()) != 1 {
		t.Fatalf("expected 1 tape loaded, got %d", len(s.Tapes()))
	}

	builder := match.NewKeyBuilder(nil, nil, nil, nil)
	s.BuildIndex(builder)

	ctx := match.MatchingContext{Program: "demo", Args: []string{"--flag"}, Env: map[string]string{"PATH": "/bin"}, Cwd: "/work", Prompt: "$ "}
	got := s.FindMatches(ctx, []byte("status\n"))
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	tp, ex := s.Exchange(got[0])
	if tp.Meta.Program != "demo" || ex.Pre.Prompt != "$ " {
		t.Fatalf("unexpected exchange: %+v", ex)
	}
}

func TestWriteTapeAtomicNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	path := filepath.Join(dir, "demo", "unnamed-bbbbbbbb.json5")
	if err := s.WriteTape(path, sampleTape("$ ", "a\n", "b\n"), true); err != nil {
		t.Fatalf("WriteTape: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected destination file to exist: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be gone after rename")
	}
}

func TestMarkUsedAndUnusedPaths(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	p1 := filepath.Join(dir, "demo", "unnamed-11111111.json5")
	p2 := filepath.Join(dir, "demo", "unnamed-22222222.json5")
	if err := s.WriteTape(p1, sampleTape("$ ", "a\n", "1\n"), true); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteTape(p2, sampleTape("$ ", "b\n", "2\n"), true); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadAll(); err != nil {
		t.Fatal(err)
	}
	s.MarkUsed(p1)
	unused := s.UnusedPaths()
	if len(unused) != 1 || unused[0] != p2 {
		t.Fatalf("expected only p2 unused, got %v", unused)
	}
}

func TestValidateLenientFlagsMissingFields(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	path := filepath.Join(dir, "broken.json5")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadAll(); err != nil {
		t.Fatal(err)
	}
	errs := s.Validate(false)
	if len(errs) != 1 {
		t.Fatalf("expected 1 validation error, got %d", len(errs))
	}
}
