package record

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tapehouse/controltape/internal/match"
	"github.com/tapehouse/controltape/internal/store"
	"github.com/tapehouse/controltape/internal/tape"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s := store.New(dir)
	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	return s
}

func TestChunkSinkDelaysAndResets(t *testing.T) {
	sink := NewChunkSink()
	sink.Write([]byte("a"))
	time.Sleep(5 * time.Millisecond)
	sink.Write([]byte("b"))
	out := sink.Output()
	if len(out.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(out.Chunks))
	}
	if out.Chunks[0].DelayMs != 0 {
		t.Fatalf("first chunk should have zero delay, got %d", out.Chunks[0].DelayMs)
	}
	if out.Chunks[1].DelayMs <= 0 {
		t.Fatalf("second chunk should have positive delay, got %d", out.Chunks[1].DelayMs)
	}

	sink.Reset()
	if len(sink.Output().Chunks) != 0 {
		t.Fatalf("expected empty sink after reset")
	}
}

func TestRecorderNewTapeOnNovelExchange(t *testing.T) {
	s := newTestStore(t)
	builder := match.NewKeyBuilder(nil, nil, nil, nil)
	s.BuildIndex(builder)
	nameGen := store.DefaultNameGenerator(s.Root)

	r := NewRecorder(New, s, builder, nameGen, tape.SessionInfo{Platform: "linux", Version: "1.0"})
	ctx := match.MatchingContext{Program: "demo", Cwd: "/work", Prompt: "$ "}
	r.OnSend([]byte("status\n"), tape.InputLine, ctx)
	r.OnOutput([]byte("ok\n"))
	r.OnExchangeEnd(nil)

	if err := r.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if err := s.LoadAll(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(s.Tapes()) != 1 {
		t.Fatalf("expected 1 tape written, got %d", len(s.Tapes()))
	}
	tp := s.Tapes()[0]
	if len(tp.Exchanges) != 1 {
		t.Fatalf("expected 1 exchange, got %d", len(tp.Exchanges))
	}
}

func TestRecorderNewModeDropsDuplicateKey(t *testing.T) {
	dir := t.TempDir()
	s := store.New(dir)
	builder := match.NewKeyBuilder(nil, nil, nil, nil)

	existing := &tape.Tape{
		Meta:    tape.TapeMeta{Program: "demo", Args: []string{}, Env: map[string]string{}, Cwd: "/work"},
		Session: tape.SessionInfo{Platform: "linux", Version: "1.0"},
		Exchanges: []tape.Exchange{
			{Pre: tape.ExchangePre{Prompt: "$ "}, Input: tape.NewInput(tape.InputLine, []byte("status\n")), Output: tape.IOOutput{Chunks: []tape.Chunk{tape.NewChunk(0, []byte("old\n"))}}},
		},
	}
	path := filepath.Join(dir, "demo", "unnamed-00000000.json5")
	if err := s.WriteTape(path, existing, true); err != nil {
		t.Fatalf("seed WriteTape: %v", err)
	}
	if err := s.LoadAll(); err != nil {
		t.Fatal(err)
	}
	s.BuildIndex(builder)

	nameGen := store.DefaultNameGenerator(dir)
	r := NewRecorder(New, s, builder, nameGen, tape.SessionInfo{})
	ctx := match.MatchingContext{Program: "demo", Cwd: "/work", Prompt: "$ "}
	r.OnSend([]byte("status\n"), tape.InputLine, ctx)
	r.OnOutput([]byte("new\n"))
	r.OnExchangeEnd(nil)

	if err := r.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if err := s.LoadAll(); err != nil {
		t.Fatal(err)
	}
	if len(s.Tapes()) != 1 {
		t.Fatalf("NEW mode must not write a duplicate tape, got %d tapes", len(s.Tapes()))
	}
	chunk := s.Tapes()[0].Exchanges[0].Output.Chunks[0]
	raw, _ := chunk.Bytes()
	if string(raw) != "old\n" {
		t.Fatalf("NEW mode must keep the old recording, got %q", raw)
	}
}

func TestRecorderOverwriteModeReplacesInPlace(t *testing.T) {
	dir := t.TempDir()
	s := store.New(dir)
	builder := match.NewKeyBuilder(nil, nil, nil, nil)

	existing := &tape.Tape{
		Meta:    tape.TapeMeta{Program: "demo", Args: []string{}, Env: map[string]string{}, Cwd: "/work"},
		Session: tape.SessionInfo{},
		Exchanges: []tape.Exchange{
			{Pre: tape.ExchangePre{Prompt: "$ "}, Input: tape.NewInput(tape.InputLine, []byte("status\n")), Output: tape.IOOutput{Chunks: []tape.Chunk{tape.NewChunk(0, []byte("old\n"))}}},
		},
	}
	path := filepath.Join(dir, "demo", "unnamed-00000000.json5")
	if err := s.WriteTape(path, existing, true); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadAll(); err != nil {
		t.Fatal(err)
	}
	s.BuildIndex(builder)

	nameGen := store.DefaultNameGenerator(dir)
	r := NewRecorder(Overwrite, s, builder, nameGen, tape.SessionInfo{})
	ctx := match.MatchingContext{Program: "demo", Cwd: "/work", Prompt: "$ "}
	r.OnSend([]byte("status\n"), tape.InputLine, ctx)
	r.OnOutput([]byte("new\n"))
	r.OnExchangeEnd(nil)

	if err := r.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if err := s.LoadAll(); err != nil {
		t.Fatal(err)
	}
	if len(s.Tapes()) != 1 {
		t.Fatalf("OVERWRITE must not create a new tape file, got %d", len(s.Tapes()))
	}
	chunk := s.Tapes()[0].Exchanges[0].Output.Chunks[0]
	raw, _ := chunk.Bytes()
	if string(raw) != "new\n" {
		t.Fatalf("OVERWRITE must replace in place, got %q", raw)
	}
}

func TestRecorderCollapsesEmptyBoundary(t *testing.T) {
	s := newTestStore(t)
	builder := match.NewKeyBuilder(nil, nil, nil, nil)
	s.BuildIndex(builder)
	nameGen := store.DefaultNameGenerator(s.Root)

	r := NewRecorder(New, s, builder, nameGen, tape.SessionInfo{})
	// Two boundary closes with no intervening send: the second must be
	// a no-op, not a staged empty-input exchange.
	r.OnExchangeEnd(nil)
	r.OnExchangeEnd(nil)

	if err := r.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := s.LoadAll(); err != nil {
		t.Fatal(err)
	}
	if len(s.Tapes()) != 0 {
		t.Fatalf("expected no tapes written for empty boundaries, got %d", len(s.Tapes()))
	}
}
