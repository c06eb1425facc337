package replay

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/tapehouse/controltape/internal/match"
	"github.com/tapehouse/controltape/internal/store"
	"github.com/tapehouse/controltape/internal/tape"
)

func newReplayStore(t *testing.T, tp *tape.Tape) (*store.Store, *match.KeyBuilder) {
	t.Helper()
	dir := t.TempDir()
	s := store.New(dir)
	builder := match.NewKeyBuilder(nil, nil, nil, nil)
	path := filepath.Join(dir, "demo", "unnamed-00000000.json5")
	if err := s.WriteTape(path, tp, true); err != nil {
		t.Fatalf("seed WriteTape: %v", err)
	}
	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	s.BuildIndex(builder)
	return s, builder
}

func sampleReplayTape() *tape.Tape {
	return &tape.Tape{
		Meta:    tape.TapeMeta{Program: "demo", Args: []string{}, Env: map[string]string{}, Cwd: "/work"},
		Session: tape.SessionInfo{Platform: "linux", Version: "1.0"},
		Exchanges: []tape.Exchange{
			{
				Pre:    tape.ExchangePre{Prompt: "$ "},
				Input:  tape.NewInput(tape.InputLine, []byte("status\n")),
				Output: tape.IOOutput{Chunks: []tape.Chunk{tape.NewChunk(0, []byte("ok\n$ "))}},
			},
		},
	}
}

func TestTransportSendMatchAndRead(t *testing.T) {
	s, builder := newReplayStore(t, sampleReplayTape())
	ctxFn := func() match.MatchingContext {
		return match.MatchingContext{Program: "demo", Cwd: "/work", Prompt: "$ "}
	}
	tr := New(s, builder, ctxFn, FixedLatency(0), nil, nil)

	if err := tr.Send(context.Background(), []byte("status\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := tr.ReadNonblocking(1024)
	if string(got) != "ok\n$ " {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestTransportSendMissWhenNoMatch(t *testing.T) {
	s, builder := newReplayStore(t, sampleReplayTape())
	ctxFn := func() match.MatchingContext {
		return match.MatchingContext{Program: "demo", Cwd: "/work", Prompt: "$ "}
	}
	tr := New(s, builder, ctxFn, nil, nil, nil)

	err := tr.Send(context.Background(), []byte("unknown-command\n"))
	if err == nil {
		t.Fatalf("expected Miss error")
	}
	var miss *Miss
	if _, ok := err.(*Miss); !ok {
		_ = miss
		t.Fatalf("expected *Miss, got %T: %v", err, err)
	}
}

func TestTransportExpectFindsPattern(t *testing.T) {
	s, builder := newReplayStore(t, sampleReplayTape())
	ctxFn := func() match.MatchingContext {
		return match.MatchingContext{Program: "demo", Cwd: "/work", Prompt: "$ "}
	}
	tr := New(s, builder, ctxFn, FixedLatency(0), nil, nil)
	if err := tr.Send(context.Background(), []byte("status\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	idx, err := tr.Expect(context.Background(), []Pattern{RegexPattern(regexp.MustCompile(`\$ $`))}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Expect: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected pattern index 0, got %d", idx)
	}
	if string(tr.Before()) != "ok\n" {
		t.Fatalf("unexpected Before() %q", tr.Before())
	}
}

func TestTransportExpectTimesOutWithoutMatch(t *testing.T) {
	s, builder := newReplayStore(t, sampleReplayTape())
	ctxFn := func() match.MatchingContext {
		return match.MatchingContext{Program: "demo", Cwd: "/work", Prompt: "$ "}
	}
	tr := New(s, builder, ctxFn, FixedLatency(0), nil, nil)
	if err := tr.Send(context.Background(), []byte("status\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, err := tr.Expect(context.Background(), []Pattern{RegexPattern(regexp.MustCompile(`never-appears`))}, 30*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestTransportExpectTimeoutSentinelReturnsIndexInstead(t *testing.T) {
	s, builder := newReplayStore(t, sampleReplayTape())
	ctxFn := func() match.MatchingContext {
		return match.MatchingContext{Program: "demo", Cwd: "/work", Prompt: "$ "}
	}
	tr := New(s, builder, ctxFn, FixedLatency(0), nil, nil)
	if err := tr.Send(context.Background(), []byte("status\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	patterns := []Pattern{RegexPattern(regexp.MustCompile(`never-appears`)), TimeoutPattern()}
	idx, err := tr.Expect(context.Background(), patterns, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("expected no error with a TIMEOUT sentinel present, got %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected sentinel index 1, got %d", idx)
	}
	if string(tr.Buffered()) != "ok\n$ " {
		t.Fatalf("expected buffer untouched, got %q", tr.Buffered())
	}
}

func TestTransportErrorInjectionForcesMiss(t *testing.T) {
	s, builder := newReplayStore(t, sampleReplayTape())
	ctxFn := func() match.MatchingContext {
		return match.MatchingContext{Program: "demo", Cwd: "/work", Prompt: "$ "}
	}
	tr := New(s, builder, ctxFn, FixedLatency(0), FixedErrorRate(100), nil)

	err := tr.Send(context.Background(), []byte("status\n"))
	if _, ok := err.(*Miss); !ok {
		t.Fatalf("expected *Miss from error injection, got %v", err)
	}
}
