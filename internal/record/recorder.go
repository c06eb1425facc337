package record

import (
	"fmt"
	"sync"
	"time"

	"github.com/tapehouse/controltape/internal/match"
	"github.com/tapehouse/controltape/internal/shlex"
	"github.com/tapehouse/controltape/internal/store"
	"github.com/tapehouse/controltape/internal/tape"
)

// Mode is the persistence policy applied to staged exchanges at
// Finalize.
type Mode int

const (
	// Disabled means no recorder is active; Finalize is a no-op.
	Disabled Mode = iota
	// New drops a staged exchange whose key already exists in the
	// store, keeping the previously recorded one.
	New
	// Overwrite replaces the existing exchange with the same key in
	// place, rewriting the tape that held it.
	Overwrite
)

type currentExchange struct {
	ctx       match.MatchingContext
	input     tape.IOInput
	startedAt time.Time
}

type pending struct {
	ctx match.MatchingContext
	ex  tape.Exchange
}

// Recorder tees child output into per-exchange chunks while a session
// is in recording mode, and decides at Finalize how staged exchanges
// are written back to the tape store.
type Recorder struct {
	mode        Mode
	store       *store.Store
	builder     *match.KeyBuilder
	nameGen     store.NameGenerator
	sessionInfo tape.SessionInfo
	dims        *tape.PTYDims

	inputDecorator  func([]byte) []byte
	outputDecorator func(tape.Chunk) tape.Chunk
	tapeDecorator   func(*tape.TapeMeta)

	sink *ChunkSink

	mu       sync.Mutex
	snapshot map[string]match.Candidate
	current  *currentExchange
	staged   []pending
}

type replacement struct {
	exchangeIdx int
	ex          tape.Exchange
}

// Option configures optional Recorder behavior at construction.
type Option func(*Recorder)

// WithInputDecorator sets a callback applied to raw input bytes before
// they are recorded.
func WithInputDecorator(f func([]byte) []byte) Option {
	return func(r *Recorder) { r.inputDecorator = f }
}

// WithOutputDecorator sets a callback applied to each recorded chunk.
func WithOutputDecorator(f func(tape.Chunk) tape.Chunk) Option {
	return func(r *Recorder) { r.outputDecorator = f }
}

// WithTapeDecorator sets a callback applied to a new tape's meta right
// before it is written, e.g. to set a Tag.
func WithTapeDecorator(f func(*tape.TapeMeta)) Option {
	return func(r *Recorder) { r.tapeDecorator = f }
}

// WithDims records the PTY dimensions a new tape's meta should carry.
func WithDims(rows, cols int) Option {
	return func(r *Recorder) { r.dims = &tape.PTYDims{Rows: rows, Cols: cols} }
}

// NewRecorder builds a Recorder. When mode is not Disabled, it immediately
// snapshots the store's current exact-key index — all NEW/OVERWRITE
// decisions at Finalize are judged against that pre-session snapshot,
// not against whatever the store looks like by the time the session
// closes.
func NewRecorder(mode Mode, st *store.Store, builder *match.KeyBuilder, nameGen store.NameGenerator, sessionInfo tape.SessionInfo, opts ...Option) *Recorder {
	r := &Recorder{
		mode:        mode,
		store:       st,
		builder:     builder,
		nameGen:     nameGen,
		sessionInfo: sessionInfo,
		sink:        NewChunkSink(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if mode != Disabled {
		r.snapshot = st.SnapshotIndex(builder)
	}
	return r
}

// Active reports whether this recorder persists anything at Finalize.
func (r *Recorder) Active() bool {
	return r.mode != Disabled
}

// OnSend freezes an exchange draft around a new input, snapshotting
// the current prompt and resetting the chunk sink.
func (r *Recorder) OnSend(raw []byte, kind string, ctx match.MatchingContext) {
	data := raw
	if r.inputDecorator != nil {
		data = r.inputDecorator(data)
	}

	r.mu.Lock()
	r.current = &currentExchange{ctx: ctx, input: tape.NewInput(kind, data), startedAt: time.Now()}
	r.mu.Unlock()

	r.sink.Reset()
}

// OnOutput tees a chunk of child output into the active exchange's sink.
func (r *Recorder) OnOutput(data []byte) {
	r.sink.Write(data)
}

// OnExchangeEnd closes the current exchange draft, composing it with
// the accumulated output and staging it pending Finalize. A boundary
// with no preceding OnSend (two expects with no intervening send) is a
// no-op, collapsing the empty boundary rather than staging a bogus
// exchange.
func (r *Recorder) OnExchangeEnd(exit *tape.ExitInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return
	}

	output := r.sink.Output()
	if r.outputDecorator != nil {
		for i := range output.Chunks {
			output.Chunks[i] = r.outputDecorator(output.Chunks[i])
		}
	}

	durMs := time.Since(r.current.startedAt).Milliseconds()
	ex := tape.Exchange{
		Pre:    tape.ExchangePre{Prompt: r.current.ctx.Prompt},
		Input:  r.current.input,
		Output: output,
		Exit:   exit,
		DurMs:  &durMs,
	}

	r.staged = append(r.staged, pending{ctx: r.current.ctx, ex: ex})
	r.current = nil
}

// Finalize applies this session's RecordMode to every staged exchange
// and persists the result. Staged exchanges whose key was already
// present in the pre-session snapshot are dropped (New) or replace the
// original in place (Overwrite, first match in load order only — see
// DESIGN.md's Open Question decision); every other staged exchange
// accumulates into a single freshly minted tape file.
func (r *Recorder) Finalize() error {
	r.mu.Lock()
	staged := r.staged
	r.staged = nil
	r.mu.Unlock()

	if len(staged) == 0 || r.mode == Disabled {
		return nil
	}

	replacements := make(map[int][]replacement)
	var fresh []pending

	for _, p := range staged {
		stdin, _ := p.ex.Input.Bytes()
		key := r.builder.ExactKey(p.ctx, stdin)
		if cand, ok := r.snapshot[key]; ok {
			if r.mode == Overwrite {
				replacements[cand.TapeIdx] = append(replacements[cand.TapeIdx], replacement{exchangeIdx: cand.ExchangeIdx, ex: p.ex})
			}
			// New: drop, keep the existing recording.
			continue
		}
		fresh = append(fresh, p)
	}

	for tapeIdx, repls := range replacements {
		t := r.store.TapeAt(tapeIdx)
		path := r.store.PathAt(tapeIdx)
		for _, repl := range repls {
			t.Exchanges[repl.exchangeIdx] = repl.ex
		}
		if err := r.store.WriteTape(path, t, false); err != nil {
			return fmt.Errorf("record: finalize overwrite %s: %w", path, err)
		}
	}

	if len(fresh) > 0 {
		if err := r.writeFreshTape(fresh); err != nil {
			return err
		}
	}

	return nil
}

func (r *Recorder) writeFreshTape(fresh []pending) error {
	first := fresh[0]
	program := first.ctx.Program
	args := first.ctx.Args
	if len(args) == 0 {
		parts := shlex.Split(program)
		if len(parts) > 0 {
			program = parts[0]
			args = parts[1:]
		}
	}

	preview, _ := first.ex.Input.Bytes()
	previewStr := string(preview)
	if len(previewStr) > 40 {
		previewStr = previewStr[:40]
	}

	meta := tape.TapeMeta{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Program:   program,
		Args:      args,
		Env:       r.builder.FilterEnv(first.ctx.Env),
		Cwd:       first.ctx.Cwd,
		PTY:       r.dims,
	}
	if r.tapeDecorator != nil {
		r.tapeDecorator(&meta)
	}

	exchanges := make([]tape.Exchange, len(fresh))
	for i, p := range fresh {
		exchanges[i] = p.ex
	}

	t := &tape.Tape{
		Meta:      meta,
		Session:   r.sessionInfo,
		Exchanges: exchanges,
	}

	path := r.nameGen(program, previewStr)
	if err := r.store.WriteTape(path, t, true); err != nil {
		return fmt.Errorf("record: finalize new tape %s: %w", path, err)
	}
	return nil
}
