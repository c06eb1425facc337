// Package replay implements the replay transport: a drop-in substitute
// for a live PTY child that answers send/expect calls from a tape
// store instead of a real process.
package replay

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/tapehouse/controltape/internal/match"
	"github.com/tapehouse/controltape/internal/store"
	"github.com/tapehouse/controltape/internal/tape"
)

// Miss is returned when no recorded exchange matches an incoming send,
// or when error injection fires after a successful stream. The
// session's proxy fallback catches this to upgrade to a live child.
type Miss struct {
	Stdin []byte
}

func (e *Miss) Error() string {
	return fmt.Sprintf("replay: no tape match for input %q", string(e.Stdin))
}

// LatencyPolicy overrides recorded per-chunk delays. Fixed returns a
// constant; Range returns a uniform random value in [min,max]; a
// custom func(ctx) is also valid as LatencyPolicy itself.
type LatencyPolicy func(ctx match.MatchingContext) time.Duration

// FixedLatency returns a LatencyPolicy with a constant delay.
func FixedLatency(d time.Duration) LatencyPolicy {
	return func(match.MatchingContext) time.Duration { return d }
}

// RangeLatency returns a LatencyPolicy uniformly distributed in [min,max].
func RangeLatency(min, max time.Duration) LatencyPolicy {
	return func(match.MatchingContext) time.Duration {
		if max <= min {
			return min
		}
		return min + time.Duration(rand.Int63n(int64(max-min)))
	}
}

// ErrorPolicy decides whether to synthesize a Miss after a successful
// stream, as a percentage in [0,100] evaluated per call.
type ErrorPolicy func(ctx match.MatchingContext) float64

// FixedErrorRate returns an ErrorPolicy with a constant percentage.
func FixedErrorRate(pct float64) ErrorPolicy {
	return func(match.MatchingContext) float64 { return pct }
}

// Transport stands in for a live child during replay.
type Transport struct {
	store   *store.Store
	builder *match.KeyBuilder
	ctxFn   func() match.MatchingContext

	latency LatencyPolicy
	errRate ErrorPolicy
	tee     func([]byte)

	buf          bytes.Buffer
	exitStatus   *int
	signalStatus *int
	closed       bool

	before, after []byte

	lastTapePath string
}

// New builds a replay Transport over st using builder for matching.
// ctxFn is called on every send to obtain the current program/env/cwd
// and the most recently observed prompt. tee, if non-nil, is called
// with every chunk of streamed bytes as it is appended, so a caller
// (the session) can mirror replay output into its own ring/log/observer
// pipeline alongside the transport's own buffer.
func New(st *store.Store, builder *match.KeyBuilder, ctxFn func() match.MatchingContext, latency LatencyPolicy, errRate ErrorPolicy, tee func([]byte)) *Transport {
	return &Transport{
		store:   st,
		builder: builder,
		ctxFn:   ctxFn,
		latency: latency,
		errRate: errRate,
		tee:     tee,
	}
}

// Send looks up the matching exchange for payload, streams its
// recorded chunks into the internal buffer honoring delays (or the
// latency override), marks the tape used, and optionally synthesizes a
// Miss after streaming via the error-injection policy.
func (t *Transport) Send(ctx context.Context, payload []byte) error {
	mctx := t.ctxFn()
	matches := t.store.FindMatches(mctx, payload)
	if len(matches) == 0 {
		return &Miss{Stdin: payload}
	}

	cand := matches[0]
	tp, ex := t.store.Exchange(cand)
	t.lastTapePath = t.pathFor(cand)
	t.store.MarkUsed(t.lastTapePath)

	for _, chunk := range ex.Output.Chunks {
		delay := time.Duration(chunk.DelayMs) * time.Millisecond
		if t.latency != nil {
			delay = t.latency(mctx)
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		raw, err := chunk.Bytes()
		if err != nil {
			return fmt.Errorf("replay: decode chunk: %w", err)
		}
		t.buf.Write(raw)
		if t.tee != nil {
			t.tee(raw)
		}
	}

	if ex.Exit != nil {
		t.exitStatus = ex.Exit.Code
		t.signalStatus = ex.Exit.Signal
		t.closed = true
	}

	errRate := t.resolveErrorRate(tp, mctx)
	if errRate > 0 && rand.Float64()*100.0 < errRate {
		return &Miss{Stdin: payload}
	}

	return nil
}

func (t *Transport) resolveErrorRate(tp *tape.Tape, ctx match.MatchingContext) float64 {
	if t.errRate != nil {
		return t.errRate(ctx)
	}
	if v, ok := tp.Meta.ErrorRate.(float64); ok {
		return v
	}
	if v, ok := tp.Meta.ErrorRate.(int); ok {
		return float64(v)
	}
	return 0
}

func (t *Transport) pathFor(c match.Candidate) string {
	return t.store.PathAt(c.TapeIdx)
}

// ReadNonblocking pops up to size bytes currently available in the
// buffer, returning an empty slice if none are available yet.
func (t *Transport) ReadNonblocking(size int) []byte {
	if t.buf.Len() == 0 {
		return nil
	}
	n := size
	if n > t.buf.Len() {
		n = t.buf.Len()
	}
	out := make([]byte, n)
	t.buf.Read(out)
	return out
}

// IsAlive reports whether the transport is still usable.
func (t *Transport) IsAlive() bool {
	return !t.closed
}

// ExitStatus returns the exit code recorded on the terminating
// exchange, or nil if the session hasn't hit one.
func (t *Transport) ExitStatus() *int {
	return t.exitStatus
}

// SignalStatus returns the terminating signal recorded on the
// terminating exchange, or nil.
func (t *Transport) SignalStatus() *int {
	return t.signalStatus
}

// Close marks the transport closed. Idempotent.
func (t *Transport) Close() error {
	t.closed = true
	return nil
}

// Before returns the bytes preceding the last successful match.
func (t *Transport) Before() []byte { return t.before }

// After returns the bytes at and following the last successful match.
func (t *Transport) After() []byte { return t.after }

// LastTapePath returns the path of the tape file that answered the
// most recent successful Send, or "" if none has matched yet.
func (t *Transport) LastTapePath() string { return t.lastTapePath }

// Buffered returns a read-only snapshot of the buffer's current contents.
func (t *Transport) Buffered() []byte {
	return append([]byte(nil), t.buf.Bytes()...)
}

// SetMatchBounds records the before/after split located by an Expect
// call against this transport's buffer, without consuming it — Expect
// lives on the pattern package shared with the live session so both
// transports use identical matching logic.
func (t *Transport) SetMatchBounds(before, after []byte) {
	t.before = before
	t.after = after
}

// Drain consumes n bytes from the front of the buffer, used by Expect
// implementations once a match has been located.
func (t *Transport) Drain(n int) {
	t.buf.Next(n)
}
