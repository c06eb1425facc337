package replay

import (
	"bytes"
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Expect/ExpectExact when no pattern matched
// before the deadline and the pattern list carries no TIMEOUT sentinel.
var ErrTimeout = errors.New("replay: expect timeout")

// ErrEOF is returned by Expect/ExpectExact when the transport closed
// before a pattern matched and the pattern list carries no EOF
// sentinel.
var ErrEOF = errors.New("replay: expect eof")

// Expect polls the transport's buffer against patterns in declaration
// order, returning the index of the first one that matches. Matched
// bytes (and everything before them) are drained from the buffer and
// exposed via Before/After. Sentinel patterns never match bytes; they
// only change what happens on deadline or EOF (see expect).
func (t *Transport) Expect(ctx context.Context, patterns []Pattern, timeout time.Duration) (int, error) {
	match := func(buf []byte) (int, []int) {
		for i, p := range patterns {
			if p.Regexp == nil {
				continue
			}
			if loc := p.Regexp.FindIndex(buf); loc != nil {
				return i, loc
			}
		}
		return -1, nil
	}
	return t.expect(ctx, patterns, timeout, match)
}

// ExpectExact polls for the first literal substring among the pattern
// list, honoring declaration order when multiple would match at the
// same position by preferring the earliest starting match, then
// earliest index.
func (t *Transport) ExpectExact(ctx context.Context, patterns []Pattern, timeout time.Duration) (int, error) {
	match := func(buf []byte) (int, []int) {
		bestIdx := -1
		var bestLoc []int
		for i, p := range patterns {
			if p.Literal == nil {
				continue
			}
			pos := bytes.Index(buf, p.Literal)
			if pos < 0 {
				continue
			}
			loc := []int{pos, pos + len(p.Literal)}
			if bestLoc == nil || loc[0] < bestLoc[0] {
				bestIdx, bestLoc = i, loc
			}
		}
		return bestIdx, bestLoc
	}
	return t.expect(ctx, patterns, timeout, match)
}

func (t *Transport) expect(ctx context.Context, patterns []Pattern, timeout time.Duration, match func([]byte) (int, []int)) (int, error) {
	deadline := time.Now().Add(timeout)
	const pollInterval = 10 * time.Millisecond

	for {
		buf := t.Buffered()
		if idx, loc := match(buf); idx >= 0 {
			t.SetMatchBounds(buf[:loc[0]], buf[loc[0]:loc[1]])
			t.Drain(loc[1])
			return idx, nil
		}
		if !t.IsAlive() {
			if idx := SentinelIndex(patterns, SentinelEOF); idx >= 0 {
				t.SetMatchBounds(nil, nil)
				return idx, nil
			}
			return -1, ErrEOF
		}
		if time.Now().After(deadline) {
			if idx := SentinelIndex(patterns, SentinelTimeout); idx >= 0 {
				t.SetMatchBounds(nil, nil)
				return idx, nil
			}
			return -1, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
